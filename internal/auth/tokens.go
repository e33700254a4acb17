package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ClaimsVersion is the schema version written into every token. Tokens
// carrying another version are rejected as malformed.
const ClaimsVersion = 1

// TokenType distinguishes access from refresh tokens.
type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
)

// Claims is the signed payload of every token.
type Claims struct {
	jwt.RegisteredClaims
	Type    TokenType `json:"type,omitempty"`
	Version int       `json:"ver,omitempty"`
}

// IssuedToken is a signed token together with the claims the caller may
// need without parsing it again.
type IssuedToken struct {
	Value     string
	JTI       string
	Type      TokenType
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Issuer mints HMAC-signed access and refresh tokens.
type Issuer struct {
	secret []byte
	method jwt.SigningMethod
	issuer string
	now    func() time.Time
}

// NewIssuer returns an Issuer signing with secret using the named HMAC
// algorithm (HS256, HS384 or HS512; empty means HS256).
func NewIssuer(secret, algorithm, issuer string) (*Issuer, error) {
	method, err := hmacMethod(algorithm)
	if err != nil {
		return nil, err
	}
	if secret == "" {
		return nil, errors.New("auth: empty signing secret")
	}
	return &Issuer{secret: []byte(secret), method: method, issuer: issuer, now: time.Now}, nil
}

// Algorithm returns the signing algorithm identifier.
func (i *Issuer) Algorithm() string { return i.method.Alg() }

// IssueAccessToken mints an access token for subject valid for ttl.
func (i *Issuer) IssueAccessToken(subject string, ttl time.Duration) (IssuedToken, error) {
	return i.issue(subject, TokenAccess, ttl)
}

// IssueRefreshToken mints a refresh token for subject valid for ttl.
func (i *Issuer) IssueRefreshToken(subject string, ttl time.Duration) (IssuedToken, error) {
	return i.issue(subject, TokenRefresh, ttl)
}

func (i *Issuer) issue(subject string, typ TokenType, ttl time.Duration) (IssuedToken, error) {
	if ttl <= 0 {
		return IssuedToken{}, fmt.Errorf("auth: non-positive ttl %s", ttl)
	}
	if subject == "" {
		return IssuedToken{}, errors.New("auth: empty subject")
	}
	// Whole seconds, so exp > iat survives NumericDate truncation.
	now := i.now().UTC().Truncate(time.Second)
	exp := now.Add(ttl).Truncate(time.Second)
	if !exp.After(now) {
		exp = now.Add(time.Second)
	}
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        NewID(),
			Subject:   subject,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Type:    typ,
		Version: ClaimsVersion,
	}
	signed, err := jwt.NewWithClaims(i.method, claims).SignedString(i.secret)
	if err != nil {
		return IssuedToken{}, fmt.Errorf("auth: sign %s token: %w", typ, err)
	}
	return IssuedToken{
		Value:     signed,
		JTI:       claims.ID,
		Type:      typ,
		IssuedAt:  now,
		ExpiresAt: exp,
	}, nil
}

// SubjectOf formats a principal id as a token subject.
func SubjectOf(id uint64) string { return strconv.FormatUint(id, 10) }

// ParseSubject is the inverse of SubjectOf.
func ParseSubject(sub string) (uint64, error) {
	id, err := strconv.ParseUint(sub, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("auth: invalid subject %q", sub)
	}
	return id, nil
}

func hmacMethod(alg string) (*jwt.SigningMethodHMAC, error) {
	if alg == "" {
		alg = jwt.SigningMethodHS256.Alg()
	}
	m, ok := jwt.GetSigningMethod(alg).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("auth: unsupported signing algorithm %q", alg)
	}
	return m, nil
}
