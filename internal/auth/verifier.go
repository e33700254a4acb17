package auth

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verified is the outcome of a successful verification.
type Verified struct {
	Subject   string
	Type      TokenType
	JTI       string
	ExpiresAt time.Time
}

// Verifier checks tokens minted by an Issuer sharing the same secret.
type Verifier struct {
	secret  []byte
	alg     string
	revoked RevocationStore
	parser  *jwt.Parser
	now     func() time.Time
}

// NewVerifier returns a Verifier accepting tokens signed by issuer and
// consulting revoked on every call.
func NewVerifier(issuer *Issuer, revoked RevocationStore) *Verifier {
	alg := issuer.Algorithm()
	return &Verifier{
		secret:  issuer.secret,
		alg:     alg,
		revoked: revoked,
		// Expiry is checked below against our own clock, after the claim
		// shape, so the parser only decodes and checks the signature.
		parser: jwt.NewParser(jwt.WithValidMethods([]string{alg}), jwt.WithoutClaimsValidation()),
		now:    time.Now,
	}
}

// Verify runs the presented token through decode, claim, expiry,
// revocation and type checks, in that order, and stops at the first
// failure.
func (v *Verifier) Verify(ctx context.Context, token string, expected TokenType) (Verified, error) {
	const op = "verify token"

	var claims Claims
	if _, err := v.parser.ParseWithClaims(token, &claims, v.key); err != nil {
		return Verified{}, newError(KindMalformedToken, op, err)
	}
	if claims.Version != ClaimsVersion && claims.Version != 0 {
		return Verified{}, newError(KindMalformedToken, op, nil)
	}

	if claims.Subject == "" || claims.Type == "" || claims.ID == "" || claims.ExpiresAt == nil || claims.Version == 0 {
		return Verified{}, newError(KindMissingClaim, op, nil)
	}

	exp := claims.ExpiresAt.Time
	if !v.now().Before(exp) {
		return Verified{}, newError(KindTokenExpired, op, nil)
	}

	revoked, err := v.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		return Verified{}, newError(KindRepositoryUnavailable, op, err)
	}
	if revoked {
		return Verified{}, newError(KindTokenRevoked, op, nil)
	}

	if claims.Type != expected {
		return Verified{}, newError(KindWrongTokenType, op, nil)
	}

	return Verified{
		Subject:   claims.Subject,
		Type:      claims.Type,
		JTI:       claims.ID,
		ExpiresAt: exp,
	}, nil
}

func (v *Verifier) key(*jwt.Token) (any, error) { return v.secret, nil }
