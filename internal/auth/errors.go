package auth

import (
	"errors"
	"time"
)

// Kind classifies an authentication failure. The HTTP boundary maps each
// kind to a status code with a single switch; the finer token kinds are
// only ever logged.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindInvalidCredentials
	KindAccountLocked
	KindAccountDisabled
	KindTokenExpired
	KindTokenRevoked
	KindMalformedToken
	KindMissingClaim
	KindWrongTokenType
	KindRepositoryUnavailable
	KindHashingError
)

var kindNames = [...]string{
	KindUnknown:               "unknown",
	KindInvalidCredentials:    "invalid_credentials",
	KindAccountLocked:         "account_locked",
	KindAccountDisabled:       "account_disabled",
	KindTokenExpired:          "token_expired",
	KindTokenRevoked:          "token_revoked",
	KindMalformedToken:        "malformed_token",
	KindMissingClaim:          "missing_claim",
	KindWrongTokenType:        "wrong_token_type",
	KindRepositoryUnavailable: "repository_unavailable",
	KindHashingError:          "hashing_error",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return kindNames[KindUnknown]
}

// IsTokenFailure reports whether k is one of the verification failures that
// are collapsed to a single "unauthorized" response.
func (k Kind) IsTokenFailure() bool {
	switch k {
	case KindTokenExpired, KindTokenRevoked, KindMalformedToken, KindMissingClaim, KindWrongTokenType:
		return true
	}
	return false
}

// Error is the error type returned by every operation in this package.
type Error struct {
	Kind Kind
	Op   string // operation that failed, e.g. "login"
	Err  error  // underlying cause, may be nil

	// LockedUntil is set for KindAccountLocked.
	LockedUntil time.Time
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinel errors of the same kind, so
// errors.Is(err, ErrTokenRevoked) holds for any revoked-token failure.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrInvalidCredentials    = &Error{Kind: KindInvalidCredentials}
	ErrAccountLocked         = &Error{Kind: KindAccountLocked}
	ErrAccountDisabled       = &Error{Kind: KindAccountDisabled}
	ErrTokenExpired          = &Error{Kind: KindTokenExpired}
	ErrTokenRevoked          = &Error{Kind: KindTokenRevoked}
	ErrMalformedToken        = &Error{Kind: KindMalformedToken}
	ErrMissingClaim          = &Error{Kind: KindMissingClaim}
	ErrWrongTokenType        = &Error{Kind: KindWrongTokenType}
	ErrRepositoryUnavailable = &Error{Kind: KindRepositoryUnavailable}
	ErrHashingError          = &Error{Kind: KindHashingError}
)

// ErrPrincipalNotFound is returned by a PrincipalRepository when no
// account matches. It never leaves this package unwrapped.
var ErrPrincipalNotFound = errors.New("principal not found")

// KindOf extracts the Kind carried by err, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func newError(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}
