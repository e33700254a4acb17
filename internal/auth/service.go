package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/iliyamo/recipe-box/internal/logging"
	"github.com/iliyamo/recipe-box/internal/model"
)

// Config holds the session policy.
type Config struct {
	Secret            string
	Algorithm         string // HS256, HS384 or HS512
	Issuer            string
	AccessTTL         time.Duration
	RefreshTTL        time.Duration
	BcryptCost        int
	MaxFailedAttempts int
	LockoutDuration   time.Duration
}

// Session is a freshly minted token pair for a principal.
type Session struct {
	Principal *model.Principal
	Access    IssuedToken
	Refresh   IssuedToken
}

// Service is the entry point used by request handlers: it logs principals
// in, resolves bearer tokens and rotates refresh tokens.
type Service struct {
	cfg      Config
	users    PrincipalRepository
	revoked  RevocationStore
	hasher   *Hasher
	issuer   *Issuer
	verifier *Verifier
	guard    *Guard
	events   EventPublisher
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now in every component of the service.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithEvents sets the publisher that receives security events.
func WithEvents(p EventPublisher) Option {
	return func(s *Service) {
		if p != nil {
			s.events = p
		}
	}
}

// NewService wires the hasher, issuer, verifier and guard from cfg.
func NewService(cfg Config, users PrincipalRepository, revoked RevocationStore, opts ...Option) (*Service, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("auth: token ttls must be positive")
	}
	issuer, err := NewIssuer(cfg.Secret, cfg.Algorithm, cfg.Issuer)
	if err != nil {
		return nil, err
	}
	s := &Service{
		cfg:     cfg,
		users:   users,
		revoked: revoked,
		hasher:  NewHasher(cfg.BcryptCost),
		issuer:  issuer,
		guard:   NewGuard(users, cfg.MaxFailedAttempts, cfg.LockoutDuration),
		events:  noopPublisher{},
		now:     time.Now,
	}
	s.verifier = NewVerifier(issuer, revoked)
	for _, opt := range opts {
		opt(s)
	}
	s.issuer.now = s.now
	s.verifier.now = s.now
	s.guard.Now = s.now
	return s, nil
}

// Hasher exposes the password hasher used for logins, so registration
// hashes with the same policy.
func (s *Service) Hasher() *Hasher { return s.hasher }

// Login checks the lockout state and the password for identifier and, on
// success, returns a new token pair. Unknown identifiers and wrong
// passwords both fail with KindInvalidCredentials.
func (s *Service) Login(ctx context.Context, identifier, password string) (Session, error) {
	const op = "login"
	log := logging.FromContext(ctx)

	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return Session{}, newError(KindInvalidCredentials, op, nil)
	}

	p, err := s.users.FindByIdentifier(ctx, identifier)
	if errors.Is(err, ErrPrincipalNotFound) {
		s.hasher.burn(password)
		// The identifier is left out: it may be a mistyped password.
		s.publish(ctx, Event{Type: EventLoginFailed, Detail: "unknown identifier"})
		return Session{}, newError(KindInvalidCredentials, op, nil)
	}
	if err != nil {
		return Session{}, newError(KindRepositoryUnavailable, op, err)
	}

	if err := s.guard.CheckNotLocked(p); err != nil {
		log.Warn("login refused: account locked", slog.Uint64("principal_id", p.ID))
		return Session{}, err
	}

	if !s.hasher.Verify(password, p.PasswordHash) {
		locked, err := s.guard.RecordFailure(ctx, p)
		if err != nil {
			return Session{}, err
		}
		s.publish(ctx, Event{Type: EventLoginFailed, PrincipalID: p.ID, Identifier: identifier, Detail: "wrong password"})
		if locked {
			log.Warn("account locked after repeated failures",
				slog.Uint64("principal_id", p.ID),
				slog.Int("attempts", p.FailedLoginAttempts),
				slog.Time("locked_until", *p.LockedUntil),
			)
			s.publish(ctx, Event{Type: EventAccountLocked, PrincipalID: p.ID, Detail: p.LockedUntil.UTC().Format(time.RFC3339)})
		}
		return Session{}, newError(KindInvalidCredentials, op, nil)
	}

	if !p.IsActive {
		return Session{}, newError(KindAccountDisabled, op, nil)
	}

	if err := s.guard.RecordSuccess(ctx, p); err != nil {
		return Session{}, err
	}

	sess, err := s.mint(op, p)
	if err != nil {
		return Session{}, err
	}
	s.publish(ctx, Event{Type: EventLoginSucceeded, PrincipalID: p.ID})
	return sess, nil
}

// StartSession mints a token pair for an already authenticated principal,
// e.g. right after registration.
func (s *Service) StartSession(p *model.Principal) (Session, error) {
	return s.mint("start session", p)
}

// Authenticate resolves an access token to its principal. Tokens of
// deactivated accounts are rejected even while otherwise valid.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*model.Principal, error) {
	const op = "authenticate"
	v, err := s.verifier.Verify(ctx, accessToken, TokenAccess)
	if err != nil {
		logging.FromContext(ctx).Debug("access token rejected", slog.String("kind", KindOf(err).String()))
		return nil, err
	}
	return s.loadSubject(ctx, op, v.Subject)
}

// Refresh exchanges a refresh token for a new pair. The presented token is
// revoked before the new pair is minted, so it can be used at most once
// and a failure in between leaves the caller with no valid refresh token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	const op = "refresh"
	log := logging.FromContext(ctx)

	v, err := s.verifier.Verify(ctx, refreshToken, TokenRefresh)
	if err != nil {
		if KindOf(err) == KindTokenRevoked {
			log.Warn("revoked refresh token presented")
		}
		return Session{}, err
	}
	p, err := s.loadSubject(ctx, op, v.Subject)
	if err != nil {
		return Session{}, err
	}

	first, err := s.revoked.Revoke(ctx, v.JTI, v.ExpiresAt)
	if err != nil {
		return Session{}, newError(KindRepositoryUnavailable, op, err)
	}
	if !first {
		// A concurrent refresh with the same token won the race.
		log.Warn("refresh token reused concurrently", slog.Uint64("principal_id", p.ID))
		return Session{}, newError(KindTokenRevoked, op, nil)
	}

	sess, err := s.mint(op, p)
	if err != nil {
		return Session{}, err
	}
	s.publish(ctx, Event{Type: EventTokenRefreshed, PrincipalID: p.ID})
	return sess, nil
}

// Logout revokes every presented token. Tokens that are already expired
// or revoked are skipped; at least one token must be given.
func (s *Service) Logout(ctx context.Context, accessToken, refreshToken string) error {
	const op = "logout"
	if accessToken == "" && refreshToken == "" {
		return newError(KindMissingClaim, op, errors.New("no token presented"))
	}

	type presented struct {
		value string
		typ   TokenType
	}
	var toRevoke []Verified
	for _, t := range []presented{{accessToken, TokenAccess}, {refreshToken, TokenRefresh}} {
		if t.value == "" {
			continue
		}
		v, err := s.verifier.Verify(ctx, t.value, t.typ)
		switch KindOf(err) {
		case KindUnknown:
			if err != nil {
				return err
			}
			toRevoke = append(toRevoke, v)
		case KindTokenExpired, KindTokenRevoked:
			// nothing left to revoke
		default:
			return err
		}
	}
	if len(toRevoke) == 2 && toRevoke[0].Subject != toRevoke[1].Subject {
		return newError(KindMalformedToken, op, errors.New("tokens belong to different principals"))
	}

	for _, v := range toRevoke {
		if _, err := s.revoked.Revoke(ctx, v.JTI, v.ExpiresAt); err != nil {
			return newError(KindRepositoryUnavailable, op, err)
		}
	}
	if len(toRevoke) > 0 {
		if id, err := ParseSubject(toRevoke[0].Subject); err == nil {
			s.publish(ctx, Event{Type: EventSessionEnded, PrincipalID: id})
		}
	}
	return nil
}

// Unlock clears the failure counter and lockout of the principal with the
// given id. It returns an error wrapping ErrPrincipalNotFound for unknown
// ids.
func (s *Service) Unlock(ctx context.Context, id uint64) error {
	const op = "unlock"
	p, err := s.users.FindByID(ctx, id)
	if errors.Is(err, ErrPrincipalNotFound) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err != nil {
		return newError(KindRepositoryUnavailable, op, err)
	}
	if err := s.guard.Unlock(ctx, p); err != nil {
		return err
	}
	s.publish(ctx, Event{Type: EventAccountUnlock, PrincipalID: p.ID})
	return nil
}

func (s *Service) loadSubject(ctx context.Context, op, subject string) (*model.Principal, error) {
	id, err := ParseSubject(subject)
	if err != nil {
		return nil, newError(KindMalformedToken, op, err)
	}
	p, err := s.users.FindByID(ctx, id)
	if errors.Is(err, ErrPrincipalNotFound) {
		// The account is gone; its tokens die with it.
		return nil, newError(KindTokenRevoked, op, err)
	}
	if err != nil {
		return nil, newError(KindRepositoryUnavailable, op, err)
	}
	if !p.IsActive {
		return nil, newError(KindAccountDisabled, op, nil)
	}
	return p, nil
}

func (s *Service) mint(op string, p *model.Principal) (Session, error) {
	sub := SubjectOf(p.ID)
	access, err := s.issuer.IssueAccessToken(sub, s.cfg.AccessTTL)
	if err != nil {
		return Session{}, newError(KindUnknown, op, err)
	}
	refresh, err := s.issuer.IssueRefreshToken(sub, s.cfg.RefreshTTL)
	if err != nil {
		return Session{}, newError(KindUnknown, op, err)
	}
	return Session{Principal: p, Access: access, Refresh: refresh}, nil
}

func (s *Service) publish(ctx context.Context, ev Event) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = s.now().UTC()
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		logging.FromContext(ctx).Warn("security event not published",
			slog.String("type", ev.Type),
			slog.Any("error", err),
		)
	}
}
