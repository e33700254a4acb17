package auth

import (
	"context"
	"time"

	"github.com/iliyamo/recipe-box/internal/model"
)

// Default lockout policy.
const (
	DefaultMaxFailedAttempts = 5
	DefaultLockoutDuration   = 15 * time.Minute
)

// PrincipalRepository is the account storage the subsystem borrows. Find
// methods return ErrPrincipalNotFound when nothing matches.
type PrincipalRepository interface {
	FindByIdentifier(ctx context.Context, identifier string) (*model.Principal, error)
	FindByID(ctx context.Context, id uint64) (*model.Principal, error)
	Save(ctx context.Context, p *model.Principal) error
}

// Guard tracks failed logins per account and gates attempts while an
// account is locked out. The lockout window is fixed, not exponential.
type Guard struct {
	Users           PrincipalRepository
	MaxAttempts     int
	LockoutDuration time.Duration
	Now             func() time.Time
}

// NewGuard returns a Guard with the given policy; non-positive values
// select the defaults.
func NewGuard(users PrincipalRepository, maxAttempts int, lockout time.Duration) *Guard {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxFailedAttempts
	}
	if lockout <= 0 {
		lockout = DefaultLockoutDuration
	}
	return &Guard{Users: users, MaxAttempts: maxAttempts, LockoutDuration: lockout, Now: time.Now}
}

// CheckNotLocked fails with KindAccountLocked while p's lockout window is
// open.
func (g *Guard) CheckNotLocked(p *model.Principal) error {
	if p.IsLockedAt(g.Now()) {
		return &Error{Kind: KindAccountLocked, Op: "check lockout", LockedUntil: *p.LockedUntil}
	}
	return nil
}

// RecordFailure counts a failed attempt and opens the lockout window once
// the threshold is reached. It reports whether p is now locked.
func (g *Guard) RecordFailure(ctx context.Context, p *model.Principal) (bool, error) {
	now := g.Now()
	if p.LockedUntil != nil && !p.IsLockedAt(now) {
		// The previous window has elapsed; start counting afresh.
		p.FailedLoginAttempts = 0
		p.LockedUntil = nil
	}
	p.FailedLoginAttempts++
	locked := false
	if p.FailedLoginAttempts >= g.MaxAttempts {
		until := now.Add(g.LockoutDuration)
		p.LockedUntil = &until
		locked = true
	}
	if err := g.Users.Save(ctx, p); err != nil {
		return false, newError(KindRepositoryUnavailable, "record login failure", err)
	}
	return locked, nil
}

// RecordSuccess clears the failure counter and any lockout.
func (g *Guard) RecordSuccess(ctx context.Context, p *model.Principal) error {
	if p.FailedLoginAttempts == 0 && p.LockedUntil == nil {
		return nil
	}
	p.FailedLoginAttempts = 0
	p.LockedUntil = nil
	if err := g.Users.Save(ctx, p); err != nil {
		return newError(KindRepositoryUnavailable, "record login success", err)
	}
	return nil
}

// Unlock lifts a lockout before its window elapses. It has the same effect
// as RecordSuccess.
func (g *Guard) Unlock(ctx context.Context, p *model.Principal) error {
	return g.RecordSuccess(ctx, p)
}
