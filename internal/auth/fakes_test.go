package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/recipe-box/internal/model"
)

// memUsers is an in-memory PrincipalRepository resolving identifiers by
// username, then email, then phone.
type memUsers struct {
	mu       sync.Mutex
	byID     map[uint64]model.Principal
	saves    int
	failSave error
	failFind error
}

func newMemUsers(ps ...model.Principal) *memUsers {
	u := &memUsers{byID: make(map[uint64]model.Principal)}
	for _, p := range ps {
		u.byID[p.ID] = p
	}
	return u
}

func (u *memUsers) FindByIdentifier(_ context.Context, identifier string) (*model.Principal, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.failFind != nil {
		return nil, u.failFind
	}
	match := []func(model.Principal) bool{
		func(p model.Principal) bool { return p.Username == identifier },
		func(p model.Principal) bool { return strings.EqualFold(p.Email, identifier) },
		func(p model.Principal) bool { return p.Phone != "" && p.Phone == identifier },
	}
	for _, m := range match {
		for _, p := range u.byID {
			if m(p) {
				cp := p
				return &cp, nil
			}
		}
	}
	return nil, ErrPrincipalNotFound
}

func (u *memUsers) FindByID(_ context.Context, id uint64) (*model.Principal, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.failFind != nil {
		return nil, u.failFind
	}
	p, ok := u.byID[id]
	if !ok {
		return nil, ErrPrincipalNotFound
	}
	return &p, nil
}

func (u *memUsers) Save(_ context.Context, p *model.Principal) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.failSave != nil {
		return u.failSave
	}
	u.saves++
	u.byID[p.ID] = *p
	return nil
}

func (u *memUsers) get(id uint64) model.Principal {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.byID[id]
}

func (u *memUsers) setActive(id uint64, active bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	p := u.byID[id]
	p.IsActive = active
	u.byID[id] = p
}

// clock is a manually advanced time source.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// failingStore is a RevocationStore whose backend is down.
type failingStore struct{ err error }

func (f failingStore) Revoke(context.Context, string, time.Time) (bool, error) { return false, f.err }
func (f failingStore) IsRevoked(context.Context, string) (bool, error)        { return false, f.err }

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (r *recordingPublisher) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recordingPublisher) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

var errBackendDown = errors.New("connection refused")
