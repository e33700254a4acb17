package auth

import (
	"context"
	"sync"
	"time"
)

// RevocationStore is the registry of revoked token ids. Implementations
// must be safe for concurrent use; a multi-instance deployment needs one
// backed by shared storage.
type RevocationStore interface {
	// Revoke records jti as revoked. It is idempotent and reports whether
	// this call created the entry. expiresAt is the token's natural expiry,
	// after which the entry may be dropped.
	Revoke(ctx context.Context, jti string, expiresAt time.Time) (bool, error)

	// IsRevoked reports whether jti has been revoked.
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// DefaultSweepInterval is how often MemoryRevocationStore drops entries
// whose tokens have expired.
const DefaultSweepInterval = 10 * time.Minute

// MemoryRevocationStore keeps revoked ids in a process-local map. It does
// not survive restarts and is not shared between replicas.
type MemoryRevocationStore struct {
	mu      sync.RWMutex
	entries map[string]time.Time // jti -> token expiry
	now     func() time.Time

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// MemoryOption configures a MemoryRevocationStore.
type MemoryOption func(*MemoryRevocationStore)

// WithMemoryClock overrides the clock used when sweeping.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(s *MemoryRevocationStore) { s.now = now }
}

// NewMemoryRevocationStore returns an empty store. When sweep is positive
// a background goroutine prunes expired entries at that interval until
// Close is called.
func NewMemoryRevocationStore(sweep time.Duration, opts ...MemoryOption) *MemoryRevocationStore {
	s := &MemoryRevocationStore{
		entries: make(map[string]time.Time),
		now:     time.Now,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if sweep > 0 {
		go s.sweepLoop(sweep)
	} else {
		close(s.done)
	}
	return s
}

func (s *MemoryRevocationStore) Revoke(_ context.Context, jti string, expiresAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[jti]; ok {
		return false, nil
	}
	s.entries[jti] = expiresAt
	return true, nil
}

func (s *MemoryRevocationStore) IsRevoked(_ context.Context, jti string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[jti]
	return ok, nil
}

// Len returns the number of entries held.
func (s *MemoryRevocationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Sweep drops entries whose token expiry has passed and returns how many
// were removed. An expired token fails verification regardless, so this
// only bounds memory.
func (s *MemoryRevocationStore) Sweep() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for jti, exp := range s.entries {
		if !now.Before(exp) {
			delete(s.entries, jti)
			n++
		}
	}
	return n
}

// Close stops the sweeper. It is safe to call more than once.
func (s *MemoryRevocationStore) Close() error {
	s.once.Do(func() { close(s.stop) })
	<-s.done
	return nil
}

func (s *MemoryRevocationStore) sweepLoop(interval time.Duration) {
	defer close(s.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}
