package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRevocationStore_Idempotent(t *testing.T) {
	s := NewMemoryRevocationStore(0)
	defer s.Close()
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)

	revoked, err := s.IsRevoked(ctx, "a")
	require.NoError(t, err)
	assert.False(t, revoked)

	first, err := s.Revoke(ctx, "a", exp)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := s.Revoke(ctx, "a", exp)
	require.NoError(t, err)
	assert.False(t, again, "second revoke reports an existing entry")

	revoked, err = s.IsRevoked(ctx, "a")
	require.NoError(t, err)
	assert.True(t, revoked)
	assert.Equal(t, 1, s.Len())
}

func TestMemoryRevocationStore_ConcurrentRevokeHasOneWinner(t *testing.T) {
	s := NewMemoryRevocationStore(0)
	defer s.Close()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for rangeIdx := 0; rangeIdx < 32; rangeIdx++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			first, err := s.Revoke(context.Background(), "shared", time.Now().Add(time.Hour))
			assert.NoError(t, err)
			if first {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestMemoryRevocationStore_Sweep(t *testing.T) {
	c := newClock()
	s := NewMemoryRevocationStore(0, WithMemoryClock(c.Now))
	defer s.Close()
	ctx := context.Background()

	_, _ = s.Revoke(ctx, "short", c.Now().Add(time.Minute))
	_, _ = s.Revoke(ctx, "long", c.Now().Add(time.Hour))

	assert.Equal(t, 0, s.Sweep())
	c.Advance(time.Minute)
	assert.Equal(t, 1, s.Sweep())

	revoked, _ := s.IsRevoked(ctx, "short")
	assert.False(t, revoked)
	revoked, _ = s.IsRevoked(ctx, "long")
	assert.True(t, revoked)
}

func TestMemoryRevocationStore_BackgroundSweep(t *testing.T) {
	s := NewMemoryRevocationStore(5 * time.Millisecond)
	_, _ = s.Revoke(context.Background(), "gone", time.Now().Add(-time.Second))

	assert.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}
