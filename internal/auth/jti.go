package auth

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// idGenerator hands out ULIDs from a crypto/rand seeded monotonic source.
// Within one millisecond the entropy is incremented, so two ids minted in
// the same instant still differ.
type idGenerator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

var (
	idsOnce sync.Once
	ids     *idGenerator
)

// NewID returns a new lexicographically sortable unique identifier. It is
// used for token ids and request ids.
func NewID() string {
	idsOnce.Do(func() {
		ids = &idGenerator{entropy: ulid.Monotonic(rand.Reader, 0)}
	})
	return ids.newAt(time.Now().UTC())
}

func (g *idGenerator) newAt(t time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), g.entropy).String()
}
