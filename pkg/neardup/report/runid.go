package report

import (
	"crypto/rand"
	"sync"

	"github.com/oklog/ulid/v2"
)

// Builder hands out run IDs. IDs from one Builder sort in creation order.
type Builder struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// New creates a new run ID builder
func New() *Builder {
	return &Builder{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// NewRunID returns a fresh ULID string.
func (b *Builder) NewRunID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return ulid.MustNew(ulid.Now(), b.entropy).String()
}
