package cache

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/iliyamo/experience-booking/internal/clock"
)

type memEntry struct {
	val     []byte
	expires time.Time
}

// MemoryBackend is a process local Backend for single instance runs and
// tests.  Expired entries are dropped lazily on read.
type MemoryBackend struct {
	mu      sync.Mutex
	clock   clock.Clock
	entries map[string]memEntry
}

// NewMemoryBackend returns an empty MemoryBackend driven by clk.
func NewMemoryBackend(clk clock.Clock) *MemoryBackend {
	return &MemoryBackend{clock: clk, entries: map[string]memEntry{}}
}

func (b *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !e.expires.IsZero() && !b.clock.Now().Before(e.expires) {
		delete(b.entries, key)
		return nil, false, nil
	}
	return e.val, true, nil
}

func (b *MemoryBackend) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	e := memEntry{val: append([]byte(nil), val...)}
	if ttl > 0 {
		e.expires = b.clock.Now().Add(ttl)
	}
	b.entries[key] = e
	return nil
}

func (b *MemoryBackend) Incr(_ context.Context, key string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n, _ := strconv.ParseInt(string(b.entries[key].val), 10, 64)
	n++
	b.entries[key] = memEntry{val: []byte(strconv.FormatInt(n, 10))}
	return n, nil
}
