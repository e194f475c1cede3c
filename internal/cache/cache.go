// Package cache memoizes read-mostly results such as computed availability.
// Entries live under a namespace whose generation counter is bumped on every
// write that affects them, so invalidation never has to enumerate keys.
package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Backend is the raw key/value store behind Versioned.
type Backend interface {
	// Get returns the value of key and whether it was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores val under key for ttl.
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	// Incr atomically increments the integer at key, creating it at 0.
	Incr(ctx context.Context, key string) (int64, error)
}

// ExperienceNamespace is the namespace holding everything derived from one
// experience's slots and reservations.
func ExperienceNamespace(id uint64) string {
	return "experience:" + strconv.FormatUint(id, 10)
}

// Versioned is a TTL cache with namespace invalidation.  Backend failures are
// logged and treated as misses: the cache never fails a request.
type Versioned struct {
	backend Backend
	prefix  string
	ttl     time.Duration
	log     *zap.Logger
}

// NewVersioned returns a cache writing keys under prefix with the given TTL.
func NewVersioned(b Backend, prefix string, ttl time.Duration, log *zap.Logger) *Versioned {
	if log == nil {
		log = zap.NewNop()
	}
	return &Versioned{backend: b, prefix: prefix, ttl: ttl, log: log}
}

func (v *Versioned) genKey(ns string) string { return v.prefix + ":" + ns + ":gen" }

// Gen is the generation of a namespace as seen by one Get.  Results computed
// after that Get must be stored with Put under the same Gen, so a write that
// invalidates the namespace meanwhile also discards the result.
type Gen struct {
	ns    string
	value string
	ok    bool
}

func (v *Versioned) generation(ctx context.Context, ns string) Gen {
	raw, ok, err := v.backend.Get(ctx, v.genKey(ns))
	if err != nil {
		v.log.Warn("cache generation read failed", zap.String("namespace", ns), zap.Error(err))
		return Gen{ns: ns}
	}
	if !ok {
		return Gen{ns: ns, value: "0", ok: true}
	}
	return Gen{ns: ns, value: string(raw), ok: true}
}

func (v *Versioned) entryKey(g Gen, key string) string {
	return v.prefix + ":" + g.ns + ":" + g.value + ":" + key
}

// Get decodes the cached value of key in ns into dst and reports a hit.  The
// returned Gen is what a miss should be stored under.
func (v *Versioned) Get(ctx context.Context, ns, key string, dst any) (Gen, bool) {
	g := v.generation(ctx, ns)
	if !g.ok {
		return g, false
	}
	raw, ok, err := v.backend.Get(ctx, v.entryKey(g, key))
	if err != nil {
		v.log.Warn("cache read failed", zap.String("namespace", ns), zap.String("key", key), zap.Error(err))
		return g, false
	}
	if !ok {
		return g, false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		v.log.Warn("cache entry undecodable", zap.String("key", key), zap.Error(err))
		return g, false
	}
	return g, true
}

// Put stores val under key in generation g.  A value stored under a
// generation that has since been invalidated is never read again.
func (v *Versioned) Put(ctx context.Context, g Gen, key string, val any) {
	if !g.ok {
		return
	}
	raw, err := json.Marshal(val)
	if err != nil {
		v.log.Warn("cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := v.backend.Set(ctx, v.entryKey(g, key), raw, v.ttl); err != nil {
		v.log.Warn("cache write failed", zap.String("namespace", g.ns), zap.String("key", key), zap.Error(err))
	}
}

// Invalidate drops every entry of ns by moving it to a new generation.
func (v *Versioned) Invalidate(ctx context.Context, ns string) error {
	_, err := v.backend.Incr(ctx, v.genKey(ns))
	return err
}
