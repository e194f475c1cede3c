package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// IPGuard is a coarse per client IP token bucket that sits in front of the
// per-action windows.  Buckets idle for longer than idleTTL are dropped on
// the next Prune.
type IPGuard struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration

	mu       sync.Mutex
	limiters map[string]*ipEntry
}

type ipEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewIPGuard allows rps requests per second per IP with the given burst.
func NewIPGuard(rps float64, burst int) *IPGuard {
	if burst < 1 {
		burst = 1
	}
	return &IPGuard{
		limit:    rate.Limit(rps),
		burst:    burst,
		idleTTL:  10 * time.Minute,
		limiters: map[string]*ipEntry{},
	}
}

func (g *IPGuard) get(ip string, now time.Time) *rate.Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.limiters[ip]
	if !ok {
		e = &ipEntry{limiter: rate.NewLimiter(g.limit, g.burst)}
		g.limiters[ip] = e
	}
	e.lastSeen = now
	return e.limiter
}

// Allow reports whether ip may make a request now.  When it may not, the
// returned duration is how long until a token frees up.
func (g *IPGuard) Allow(ip string) (bool, time.Duration) {
	now := time.Now()
	l := g.get(ip, now)
	r := l.ReserveN(now, 1)
	if !r.OK() {
		return false, time.Second
	}
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return false, d
	}
	return true, 0
}

// Prune drops buckets not used within the idle TTL and returns how many
// were removed.
func (g *IPGuard) Prune(now time.Time) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for ip, e := range g.limiters {
		if now.Sub(e.lastSeen) > g.idleTTL {
			delete(g.limiters, ip)
			n++
		}
	}
	return n
}
