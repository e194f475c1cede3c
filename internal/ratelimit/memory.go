package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/iliyamo/experience-booking/internal/clock"
)

// MemoryLimiter keeps windows in process.  Counts are not shared between
// instances.  Keys whose window has passed stay until Prune drops them.
type MemoryLimiter struct {
	rules    Rules
	strategy Strategy
	prefix   string
	clock    clock.Clock

	mu      sync.Mutex
	logs    map[string]*slidingLog
	windows map[string]*fixedWindow
}

type slidingLog struct {
	hits   []time.Time
	window time.Duration
}

type fixedWindow struct {
	start  time.Time
	window time.Duration
	count  int
}

// NewMemory returns an in-process limiter.  A nil clock uses the system
// clock.
func NewMemory(rules Rules, strategy Strategy, prefix string, clk clock.Clock) *MemoryLimiter {
	if clk == nil {
		clk = clock.New()
	}
	return &MemoryLimiter{
		rules:    rules,
		strategy: strategy,
		prefix:   prefix,
		clock:    clk,
		logs:     map[string]*slidingLog{},
		windows:  map[string]*fixedWindow{},
	}
}

func (m *MemoryLimiter) Allow(_ context.Context, action, actor string) (Decision, error) {
	rule := m.rules.For(action)
	if !rule.valid() {
		return Decision{Allowed: true}, nil
	}
	key := Key(m.prefix, action, actor)
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.strategy == Fixed {
		return m.fixed(key, rule, now), nil
	}
	return m.sliding(key, rule, now), nil
}

func (m *MemoryLimiter) sliding(key string, rule Rule, now time.Time) Decision {
	cutoff := now.Add(-rule.Window)
	l, ok := m.logs[key]
	if !ok {
		l = &slidingLog{}
		m.logs[key] = l
	}
	l.window = rule.Window
	i := 0
	for i < len(l.hits) && !l.hits[i].After(cutoff) {
		i++
	}
	l.hits = l.hits[i:]

	d := Decision{Limit: rule.Limit}
	if len(l.hits) >= rule.Limit {
		d.RetryAfter = l.hits[0].Add(rule.Window).Sub(now)
		return d
	}
	l.hits = append(l.hits, now)
	d.Allowed = true
	d.Remaining = rule.Limit - len(l.hits)
	return d
}

func (m *MemoryLimiter) fixed(key string, rule Rule, now time.Time) Decision {
	w, ok := m.windows[key]
	if !ok || !now.Before(w.start.Add(rule.Window)) {
		w = &fixedWindow{start: now, window: rule.Window}
		m.windows[key] = w
	}
	d := Decision{Limit: rule.Limit}
	if w.count >= rule.Limit {
		d.RetryAfter = w.start.Add(rule.Window).Sub(now)
		return d
	}
	w.count++
	d.Allowed = true
	d.Remaining = rule.Limit - w.count
	return d
}

// Prune drops keys whose window holds no hits at now and returns how many
// were removed.
func (m *MemoryLimiter) Prune(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for key, l := range m.logs {
		if len(l.hits) == 0 || !l.hits[len(l.hits)-1].Add(l.window).After(now) {
			delete(m.logs, key)
			n++
		}
	}
	for key, w := range m.windows {
		if !now.Before(w.start.Add(w.window)) {
			delete(m.windows, key)
			n++
		}
	}
	return n
}
