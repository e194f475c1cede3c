// Package ratelimit throttles capacity mutating actions per (action, actor).
// Two window algorithms are provided, each with a Redis backend for shared
// deployments and an in-process backend for tests and single instances:
//
//   - sliding: a request is allowed when fewer than Limit requests were
//     accepted during the Window ending now.
//   - fixed: a counter that resets Window after the first request of a
//     window.
//
// Rejections always carry a RetryAfter hint.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrRateLimited matches every rejection returned by Decision.Err.
var ErrRateLimited = errors.New("rate limit exceeded")

// Rule is a budget of Limit requests per Window.
type Rule struct {
	Limit  int
	Window time.Duration
}

func (r Rule) valid() bool { return r.Limit > 0 && r.Window > 0 }

// Rules picks the rule of an action, falling back to Default.
type Rules struct {
	Default   Rule
	PerAction map[string]Rule
}

// For returns the rule that applies to action.
func (r Rules) For(action string) Rule {
	if rule, ok := r.PerAction[action]; ok && rule.valid() {
		return rule
	}
	return r.Default
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Err returns nil for allowed decisions and an *ExceededError otherwise.
func (d Decision) Err(action string) error {
	if d.Allowed {
		return nil
	}
	return &ExceededError{Action: action, RetryAfter: d.RetryAfter}
}

// ExceededError is a rejected request.  It is always recoverable after
// RetryAfter.
type ExceededError struct {
	Action     string
	RetryAfter time.Duration
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry after %s", e.Action, e.RetryAfter)
}

func (e *ExceededError) Is(target error) bool { return target == ErrRateLimited }

// Limiter decides whether actor may perform action now.  The error is
// reserved for backend failures; a rejection is a Decision with Allowed
// false.
type Limiter interface {
	Allow(ctx context.Context, action, actor string) (Decision, error)
}

// Key builds the storage key of an (action, actor) pair.  Anonymous actors
// share the "anon" bucket.
func Key(prefix, action, actor string) string {
	if actor == "" {
		actor = "anon"
	}
	parts := []string{action, actor}
	if prefix != "" {
		parts = append([]string{prefix}, parts...)
	}
	return strings.Join(parts, ":")
}

// Strategy names a window algorithm.
type Strategy string

const (
	Sliding Strategy = "sliding"
	Fixed   Strategy = "fixed"
)

// ParseStrategy accepts "sliding" and "fixed", case insensitive.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(strings.ToLower(strings.TrimSpace(s))); st {
	case Sliding, Fixed:
		return st, nil
	case "":
		return Sliding, nil
	}
	return "", errors.Newf("unknown rate limit strategy %q", s)
}

// Pruner is implemented by limiters and guards that hold per-key state in
// process and need idle keys evicted periodically.
type Pruner interface {
	Prune(now time.Time) int
}

// Disabled allows everything.
type Disabled struct{}

func (Disabled) Allow(context.Context, string, string) (Decision, error) {
	return Decision{Allowed: true}, nil
}
