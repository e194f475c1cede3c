package config

import (
	"strconv"
	"strings"
	"time"
)

// RateLimitConfig configures the per-(action, actor) window limiter and the
// per-IP guard in front of it.
type RateLimitConfig struct {
	Enabled  bool
	Limit    int
	Window   time.Duration
	Strategy string // "sliding" or "fixed"
	Prefix   string
	// PerAction overrides Limit/Window for single actions, read from
	// RATE_LIMIT_ACTIONS as "slot.move=5/1m,hold.approve=20/1m".
	PerAction map[string]ActionLimit

	IPRPS   float64 // per-IP token refill rate, 0 disables the guard
	IPBurst int
}

// ActionLimit is a Limit per Window override.
type ActionLimit struct {
	Limit  int
	Window time.Duration
}

func LoadRateLimitConfig() RateLimitConfig {
	c := RateLimitConfig{
		Enabled:   envBool("RATE_LIMIT_ENABLED", true),
		Limit:     envInt("RATE_LIMIT_LIMIT", 30),
		Window:    envDur("RATE_LIMIT_WINDOW", time.Minute),
		Strategy:  envStr("RATE_LIMIT_STRATEGY", "sliding"),
		Prefix:    envStr("RATE_LIMIT_PREFIX", "rl"),
		PerAction: parseActionLimits(envStr("RATE_LIMIT_ACTIONS", "")),
		IPRPS:     envFloat("RATE_LIMIT_IP_RPS", 20),
		IPBurst:   envInt("RATE_LIMIT_IP_BURST", 40),
	}
	if c.Limit < 1 {
		c.Limit = 1
	}
	if c.Window <= 0 {
		c.Window = time.Minute
	}
	return c
}

// parseActionLimits skips malformed entries.
func parseActionLimits(s string) map[string]ActionLimit {
	out := map[string]ActionLimit{}
	for _, part := range strings.Split(s, ",") {
		action, rule, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || action == "" {
			continue
		}
		n, w, ok := strings.Cut(rule, "/")
		if !ok {
			continue
		}
		limit, err := strconv.Atoi(n)
		if err != nil || limit < 1 {
			continue
		}
		window, err := time.ParseDuration(w)
		if err != nil || window <= 0 {
			continue
		}
		out[action] = ActionLimit{Limit: limit, Window: window}
	}
	return out
}
