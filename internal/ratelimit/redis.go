package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/experience-booking/internal/clock"
)

// slidingScript keeps one sorted set member per accepted request, scored by
// its time in ms.  Members older than the window are trimmed first.
var slidingScript = redis.NewScript(`
	local key = KEYS[1]
	local now_ms = tonumber(ARGV[1])
	local window_ms = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local member = ARGV[4]

	redis.call('ZREMRANGEBYSCORE', key, '-inf', now_ms - window_ms)
	local count = redis.call('ZCARD', key)
	if count < limit then
		redis.call('ZADD', key, now_ms, member)
		redis.call('PEXPIRE', key, window_ms)
		return { 1, limit - count - 1, 0 }
	end

	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	local retry_ms = window_ms
	if oldest[2] then
		retry_ms = tonumber(oldest[2]) + window_ms - now_ms
	end
	if retry_ms < 0 then retry_ms = 0 end
	return { 0, 0, retry_ms }
`)

// fixedScript counts requests in a window anchored at the first request;
// the key expiring is the counter reset.
var fixedScript = redis.NewScript(`
	local key = KEYS[1]
	local window_ms = tonumber(ARGV[1])
	local limit = tonumber(ARGV[2])

	local count = tonumber(redis.call('GET', key) or '0')
	if count >= limit then
		local ttl = redis.call('PTTL', key)
		if ttl < 0 then ttl = window_ms end
		return { 0, 0, ttl }
	end
	count = redis.call('INCR', key)
	if count == 1 then
		redis.call('PEXPIRE', key, window_ms)
	end
	return { 1, limit - count, 0 }
`)

// RedisLimiter shares windows across instances through Redis.
type RedisLimiter struct {
	rdb      redis.Scripter
	rules    Rules
	strategy Strategy
	prefix   string
	clock    clock.Clock
}

// NewRedis returns a limiter backed by rdb.
func NewRedis(rdb redis.Scripter, rules Rules, strategy Strategy, prefix string, clk clock.Clock) *RedisLimiter {
	if clk == nil {
		clk = clock.New()
	}
	return &RedisLimiter{rdb: rdb, rules: rules, strategy: strategy, prefix: prefix, clock: clk}
}

func (l *RedisLimiter) Allow(ctx context.Context, action, actor string) (Decision, error) {
	rule := l.rules.For(action)
	if !rule.valid() {
		return Decision{Allowed: true}, nil
	}
	key := Key(l.prefix, action, actor)
	windowMs := rule.Window.Milliseconds()

	var res any
	var err error
	if l.strategy == Fixed {
		res, err = fixedScript.Run(ctx, l.rdb, []string{key + ":fixed"}, windowMs, rule.Limit).Result()
	} else {
		nowMs := l.clock.Now().UnixMilli()
		member := strconv.FormatInt(nowMs, 10) + ":" + uuid.NewString()
		res, err = slidingScript.Run(ctx, l.rdb, []string{key + ":sliding"}, nowMs, windowMs, rule.Limit, member).Result()
	}
	if err != nil {
		return Decision{}, errors.Wrapf(err, "rate limit script for %s", key)
	}

	arr, ok := res.([]any)
	if !ok || len(arr) != 3 {
		return Decision{}, errors.Newf("unexpected rate limit script result %#v", res)
	}
	return Decision{
		Allowed:    asInt64(arr[0]) == 1,
		Limit:      rule.Limit,
		Remaining:  int(asInt64(arr[1])),
		RetryAfter: time.Duration(asInt64(arr[2])) * time.Millisecond,
	}, nil
}

func asInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n
		}
	}
	if n, err := strconv.ParseInt(fmt.Sprint(v), 10, 64); err == nil {
		return n
	}
	return 0
}
