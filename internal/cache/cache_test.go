package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/experience-booking/internal/clock"
)

type entry struct {
	Seats int `json:"seats"`
}

func TestVersionedTTL(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC))
	c := NewVersioned(NewMemoryBackend(clk), "test", 30*time.Second, nil)
	ctx := context.Background()
	ns := ExperienceNamespace(7)

	var got entry
	gen, hit := c.Get(ctx, ns, "k", &got)
	assert.False(t, hit)

	c.Put(ctx, gen, "k", entry{Seats: 20})
	_, hit = c.Get(ctx, ns, "k", &got)
	require.True(t, hit)
	assert.Equal(t, 20, got.Seats)

	clk.Advance(30 * time.Second)
	_, hit = c.Get(ctx, ns, "k", &got)
	assert.False(t, hit, "expired at ttl")
}

func TestVersionedInvalidate(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC))
	c := NewVersioned(NewMemoryBackend(clk), "test", time.Minute, nil)
	ctx := context.Background()

	var got entry
	gen1, _ := c.Get(ctx, ExperienceNamespace(1), "k", &got)
	gen2, _ := c.Get(ctx, ExperienceNamespace(2), "k", &got)
	c.Put(ctx, gen1, "k", entry{Seats: 1})
	c.Put(ctx, gen2, "k", entry{Seats: 2})

	require.NoError(t, c.Invalidate(ctx, ExperienceNamespace(1)))

	_, hit := c.Get(ctx, ExperienceNamespace(1), "k", &got)
	assert.False(t, hit)
	_, hit = c.Get(ctx, ExperienceNamespace(2), "k", &got)
	assert.True(t, hit, "other namespaces untouched")
	assert.Equal(t, 2, got.Seats)
}

func TestPutAfterInvalidateIsDiscarded(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC))
	c := NewVersioned(NewMemoryBackend(clk), "test", time.Minute, nil)
	ctx := context.Background()
	ns := ExperienceNamespace(7)

	var got entry
	gen, hit := c.Get(ctx, ns, "k", &got)
	require.False(t, hit)

	// A write lands while the miss is being computed.
	require.NoError(t, c.Invalidate(ctx, ns))
	c.Put(ctx, gen, "k", entry{Seats: 20})

	_, hit = c.Get(ctx, ns, "k", &got)
	assert.False(t, hit, "value computed before the write must not be served")
}

func TestRedisBackend(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()
	ctx := context.Background()

	prefix := "cachetest:" + time.Now().Format("150405.000000")
	c := NewVersioned(NewRedisBackend(rdb), prefix, time.Minute, nil)
	var got entry
	gen, _ := c.Get(ctx, "ns", "k", &got)
	c.Put(ctx, gen, "k", entry{Seats: 3})

	_, hit := c.Get(ctx, "ns", "k", &got)
	require.True(t, hit)
	assert.Equal(t, 3, got.Seats)

	require.NoError(t, c.Invalidate(ctx, "ns"))
	_, hit = c.Get(ctx, "ns", "k", &got)
	assert.False(t, hit)
}
