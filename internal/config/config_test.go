package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMemoryDriver(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("APP_PORT", "")
	t.Setenv("AVAILABILITY_MAX_OCCURRENCES", "")
	t.Setenv("CACHE_ENABLED", "")
	t.Setenv("HOLD_TIMEOUT", "2m")
	t.Setenv("RATE_LIMIT_STRATEGY", "fixed")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.Equal(t, 2*time.Minute, cfg.Booking.HoldTimeout)
	assert.Equal(t, 500, cfg.Booking.MaxOccurrences)
	assert.Equal(t, "fixed", cfg.RateLimit.Strategy)
	assert.True(t, cfg.Cache.Enabled)
}

func TestLoadReportsEveryMissingVar(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("STORE_DRIVER", "mysql")
	t.Setenv("DB_USER", "")
	t.Setenv("DB_HOST", "")
	t.Setenv("DB_NAME", "")

	_, err := Load()
	require.Error(t, err)
	for _, k := range []string{"APP_ENV", "JWT_SECRET", "DB_USER", "DB_HOST", "DB_NAME"} {
		assert.Contains(t, err.Error(), k)
	}
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("JWT_SECRET", "x")
	t.Setenv("STORE_DRIVER", "sqlite")
	_, err := Load()
	assert.ErrorContains(t, err, "sqlite")
}

func TestParseActionLimits(t *testing.T) {
	got := parseActionLimits("slot.move=5/1m, hold.approve=20/30s,bad,x=0/1m,y=3/never")
	assert.Equal(t, map[string]ActionLimit{
		"slot.move":    {Limit: 5, Window: time.Minute},
		"hold.approve": {Limit: 20, Window: 30 * time.Second},
	}, got)
}

func TestLoadRedisConfig(t *testing.T) {
	t.Setenv("REDIS_ADDR", "cache:6379")
	t.Setenv("REDIS_HOST", "")
	t.Setenv("REDIS_PORT", "")
	t.Setenv("REDIS_TLS", "1")
	c := LoadRedisConfig()
	assert.Equal(t, "cache:6379", c.Addr)
	assert.True(t, c.TLS)

	t.Setenv("REDIS_HOST", "redis")
	t.Setenv("REDIS_PORT", "6380")
	assert.Equal(t, "redis:6380", LoadRedisConfig().Addr)
}
