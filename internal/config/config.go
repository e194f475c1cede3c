// Package config loads application configuration from environment
// variables.  A .env file, when present, is read first by the caller with
// godotenv.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// Store drivers.
const (
	DriverMySQL  = "mysql"
	DriverMemory = "memory"
)

// Config holds all runtime configuration values.
type Config struct {
	Env         string // application environment (e.g. "dev", "prod")
	Port        string // HTTP port to listen on
	LogLevel    string // zap level override, empty for the environment default
	StoreDriver string // "mysql" or "memory"

	DBUser string // database username
	DBPass string // database password (optional)
	DBHost string // database host address
	DBPort string // database port number
	DBName string // database name

	JWTSecret string // secret used to verify access tokens
	// SystemKeyHash is the bcrypt hash of the API key collaborators such as
	// checkout present in X-API-Key.  Empty disables key auth.
	SystemKeyHash string

	Booking   BookingConfig
	Cache     CacheConfig
	RateLimit RateLimitConfig
	Rabbit    RabbitConfig
}

// Load reads configuration values from the environment.  Every missing
// required variable is reported in the returned error.
func Load() (Config, error) {
	var missing []string
	must := func(key string) string {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg := Config{
		Env:           must("APP_ENV"),
		Port:          envStr("APP_PORT", "8080"),
		LogLevel:      os.Getenv("LOG_LEVEL"),
		StoreDriver:   strings.ToLower(envStr("STORE_DRIVER", DriverMySQL)),
		JWTSecret:     must("JWT_SECRET"),
		SystemKeyHash: os.Getenv("SYSTEM_API_KEY_HASH"),
		Booking:       LoadBookingConfig(),
		Cache:         LoadCacheConfig(),
		RateLimit:     LoadRateLimitConfig(),
		Rabbit:        LoadRabbitConfig(),
	}
	switch cfg.StoreDriver {
	case DriverMySQL:
		cfg.DBUser = must("DB_USER")
		cfg.DBPass = os.Getenv("DB_PASS") // empty allowed
		cfg.DBHost = must("DB_HOST")
		cfg.DBPort = envStr("DB_PORT", "3306")
		cfg.DBName = must("DB_NAME")
	case DriverMemory:
	default:
		return Config{}, errors.Newf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
	if len(missing) > 0 {
		return Config{}, errors.Newf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	return cfg, nil
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "True", "yes", "YES", "on", "ON":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "off", "OFF":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	if n, err := strconv.Atoi(os.Getenv(k)); err == nil {
		return n
	}
	return d
}

func envFloat(k string, d float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(k), 64); err == nil {
		return f
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	if dur, err := time.ParseDuration(os.Getenv(k)); err == nil {
		return dur
	}
	return d
}
