package config

import "time"

// BookingConfig tunes holds and availability generation.
type BookingConfig struct {
	HoldTimeout    time.Duration // lifetime of an rtb hold, floored by the service
	SweepInterval  time.Duration // how often lapsed holds are persisted
	SweepBatch     int           // holds expired per sweep
	MaxOccurrences int           // cap on availability entries per query
}

func LoadBookingConfig() BookingConfig {
	return BookingConfig{
		HoldTimeout:    envDur("HOLD_TIMEOUT", 30*time.Second),
		SweepInterval:  envDur("HOLD_SWEEP_INTERVAL", 5*time.Second),
		SweepBatch:     envInt("HOLD_SWEEP_BATCH", 200),
		MaxOccurrences: envInt("AVAILABILITY_MAX_OCCURRENCES", 500),
	}
}
