package model

import "time"

// Hold is the expiring claim that backs a request-to-book reservation.
// Exactly one hold exists per rtb reservation.
//
// Fields:
//
//	Token         – opaque hold token handed to the customer.
//	ReservationID – reservation the hold belongs to.
//	CreatedAt     – when the hold was placed.
//	ExpiresAt     – CreatedAt plus the configured hold timeout.
type Hold struct {
	Token         string    `json:"token"`
	ReservationID uint64    `json:"reservation_id"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// IsExpired reports whether the hold has lapsed at now.  It is the only
// expiry test in the system: read paths, capacity tallies and the sweeper
// all go through it.
func (h Hold) IsExpired(now time.Time) bool {
	return !now.Before(h.ExpiresAt)
}
