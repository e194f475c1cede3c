package model

import "time"

// SlotStatus is the lifecycle state of a materialized slot. Slots are never
// hard deleted; closing or cancelling keeps historical reservations valid.
type SlotStatus string

const (
	SlotOpen      SlotStatus = "open"
	SlotClosed    SlotStatus = "closed"
	SlotCancelled SlotStatus = "cancelled"
)

// Valid reports whether s is a known slot status.
func (s SlotStatus) Valid() bool {
	switch s {
	case SlotOpen, SlotClosed, SlotCancelled:
		return true
	}
	return false
}

// Slot is one bookable occurrence of an experience.  A slot with ID 0 is
// virtual: it was computed from the experience recurrence and has not been
// written to storage yet.
//
// Fields:
//
//	ID              – primary key, 0 for virtual slots.
//	ExperienceID    – experience this slot belongs to.
//	StartsAt        – start instant (UTC).
//	EndsAt          – end instant (UTC), strictly after StartsAt.
//	Status          – open, closed or cancelled.
//	CapacityTotal   – seats sellable across all ticket types.
//	CapacityPerType – optional per ticket type ceilings; empty means the
//	                  slot is only constrained by CapacityTotal.
//	PriceSnapshot   – display only price per ticket type in cents.
type Slot struct {
	ID              uint64         `json:"id"`
	ExperienceID    uint64         `json:"experience_id"`
	StartsAt        time.Time      `json:"starts_at"`
	EndsAt          time.Time      `json:"ends_at"`
	Status          SlotStatus     `json:"status"`
	CapacityTotal   int            `json:"capacity_total"`
	CapacityPerType map[string]int `json:"capacity_per_type"`
	PriceSnapshot   map[string]int `json:"price_snapshot,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// Bookable reports whether new reservations may be placed on the slot.
func (s Slot) Bookable() bool { return s.Status == SlotOpen }

// Overlaps reports whether the slot intersects the half open range [start, end).
func (s Slot) Overlaps(start, end time.Time) bool {
	return s.StartsAt.Before(end) && s.EndsAt.After(start)
}

// CapacitySnapshot is the number of seats claimed on a slot at one instant,
// overall and per ticket type.
type CapacitySnapshot struct {
	TotalReserved   int            `json:"total_reserved"`
	PerTypeReserved map[string]int `json:"per_type_reserved"`
}

// Remaining is the free capacity derived from a slot and a snapshot.
type Remaining struct {
	Total   int            `json:"total"`
	PerType map[string]int `json:"per_type"`
}

// SlotView is a slot with its capacity state, as returned by range reads.
type SlotView struct {
	Slot
	Snapshot  CapacitySnapshot `json:"snapshot"`
	Remaining Remaining        `json:"remaining"`
}
