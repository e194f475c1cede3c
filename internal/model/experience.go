package model

import "time"

// Experience is the read-only booking configuration of a bookable product.
// It is owned by the content management side and only read here.
//
// Fields:
//
//	ID                     – experience identifier.
//	Name                   – display name.
//	Timezone               – IANA zone the recurrence is expressed in.
//	Recurrence             – weekly schedule used to derive virtual slots.
//	DefaultCapacityTotal   – capacity given to newly materialized slots.
//	DefaultCapacityPerType – per type ceilings for new slots.
//	DefaultPrices          – price per ticket type in cents.
type Experience struct {
	ID                     uint64         `json:"id"`
	Name                   string         `json:"name"`
	Timezone               string         `json:"timezone"`
	Recurrence             Recurrence     `json:"recurrence"`
	DefaultCapacityTotal   int            `json:"default_capacity_total"`
	DefaultCapacityPerType map[string]int `json:"default_capacity_per_type"`
	DefaultPrices          map[string]int `json:"default_prices,omitempty"`
}

// Recurrence is a weekly schedule.  Each weekday in Weekdays gets one
// occurrence per entry in StartTimes ("15:04" local time) lasting
// DurationMinutes.
// BlackoutDates ("2006-01-02", local) suppress every occurrence on that day.
// ValidFrom and ValidUntil optionally bound the schedule.
type Recurrence struct {
	Weekdays        []time.Weekday `json:"weekdays"`
	StartTimes      []string       `json:"start_times"`
	DurationMinutes int            `json:"duration_minutes"`
	BlackoutDates   []string       `json:"blackout_dates,omitempty"`
	ValidFrom       *time.Time     `json:"valid_from,omitempty"`
	ValidUntil      *time.Time     `json:"valid_until,omitempty"`
}

// Duration returns the length of each occurrence.
func (r Recurrence) Duration() time.Duration {
	return time.Duration(r.DurationMinutes) * time.Minute
}

// VirtualSlot is one entry of computed availability.  SlotID is 0 when the
// occurrence has not been materialized yet.
type VirtualSlot struct {
	SlotID            uint64         `json:"slot_id"`
	ExperienceID      uint64         `json:"experience_id"`
	StartsAt          time.Time      `json:"starts_at"`
	EndsAt            time.Time      `json:"ends_at"`
	CapacityTotal     int            `json:"capacity_total"`
	CapacityRemaining int            `json:"capacity_remaining"`
	PerTypeRemaining  map[string]int `json:"per_type_remaining"`
}
