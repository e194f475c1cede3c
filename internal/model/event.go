package model

import "time"

// EventType names a reservation lifecycle event.
type EventType string

const (
	EventReservationCreated   EventType = "reservation.created"
	EventReservationPaid      EventType = "reservation.paid"
	EventReservationCancelled EventType = "reservation.cancelled"
	EventHoldCreated          EventType = "hold.created"
	EventHoldApproved         EventType = "hold.approved"
	EventHoldRejected         EventType = "hold.rejected"
	EventHoldExpired          EventType = "hold.expired"
)

// Event is a lifecycle notification recorded in the outbox in the same
// transaction as the state change, then relayed to the broker.  Consumers
// may see an event more than once and should dedupe on ID.
type Event struct {
	Seq        uint64       `json:"-"`
	ID         string       `json:"event_id"`
	Type       EventType    `json:"type"`
	OccurredAt time.Time    `json:"occurred_at"`
	Payload    EventPayload `json:"payload"`
}

// EventPayload carries enough of the reservation for collaborators (email,
// analytics, checkout) to act without reading the database.
type EventPayload struct {
	ReservationID uint64            `json:"reservation_id"`
	SlotID        uint64            `json:"slot_id"`
	ExperienceID  uint64            `json:"experience_id"`
	Status        ReservationStatus `json:"status"`
	Mode          Mode              `json:"mode"`
	Party         Party             `json:"party"`
	CustomerRef   string            `json:"customer_ref,omitempty"`
	OrderID       *string           `json:"order_id,omitempty"`
	HoldToken     string            `json:"hold_token,omitempty"`
	HoldExpiresAt *time.Time        `json:"hold_expires_at,omitempty"`
	StartsAt      time.Time         `json:"starts_at"`
	EndsAt        time.Time         `json:"ends_at"`
	Reason        string            `json:"reason,omitempty"`
}
