package model

import "time"

// ReservationStatus is the lifecycle state of a reservation.
type ReservationStatus string

const (
	StatusPendingPayment ReservationStatus = "pending_payment"
	StatusConfirmed      ReservationStatus = "confirmed"
	StatusCancelled      ReservationStatus = "cancelled"
	StatusRTBHeld        ReservationStatus = "rtb_held"
	StatusRTBExpired     ReservationStatus = "rtb_expired"
	StatusRTBRejected    ReservationStatus = "rtb_rejected"
)

// Terminal reports whether no further transition is possible from s.
func (s ReservationStatus) Terminal() bool {
	switch s {
	case StatusCancelled, StatusRTBExpired, StatusRTBRejected:
		return true
	}
	return false
}

// Mode selects the checkout flow of a reservation.
type Mode string

const (
	ModeDirect Mode = "direct"
	ModeRTB    Mode = "rtb"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool { return m == ModeDirect || m == ModeRTB }

// Reservation is a customer's claim on seats of one slot.
//
// Fields:
//
//	ID          – primary key.
//	SlotID      – slot the seats are claimed on.
//	OrderID     – checkout order, nil until paid.
//	Status      – lifecycle state as stored.
//	Mode        – direct or rtb.
//	Party       – seats per ticket type.
//	CustomerRef – opaque customer identifier from the auth layer.
//	Attribution – marketing attribution captured at booking time.
//	ApprovedAt  – when a manager approved the rtb hold.
//	Hold        – the hold backing an rtb reservation, nil otherwise.
type Reservation struct {
	ID          uint64            `json:"id"`
	SlotID      uint64            `json:"slot_id"`
	OrderID     *string           `json:"order_id"`
	Status      ReservationStatus `json:"status"`
	Mode        Mode              `json:"mode"`
	Party       Party             `json:"party"`
	CustomerRef string            `json:"customer_ref"`
	Attribution map[string]string `json:"attribution,omitempty"`
	ApprovedAt  *time.Time        `json:"approved_at,omitempty"`
	Hold        *Hold             `json:"hold,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// StatusAt returns the status as observed at now.  A held reservation whose
// hold has lapsed reads as rtb_expired even before the sweeper persists it.
func (r Reservation) StatusAt(now time.Time) ReservationStatus {
	if r.Status == StatusRTBHeld && r.Hold != nil && r.Hold.IsExpired(now) {
		return StatusRTBExpired
	}
	return r.Status
}

// Claims reports whether the reservation occupies capacity at now.
func (r Reservation) Claims(now time.Time) bool {
	switch r.StatusAt(now) {
	case StatusConfirmed, StatusPendingPayment, StatusRTBHeld:
		return true
	}
	return false
}

// AwaitingPayment reports whether an approved rtb reservation is waiting
// for checkout.
func (r Reservation) AwaitingPayment() bool {
	return r.Mode == ModeRTB && r.Status == StatusPendingPayment
}
