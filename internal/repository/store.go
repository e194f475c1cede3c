package repository

import (
	"context"
	"time"

	"github.com/iliyamo/experience-booking/internal/model"
)

// Store is everything the booking engine needs from persistence.  Reads are
// lock free and see the latest committed state.  Every capacity affecting
// write goes through WithSlotLock.
type Store interface {
	SlotReader
	ReservationReader
	ExperienceReader
	Outbox

	// CreateSlot inserts a new slot and sets its ID.  It returns ErrDuplicate
	// when a slot already exists for the same experience, start and end.
	CreateSlot(ctx context.Context, s *model.Slot) error

	// WithSlotLock runs fn while holding the exclusive lock of slotID.  The
	// writes fn makes through the SlotTx commit together when fn returns nil
	// and are discarded otherwise.  It returns ErrNotFound when the slot
	// does not exist.
	WithSlotLock(ctx context.Context, slotID uint64, fn func(tx SlotTx) error) error
}

// SlotFilter selects slots overlapping [Start, End).  A zero ExperienceID
// matches every experience.
type SlotFilter struct {
	ExperienceID uint64
	Start        time.Time
	End          time.Time
}

// SlotReader reads slots outside of any lock.
type SlotReader interface {
	GetSlot(ctx context.Context, id uint64) (model.Slot, error)
	FindSlot(ctx context.Context, experienceID uint64, start, end time.Time) (model.Slot, error)
	ListSlots(ctx context.Context, f SlotFilter) ([]model.Slot, error)
}

// ReservationFilter narrows ListReservations.  Zero values match anything;
// Limit 0 means no limit.  Results are ordered by ID; AfterID resumes a
// listing after the last ID of the previous page.
type ReservationFilter struct {
	SlotID   uint64
	Statuses []model.ReservationStatus
	AfterID  uint64
	Limit    int
}

// ReservationReader reads reservations outside of any lock.  Reservations
// come back with their hold attached when they have one.
type ReservationReader interface {
	GetReservation(ctx context.Context, id uint64) (model.Reservation, error)
	ListReservations(ctx context.Context, f ReservationFilter) ([]model.Reservation, error)
	// ClaimingBySlots returns, per slot, the reservations whose stored status
	// may claim capacity.  Callers still apply the hold expiry test.
	ClaimingBySlots(ctx context.Context, slotIDs []uint64) (map[uint64][]model.Reservation, error)
	// ExpiredHolds lists holds of reservations still stored as rtb_held whose
	// expiry has passed at now, oldest first.
	ExpiredHolds(ctx context.Context, now time.Time, limit int) ([]model.Hold, error)
}

// ExperienceReader reads the booking configuration owned by the CMS.
type ExperienceReader interface {
	GetExperience(ctx context.Context, id uint64) (model.Experience, error)
}

// Outbox exposes recorded lifecycle events to the dispatcher.
type Outbox interface {
	PendingEvents(ctx context.Context, limit int) ([]model.Event, error)
	MarkDispatched(ctx context.Context, seqs []uint64, at time.Time) error
}

// SlotTx is the view of one locked slot inside WithSlotLock.
type SlotTx interface {
	// Slot returns the slot row as read under the lock.
	Slot() model.Slot
	// Claiming returns the slot's reservations whose stored status may
	// claim capacity, holds attached.
	Claiming(ctx context.Context) ([]model.Reservation, error)
	// Reservation returns one reservation of the locked slot, or ErrNotFound
	// when it does not exist or belongs to another slot.
	Reservation(ctx context.Context, id uint64) (model.Reservation, error)
	// UpdateSlot writes times, status and capacity of the locked slot.
	UpdateSlot(ctx context.Context, s model.Slot) error
	// InsertReservation inserts r (and r.Hold when set) and sets r.ID.
	InsertReservation(ctx context.Context, r *model.Reservation) error
	// UpdateReservation writes status, order id and approval time.
	UpdateReservation(ctx context.Context, r model.Reservation) error
	// AppendEvent records a lifecycle event in the outbox.
	AppendEvent(ctx context.Context, ev model.Event) error
}
