package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/iliyamo/experience-booking/internal/model"
)

// lockAttempts bounds how often WithSlotLock retries a transaction that lost
// a deadlock or lock wait race.
const lockAttempts = 3

// MySQLStore implements Store on top of the per table repositories.  The
// per slot lock is the slot row itself, taken with SELECT ... FOR UPDATE.
type MySQLStore struct {
	db           *sql.DB
	Slots        *SlotRepo
	Reservations *ReservationRepo
	Holds        *HoldRepo
	Experiences  *ExperienceRepo
	Events       *EventRepo
}

// NewMySQLStore wires the repositories for db.
func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{
		db:           db,
		Slots:        NewSlotRepo(db),
		Reservations: NewReservationRepo(db),
		Holds:        NewHoldRepo(db),
		Experiences:  NewExperienceRepo(db),
		Events:       NewEventRepo(db),
	}
}

var _ Store = (*MySQLStore)(nil)

func (s *MySQLStore) GetSlot(ctx context.Context, id uint64) (model.Slot, error) {
	return s.Slots.GetByID(ctx, id)
}

func (s *MySQLStore) FindSlot(ctx context.Context, experienceID uint64, start, end time.Time) (model.Slot, error) {
	return s.Slots.FindByOccurrence(ctx, experienceID, start, end)
}

func (s *MySQLStore) ListSlots(ctx context.Context, f SlotFilter) ([]model.Slot, error) {
	return s.Slots.ListInRange(ctx, f)
}

func (s *MySQLStore) CreateSlot(ctx context.Context, slot *model.Slot) error {
	return s.Slots.Create(ctx, slot)
}

func (s *MySQLStore) GetReservation(ctx context.Context, id uint64) (model.Reservation, error) {
	return s.Reservations.GetByID(ctx, id)
}

func (s *MySQLStore) ListReservations(ctx context.Context, f ReservationFilter) ([]model.Reservation, error) {
	return s.Reservations.List(ctx, f)
}

func (s *MySQLStore) ClaimingBySlots(ctx context.Context, slotIDs []uint64) (map[uint64][]model.Reservation, error) {
	return s.Reservations.ClaimingBySlots(ctx, slotIDs)
}

func (s *MySQLStore) ExpiredHolds(ctx context.Context, now time.Time, limit int) ([]model.Hold, error) {
	return s.Holds.ExpiredAt(ctx, now, limit)
}

func (s *MySQLStore) GetExperience(ctx context.Context, id uint64) (model.Experience, error) {
	return s.Experiences.GetByID(ctx, id)
}

func (s *MySQLStore) PendingEvents(ctx context.Context, limit int) ([]model.Event, error) {
	return s.Events.Pending(ctx, limit)
}

func (s *MySQLStore) MarkDispatched(ctx context.Context, seqs []uint64, at time.Time) error {
	return s.Events.MarkDispatched(ctx, seqs, at)
}

// WithSlotLock begins a transaction, locks the slot row and runs fn.  When
// the transaction loses a deadlock or lock wait race it is retried; once the
// attempts are used up the error is marked ErrConflict.
func (s *MySQLStore) WithSlotLock(ctx context.Context, slotID uint64, fn func(tx SlotTx) error) error {
	var err error
	for attempt := 0; attempt < lockAttempts; attempt++ {
		err = s.runLocked(ctx, slotID, fn)
		if err == nil || !isRetryable(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 20 * time.Millisecond):
		}
	}
	return errors.Mark(errors.Wrapf(err, "slot %d", slotID), ErrConflict)
}

func (s *MySQLStore) runLocked(ctx context.Context, slotID uint64, fn func(tx SlotTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return infra(err, "begin transaction")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	slot, err := s.Slots.LockTx(ctx, tx, slotID)
	if err != nil {
		return err
	}
	if err := fn(&mysqlSlotTx{store: s, tx: tx, slot: slot}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return infra(err, "commit")
	}
	committed = true
	return nil
}

// mysqlSlotTx is the SlotTx handed to WithSlotLock callbacks.
type mysqlSlotTx struct {
	store *MySQLStore
	tx    *sql.Tx
	slot  model.Slot
}

func (t *mysqlSlotTx) Slot() model.Slot { return t.slot }

func (t *mysqlSlotTx) Claiming(ctx context.Context) ([]model.Reservation, error) {
	return t.store.Reservations.ClaimingBySlotTx(ctx, t.tx, t.slot.ID)
}

func (t *mysqlSlotTx) Reservation(ctx context.Context, id uint64) (model.Reservation, error) {
	return t.store.Reservations.GetForSlotTx(ctx, t.tx, t.slot.ID, id)
}

func (t *mysqlSlotTx) UpdateSlot(ctx context.Context, s model.Slot) error {
	s.ID = t.slot.ID
	if err := t.store.Slots.UpdateTx(ctx, t.tx, s); err != nil {
		return err
	}
	t.slot = s
	return nil
}

func (t *mysqlSlotTx) InsertReservation(ctx context.Context, r *model.Reservation) error {
	r.SlotID = t.slot.ID
	if err := t.store.Reservations.CreateTx(ctx, t.tx, r); err != nil {
		return err
	}
	if r.Hold != nil {
		r.Hold.ReservationID = r.ID
		return t.store.Holds.CreateTx(ctx, t.tx, *r.Hold)
	}
	return nil
}

func (t *mysqlSlotTx) UpdateReservation(ctx context.Context, r model.Reservation) error {
	return t.store.Reservations.UpdateTx(ctx, t.tx, r)
}

func (t *mysqlSlotTx) AppendEvent(ctx context.Context, ev model.Event) error {
	return t.store.Events.AppendTx(ctx, t.tx, ev)
}
