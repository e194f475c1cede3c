package booking

import (
	"context"
	"maps"
	"slices"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/experience-booking/internal/ledger"
	"github.com/iliyamo/experience-booking/internal/model"
	"github.com/iliyamo/experience-booking/internal/repository"
)

// CreateRequest is a customer's ask for seats on a slot.
type CreateRequest struct {
	SlotID      uint64
	Party       model.Party
	Mode        model.Mode
	CustomerRef string
	Attribution map[string]string
}

func (r CreateRequest) validate() error {
	if r.SlotID == 0 {
		return invalidInput("slot_id is required")
	}
	if !r.Mode.Valid() {
		return invalidInput("unknown mode %q", r.Mode)
	}
	if len(r.Party) == 0 {
		return invalidInput("party is empty")
	}
	for t, q := range r.Party {
		if t == "" {
			return invalidInput("empty ticket type in party")
		}
		if q < 0 {
			return invalidInput("quantity for %q is negative", t)
		}
	}
	if r.Party.Total() == 0 {
		return invalidInput("party has no seats")
	}
	return nil
}

// CreateReservation claims seats on a slot.  Direct reservations start in
// pending_payment; rtb reservations start in rtb_held with a hold that
// lapses after the hold timeout.  The capacity check and the insert happen
// under the slot lock, so two requests can never both take the last seats.
func (s *Service) CreateReservation(ctx context.Context, req CreateRequest) (model.Reservation, error) {
	if err := req.validate(); err != nil {
		return model.Reservation{}, err
	}
	party := req.Party.Compact()

	var created model.Reservation
	var experienceID uint64
	err := s.store.WithSlotLock(ctx, req.SlotID, func(tx repository.SlotTx) error {
		slot := tx.Slot()
		experienceID = slot.ExperienceID
		now := s.now()
		if !slot.Bookable() {
			return errors.Wrapf(ErrSlotClosed, "slot %d is %s", slot.ID, slot.Status)
		}
		if !slot.StartsAt.After(now) {
			return errors.Wrapf(ErrSlotClosed, "slot %d already started", slot.ID)
		}

		claims, err := tx.Claiming(ctx)
		if err != nil {
			return err
		}
		if sf := ledger.Check(slot, ledger.Tally(claims, now), party); sf != nil {
			return &CapacityError{SlotID: slot.ID, Shortfall: *sf}
		}

		r := model.Reservation{
			SlotID:      slot.ID,
			Mode:        req.Mode,
			Party:       party,
			CustomerRef: req.CustomerRef,
			Attribution: maps.Clone(req.Attribution),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		typ := model.EventReservationCreated
		if req.Mode == model.ModeRTB {
			r.Status = model.StatusRTBHeld
			r.Hold = &model.Hold{
				Token:     uuid.NewString(),
				CreatedAt: now,
				ExpiresAt: now.Add(s.holdTimeout),
			}
			typ = model.EventHoldCreated
		} else {
			r.Status = model.StatusPendingPayment
		}
		if err := tx.InsertReservation(ctx, &r); err != nil {
			return err
		}
		if err := s.record(ctx, tx, typ, r, "", now); err != nil {
			return err
		}
		created = r
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrCapacityExceeded) {
			s.log.Info("reservation rejected", zap.Uint64("slot_id", req.SlotID), zap.Error(err))
		}
		return model.Reservation{}, translate(err, "slot", req.SlotID)
	}
	s.invalidate(ctx, experienceID)
	s.log.Info("reservation created",
		zap.Uint64("reservation_id", created.ID),
		zap.Uint64("slot_id", created.SlotID),
		zap.String("mode", string(created.Mode)),
		zap.Int("seats", created.Party.Total()),
	)
	return created, nil
}

// GetReservation returns a reservation with its status as observed now, so
// a lapsed hold reads as rtb_expired before the sweeper gets to it.
func (s *Service) GetReservation(ctx context.Context, id uint64) (model.Reservation, error) {
	r, err := s.store.GetReservation(ctx, id)
	if err != nil {
		return model.Reservation{}, translate(err, "reservation", id)
	}
	r.Status = r.StatusAt(s.now())
	return r, nil
}

// ListSlotReservations lists the reservations of a slot, optionally only
// those in the given statuses, with lazily expired holds applied.
func (s *Service) ListSlotReservations(ctx context.Context, slotID uint64, statuses []model.ReservationStatus, limit int) ([]model.Reservation, error) {
	if _, err := s.store.GetSlot(ctx, slotID); err != nil {
		return nil, translate(err, "slot", slotID)
	}
	f := repository.ReservationFilter{SlotID: slotID}
	if len(statuses) > 0 {
		f.Statuses = slices.Clone(statuses)
		// Unswept holds are stored as rtb_held but read as rtb_expired.
		if slices.Contains(statuses, model.StatusRTBExpired) && !slices.Contains(statuses, model.StatusRTBHeld) {
			f.Statuses = append(f.Statuses, model.StatusRTBHeld)
		}
	}
	return s.listReservations(ctx, f, limit, func(r model.Reservation) bool {
		return len(statuses) == 0 || slices.Contains(statuses, r.Status)
	})
}

// listReservations pages through f until limit reservations pass keep.  keep
// sees each reservation with lazy expiry applied.  A limit of 0 or less
// lists everything.
func (s *Service) listReservations(ctx context.Context, f repository.ReservationFilter, limit int, keep func(model.Reservation) bool) ([]model.Reservation, error) {
	now := s.now()
	var out []model.Reservation
	for {
		f.Limit = max(limit, 0)
		page, err := s.store.ListReservations(ctx, f)
		if err != nil {
			return nil, err
		}
		for _, r := range page {
			f.AfterID = r.ID
			r.Status = r.StatusAt(now)
			if !keep(r) {
				continue
			}
			out = append(out, r)
			if limit > 0 && len(out) == limit {
				return out, nil
			}
		}
		if limit <= 0 || len(page) < limit {
			return out, nil
		}
	}
}

// transition locks the slot of reservation id and hands fn the reservation
// as stored.  fn returns the event to record, or "" for none.
func (s *Service) transition(ctx context.Context, id uint64, fn func(tx repository.SlotTx, r *model.Reservation, now time.Time) (model.EventType, string, error)) (model.Reservation, uint64, error) {
	cur, err := s.store.GetReservation(ctx, id)
	if err != nil {
		return model.Reservation{}, 0, translate(err, "reservation", id)
	}
	var out model.Reservation
	var experienceID uint64
	err = s.store.WithSlotLock(ctx, cur.SlotID, func(tx repository.SlotTx) error {
		experienceID = tx.Slot().ExperienceID
		r, err := tx.Reservation(ctx, id)
		if err != nil {
			return err
		}
		now := s.now()
		typ, reason, err := fn(tx, &r, now)
		if err != nil {
			return err
		}
		out = r
		if typ == "" {
			return nil
		}
		r.UpdatedAt = now
		out = r
		if err := tx.UpdateReservation(ctx, r); err != nil {
			return err
		}
		return s.record(ctx, tx, typ, r, reason, now)
	})
	if err != nil {
		return model.Reservation{}, 0, translate(err, "reservation", id)
	}
	return out, experienceID, nil
}

// ConfirmReservation marks a pending_payment reservation as paid.  orderID,
// when not empty, links the checkout order.
func (s *Service) ConfirmReservation(ctx context.Context, id uint64, orderID string) (model.Reservation, error) {
	r, expID, err := s.transition(ctx, id, func(_ repository.SlotTx, r *model.Reservation, now time.Time) (model.EventType, string, error) {
		if st := r.StatusAt(now); st != model.StatusPendingPayment {
			return "", "", &TransitionError{ReservationID: r.ID, From: st, Action: "confirm"}
		}
		r.Status = model.StatusConfirmed
		if orderID != "" {
			r.OrderID = &orderID
		}
		return model.EventReservationPaid, "", nil
	})
	if err != nil {
		return model.Reservation{}, err
	}
	s.invalidate(ctx, expID)
	s.log.Info("reservation confirmed", zap.Uint64("reservation_id", id))
	return r, nil
}

// CancelReservation releases the seats of a reservation.  Cancelling a
// reservation that already reached a terminal status fails with
// ErrAlreadyTerminal, including holds that lapsed but were not swept yet.
func (s *Service) CancelReservation(ctx context.Context, id uint64, reason string) (model.Reservation, error) {
	r, expID, err := s.transition(ctx, id, func(_ repository.SlotTx, r *model.Reservation, now time.Time) (model.EventType, string, error) {
		if st := r.StatusAt(now); st.Terminal() {
			return "", "", errors.Wrapf(ErrAlreadyTerminal, "reservation %d is %s", r.ID, st)
		}
		r.Status = model.StatusCancelled
		return model.EventReservationCancelled, reason, nil
	})
	if err != nil {
		return model.Reservation{}, err
	}
	s.invalidate(ctx, expID)
	s.log.Info("reservation cancelled", zap.Uint64("reservation_id", id), zap.String("reason", reason))
	return r, nil
}
