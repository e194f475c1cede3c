package booking

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/iliyamo/experience-booking/internal/ledger"
	"github.com/iliyamo/experience-booking/internal/model"
	"github.com/iliyamo/experience-booking/internal/repository"
)

// expire moves a lapsed hold to rtb_expired.  It reports false when r is
// not a held reservation whose hold has lapsed at now.
func expire(r *model.Reservation, now time.Time) bool {
	if r.Status != model.StatusRTBHeld || r.StatusAt(now) != model.StatusRTBExpired {
		return false
	}
	r.Status = model.StatusRTBExpired
	return true
}

// ApproveHold accepts a request-to-book.  Capacity is checked again under
// the slot lock, not counting the hold itself, because limits may have been
// lowered while the request waited.  On success the reservation moves to
// pending_payment.  Approving a lapsed hold records the expiry and fails
// with a TransitionError.
func (s *Service) ApproveHold(ctx context.Context, id uint64) (model.Reservation, error) {
	var lapsed bool
	r, expID, err := s.transition(ctx, id, func(tx repository.SlotTx, r *model.Reservation, now time.Time) (model.EventType, string, error) {
		if expire(r, now) {
			lapsed = true
			return model.EventHoldExpired, "approve after expiry", nil
		}
		if r.Status != model.StatusRTBHeld {
			return "", "", &TransitionError{ReservationID: r.ID, From: r.Status, Action: "approve"}
		}
		slot := tx.Slot()
		if !slot.Bookable() {
			return "", "", errors.Wrapf(ErrSlotClosed, "slot %d is %s", slot.ID, slot.Status)
		}
		if !slot.StartsAt.After(now) {
			return "", "", errors.Wrapf(ErrSlotClosed, "slot %d already started", slot.ID)
		}
		claims, err := tx.Claiming(ctx)
		if err != nil {
			return "", "", err
		}
		others := make([]model.Reservation, 0, len(claims))
		for _, c := range claims {
			if c.ID != r.ID {
				others = append(others, c)
			}
		}
		if sf := ledger.Check(slot, ledger.Tally(others, now), r.Party); sf != nil {
			return "", "", &CapacityError{SlotID: slot.ID, Shortfall: *sf}
		}
		r.Status = model.StatusPendingPayment
		approvedAt := now
		r.ApprovedAt = &approvedAt
		return model.EventHoldApproved, "", nil
	})
	if err != nil {
		if errors.Is(err, ErrCapacityExceeded) {
			s.log.Info("hold approval rejected", zap.Uint64("reservation_id", id), zap.Error(err))
		}
		return model.Reservation{}, err
	}
	s.invalidate(ctx, expID)
	if lapsed {
		s.log.Info("hold expired on approval", zap.Uint64("reservation_id", id))
		return model.Reservation{}, &TransitionError{ReservationID: id, From: model.StatusRTBExpired, Action: "approve"}
	}
	s.log.Info("hold approved", zap.Uint64("reservation_id", id))
	return r, nil
}

// RejectHold declines a request-to-book, either while it is held or after
// approval while payment is still outstanding.
func (s *Service) RejectHold(ctx context.Context, id uint64, reason string) (model.Reservation, error) {
	var lapsed bool
	r, expID, err := s.transition(ctx, id, func(_ repository.SlotTx, r *model.Reservation, now time.Time) (model.EventType, string, error) {
		if expire(r, now) {
			lapsed = true
			return model.EventHoldExpired, "reject after expiry", nil
		}
		if r.Status != model.StatusRTBHeld && !r.AwaitingPayment() {
			return "", "", &TransitionError{ReservationID: r.ID, From: r.Status, Action: "reject"}
		}
		r.Status = model.StatusRTBRejected
		return model.EventHoldRejected, reason, nil
	})
	if err != nil {
		return model.Reservation{}, err
	}
	s.invalidate(ctx, expID)
	if lapsed {
		return model.Reservation{}, &TransitionError{ReservationID: id, From: model.StatusRTBExpired, Action: "reject"}
	}
	s.log.Info("hold rejected", zap.Uint64("reservation_id", id), zap.String("reason", reason))
	return r, nil
}

// PendingHolds lists rtb reservations still waiting for a decision.  Holds
// that lapsed but were not swept yet are skipped without shortening the page.
func (s *Service) PendingHolds(ctx context.Context, limit int) ([]model.Reservation, error) {
	f := repository.ReservationFilter{Statuses: []model.ReservationStatus{model.StatusRTBHeld}}
	return s.listReservations(ctx, f, limit, func(r model.Reservation) bool {
		return r.Status == model.StatusRTBHeld
	})
}

// SweepExpiredHolds persists rtb_expired for every hold that lapsed and
// records hold.expired for each.  The expiry test is the same one reads
// apply, so a reservation never reads as held after it was swept, nor as
// expired before.  Running it twice is harmless: the second run finds
// nothing.  A failure on one hold is logged and the sweep goes on.
func (s *Service) SweepExpiredHolds(ctx context.Context) (int, error) {
	holds, err := s.store.ExpiredHolds(ctx, s.now(), s.sweepBatch)
	if err != nil {
		return 0, err
	}
	swept := 0
	for _, h := range holds {
		if err := ctx.Err(); err != nil {
			return swept, err
		}
		ok, err := s.expireHold(ctx, h.ReservationID)
		if err != nil {
			s.log.Warn("hold sweep failed", zap.Uint64("reservation_id", h.ReservationID), zap.Error(err))
			continue
		}
		if ok {
			swept++
		}
	}
	if swept > 0 {
		s.log.Info("expired holds swept", zap.Int("count", swept))
	}
	return swept, nil
}

func (s *Service) expireHold(ctx context.Context, id uint64) (bool, error) {
	var changed bool
	_, expID, err := s.transition(ctx, id, func(_ repository.SlotTx, r *model.Reservation, now time.Time) (model.EventType, string, error) {
		if !expire(r, now) {
			return "", "", nil
		}
		changed = true
		return model.EventHoldExpired, "hold timeout", nil
	})
	if err != nil {
		return false, err
	}
	if changed {
		s.invalidate(ctx, expID)
	}
	return changed, nil
}
