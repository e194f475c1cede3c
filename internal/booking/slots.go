package booking

import (
	"context"
	"maps"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/iliyamo/experience-booking/internal/availability"
	"github.com/iliyamo/experience-booking/internal/ledger"
	"github.com/iliyamo/experience-booking/internal/model"
	"github.com/iliyamo/experience-booking/internal/repository"
)

// NewSlot describes a slot created by hand from the admin calendar.
type NewSlot struct {
	ExperienceID    uint64
	StartsAt        time.Time
	EndsAt          time.Time
	CapacityTotal   int
	CapacityPerType map[string]int
	PriceSnapshot   map[string]int
}

func validateWindow(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return invalidInput("start and end are required")
	}
	if !end.After(start) {
		return invalidInput("end %s must be after start %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	return nil
}

func validateCapacity(total int, perType map[string]int) error {
	if total <= 0 {
		return invalidInput("capacity_total must be positive, got %d", total)
	}
	for t, n := range perType {
		if t == "" {
			return invalidInput("empty ticket type in capacity_per_type")
		}
		if n < 0 {
			return invalidInput("capacity for %q is negative", t)
		}
	}
	return nil
}

// slot times are stored with second precision.
func slotTime(t time.Time) time.Time { return t.UTC().Truncate(time.Second) }

// GetSlotsInRange returns the slots overlapping [start, end), each with its
// current snapshot.  experienceID 0 lists every experience.  The read is
// lock free and meant for display.
func (s *Service) GetSlotsInRange(ctx context.Context, experienceID uint64, start, end time.Time) ([]model.SlotView, error) {
	if err := validateWindow(start, end); err != nil {
		return nil, err
	}
	slots, err := s.store.ListSlots(ctx, repository.SlotFilter{ExperienceID: experienceID, Start: start, End: end})
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, len(slots))
	for i, sl := range slots {
		ids[i] = sl.ID
	}
	claims, err := s.store.ClaimingBySlots(ctx, ids)
	if err != nil {
		return nil, err
	}
	now := s.now()
	views := make([]model.SlotView, len(slots))
	for i, sl := range slots {
		snap := ledger.Tally(claims[sl.ID], now)
		views[i] = model.SlotView{Slot: sl, Snapshot: snap, Remaining: ledger.Remaining(sl, snap)}
	}
	return views, nil
}

// GetSlot returns one slot with its snapshot.
func (s *Service) GetSlot(ctx context.Context, id uint64) (model.SlotView, error) {
	sl, err := s.store.GetSlot(ctx, id)
	if err != nil {
		return model.SlotView{}, translate(err, "slot", id)
	}
	claims, err := s.store.ClaimingBySlots(ctx, []uint64{id})
	if err != nil {
		return model.SlotView{}, err
	}
	snap := ledger.Tally(claims[id], s.now())
	return model.SlotView{Slot: sl, Snapshot: snap, Remaining: ledger.Remaining(sl, snap)}, nil
}

// CapacitySnapshot computes the snapshot of a slot under its lock, so the
// answer agrees with concurrent reservation decisions.
func (s *Service) CapacitySnapshot(ctx context.Context, slotID uint64) (model.CapacitySnapshot, error) {
	var snap model.CapacitySnapshot
	err := s.store.WithSlotLock(ctx, slotID, func(tx repository.SlotTx) error {
		claims, err := tx.Claiming(ctx)
		if err != nil {
			return err
		}
		snap = ledger.Tally(claims, s.now())
		return nil
	})
	return snap, translate(err, "slot", slotID)
}

// CreateSlot adds a slot for an experience outside of its recurrence.
func (s *Service) CreateSlot(ctx context.Context, in NewSlot) (model.Slot, error) {
	if in.ExperienceID == 0 {
		return model.Slot{}, invalidInput("experience_id is required")
	}
	if err := validateWindow(in.StartsAt, in.EndsAt); err != nil {
		return model.Slot{}, err
	}
	if err := validateCapacity(in.CapacityTotal, in.CapacityPerType); err != nil {
		return model.Slot{}, err
	}
	if _, err := s.store.GetExperience(ctx, in.ExperienceID); err != nil {
		return model.Slot{}, translate(err, "experience", in.ExperienceID)
	}
	now := s.now()
	sl := model.Slot{
		ExperienceID:    in.ExperienceID,
		StartsAt:        slotTime(in.StartsAt),
		EndsAt:          slotTime(in.EndsAt),
		Status:          model.SlotOpen,
		CapacityTotal:   in.CapacityTotal,
		CapacityPerType: maps.Clone(in.CapacityPerType),
		PriceSnapshot:   maps.Clone(in.PriceSnapshot),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.CreateSlot(ctx, &sl); err != nil {
		return model.Slot{}, translate(err, "experience", in.ExperienceID)
	}
	s.invalidate(ctx, sl.ExperienceID)
	s.log.Info("slot created", zap.Uint64("slot_id", sl.ID), zap.Uint64("experience_id", sl.ExperienceID))
	return sl, nil
}

// EnsureSlot materializes the recurrence occurrence [start, end) of an
// experience with the experience defaults, or returns the slot that already
// exists for it.  created reports whether a row was written.
func (s *Service) EnsureSlot(ctx context.Context, experienceID uint64, start, end time.Time) (sl model.Slot, created bool, err error) {
	if err := validateWindow(start, end); err != nil {
		return model.Slot{}, false, err
	}
	start, end = slotTime(start), slotTime(end)
	exp, err := s.store.GetExperience(ctx, experienceID)
	if err != nil {
		return model.Slot{}, false, translate(err, "experience", experienceID)
	}
	if existing, err := s.store.FindSlot(ctx, experienceID, start, end); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return model.Slot{}, false, err
	}

	ok, err := availability.Matches(exp, start, end)
	if err != nil {
		return model.Slot{}, false, invalidInput("experience %d recurrence: %v", experienceID, err)
	}
	if !ok {
		return model.Slot{}, false, invalidInput("%s is not an occurrence of experience %d", start.Format(time.RFC3339), experienceID)
	}
	now := s.now()
	if start.Before(now) {
		return model.Slot{}, false, invalidInput("occurrence %s is in the past", start.Format(time.RFC3339))
	}
	if err := validateCapacity(exp.DefaultCapacityTotal, exp.DefaultCapacityPerType); err != nil {
		return model.Slot{}, false, errors.Wrapf(err, "experience %d defaults", experienceID)
	}

	sl = model.Slot{
		ExperienceID:    experienceID,
		StartsAt:        start,
		EndsAt:          end,
		Status:          model.SlotOpen,
		CapacityTotal:   exp.DefaultCapacityTotal,
		CapacityPerType: maps.Clone(exp.DefaultCapacityPerType),
		PriceSnapshot:   maps.Clone(exp.DefaultPrices),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	err = s.store.CreateSlot(ctx, &sl)
	if errors.Is(err, repository.ErrDuplicate) {
		// Lost the race to another request materializing the same occurrence.
		existing, ferr := s.store.FindSlot(ctx, experienceID, start, end)
		return existing, false, translate(ferr, "experience", experienceID)
	}
	if err != nil {
		return model.Slot{}, false, err
	}
	s.invalidate(ctx, experienceID)
	s.log.Info("slot materialized", zap.Uint64("slot_id", sl.ID), zap.Uint64("experience_id", experienceID),
		zap.Time("starts_at", start))
	return sl, true, nil
}

// MoveSlot changes the times of a slot.  Overlap with other slots of the
// same experience is not checked.  Moving to the current times is a no-op.
func (s *Service) MoveSlot(ctx context.Context, id uint64, start, end time.Time) (model.Slot, error) {
	if err := validateWindow(start, end); err != nil {
		return model.Slot{}, err
	}
	start, end = slotTime(start), slotTime(end)
	var moved model.Slot
	err := s.store.WithSlotLock(ctx, id, func(tx repository.SlotTx) error {
		sl := tx.Slot()
		if sl.StartsAt.Equal(start) && sl.EndsAt.Equal(end) {
			moved = sl
			return nil
		}
		sl.StartsAt, sl.EndsAt = start, end
		sl.UpdatedAt = s.now()
		if err := tx.UpdateSlot(ctx, sl); err != nil {
			return err
		}
		moved = sl
		return nil
	})
	if err != nil {
		return model.Slot{}, translate(err, "slot", id)
	}
	s.invalidate(ctx, moved.ExperienceID)
	s.log.Info("slot moved", zap.Uint64("slot_id", id), zap.Time("starts_at", start), zap.Time("ends_at", end))
	return moved, nil
}

// UpdateSlotCapacity replaces the capacity limits of a slot.  It fails with
// an OrphanError when a limit would drop below seats already sold.  Pending
// holds do not block the edit: approval re-checks capacity.
func (s *Service) UpdateSlotCapacity(ctx context.Context, id uint64, total int, perType map[string]int) (model.SlotView, error) {
	if err := validateCapacity(total, perType); err != nil {
		return model.SlotView{}, err
	}
	var view model.SlotView
	err := s.store.WithSlotLock(ctx, id, func(tx repository.SlotTx) error {
		claims, err := tx.Claiming(ctx)
		if err != nil {
			return err
		}
		if sf := ledger.Orphans(total, perType, ledger.TallyFirm(claims)); sf != nil {
			return &OrphanError{SlotID: id, Shortfall: *sf}
		}
		now := s.now()
		sl := tx.Slot()
		sl.CapacityTotal = total
		sl.CapacityPerType = maps.Clone(perType)
		if sl.CapacityPerType == nil {
			sl.CapacityPerType = map[string]int{}
		}
		sl.UpdatedAt = now
		if err := tx.UpdateSlot(ctx, sl); err != nil {
			return err
		}
		snap := ledger.Tally(claims, now)
		view = model.SlotView{Slot: sl, Snapshot: snap, Remaining: ledger.Remaining(sl, snap)}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrWouldOrphanReservations) {
			s.log.Info("capacity edit rejected", zap.Uint64("slot_id", id), zap.Error(err))
		}
		return model.SlotView{}, translate(err, "slot", id)
	}
	s.invalidate(ctx, view.ExperienceID)
	s.log.Info("slot capacity updated", zap.Uint64("slot_id", id), zap.Int("capacity_total", total))
	return view, nil
}

// SetSlotStatus soft closes, cancels or reopens a slot.  Existing
// reservations are kept.
func (s *Service) SetSlotStatus(ctx context.Context, id uint64, status model.SlotStatus) (model.Slot, error) {
	if !status.Valid() {
		return model.Slot{}, invalidInput("unknown slot status %q", status)
	}
	var out model.Slot
	err := s.store.WithSlotLock(ctx, id, func(tx repository.SlotTx) error {
		sl := tx.Slot()
		if sl.Status == status {
			out = sl
			return nil
		}
		sl.Status = status
		sl.UpdatedAt = s.now()
		out = sl
		return tx.UpdateSlot(ctx, sl)
	})
	if err != nil {
		return model.Slot{}, translate(err, "slot", id)
	}
	s.invalidate(ctx, out.ExperienceID)
	s.log.Info("slot status changed", zap.Uint64("slot_id", id), zap.String("status", string(status)))
	return out, nil
}
