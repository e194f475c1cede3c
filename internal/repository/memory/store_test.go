package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/experience-booking/internal/model"
	"github.com/iliyamo/experience-booking/internal/repository"
)

var start = time.Date(2026, 10, 24, 10, 0, 0, 0, time.UTC)

func newSlot(t *testing.T, s *Store) model.Slot {
	t.Helper()
	slot := model.Slot{
		ExperienceID:  7,
		StartsAt:      start,
		EndsAt:        start.Add(2 * time.Hour),
		Status:        model.SlotOpen,
		CapacityTotal: 5,
	}
	require.NoError(t, s.CreateSlot(context.Background(), &slot))
	return slot
}

func TestCreateSlotRejectsDuplicateOccurrence(t *testing.T) {
	s := New()
	first := newSlot(t, s)
	assert.Equal(t, uint64(1), first.ID)

	dup := first
	dup.ID = 0
	err := s.CreateSlot(context.Background(), &dup)
	assert.ErrorIs(t, err, repository.ErrDuplicate)
}

func TestWithSlotLockDiscardsWritesOnError(t *testing.T) {
	s := New()
	slot := newSlot(t, s)
	boom := errors.New("boom")

	err := s.WithSlotLock(context.Background(), slot.ID, func(tx repository.SlotTx) error {
		r := &model.Reservation{Status: model.StatusConfirmed, Mode: model.ModeDirect, Party: model.Party{"adult": 1}}
		require.NoError(t, tx.InsertReservation(context.Background(), r))
		require.NoError(t, tx.AppendEvent(context.Background(), model.Event{ID: "e1"}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	list, err := s.ListReservations(context.Background(), repository.ReservationFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Empty(t, s.Events())
}

func TestWithSlotLockCommits(t *testing.T) {
	s := New()
	slot := newSlot(t, s)
	ctx := context.Background()

	var id uint64
	err := s.WithSlotLock(ctx, slot.ID, func(tx repository.SlotTx) error {
		r := &model.Reservation{
			Status: model.StatusRTBHeld,
			Mode:   model.ModeRTB,
			Party:  model.Party{"adult": 2},
			Hold:   &model.Hold{Token: "tok", ExpiresAt: start},
		}
		if err := tx.InsertReservation(ctx, r); err != nil {
			return err
		}
		id = r.ID
		return tx.AppendEvent(ctx, model.Event{ID: "e1", Type: model.EventHoldCreated})
	})
	require.NoError(t, err)

	got, err := s.GetReservation(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, slot.ID, got.SlotID)
	require.NotNil(t, got.Hold)
	assert.Equal(t, id, got.Hold.ReservationID)

	claims, err := s.ClaimingBySlots(ctx, []uint64{slot.ID})
	require.NoError(t, err)
	assert.Len(t, claims[slot.ID], 1)

	pending, err := s.PendingEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.NoError(t, s.MarkDispatched(ctx, []uint64{pending[0].Seq}, start))
	pending, err = s.PendingEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestWithSlotLockUnknownSlot(t *testing.T) {
	err := New().WithSlotLock(context.Background(), 99, func(repository.SlotTx) error { return nil })
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestReturnedValuesAreCopies(t *testing.T) {
	s := New()
	slot := model.Slot{ID: 42, CapacityTotal: 2, CapacityPerType: map[string]int{"adult": 2}, Status: model.SlotOpen,
		StartsAt: start, EndsAt: start.Add(time.Hour)}
	s.PutSlot(slot)

	got, err := s.GetSlot(context.Background(), 42)
	require.NoError(t, err)
	got.CapacityPerType["adult"] = 99

	again, err := s.GetSlot(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, 2, again.CapacityPerType["adult"])
}
