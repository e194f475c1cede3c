package memory

import (
	"context"

	"github.com/iliyamo/experience-booking/internal/model"
	"github.com/iliyamo/experience-booking/internal/repository"
)

// slotTx stages writes until commit.  Reads see committed state only.
type slotTx struct {
	store     *Store
	slot      model.Slot
	slotDirty bool
	inserts   []model.Reservation
	updates   []model.Reservation
	events    []model.Event
}

func (t *slotTx) Slot() model.Slot { return cloneSlot(t.slot) }

func (t *slotTx) Claiming(_ context.Context) ([]model.Reservation, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	return t.store.claiming(t.slot.ID), nil
}

func (t *slotTx) Reservation(_ context.Context, id uint64) (model.Reservation, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	r, ok := t.store.reservations[id]
	if !ok || r.SlotID != t.slot.ID {
		return model.Reservation{}, repository.ErrNotFound
	}
	return cloneReservation(r), nil
}

func (t *slotTx) UpdateSlot(_ context.Context, s model.Slot) error {
	s.ID = t.slot.ID
	t.store.mu.RLock()
	_, dup := t.store.findOccurrence(s.ExperienceID, s.StartsAt, s.EndsAt, s.ID)
	t.store.mu.RUnlock()
	if dup {
		return repository.ErrDuplicate
	}
	t.slot = cloneSlot(s)
	t.slotDirty = true
	return nil
}

func (t *slotTx) InsertReservation(_ context.Context, r *model.Reservation) error {
	t.store.mu.Lock()
	t.store.nextReservationID++
	r.ID = t.store.nextReservationID
	t.store.mu.Unlock()

	r.SlotID = t.slot.ID
	if r.Hold != nil {
		r.Hold.ReservationID = r.ID
	}
	t.inserts = append(t.inserts, cloneReservation(*r))
	return nil
}

func (t *slotTx) UpdateReservation(_ context.Context, r model.Reservation) error {
	t.updates = append(t.updates, cloneReservation(r))
	return nil
}

func (t *slotTx) AppendEvent(_ context.Context, ev model.Event) error {
	t.events = append(t.events, ev)
	return nil
}

func (t *slotTx) commit() error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.slotDirty {
		s.slots[t.slot.ID] = t.slot
	}
	for _, r := range t.inserts {
		s.reservations[r.ID] = r
	}
	for _, u := range t.updates {
		cur, ok := s.reservations[u.ID]
		if !ok {
			return repository.ErrNotFound
		}
		cur.Status = u.Status
		cur.OrderID = u.OrderID
		cur.ApprovedAt = u.ApprovedAt
		cur.UpdatedAt = u.UpdatedAt
		s.reservations[u.ID] = cur
	}
	for _, ev := range t.events {
		ev.Seq = uint64(len(s.outbox) + 1)
		s.outbox = append(s.outbox, outboxEntry{event: ev})
	}
	return nil
}
