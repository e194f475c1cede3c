// Package memory is an in-process implementation of repository.Store.  It
// backs the test suites and STORE_DRIVER=memory development runs.  A mutex
// per slot stands in for the row lock; writes made inside WithSlotLock are
// staged and applied together when the callback succeeds.
package memory

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/experience-booking/internal/model"
	"github.com/iliyamo/experience-booking/internal/repository"
)

type outboxEntry struct {
	event      model.Event
	dispatched bool
}

// Store keeps every table in maps guarded by mu.  Values are copied on the
// way in and out so callers never share maps with the store.
type Store struct {
	mu           sync.RWMutex
	slots        map[uint64]model.Slot
	reservations map[uint64]model.Reservation
	experiences  map[uint64]model.Experience
	outbox       []outboxEntry

	nextSlotID        uint64
	nextReservationID uint64

	locksMu   sync.Mutex
	slotLocks map[uint64]*sync.Mutex
}

// New returns an empty store.
func New() *Store {
	return &Store{
		slots:        map[uint64]model.Slot{},
		reservations: map[uint64]model.Reservation{},
		experiences:  map[uint64]model.Experience{},
		slotLocks:    map[uint64]*sync.Mutex{},
	}
}

var _ repository.Store = (*Store)(nil)

// PutExperience stores or replaces an experience.  The SQL store has no
// equivalent: experiences are written by the CMS there.
func (s *Store) PutExperience(e model.Experience) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.experiences[e.ID] = cloneExperience(e)
}

// PutSlot stores a slot with an explicit ID, for fixtures that need a known
// slot number.
func (s *Store) PutSlot(slot model.Slot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[slot.ID] = cloneSlot(slot)
	if slot.ID > s.nextSlotID {
		s.nextSlotID = slot.ID
	}
}

func (s *Store) GetExperience(_ context.Context, id uint64) (model.Experience, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.experiences[id]
	if !ok {
		return model.Experience{}, repository.ErrNotFound
	}
	return cloneExperience(e), nil
}

func (s *Store) GetSlot(_ context.Context, id uint64) (model.Slot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	slot, ok := s.slots[id]
	if !ok {
		return model.Slot{}, repository.ErrNotFound
	}
	return cloneSlot(slot), nil
}

func (s *Store) FindSlot(_ context.Context, experienceID uint64, start, end time.Time) (model.Slot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if slot, ok := s.findOccurrence(experienceID, start, end, 0); ok {
		return cloneSlot(slot), nil
	}
	return model.Slot{}, repository.ErrNotFound
}

// findOccurrence looks for a slot with the given identity other than skipID.
// Callers hold mu.
func (s *Store) findOccurrence(experienceID uint64, start, end time.Time, skipID uint64) (model.Slot, bool) {
	for _, slot := range s.slots {
		if slot.ID != skipID && slot.ExperienceID == experienceID &&
			slot.StartsAt.Equal(start) && slot.EndsAt.Equal(end) {
			return slot, true
		}
	}
	return model.Slot{}, false
}

func (s *Store) ListSlots(_ context.Context, f repository.SlotFilter) ([]model.Slot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Slot
	for _, slot := range s.slots {
		if f.ExperienceID != 0 && slot.ExperienceID != f.ExperienceID {
			continue
		}
		if !slot.Overlaps(f.Start, f.End) {
			continue
		}
		out = append(out, cloneSlot(slot))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartsAt.Equal(out[j].StartsAt) {
			return out[i].StartsAt.Before(out[j].StartsAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) CreateSlot(_ context.Context, slot *model.Slot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.findOccurrence(slot.ExperienceID, slot.StartsAt, slot.EndsAt, 0); dup {
		return repository.ErrDuplicate
	}
	s.nextSlotID++
	slot.ID = s.nextSlotID
	s.slots[slot.ID] = cloneSlot(*slot)
	return nil
}

func (s *Store) GetReservation(_ context.Context, id uint64) (model.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reservations[id]
	if !ok {
		return model.Reservation{}, repository.ErrNotFound
	}
	return cloneReservation(r), nil
}

func (s *Store) ListReservations(_ context.Context, f repository.ReservationFilter) ([]model.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Reservation
	for _, id := range s.sortedReservationIDs() {
		r := s.reservations[id]
		if f.SlotID != 0 && r.SlotID != f.SlotID {
			continue
		}
		if id <= f.AfterID {
			continue
		}
		if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, r.Status) {
			continue
		}
		out = append(out, cloneReservation(r))
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (s *Store) ClaimingBySlots(_ context.Context, slotIDs []uint64) (map[uint64][]model.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[uint64][]model.Reservation, len(slotIDs))
	for _, slotID := range slotIDs {
		out[slotID] = s.claiming(slotID)
	}
	return out, nil
}

// claiming returns reservations of slotID whose stored status may claim
// capacity.  Callers hold mu.
func (s *Store) claiming(slotID uint64) []model.Reservation {
	var out []model.Reservation
	for _, id := range s.sortedReservationIDs() {
		r := s.reservations[id]
		if r.SlotID != slotID {
			continue
		}
		switch r.Status {
		case model.StatusConfirmed, model.StatusPendingPayment, model.StatusRTBHeld:
			out = append(out, cloneReservation(r))
		}
	}
	return out
}

func (s *Store) ExpiredHolds(_ context.Context, now time.Time, limit int) ([]model.Hold, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Hold
	for _, r := range s.reservations {
		if r.Status == model.StatusRTBHeld && r.Hold != nil && r.Hold.IsExpired(now) {
			out = append(out, *r.Hold)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) PendingEvents(_ context.Context, limit int) ([]model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Event
	for _, e := range s.outbox {
		if e.dispatched {
			continue
		}
		out = append(out, e.event)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) MarkDispatched(_ context.Context, seqs []uint64, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, seq := range seqs {
		if seq >= 1 && int(seq) <= len(s.outbox) {
			s.outbox[seq-1].dispatched = true
		}
	}
	return nil
}

// Events returns every recorded event in order, dispatched or not.
func (s *Store) Events() []model.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Event, len(s.outbox))
	for i, e := range s.outbox {
		out[i] = e.event
	}
	return out
}

func (s *Store) sortedReservationIDs() []uint64 {
	ids := slices.Collect(maps.Keys(s.reservations))
	slices.Sort(ids)
	return ids
}

func (s *Store) slotLock(id uint64) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.slotLocks[id]
	if !ok {
		l = &sync.Mutex{}
		s.slotLocks[id] = l
	}
	return l
}

// WithSlotLock serializes fn with every other locked operation on slotID.
func (s *Store) WithSlotLock(ctx context.Context, slotID uint64, fn func(tx repository.SlotTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l := s.slotLock(slotID)
	l.Lock()
	defer l.Unlock()

	slot, err := s.GetSlot(ctx, slotID)
	if err != nil {
		return err
	}
	tx := &slotTx{store: s, slot: slot}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.commit()
}
