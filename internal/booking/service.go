// Package booking is the slot, capacity and reservation core.  Every
// operation that can change how many seats a slot has left runs under that
// slot's lock, recomputes the snapshot there, and records its lifecycle
// event in the same transaction.
package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/experience-booking/internal/cache"
	"github.com/iliyamo/experience-booking/internal/clock"
	"github.com/iliyamo/experience-booking/internal/model"
	"github.com/iliyamo/experience-booking/internal/repository"
)

const (
	// MinHoldTimeout is the shortest hold lifetime accepted.  Shorter
	// configured values are raised to it.
	MinHoldTimeout = 5 * time.Second
	// DefaultHoldTimeout applies when no timeout is configured.
	DefaultHoldTimeout = 30 * time.Second
	// DefaultSweepBatch bounds how many expired holds one sweep handles.
	DefaultSweepBatch = 200
)

// Invalidator drops cached data derived from a namespace.
type Invalidator interface {
	Invalidate(ctx context.Context, namespace string) error
}

// Options configures a Service.  Zero values pick the defaults.
type Options struct {
	Clock       clock.Clock
	Logger      *zap.Logger
	Cache       Invalidator
	HoldTimeout time.Duration
	SweepBatch  int
}

// Service implements the booking operations on top of a repository.Store.
type Service struct {
	store       repository.Store
	clock       clock.Clock
	log         *zap.Logger
	cache       Invalidator
	holdTimeout time.Duration
	sweepBatch  int
}

// New returns a Service.  The hold timeout is clamped to MinHoldTimeout.
func New(store repository.Store, opts Options) *Service {
	s := &Service{
		store:       store,
		clock:       opts.Clock,
		log:         opts.Logger,
		cache:       opts.Cache,
		holdTimeout: opts.HoldTimeout,
		sweepBatch:  opts.SweepBatch,
	}
	if s.clock == nil {
		s.clock = clock.New()
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.holdTimeout == 0 {
		s.holdTimeout = DefaultHoldTimeout
	}
	if s.holdTimeout < MinHoldTimeout {
		s.log.Warn("hold timeout below floor, raising",
			zap.Duration("configured", s.holdTimeout), zap.Duration("floor", MinHoldTimeout))
		s.holdTimeout = MinHoldTimeout
	}
	if s.sweepBatch <= 0 {
		s.sweepBatch = DefaultSweepBatch
	}
	return s
}

// HoldTimeout returns the effective hold lifetime.
func (s *Service) HoldTimeout() time.Duration { return s.holdTimeout }

// now is truncated to the millisecond precision the store keeps.
func (s *Service) now() time.Time { return s.clock.Now().UTC().Truncate(time.Millisecond) }

// record appends a lifecycle event for r to the outbox of tx.
func (s *Service) record(ctx context.Context, tx repository.SlotTx, typ model.EventType, r model.Reservation, reason string, at time.Time) error {
	slot := tx.Slot()
	p := model.EventPayload{
		ReservationID: r.ID,
		SlotID:        slot.ID,
		ExperienceID:  slot.ExperienceID,
		Status:        r.Status,
		Mode:          r.Mode,
		Party:         r.Party,
		CustomerRef:   r.CustomerRef,
		OrderID:       r.OrderID,
		StartsAt:      slot.StartsAt,
		EndsAt:        slot.EndsAt,
		Reason:        reason,
	}
	if r.Hold != nil {
		p.HoldToken = r.Hold.Token
		exp := r.Hold.ExpiresAt
		p.HoldExpiresAt = &exp
	}
	return tx.AppendEvent(ctx, model.Event{
		ID:         uuid.NewString(),
		Type:       typ,
		OccurredAt: at,
		Payload:    p,
	})
}

// invalidate drops cached availability of an experience.  A failure only
// leaves display data stale until the TTL, so it is logged, not returned.
func (s *Service) invalidate(ctx context.Context, experienceID uint64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, cache.ExperienceNamespace(experienceID)); err != nil {
		s.log.Warn("availability cache invalidation failed", zap.Uint64("experience_id", experienceID), zap.Error(err))
	}
}
