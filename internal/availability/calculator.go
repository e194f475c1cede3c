package availability

import (
	"context"
	"fmt"
	"iter"
	"maps"
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/iliyamo/experience-booking/internal/cache"
	"github.com/iliyamo/experience-booking/internal/clock"
	"github.com/iliyamo/experience-booking/internal/ledger"
	"github.com/iliyamo/experience-booking/internal/model"
	"github.com/iliyamo/experience-booking/internal/repository"
)

// ErrInvalidRange is returned when the requested range is empty.
var ErrInvalidRange = errors.New("invalid range")

// DefaultMaxOccurrences bounds a single availability computation.
const DefaultMaxOccurrences = 500

// Source is the read side of the store the calculator needs.  Reads are lock
// free; display staleness of one request is acceptable.
type Source interface {
	GetExperience(ctx context.Context, id uint64) (model.Experience, error)
	ListSlots(ctx context.Context, f repository.SlotFilter) ([]model.Slot, error)
	ClaimingBySlots(ctx context.Context, slotIDs []uint64) (map[uint64][]model.Reservation, error)
}

// Result is a computed availability window.  Truncated is set when the
// occurrence cap cut the list short.
type Result struct {
	ExperienceID uint64              `json:"experience_id"`
	Start        time.Time           `json:"start"`
	End          time.Time           `json:"end"`
	Slots        []model.VirtualSlot `json:"slots"`
	Truncated    bool                `json:"truncated"`
}

// Calculator computes virtual availability.  It keeps no mutable state of
// its own; results may be memoized in the injected cache.
type Calculator struct {
	src            Source
	clock          clock.Clock
	maxOccurrences int
	cache          *cache.Versioned
	log            *zap.Logger
}

// Option customizes a Calculator.
type Option func(*Calculator)

// WithCache memoizes results per experience until the next invalidation.
func WithCache(c *cache.Versioned) Option { return func(calc *Calculator) { calc.cache = c } }

// WithMaxOccurrences overrides DefaultMaxOccurrences.
func WithMaxOccurrences(n int) Option {
	return func(calc *Calculator) {
		if n > 0 {
			calc.maxOccurrences = n
		}
	}
}

// WithLogger sets the logger used for cache failures.
func WithLogger(l *zap.Logger) Option { return func(calc *Calculator) { calc.log = l } }

// NewCalculator returns a Calculator reading from src.
func NewCalculator(src Source, clk clock.Clock, opts ...Option) *Calculator {
	c := &Calculator{src: src, clock: clk, maxOccurrences: DefaultMaxOccurrences, log: zap.NewNop()}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ForExperience loads the experience and computes its availability over
// [start, end), consulting the cache first.
func (c *Calculator) ForExperience(ctx context.Context, experienceID uint64, start, end time.Time) (Result, error) {
	if !end.After(start) {
		return Result{}, errors.Wrapf(ErrInvalidRange, "end %s is not after start %s", end, start)
	}
	ns := cache.ExperienceNamespace(experienceID)
	key := fmt.Sprintf("availability:%d:%d", start.Unix(), end.Unix())
	var gen cache.Gen
	if c.cache != nil {
		var cached Result
		var hit bool
		if gen, hit = c.cache.Get(ctx, ns, key, &cached); hit {
			return c.dropPast(cached), nil
		}
	}

	exp, err := c.src.GetExperience(ctx, experienceID)
	if err != nil {
		return Result{}, err
	}
	res, err := c.Calculate(ctx, exp, start, end)
	if err != nil {
		return Result{}, err
	}
	if c.cache != nil {
		c.cache.Put(ctx, gen, key, res)
	}
	return res, nil
}

// dropPast removes entries that started since the result was cached.
func (c *Calculator) dropPast(res Result) Result {
	now := c.clock.Now()
	kept := res.Slots[:0:0]
	for _, vs := range res.Slots {
		if !vs.StartsAt.Before(now) {
			kept = append(kept, vs)
		}
	}
	res.Slots = kept
	return res
}

// Calculate returns at most the configured number of virtual slots of exp in
// [start, end), in start order.
func (c *Calculator) Calculate(ctx context.Context, exp model.Experience, start, end time.Time) (Result, error) {
	seq, err := c.Virtual(ctx, exp, start, end)
	if err != nil {
		return Result{}, err
	}
	res := Result{ExperienceID: exp.ID, Start: start, End: end, Slots: []model.VirtualSlot{}}
	for vs := range seq {
		if len(res.Slots) == c.maxOccurrences {
			res.Truncated = true
			break
		}
		res.Slots = append(res.Slots, vs)
	}
	return res, nil
}

// Virtual returns the lazy sequence behind Calculate.  Materialized slots are
// read once up front; recurrence occurrences are generated as the sequence
// is consumed.  Occurrences that started before now, fall on blackout dates,
// or whose materialized slot is closed are skipped.  Open materialized slots
// that match no occurrence are merged in start order.
func (c *Calculator) Virtual(ctx context.Context, exp model.Experience, start, end time.Time) (iter.Seq[model.VirtualSlot], error) {
	if !end.After(start) {
		return nil, errors.Wrapf(ErrInvalidRange, "end %s is not after start %s", end, start)
	}
	sc, err := compile(exp)
	if err != nil {
		return nil, err
	}
	occurrences := sc.occurrences(start, end)
	now := c.clock.Now()

	slots, err := c.src.ListSlots(ctx, repository.SlotFilter{ExperienceID: exp.ID, Start: start, End: end})
	if err != nil {
		return nil, err
	}
	var ids []uint64
	for _, s := range slots {
		if s.Bookable() {
			ids = append(ids, s.ID)
		}
	}
	claims, err := c.src.ClaimingBySlots(ctx, ids)
	if err != nil {
		return nil, err
	}

	type occKey struct{ start, end int64 }
	byOccurrence := make(map[occKey]model.Slot, len(slots))
	for _, s := range slots {
		byOccurrence[occKey{s.StartsAt.Unix(), s.EndsAt.Unix()}] = s
	}
	var extras []model.Slot
	for _, s := range slots {
		if sc.matches(s.StartsAt, s.EndsAt) {
			continue
		}
		if s.Bookable() && !s.StartsAt.Before(start) && s.StartsAt.Before(end) {
			extras = append(extras, s)
		}
	}
	sort.Slice(extras, func(i, j int) bool { return extras[i].StartsAt.Before(extras[j].StartsAt) })

	fromSlot := func(s model.Slot) model.VirtualSlot {
		rem := ledger.Remaining(s, ledger.Tally(claims[s.ID], now))
		return model.VirtualSlot{
			SlotID:            s.ID,
			ExperienceID:      s.ExperienceID,
			StartsAt:          s.StartsAt,
			EndsAt:            s.EndsAt,
			CapacityTotal:     s.CapacityTotal,
			CapacityRemaining: rem.Total,
			PerTypeRemaining:  rem.PerType,
		}
	}

	return func(yield func(model.VirtualSlot) bool) {
		next := 0
		flushBefore := func(t time.Time) bool {
			for ; next < len(extras) && extras[next].StartsAt.Before(t); next++ {
				if extras[next].StartsAt.Before(now) {
					continue
				}
				if !yield(fromSlot(extras[next])) {
					return false
				}
			}
			return true
		}
		for occ := range occurrences {
			if occ.Start.Before(now) {
				continue
			}
			if !flushBefore(occ.Start) {
				return
			}
			vs := model.VirtualSlot{
				ExperienceID:      exp.ID,
				StartsAt:          occ.Start,
				EndsAt:            occ.End,
				CapacityTotal:     exp.DefaultCapacityTotal,
				CapacityRemaining: exp.DefaultCapacityTotal,
				PerTypeRemaining:  maps.Clone(exp.DefaultCapacityPerType),
			}
			if s, ok := byOccurrence[occKey{occ.Start.Unix(), occ.End.Unix()}]; ok {
				if !s.Bookable() {
					continue
				}
				vs = fromSlot(s)
			}
			if vs.PerTypeRemaining == nil {
				vs.PerTypeRemaining = map[string]int{}
			}
			if !yield(vs) {
				return
			}
		}
		flushBefore(end)
	}, nil
}
