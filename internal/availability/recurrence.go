// Package availability derives bookable windows for an experience from its
// weekly recurrence without requiring every occurrence to exist as a slot.
package availability

import (
	"iter"
	"slices"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/iliyamo/experience-booking/internal/model"
)

// ErrInvalidRecurrence is returned for schedules that cannot be expanded,
// such as an unknown timezone or a malformed start time.
var ErrInvalidRecurrence = errors.New("invalid recurrence")

// Occurrence is one start/end pair produced by a recurrence.
type Occurrence struct {
	Start time.Time
	End   time.Time
}

type clockTime struct{ hour, minute int }

// schedule is a validated, ready to expand recurrence.
type schedule struct {
	loc       *time.Location
	weekdays  map[time.Weekday]bool
	times     []clockTime
	duration  time.Duration
	blackouts map[string]bool
	from      *time.Time
	until     *time.Time
}

func compile(exp model.Experience) (schedule, error) {
	rec := exp.Recurrence
	tz := exp.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return schedule{}, errors.Wrapf(ErrInvalidRecurrence, "timezone %q: %v", tz, err)
	}
	if rec.DurationMinutes <= 0 {
		return schedule{}, errors.Wrapf(ErrInvalidRecurrence, "duration %d minutes", rec.DurationMinutes)
	}
	sc := schedule{
		loc:       loc,
		weekdays:  make(map[time.Weekday]bool, len(rec.Weekdays)),
		duration:  rec.Duration(),
		blackouts: make(map[string]bool, len(rec.BlackoutDates)),
		from:      rec.ValidFrom,
		until:     rec.ValidUntil,
	}
	for _, d := range rec.Weekdays {
		sc.weekdays[d] = true
	}
	for _, s := range rec.StartTimes {
		t, err := time.Parse("15:04", s)
		if err != nil {
			return schedule{}, errors.Wrapf(ErrInvalidRecurrence, "start time %q", s)
		}
		sc.times = append(sc.times, clockTime{t.Hour(), t.Minute()})
	}
	slices.SortFunc(sc.times, func(a, b clockTime) int {
		return (a.hour*60 + a.minute) - (b.hour*60 + b.minute)
	})
	for _, d := range rec.BlackoutDates {
		sc.blackouts[d] = true
	}
	return sc, nil
}

func (sc schedule) valid(start time.Time) bool {
	if sc.from != nil && start.Before(*sc.from) {
		return false
	}
	if sc.until != nil && start.After(*sc.until) {
		return false
	}
	return true
}

// Occurrences expands the recurrence of exp into the occurrences starting in
// [start, end), in chronological order.  Blackout dates and the validity
// window are applied; past occurrences are not filtered here.  The returned
// sequence is finite and can be ranged over any number of times.
func Occurrences(exp model.Experience, start, end time.Time) (iter.Seq[Occurrence], error) {
	sc, err := compile(exp)
	if err != nil {
		return nil, err
	}
	return sc.occurrences(start, end), nil
}

func (sc schedule) occurrences(start, end time.Time) iter.Seq[Occurrence] {
	return func(yield func(Occurrence) bool) {
		if len(sc.weekdays) == 0 || len(sc.times) == 0 || !end.After(start) {
			return
		}
		first := start.In(sc.loc)
		last := end.In(sc.loc)
		day := time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, sc.loc)
		for !day.After(last) {
			if sc.weekdays[day.Weekday()] && !sc.blackouts[day.Format(time.DateOnly)] {
				for _, ct := range sc.times {
					occStart := time.Date(day.Year(), day.Month(), day.Day(), ct.hour, ct.minute, 0, 0, sc.loc).UTC()
					if occStart.Before(start) || !occStart.Before(end) || !sc.valid(occStart) {
						continue
					}
					if !yield(Occurrence{Start: occStart, End: occStart.Add(sc.duration)}) {
						return
					}
				}
			}
			day = day.AddDate(0, 0, 1)
		}
	}
}

func (sc schedule) matches(start, end time.Time) bool {
	for occ := range sc.occurrences(start, start.Add(time.Second)) {
		if occ.Start.Equal(start) && occ.End.Equal(end) {
			return true
		}
	}
	return false
}

// Matches reports whether [start, end) is exactly one occurrence of the
// recurrence of exp.
func Matches(exp model.Experience, start, end time.Time) (bool, error) {
	sc, err := compile(exp)
	if err != nil {
		return false, err
	}
	return sc.matches(start.UTC(), end.UTC()), nil
}
