package memory

import (
	"maps"
	"slices"

	"github.com/iliyamo/experience-booking/internal/model"
)

func cloneSlot(s model.Slot) model.Slot {
	s.CapacityPerType = maps.Clone(s.CapacityPerType)
	s.PriceSnapshot = maps.Clone(s.PriceSnapshot)
	return s
}

func cloneReservation(r model.Reservation) model.Reservation {
	r.Party = maps.Clone(r.Party)
	r.Attribution = maps.Clone(r.Attribution)
	if r.OrderID != nil {
		id := *r.OrderID
		r.OrderID = &id
	}
	if r.ApprovedAt != nil {
		t := *r.ApprovedAt
		r.ApprovedAt = &t
	}
	if r.Hold != nil {
		h := *r.Hold
		r.Hold = &h
	}
	return r
}

func cloneExperience(e model.Experience) model.Experience {
	e.DefaultCapacityPerType = maps.Clone(e.DefaultCapacityPerType)
	e.DefaultPrices = maps.Clone(e.DefaultPrices)
	e.Recurrence.Weekdays = slices.Clone(e.Recurrence.Weekdays)
	e.Recurrence.StartTimes = slices.Clone(e.Recurrence.StartTimes)
	e.Recurrence.BlackoutDates = slices.Clone(e.Recurrence.BlackoutDates)
	return e
}
