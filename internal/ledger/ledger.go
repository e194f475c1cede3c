// Package ledger holds the pure capacity arithmetic of a slot.  Nothing here
// touches storage: callers pass the reservations they read, under the slot
// lock when the answer decides a write.
package ledger

import (
	"time"

	"github.com/iliyamo/experience-booking/internal/model"
)

// Tally sums the seats of every reservation that claims capacity at now.
// Holds past their expiry are skipped even if their row still says rtb_held.
func Tally(reservations []model.Reservation, now time.Time) model.CapacitySnapshot {
	return tally(reservations, func(r model.Reservation) bool { return r.Claims(now) })
}

// TallyFirm sums only reservations that are no longer provisional:
// confirmed ones and those waiting for payment.
func TallyFirm(reservations []model.Reservation) model.CapacitySnapshot {
	return tally(reservations, func(r model.Reservation) bool {
		return r.Status == model.StatusConfirmed || r.Status == model.StatusPendingPayment
	})
}

func tally(reservations []model.Reservation, keep func(model.Reservation) bool) model.CapacitySnapshot {
	snap := model.CapacitySnapshot{PerTypeReserved: map[string]int{}}
	for _, r := range reservations {
		if !keep(r) {
			continue
		}
		for t, q := range r.Party {
			if q <= 0 {
				continue
			}
			snap.TotalReserved += q
			snap.PerTypeReserved[t] += q
		}
	}
	return snap
}

// Remaining derives free capacity.  Only ticket types configured on the
// slot appear in PerType; use PerTypeRemaining for the others.
func Remaining(slot model.Slot, snap model.CapacitySnapshot) model.Remaining {
	rem := model.Remaining{
		Total:   max(0, slot.CapacityTotal-snap.TotalReserved),
		PerType: make(map[string]int, len(slot.CapacityPerType)),
	}
	for t, limit := range slot.CapacityPerType {
		rem.PerType[t] = max(0, limit-snap.PerTypeReserved[t])
	}
	return rem
}

// PerTypeRemaining returns the seats left for ticket type t.  Types without
// their own ceiling are bounded only by the total.
func PerTypeRemaining(rem model.Remaining, t string) int {
	if n, ok := rem.PerType[t]; ok {
		return n
	}
	return rem.Total
}

// Shortfall describes the first limit a request or capacity edit breaks.
// An empty Type means the overall total.
type Shortfall struct {
	Type      string `json:"type,omitempty"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// CanAccept reports whether requested fits into the slot given snap.
func CanAccept(slot model.Slot, snap model.CapacitySnapshot, requested model.Party) bool {
	return Check(slot, snap, requested) == nil
}

// Check is CanAccept with detail: it returns nil when the request fits, or
// the first violated limit.  The total is checked before ticket types.
func Check(slot model.Slot, snap model.CapacitySnapshot, requested model.Party) *Shortfall {
	rem := Remaining(slot, snap)
	if n := requested.Total(); n > rem.Total {
		return &Shortfall{Requested: n, Available: rem.Total}
	}
	for _, t := range requested.Types() {
		if avail := PerTypeRemaining(rem, t); requested[t] > avail {
			return &Shortfall{Type: t, Requested: requested[t], Available: avail}
		}
	}
	return nil
}

// Orphans reports whether new limits would fall under seats already claimed
// in snap.  Requested is the seats held; Available is the proposed limit.
func Orphans(total int, perType map[string]int, snap model.CapacitySnapshot) *Shortfall {
	if total < snap.TotalReserved {
		return &Shortfall{Requested: snap.TotalReserved, Available: total}
	}
	for _, t := range model.Party(snap.PerTypeReserved).Types() {
		limit, ok := perType[t]
		if !ok {
			continue
		}
		if reserved := snap.PerTypeReserved[t]; limit < reserved {
			return &Shortfall{Type: t, Requested: reserved, Available: limit}
		}
	}
	return nil
}
