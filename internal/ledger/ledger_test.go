package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/experience-booking/internal/model"
)

var now = time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

func res(status model.ReservationStatus, party model.Party) model.Reservation {
	return model.Reservation{Status: status, Party: party}
}

func TestTallySkipsTerminalAndExpired(t *testing.T) {
	held := res(model.StatusRTBHeld, model.Party{"adult": 2})
	held.Hold = &model.Hold{ExpiresAt: now.Add(time.Minute)}
	expired := res(model.StatusRTBHeld, model.Party{"adult": 5})
	expired.Hold = &model.Hold{ExpiresAt: now.Add(-time.Second)}

	snap := Tally([]model.Reservation{
		res(model.StatusConfirmed, model.Party{"adult": 1, "child": 1}),
		res(model.StatusPendingPayment, model.Party{"child": 2}),
		res(model.StatusCancelled, model.Party{"adult": 9}),
		res(model.StatusRTBRejected, model.Party{"adult": 9}),
		held,
		expired,
	}, now)

	assert.Equal(t, 6, snap.TotalReserved)
	assert.Equal(t, map[string]int{"adult": 3, "child": 3}, snap.PerTypeReserved)
}

func TestTallyFirmIgnoresHolds(t *testing.T) {
	held := res(model.StatusRTBHeld, model.Party{"adult": 3})
	held.Hold = &model.Hold{ExpiresAt: now.Add(time.Hour)}

	snap := TallyFirm([]model.Reservation{
		held,
		res(model.StatusConfirmed, model.Party{"adult": 4}),
	})
	assert.Equal(t, 4, snap.TotalReserved)
}

func TestRemaining(t *testing.T) {
	slot := model.Slot{CapacityTotal: 10, CapacityPerType: map[string]int{"adult": 6, "child": 2}}
	snap := model.CapacitySnapshot{TotalReserved: 7, PerTypeReserved: map[string]int{"adult": 4, "child": 3}}

	rem := Remaining(slot, snap)
	assert.Equal(t, 3, rem.Total)
	assert.Equal(t, 2, rem.PerType["adult"])
	assert.Equal(t, 0, rem.PerType["child"], "clamped at zero")
	assert.Equal(t, 3, PerTypeRemaining(rem, "senior"), "unconfigured type follows total")
}

func TestCheck(t *testing.T) {
	slot := model.Slot{CapacityTotal: 5, CapacityPerType: map[string]int{"adult": 3}}
	empty := model.CapacitySnapshot{}

	tests := []struct {
		name string
		req  model.Party
		want *Shortfall
	}{
		{"fits", model.Party{"adult": 3, "child": 2}, nil},
		{"over total", model.Party{"child": 6}, &Shortfall{Requested: 6, Available: 5}},
		{"over type", model.Party{"adult": 4}, &Shortfall{Type: "adult", Requested: 4, Available: 3}},
		{"unconstrained type", model.Party{"child": 5}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Check(slot, empty, tt.req))
			assert.Equal(t, tt.want == nil, CanAccept(slot, empty, tt.req))
		})
	}
}

func TestEmptyPerTypeMeansUnconstrained(t *testing.T) {
	slot := model.Slot{CapacityTotal: 4}
	assert.True(t, CanAccept(slot, model.CapacitySnapshot{}, model.Party{"adult": 2, "child": 2}))
	assert.False(t, CanAccept(slot, model.CapacitySnapshot{}, model.Party{"adult": 5}))
}

func TestInvariantRemainingNeverNegativeAfterAccept(t *testing.T) {
	slot := model.Slot{CapacityTotal: 5, CapacityPerType: map[string]int{"adult": 4}}
	var accepted []model.Reservation
	for _, p := range []model.Party{{"adult": 3}, {"adult": 2}, {"child": 2}, {"child": 1}, {"adult": 1}} {
		snap := Tally(accepted, now)
		if CanAccept(slot, snap, p) {
			accepted = append(accepted, res(model.StatusConfirmed, p))
		}
	}
	snap := Tally(accepted, now)
	require.LessOrEqual(t, snap.TotalReserved, slot.CapacityTotal)
	require.LessOrEqual(t, snap.PerTypeReserved["adult"], slot.CapacityPerType["adult"])
	assert.Equal(t, 0, Remaining(slot, snap).Total)
}

func TestOrphans(t *testing.T) {
	snap := model.CapacitySnapshot{TotalReserved: 4, PerTypeReserved: map[string]int{"adult": 4}}

	assert.Equal(t, &Shortfall{Requested: 4, Available: 3}, Orphans(3, nil, snap))
	assert.Nil(t, Orphans(5, nil, snap))
	assert.Equal(t, &Shortfall{Type: "adult", Requested: 4, Available: 2}, Orphans(10, map[string]int{"adult": 2}, snap))
	assert.Nil(t, Orphans(10, map[string]int{"child": 0}, snap))
}
