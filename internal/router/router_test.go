package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/experience-booking/internal/authz"
	"github.com/iliyamo/experience-booking/internal/availability"
	"github.com/iliyamo/experience-booking/internal/booking"
	"github.com/iliyamo/experience-booking/internal/clock"
	"github.com/iliyamo/experience-booking/internal/handler"
	"github.com/iliyamo/experience-booking/internal/model"
	"github.com/iliyamo/experience-booking/internal/ratelimit"
	"github.com/iliyamo/experience-booking/internal/repository/memory"
	"github.com/iliyamo/experience-booking/internal/utils"
)

const (
	testSecret = "router-test-secret"
	systemKey  = "checkout-key"
)

var (
	testNow   = time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	slotStart = time.Date(2026, 10, 24, 10, 0, 0, 0, time.UTC)
)

type app struct {
	t     *testing.T
	e     *echo.Echo
	store *memory.Store
}

func newApp(t *testing.T, bookLimit int) *app {
	t.Helper()
	store := memory.New()
	store.PutExperience(model.Experience{
		ID:       7,
		Name:     "Harbour kayak tour",
		Timezone: "UTC",
		Recurrence: model.Recurrence{
			Weekdays:        []time.Weekday{time.Saturday},
			StartTimes:      []string{"10:00"},
			DurationMinutes: 120,
		},
		DefaultCapacityTotal: 20,
	})
	store.PutSlot(model.Slot{
		ID:            42,
		ExperienceID:  7,
		StartsAt:      slotStart,
		EndsAt:        slotStart.Add(2 * time.Hour),
		Status:        model.SlotOpen,
		CapacityTotal: 4,
	})

	clk := clock.NewFake(testNow)
	log := zap.NewNop()
	svc := booking.New(store, booking.Options{Clock: clk, Logger: log})
	calc := availability.NewCalculator(store, clk, availability.WithLogger(log))
	limiter := ratelimit.NewMemory(ratelimit.Rules{
		Default:   ratelimit.Rule{Limit: 100, Window: time.Minute},
		PerAction: map[string]ratelimit.Rule{LimitBook: {Limit: bookLimit, Window: time.Minute}},
	}, ratelimit.Sliding, "rl", clk)

	hash, err := utils.HashAPIKey(systemKey, bcrypt.MinCost)
	require.NoError(t, err)

	e := echo.New()
	Register(e, Deps{
		JWTSecret:     testSecret,
		SystemKeyHash: hash,
		Limiter:       limiter,
		Log:           log,
		Health:        &handler.HealthHandler{},
		Availability:  handler.NewAvailabilityHandler(calc, svc, log),
		Slots:         handler.NewSlotHandler(svc, log),
		Reservations:  handler.NewReservationHandler(svc, log),
		Holds:         handler.NewHoldHandler(svc, log),
	})
	return &app{t: t, e: e, store: store}
}

func (a *app) token(subject string, role authz.Role) string {
	a.t.Helper()
	tok, err := utils.NewAccessToken(testSecret, subject, string(role), time.Hour)
	require.NoError(a.t, err)
	return "Bearer " + tok.Token
}

func (a *app) do(method, path, auth, body string) *httptest.ResponseRecorder {
	a.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if strings.HasPrefix(auth, "Bearer ") {
		req.Header.Set(echo.HeaderAuthorization, auth)
	} else if auth != "" {
		req.Header.Set("X-API-Key", auth)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func reservationPath(id uint64, suffix string) string {
	return "/v1/reservations/" + strconv.FormatUint(id, 10) + suffix
}

func TestBookingFlowOverHTTP(t *testing.T) {
	a := newApp(t, 10)
	alice := a.token("cus_alice", authz.RoleCustomer)
	bob := a.token("cus_bob", authz.RoleCustomer)

	rec := a.do(http.MethodPost, "/v1/reservations", alice, `{"slot_id":42,"party":{"adult":3}}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := decode[model.Reservation](t, rec)
	assert.Equal(t, model.StatusPendingPayment, first.Status)
	assert.Equal(t, "cus_alice", first.CustomerRef)

	rec = a.do(http.MethodPost, "/v1/reservations", bob, `{"slot_id":42,"party":{"adult":2}}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, handler.CodeCapacityExceeded, body["error"])
	details := body["details"].(map[string]any)
	assert.EqualValues(t, 1, details["available"])

	rec = a.do(http.MethodGet, "/v1/experiences/7/availability?start=2026-10-24&end=2026-10-25", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[availability.Result](t, rec)
	require.Len(t, res.Slots, 1)
	assert.Equal(t, uint64(42), res.Slots[0].SlotID)
	assert.Equal(t, 1, res.Slots[0].CapacityRemaining)

	rec = a.do(http.MethodPost, reservationPath(first.ID, "/cancel"), alice, `{"reason":"change of plans"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, model.StatusCancelled, decode[model.Reservation](t, rec).Status)

	rec = a.do(http.MethodPost, "/v1/reservations", bob, `{"slot_id":42,"party":{"adult":2}}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	second := decode[model.Reservation](t, rec)

	rec = a.do(http.MethodPost, reservationPath(second.ID, "/confirm"), systemKey, `{"order_id":"ord_9"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	paid := decode[model.Reservation](t, rec)
	assert.Equal(t, model.StatusConfirmed, paid.Status)
	require.NotNil(t, paid.OrderID)
	assert.Equal(t, "ord_9", *paid.OrderID)

	rec = a.do(http.MethodPost, reservationPath(first.ID, "/cancel"), alice, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, handler.CodeAlreadyTerminal, decode[map[string]any](t, rec)["error"])
}

func TestReservationOwnership(t *testing.T) {
	a := newApp(t, 10)
	alice := a.token("cus_alice", authz.RoleCustomer)

	rec := a.do(http.MethodPost, "/v1/reservations", alice, `{"slot_id":42,"party":{"adult":1}}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	r := decode[model.Reservation](t, rec)

	rec = a.do(http.MethodGet, reservationPath(r.ID, ""), a.token("cus_bob", authz.RoleCustomer), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(http.MethodPost, reservationPath(r.ID, "/cancel"), a.token("cus_bob", authz.RoleCustomer), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(http.MethodGet, reservationPath(r.ID, ""), a.token("mgr_1", authz.RoleManager), "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(http.MethodGet, reservationPath(r.ID, ""), alice, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(http.MethodPost, reservationPath(r.ID, "/confirm"), alice, `{"order_id":"ord_1"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAuthentication(t *testing.T) {
	a := newApp(t, 10)

	rec := a.do(http.MethodGet, "/v1/slots", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(http.MethodGet, "/v1/slots", "Bearer garbage", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(http.MethodGet, "/v1/slots", "wrong-key", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(http.MethodGet, "/v1/slots", a.token("cus_alice", authz.RoleCustomer), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(http.MethodGet, "/v1/slots", a.token("x", "ROOT"), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHoldApprovalOverHTTP(t *testing.T) {
	a := newApp(t, 10)
	carol := a.token("cus_carol", authz.RoleCustomer)
	mgr := a.token("mgr_1", authz.RoleManager)

	rec := a.do(http.MethodPost, "/v1/reservations", carol, `{"slot_id":42,"party":{"adult":2},"mode":"rtb"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	held := decode[model.Reservation](t, rec)
	assert.Equal(t, model.StatusRTBHeld, held.Status)
	require.NotNil(t, held.Hold)

	rec = a.do(http.MethodGet, "/v1/holds", mgr, "")
	require.Equal(t, http.StatusOK, rec.Code)
	holds := decode[map[string][]model.Reservation](t, rec)["holds"]
	require.Len(t, holds, 1)
	assert.Equal(t, held.ID, holds[0].ID)

	rec = a.do(http.MethodPost, "/v1/holds/"+strconv.FormatUint(held.ID, 10)+"/approve", carol, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(http.MethodPost, "/v1/holds/"+strconv.FormatUint(held.ID, 10)+"/approve", mgr, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, model.StatusPendingPayment, decode[model.Reservation](t, rec).Status)
}

func TestSlotManagementOverHTTP(t *testing.T) {
	a := newApp(t, 10)
	mgr := a.token("mgr_1", authz.RoleManager)
	alice := a.token("cus_alice", authz.RoleCustomer)

	rec := a.do(http.MethodPost, "/v1/reservations", alice, `{"slot_id":42,"party":{"adult":3}}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = a.do(http.MethodPut, "/v1/slots/42/capacity", mgr, `{"capacity_total":2}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, handler.CodeWouldOrphan, decode[map[string]any](t, rec)["error"])

	rec = a.do(http.MethodPut, "/v1/slots/42/capacity", mgr, `{"capacity_total":6}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	view := decode[model.SlotView](t, rec)
	assert.Equal(t, 6, view.CapacityTotal)

	rec = a.do(http.MethodGet, "/v1/slots/42/reservations", mgr, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[map[string][]model.Reservation](t, rec)["reservations"], 1)

	rec = a.do(http.MethodPost, "/v1/slots/42/close", mgr, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = a.do(http.MethodPost, "/v1/reservations", alice, `{"slot_id":42,"party":{"adult":1}}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, handler.CodeSlotClosed, decode[map[string]any](t, rec)["error"])
}

func TestEnsureSlotOverHTTP(t *testing.T) {
	a := newApp(t, 10)
	alice := a.token("cus_alice", authz.RoleCustomer)
	next := slotStart.AddDate(0, 0, 7)
	body := `{"starts_at":"` + next.Format(time.RFC3339) + `","ends_at":"` + next.Add(2*time.Hour).Format(time.RFC3339) + `"}`

	rec := a.do(http.MethodPost, "/v1/experiences/7/slots", alice, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[model.Slot](t, rec)
	assert.Equal(t, 20, created.CapacityTotal)

	rec = a.do(http.MethodPost, "/v1/experiences/7/slots", alice, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, created.ID, decode[model.Slot](t, rec).ID)

	off := next.Add(time.Hour)
	rec = a.do(http.MethodPost, "/v1/experiences/7/slots", alice,
		`{"starts_at":"`+off.Format(time.RFC3339)+`","ends_at":"`+off.Add(2*time.Hour).Format(time.RFC3339)+`"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBookingRateLimit(t *testing.T) {
	a := newApp(t, 2)
	dave := a.token("cus_dave", authz.RoleCustomer)

	for range 2 {
		rec := a.do(http.MethodPost, "/v1/reservations", dave, `{"slot_id":42,"party":{"adult":1}}`)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
	rec := a.do(http.MethodPost, "/v1/reservations", dave, `{"slot_id":42,"party":{"adult":1}}`)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, handler.CodeRateLimited, decode[map[string]any](t, rec)["error"])

	// Limits are per actor.
	rec = a.do(http.MethodPost, "/v1/reservations", a.token("cus_erin", authz.RoleCustomer), `{"slot_id":42,"party":{"adult":1}}`)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}
