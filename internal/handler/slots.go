package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/experience-booking/internal/booking"
	"github.com/iliyamo/experience-booking/internal/model"
)

// SlotHandler exposes the admin calendar: listing, creating, moving,
// resizing and closing slots.
type SlotHandler struct {
	Svc *booking.Service
	Log *zap.Logger
}

// NewSlotHandler panics if a dependency is nil.
func NewSlotHandler(svc *booking.Service, log *zap.Logger) *SlotHandler {
	if svc == nil || log == nil {
		panic("nil dependency passed to NewSlotHandler")
	}
	return &SlotHandler{Svc: svc, Log: log}
}

// ListSlots handles GET /v1/slots?experience_id&start&end.
func (h *SlotHandler) ListSlots(c echo.Context) error {
	var expID uint64
	if v := c.QueryParam("experience_id"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return badRequest(c, "invalid experience_id")
		}
		expID = n
	}
	start, end, err := queryRange(c, 7*24*time.Hour)
	if err != nil {
		return badRequest(c, err.Error())
	}
	views, err := h.Svc.GetSlotsInRange(c.Request().Context(), expID, start, end)
	if err != nil {
		return fail(c, h.Log, err)
	}
	if views == nil {
		views = []model.SlotView{}
	}
	return c.JSON(http.StatusOK, echo.Map{"slots": views})
}

// GetSlot handles GET /v1/slots/:id.
func (h *SlotHandler) GetSlot(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid slot id")
	}
	view, err := h.Svc.GetSlot(c.Request().Context(), id)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, view)
}

type createSlotRequest struct {
	ExperienceID    uint64         `json:"experience_id"`
	StartsAt        time.Time      `json:"starts_at"`
	EndsAt          time.Time      `json:"ends_at"`
	CapacityTotal   int            `json:"capacity_total"`
	CapacityPerType map[string]int `json:"capacity_per_type"`
	PriceSnapshot   map[string]int `json:"price_snapshot"`
}

// CreateSlot handles POST /v1/slots.
func (h *SlotHandler) CreateSlot(c echo.Context) error {
	var body createSlotRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	slot, err := h.Svc.CreateSlot(c.Request().Context(), booking.NewSlot{
		ExperienceID:    body.ExperienceID,
		StartsAt:        body.StartsAt,
		EndsAt:          body.EndsAt,
		CapacityTotal:   body.CapacityTotal,
		CapacityPerType: body.CapacityPerType,
		PriceSnapshot:   body.PriceSnapshot,
	})
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, slot)
}

// MoveSlot handles PATCH /v1/slots/:id/move.
func (h *SlotHandler) MoveSlot(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid slot id")
	}
	var body window
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	slot, err := h.Svc.MoveSlot(c.Request().Context(), id, body.StartsAt, body.EndsAt)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, slot)
}

type capacityRequest struct {
	CapacityTotal   *int           `json:"capacity_total"`
	CapacityPerType map[string]int `json:"capacity_per_type"`
}

// UpdateCapacity handles PUT /v1/slots/:id/capacity.  The per-type map
// replaces the current one; omit it to drop per-type limits.
func (h *SlotHandler) UpdateCapacity(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid slot id")
	}
	var body capacityRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if body.CapacityTotal == nil {
		return badRequest(c, "capacity_total is required")
	}
	view, err := h.Svc.UpdateSlotCapacity(c.Request().Context(), id, *body.CapacityTotal, body.CapacityPerType)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, view)
}

// CloseSlot handles POST /v1/slots/:id/close.  The optional body
// {"status": "cancelled"} cancels instead and {"status": "open"} reopens.
func (h *SlotHandler) CloseSlot(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid slot id")
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	status := model.SlotClosed
	if body.Status != "" {
		status = model.SlotStatus(strings.ToLower(body.Status))
	}
	slot, err := h.Svc.SetSlotStatus(c.Request().Context(), id, status)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, slot)
}

// ListReservations handles GET /v1/slots/:id/reservations?status=a,b&limit.
func (h *SlotHandler) ListReservations(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid slot id")
	}
	var statuses []model.ReservationStatus
	for _, s := range strings.Split(c.QueryParam("status"), ",") {
		if s = strings.TrimSpace(s); s != "" {
			statuses = append(statuses, model.ReservationStatus(s))
		}
	}
	list, err := h.Svc.ListSlotReservations(c.Request().Context(), id, statuses, queryLimit(c, 0, 1000))
	if err != nil {
		return fail(c, h.Log, err)
	}
	if list == nil {
		list = []model.Reservation{}
	}
	return c.JSON(http.StatusOK, echo.Map{"reservations": list})
}
