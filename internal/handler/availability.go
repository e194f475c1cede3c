package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/experience-booking/internal/availability"
	"github.com/iliyamo/experience-booking/internal/booking"
)

// defaultAvailabilitySpan applies when a calendar query has no end.
const defaultAvailabilitySpan = 28 * 24 * time.Hour

// AvailabilityHandler serves the public calendar of an experience and
// materializes occurrences when a customer picks one.
type AvailabilityHandler struct {
	Calc *availability.Calculator
	Svc  *booking.Service
	Log  *zap.Logger
}

// NewAvailabilityHandler panics if a dependency is nil.
func NewAvailabilityHandler(calc *availability.Calculator, svc *booking.Service, log *zap.Logger) *AvailabilityHandler {
	if calc == nil || svc == nil || log == nil {
		panic("nil dependency passed to NewAvailabilityHandler")
	}
	return &AvailabilityHandler{Calc: calc, Svc: svc, Log: log}
}

// GetAvailability handles GET /v1/experiences/:id/availability?start&end.
func (h *AvailabilityHandler) GetAvailability(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid experience id")
	}
	start, end, err := queryRange(c, defaultAvailabilitySpan)
	if err != nil {
		return badRequest(c, err.Error())
	}
	res, err := h.Calc.ForExperience(c.Request().Context(), id, start, end)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, res)
}

// EnsureSlot handles POST /v1/experiences/:id/slots.  It returns 201 with
// the slot it created, or 200 with the slot that already existed.
func (h *AvailabilityHandler) EnsureSlot(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid experience id")
	}
	var body window
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	slot, created, err := h.Svc.EnsureSlot(c.Request().Context(), id, body.StartsAt, body.EndsAt)
	if err != nil {
		return fail(c, h.Log, err)
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return c.JSON(status, slot)
}
