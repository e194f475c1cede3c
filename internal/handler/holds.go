package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/experience-booking/internal/booking"
	"github.com/iliyamo/experience-booking/internal/model"
)

// HoldHandler is the manager's request-to-book inbox.
type HoldHandler struct {
	Svc *booking.Service
	Log *zap.Logger
}

// NewHoldHandler panics if a dependency is nil.
func NewHoldHandler(svc *booking.Service, log *zap.Logger) *HoldHandler {
	if svc == nil || log == nil {
		panic("nil dependency passed to NewHoldHandler")
	}
	return &HoldHandler{Svc: svc, Log: log}
}

// ListHolds handles GET /v1/holds?limit.
func (h *HoldHandler) ListHolds(c echo.Context) error {
	list, err := h.Svc.PendingHolds(c.Request().Context(), queryLimit(c, 100, 1000))
	if err != nil {
		return fail(c, h.Log, err)
	}
	if list == nil {
		list = []model.Reservation{}
	}
	return c.JSON(http.StatusOK, echo.Map{"holds": list})
}

// Approve handles POST /v1/holds/:id/approve, where id is the reservation.
func (h *HoldHandler) Approve(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid reservation id")
	}
	r, err := h.Svc.ApproveHold(c.Request().Context(), id)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, r)
}

// Reject handles POST /v1/holds/:id/reject.
func (h *HoldHandler) Reject(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid reservation id")
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	r, err := h.Svc.RejectHold(c.Request().Context(), id, body.Reason)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, r)
}
