package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/experience-booking/internal/authz"
	"github.com/iliyamo/experience-booking/internal/booking"
	"github.com/iliyamo/experience-booking/internal/middleware"
	"github.com/iliyamo/experience-booking/internal/model"
)

// ReservationHandler lets customers book and cancel, and lets the checkout
// collaborator confirm payment.
type ReservationHandler struct {
	Svc *booking.Service
	Log *zap.Logger
}

// NewReservationHandler panics if a dependency is nil.
func NewReservationHandler(svc *booking.Service, log *zap.Logger) *ReservationHandler {
	if svc == nil || log == nil {
		panic("nil dependency passed to NewReservationHandler")
	}
	return &ReservationHandler{Svc: svc, Log: log}
}

type createReservationRequest struct {
	SlotID      uint64            `json:"slot_id"`
	Party       model.Party       `json:"party"`
	Mode        model.Mode        `json:"mode"`
	Attribution map[string]string `json:"attribution"`
}

// CreateReservation handles POST /v1/reservations.  The reservation belongs
// to the authenticated actor.  Mode defaults to direct.
func (h *ReservationHandler) CreateReservation(c echo.Context) error {
	var body createReservationRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if body.Mode == "" {
		body.Mode = model.ModeDirect
	}
	r, err := h.Svc.CreateReservation(c.Request().Context(), booking.CreateRequest{
		SlotID:      body.SlotID,
		Party:       body.Party,
		Mode:        body.Mode,
		CustomerRef: middleware.Actor(c).ID(),
		Attribution: body.Attribution,
	})
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, r)
}

// load fetches a reservation the actor may act on.  Reservations of other
// customers read as not found.
func (h *ReservationHandler) load(c echo.Context, anyAction authz.Action) (model.Reservation, bool, error) {
	id, ok := pathID(c, "id")
	if !ok {
		return model.Reservation{}, false, badRequest(c, "invalid reservation id")
	}
	r, err := h.Svc.GetReservation(c.Request().Context(), id)
	if err != nil {
		return model.Reservation{}, false, fail(c, h.Log, err)
	}
	if !authz.Owns(middleware.Actor(c), r.CustomerRef, anyAction) {
		return model.Reservation{}, false, notFound(c, "reservation not found")
	}
	return r, true, nil
}

// GetReservation handles GET /v1/reservations/:id.
func (h *ReservationHandler) GetReservation(c echo.Context) error {
	r, ok, err := h.load(c, authz.ActionReadAny)
	if !ok {
		return err
	}
	return c.JSON(http.StatusOK, r)
}

// CancelReservation handles POST /v1/reservations/:id/cancel.
func (h *ReservationHandler) CancelReservation(c echo.Context) error {
	r, ok, err := h.load(c, authz.ActionCancelAny)
	if !ok {
		return err
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	out, err := h.Svc.CancelReservation(c.Request().Context(), r.ID, body.Reason)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, out)
}

// ConfirmReservation handles POST /v1/reservations/:id/confirm, called by
// checkout once payment succeeded.
func (h *ReservationHandler) ConfirmReservation(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid reservation id")
	}
	var body struct {
		OrderID string `json:"order_id"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	out, err := h.Svc.ConfirmReservation(c.Request().Context(), id, body.OrderID)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, out)
}
