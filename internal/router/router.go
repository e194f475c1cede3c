// Package router wires handlers, auth and rate limits onto Echo routes.
package router

import (
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/experience-booking/internal/authz"
	"github.com/iliyamo/experience-booking/internal/handler"
	"github.com/iliyamo/experience-booking/internal/middleware"
	"github.com/iliyamo/experience-booking/internal/ratelimit"
)

// Deps is everything the routes need.
type Deps struct {
	JWTSecret     string
	SystemKeyHash string
	Limiter       ratelimit.Limiter
	Log           *zap.Logger

	Health       *handler.HealthHandler
	Availability *handler.AvailabilityHandler
	Slots        *handler.SlotHandler
	Reservations *handler.ReservationHandler
	Holds        *handler.HoldHandler
}

// Rate limited actions.  Keys match RATE_LIMIT_ACTIONS overrides.
const (
	LimitBook     = "reservation.create"
	LimitMove     = "slot.move"
	LimitCapacity = "slot.capacity"
	LimitStatus   = "slot.status"
	LimitHolds    = "hold.decide"
)

// Register mounts every route on e.
func Register(e *echo.Echo, d Deps) {
	if d.Limiter == nil {
		d.Limiter = ratelimit.Disabled{}
	}
	limit := func(action string) echo.MiddlewareFunc {
		return middleware.RateLimit(d.Limiter, action, d.Log)
	}
	can := middleware.RequireCapability

	e.GET("/healthz", d.Health.Health)

	// Public calendar.
	e.GET("/v1/experiences/:id/availability", d.Availability.GetAvailability)

	v1 := e.Group("/v1", middleware.JWTAuth(d.JWTSecret, d.SystemKeyHash))

	v1.POST("/experiences/:id/slots", d.Availability.EnsureSlot, can(authz.ActionBook))

	slots := v1.Group("/slots", can(authz.ActionManageSlots))
	slots.GET("", d.Slots.ListSlots)
	slots.POST("", d.Slots.CreateSlot)
	slots.GET("/:id", d.Slots.GetSlot)
	slots.PATCH("/:id/move", d.Slots.MoveSlot, limit(LimitMove))
	slots.PUT("/:id/capacity", d.Slots.UpdateCapacity, limit(LimitCapacity))
	slots.POST("/:id/close", d.Slots.CloseSlot, limit(LimitStatus))
	slots.GET("/:id/reservations", d.Slots.ListReservations)

	// Ownership of single reservations is checked in the handler.
	v1.POST("/reservations", d.Reservations.CreateReservation, can(authz.ActionBook), limit(LimitBook))
	v1.GET("/reservations/:id", d.Reservations.GetReservation)
	v1.POST("/reservations/:id/cancel", d.Reservations.CancelReservation)
	v1.POST("/reservations/:id/confirm", d.Reservations.ConfirmReservation, can(authz.ActionConfirmPayment))

	holds := v1.Group("/holds", can(authz.ActionApproveHolds))
	holds.GET("", d.Holds.ListHolds)
	holds.POST("/:id/approve", d.Holds.Approve, limit(LimitHolds))
	holds.POST("/:id/reject", d.Holds.Reject, limit(LimitHolds))
}
