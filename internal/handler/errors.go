package handler

import (
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/experience-booking/internal/availability"
	"github.com/iliyamo/experience-booking/internal/booking"
	"github.com/iliyamo/experience-booking/internal/ratelimit"
	"github.com/iliyamo/experience-booking/internal/repository"
)

// Error codes in the "error" field of failed responses.
const (
	CodeInvalidInput      = "invalid_input"
	CodeNotFound          = "not_found"
	CodeCapacityExceeded  = "capacity_exceeded"
	CodeSlotClosed        = "slot_closed"
	CodeInvalidTransition = "invalid_transition"
	CodeAlreadyTerminal   = "already_terminal"
	CodeWouldOrphan       = "would_orphan_reservations"
	CodeRateLimited       = "too_many_requests"
	CodeConflict          = "conflict"
	CodeUnavailable       = "unavailable"
	CodeInternal          = "internal"
)

// fail writes the JSON error response for err.  Every handler returns
// through it so status codes are decided in one place.
func fail(c echo.Context, log *zap.Logger, err error) error {
	status, body := classify(err)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", zap.String("route", c.Path()), zap.Error(err))
	}
	return c.JSON(status, body)
}

func classify(err error) (int, echo.Map) {
	body := echo.Map{"message": err.Error()}
	var (
		ce *booking.CapacityError
		oe *booking.OrphanError
		te *booking.TransitionError
		re *ratelimit.ExceededError
	)
	switch {
	case errors.As(err, &ce):
		body["error"] = CodeCapacityExceeded
		body["details"] = echo.Map{"slot_id": ce.SlotID, "type": ce.Type, "requested": ce.Requested, "available": ce.Available}
		return http.StatusConflict, body
	case errors.As(err, &oe):
		body["error"] = CodeWouldOrphan
		body["details"] = echo.Map{"slot_id": oe.SlotID, "type": oe.Type, "reserved": oe.Requested, "limit": oe.Available}
		return http.StatusConflict, body
	case errors.As(err, &te):
		body["error"] = CodeInvalidTransition
		body["details"] = echo.Map{"reservation_id": te.ReservationID, "from": te.From, "action": te.Action}
		return http.StatusConflict, body
	case errors.As(err, &re):
		secs := int(re.RetryAfter.Seconds() + 0.999)
		body["error"] = CodeRateLimited
		body["retry_after"] = secs
		return http.StatusTooManyRequests, body
	case errors.Is(err, booking.ErrAlreadyTerminal):
		body["error"] = CodeAlreadyTerminal
		return http.StatusConflict, body
	case errors.Is(err, booking.ErrSlotClosed):
		body["error"] = CodeSlotClosed
		return http.StatusConflict, body
	case errors.Is(err, booking.ErrNotFound), errors.Is(err, repository.ErrNotFound):
		body["error"] = CodeNotFound
		return http.StatusNotFound, body
	case errors.Is(err, booking.ErrInvalidInput),
		errors.Is(err, availability.ErrInvalidRange),
		errors.Is(err, availability.ErrInvalidRecurrence):
		body["error"] = CodeInvalidInput
		return http.StatusBadRequest, body
	case errors.Is(err, booking.ErrConflict), errors.Is(err, repository.ErrConflict):
		body["error"] = CodeConflict
		return http.StatusConflict, body
	case errors.Is(err, repository.ErrUnavailable):
		return http.StatusServiceUnavailable, echo.Map{"error": CodeUnavailable, "message": "storage unavailable"}
	}
	return http.StatusInternalServerError, echo.Map{"error": CodeInternal, "message": "internal error"}
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": CodeInvalidInput, "message": msg})
}

func notFound(c echo.Context, msg string) error {
	return c.JSON(http.StatusNotFound, echo.Map{"error": CodeNotFound, "message": msg})
}
