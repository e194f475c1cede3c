package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/experience-booking/internal/authz"
)

// RequireCapability aborts with 403 unless the actor can perform action.
// It runs after JWTAuth.
func RequireCapability(action authz.Action) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !Actor(c).Can(action) {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden", "message": "missing capability " + string(action)})
			}
			return next(c)
		}
	}
}
