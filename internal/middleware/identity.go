package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/experience-booking/internal/authz"
)

const actorKey = "actor"

// SetActor stores the authenticated actor on the request context.
func SetActor(c echo.Context, a authz.Actor) { c.Set(actorKey, a) }

// Actor returns the actor set by the auth middleware, or authz.Anonymous
// when the request is not authenticated.
func Actor(c echo.Context) authz.Actor {
	if a, ok := c.Get(actorKey).(authz.Actor); ok && a != nil {
		return a
	}
	return authz.Anonymous{}
}
