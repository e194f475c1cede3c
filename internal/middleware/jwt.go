package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/experience-booking/internal/authz"
	"github.com/iliyamo/experience-booking/internal/utils"
)

// APIKeyHeader carries the shared key of SYSTEM collaborators.
const APIKeyHeader = "X-API-Key"

// JWTAuth returns an Echo middleware that authenticates the caller and
// stores an authz.Actor on the context.  A Bearer access token signed with
// secret yields a principal with the token's subject and role.  When
// systemKeyHash is set, an X-API-Key matching it yields the SYSTEM actor.
func JWTAuth(secret, systemKeyHash string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if key := c.Request().Header.Get(APIKeyHeader); key != "" && systemKeyHash != "" {
				if !utils.VerifyAPIKey(systemKeyHash, key) {
					return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized", "message": "invalid api key"})
				}
				SetActor(c, authz.NewPrincipal("system", authz.RoleSystem))
				return next(c)
			}

			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized", "message": "missing bearer token"})
			}
			claims, err := utils.ParseAccessToken(secret, strings.TrimPrefix(auth, "Bearer "))
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized", "message": "invalid token"})
			}
			role, ok := authz.ParseRole(claims.Role)
			if !ok {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden", "message": "unknown role"})
			}
			SetActor(c, authz.NewPrincipal(claims.Subject, role))
			return next(c)
		}
	}
}
