package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/experience-booking/internal/ratelimit"
)

// RateLimit guards one action per actor.  It runs after JWTAuth so the
// actor is known.  Limiter failures let the request through.
func RateLimit(l ratelimit.Limiter, action string, log *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			actor := Actor(c).ID()
			d, err := l.Allow(c.Request().Context(), action, actor)
			if err != nil {
				log.Warn("rate limiter unavailable", zap.String("action", action), zap.Error(err))
				return next(c)
			}
			if d.Limit > 0 {
				c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
				c.Response().Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			}
			if !d.Allowed {
				log.Info("rate limited", zap.String("action", action), zap.String("actor", actor),
					zap.Duration("retry_after", d.RetryAfter))
				return tooManyRequests(c, d.RetryAfter)
			}
			return next(c)
		}
	}
}

// IPGuard applies the coarse per-IP token bucket to every request.
func IPGuard(g *ratelimit.IPGuard, log *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			if ip == "" {
				ip = "unknown"
			}
			if ok, wait := g.Allow(ip); !ok {
				log.Warn("rate limit exceeded", zap.String("ip", ip))
				return tooManyRequests(c, wait)
			}
			return next(c)
		}
	}
}

func tooManyRequests(c echo.Context, retry time.Duration) error {
	secs := int(math.Ceil(retry.Seconds()))
	if secs < 1 {
		secs = 1
	}
	c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
	return c.JSON(http.StatusTooManyRequests, echo.Map{
		"error":       "too_many_requests",
		"message":     "rate limit exceeded",
		"retry_after": secs,
	})
}
