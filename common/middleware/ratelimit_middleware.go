package middleware

import (
	"math"
	"strconv"
	"time"

	"github.com/healthchain/marketplace/common/apperr"
	"github.com/healthchain/marketplace/common/logger"
	"github.com/healthchain/marketplace/common/ratelimit"
	"github.com/labstack/echo/v4"
)

const rateLimitMessage = "Too many requests from this IP, please try again later."

// ClientRateLimitMiddleware gives each client IP limit requests per window.
// When the limiter itself fails the request is let through.
func ClientRateLimitMiddleware(limiter ratelimit.Checker, limit int64, window time.Duration, log *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			client := c.RealIP()

			res, err := limiter.Allow(c.Request().Context(), client, limit, window)
			if err != nil {
				log.Warn("rate limiter unavailable, allowing request", "client", client, "error", err)
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.FormatInt(res.Limit, 10))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining(), 10))
			if res.Allowed {
				return next(c)
			}

			retry := int64(math.Ceil(res.RetryAfter.Seconds()))
			h.Set("Retry-After", strconv.FormatInt(retry, 10))
			return c.JSON(apperr.HTTPStatus(apperr.KindRateLimited), map[string]interface{}{
				"error": rateLimitMessage,
				"details": map[string]interface{}{
					"limit":               res.Limit,
					"window":              window.String(),
					"retry_after_seconds": retry,
				},
			})
		}
	}
}
