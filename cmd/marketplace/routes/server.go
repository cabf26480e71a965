package routes

import (
	"fmt"

	"github.com/healthchain/marketplace/cmd/marketplace/container"
	"github.com/healthchain/marketplace/cmd/marketplace/handlers"
	commonmw "github.com/healthchain/marketplace/common/middleware"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// bodyOverheadKiB is allowed on top of UPLOAD_MAX_BYTES for the text
// fields and multipart framing (1 MiB)
const bodyOverheadKiB = 1 << 10

// bodyLimit renders the request size cap in echo's BodyLimit syntax
func bodyLimit(maxUploadBytes int64) string {
	return fmt.Sprintf("%dK", (maxUploadBytes+1023)>>10 + bodyOverheadKiB)
}

// NewEcho builds the API server with its middleware stack and every route
// registered
func NewEcho(c *container.Container) *echo.Echo {
	cfg := c.Components.Config
	log := c.Components.Logger

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handlers.NewHTTPErrorHandler(cfg.IsProduction(), log)

	e.Use(middleware.RequestID())
	e.Use(commonmw.RequestContext())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(ec echo.Context, v middleware.RequestLoggerValues) error {
			args := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
				"request_id", v.RequestID,
			}
			if v.Error != nil {
				log.Warn("request failed", append(args, "error", v.Error.Error())...)
				return nil
			}
			log.Info("request", args...)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(bodyLimit(cfg.Upload.MaxBytes)))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:  cfg.CORS.Origins,
		ExposeHeaders: []string{echo.HeaderContentDisposition, "X-Original-Filename", "X-Dataset-Encrypted"},
	}))

	if c.Components.Telemetry != nil {
		e.Use(c.Components.Telemetry.Middleware())
	}

	if cfg.RateLimit.Enabled {
		if c.RateLimiter != nil {
			e.Use(commonmw.ClientRateLimitMiddleware(c.RateLimiter, cfg.RateLimit.MaxRequests, cfg.RateLimit.Window, log))
		} else {
			log.Warn("rate limiting needs redis, requests are not limited")
		}
	}

	RegisterAll(e, c)
	return e
}
