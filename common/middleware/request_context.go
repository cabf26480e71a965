package middleware

import (
	"github.com/healthchain/marketplace/common/clients"
	"github.com/labstack/echo/v4"
)

// RequestContext copies the request id assigned by echo's RequestID
// middleware into the request context, where the logger and outbound
// HTTP clients pick it up.
func RequestContext() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Response().Header().Get(echo.HeaderXRequestID)
			if id == "" {
				id = c.Request().Header.Get(echo.HeaderXRequestID)
			}
			if id != "" {
				req := c.Request()
				c.SetRequest(req.WithContext(clients.WithRequestID(req.Context(), id)))
			}
			return next(c)
		}
	}
}
