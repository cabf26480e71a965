package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"
)

// AdminTokenHeader carries the maintenance token
const AdminTokenHeader = "X-Admin-Token"

// AdminAuthMiddleware protects maintenance endpoints.
// Requires the X-Admin-Token header to match token; an empty token
// disables the endpoints entirely.
func AdminAuthMiddleware(token string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if token == "" {
				return c.JSON(http.StatusNotFound, map[string]interface{}{
					"error": "Endpoint not found",
				})
			}

			got := c.Request().Header.Get(AdminTokenHeader)
			if got == "" {
				return c.JSON(http.StatusUnauthorized, map[string]interface{}{
					"error": "Admin endpoints require X-Admin-Token header",
					"hint":  "Set ADMIN_TOKEN and pass it as X-Admin-Token",
				})
			}

			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				return c.JSON(http.StatusForbidden, map[string]interface{}{
					"error": "Invalid admin token",
				})
			}

			return next(c)
		}
	}
}
