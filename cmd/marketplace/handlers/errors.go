package handlers

import (
	"errors"
	"net/http"

	"github.com/healthchain/marketplace/common/apperr"
	"github.com/healthchain/marketplace/common/logger"
	"github.com/labstack/echo/v4"
)

// respondError writes a classified error. Causes are included as details
// outside production, and always for errors the caller can act on.
func respondError(c echo.Context, err error, production bool) error {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		ae = apperr.Wrap(apperr.KindInternal, "", err, "Internal server error")
	}

	summary := ae.Message
	if summary == "" {
		summary = string(ae.Kind)
	}
	body := map[string]interface{}{
		"error": summary,
	}
	if ae.Stage != "" {
		body["stage"] = ae.Stage
	}
	if ae.Err != nil && (!production || callerFacing(ae.Kind)) {
		body["details"] = ae.Err.Error()
	}

	return c.JSON(apperr.HTTPStatus(ae.Kind), body)
}

func callerFacing(kind apperr.Kind) bool {
	return kind == apperr.KindValidation || kind == apperr.KindAccessDenied
}

// NewHTTPErrorHandler renders errors that escape the handlers: unknown
// routes, oversized bodies and panics recovered by middleware
func NewHTTPErrorHandler(production bool, log *logger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var he *echo.HTTPError
		if errors.As(err, &he) {
			var body map[string]interface{}
			status := he.Code
			switch he.Code {
			case http.StatusNotFound:
				body = map[string]interface{}{"error": "Endpoint not found"}
			case http.StatusRequestEntityTooLarge:
				status = http.StatusBadRequest
				body = map[string]interface{}{"error": "File too large"}
			default:
				body = map[string]interface{}{"error": http.StatusText(he.Code)}
				if msg, ok := he.Message.(string); ok && msg != "" {
					body["error"] = msg
				}
			}
			_ = c.JSON(status, body)
			return
		}

		log.WithContext(c.Request().Context()).Error("unhandled error", "error", err, "path", c.Path())
		message := "Something went wrong"
		if !production {
			message = err.Error()
		}
		_ = c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error":   "Internal server error",
			"message": message,
		})
	}
}
