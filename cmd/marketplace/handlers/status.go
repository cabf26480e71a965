package handlers

import (
	"net/http"
	"time"

	"github.com/healthchain/marketplace/cmd/marketplace/container"
	"github.com/labstack/echo/v4"
)

// StatusHandler serves health and adapter status endpoints
type StatusHandler struct {
	container *container.Container
	now       func() time.Time
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(c *container.Container) *StatusHandler {
	return &StatusHandler{container: c, now: time.Now}
}

// Health reports liveness and infrastructure component health
// GET /api/health
func (h *StatusHandler) Health(c echo.Context) error {
	components := h.container.Components.Health(c.Request().Context())

	status := "OK"
	for _, ok := range components {
		if !ok {
			status = "DEGRADED"
		}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":     status,
		"timestamp":  h.now().UTC().Format(time.RFC3339Nano),
		"version":    h.container.Components.Config.Service.Version,
		"components": components,
	})
}

// StoreStatus reports the content-store provider and a live credential check
// GET /api/ipfs/status
func (h *StatusHandler) StoreStatus(c echo.Context) error {
	ctx := c.Request().Context()
	st := h.container.Store.Status(ctx)
	st.Healthy = h.container.Store.HealthCheck(ctx)

	return c.JSON(http.StatusOK, map[string]interface{}{
		"provider":   st.Provider,
		"healthy":    st.Healthy,
		"gatewayUrl": st.GatewayURL,
		"timestamp":  h.now().UTC().Format(time.RFC3339Nano),
	})
}

// LedgerStatus reports chain and signer information
// GET /api/ledger/status
func (h *StatusHandler) LedgerStatus(c echo.Context) error {
	st, err := h.container.CatalogService.LedgerStatus(c.Request().Context())
	if err != nil {
		return respondError(c, err, h.container.Components.Config.IsProduction())
	}
	return c.JSON(http.StatusOK, st)
}
