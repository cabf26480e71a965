package handlers

import (
	"net/http"

	"github.com/healthchain/marketplace/cmd/marketplace/container"
	"github.com/labstack/echo/v4"
)

// AdminHandler exposes maintenance operations
type AdminHandler struct {
	container *container.Container
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(c *container.Container) *AdminHandler {
	return &AdminHandler{container: c}
}

// Reindex rebuilds the dataset index from the ledger
// POST /api/admin/reindex
func (h *AdminHandler) Reindex(c echo.Context) error {
	n, err := h.container.CatalogService.Reindex(c.Request().Context())
	if err != nil {
		return respondError(c, err, h.container.Components.Config.IsProduction())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"indexed": n,
	})
}
