package handlers

import (
	"net/http"

	"github.com/healthchain/marketplace/cmd/marketplace/container"
	"github.com/healthchain/marketplace/cmd/marketplace/service"
	"github.com/labstack/echo/v4"
)

// LicenseHandler answers license lookups
type LicenseHandler struct {
	container *container.Container
}

// NewLicenseHandler creates a new license handler
func NewLicenseHandler(c *container.Container) *LicenseHandler {
	return &LicenseHandler{container: c}
}

// VerifyLicense reports whether a user holds a valid license
// GET /api/verify-license/:datasetId/:userAddress
func (h *LicenseHandler) VerifyLicense(c echo.Context) error {
	production := h.container.Components.Config.IsProduction()

	id, err := service.ParseDatasetID(c.Param("datasetId"))
	if err != nil {
		return respondError(c, err, production)
	}
	user := c.Param("userAddress")

	ok, err := h.container.CatalogService.VerifyLicense(c.Request().Context(), id, user)
	if err != nil {
		return respondError(c, err, production)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"hasLicense":  ok,
		"datasetId":   id,
		"userAddress": user,
	})
}

// UserLicenses lists a user's licenses with dataset info
// GET /api/user-licenses/:userAddress
func (h *LicenseHandler) UserLicenses(c echo.Context) error {
	licenses, err := h.container.CatalogService.UserLicenses(c.Request().Context(), c.Param("userAddress"))
	if err != nil {
		return respondError(c, err, h.container.Components.Config.IsProduction())
	}
	return c.JSON(http.StatusOK, licenses)
}
