package handlers

import (
	"net/http"

	"github.com/healthchain/marketplace/cmd/marketplace/container"
	"github.com/healthchain/marketplace/common/apperr"
	"github.com/labstack/echo/v4"
)

// ProviderHandler handles provider enrollment
type ProviderHandler struct {
	container *container.Container
}

// NewProviderHandler creates a new provider handler
func NewProviderHandler(c *container.Container) *ProviderHandler {
	return &ProviderHandler{container: c}
}

type registerProviderRequest struct {
	UserAddress string `json:"userAddress"`
}

// RegisterProvider enrolls the caller as a dataset provider
// POST /api/register-provider
func (h *ProviderHandler) RegisterProvider(c echo.Context) error {
	production := h.container.Components.Config.IsProduction()

	var req registerProviderRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, apperr.Wrap(apperr.KindValidation, apperr.StageValidate, err, "Invalid request body"), production)
	}

	reg, err := h.container.ProviderService.RegisterProvider(c.Request().Context(), req.UserAddress)
	if err != nil {
		return respondError(c, err, production)
	}

	if reg.AlreadyProvider {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"success":    true,
			"message":    "User is already a registered dataset provider",
			"isProvider": true,
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":         true,
		"message":         "Successfully registered as dataset provider",
		"transactionHash": reg.Receipt.TxHash,
		"blockNumber":     reg.Receipt.BlockNumber,
		"isProvider":      true,
	})
}

// IsProvider reports provider status
// GET /api/is-provider/:userAddress
func (h *ProviderHandler) IsProvider(c echo.Context) error {
	user := c.Param("userAddress")

	ok, err := h.container.ProviderService.IsProvider(c.Request().Context(), user)
	if err != nil {
		return respondError(c, err, h.container.Components.Config.IsProduction())
	}

	message := "User is not a dataset provider"
	if ok {
		message = "User is a registered dataset provider"
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"userAddress": user,
		"isProvider":  ok,
		"message":     message,
	})
}
