package routes

import (
	"github.com/healthchain/marketplace/cmd/marketplace/container"
	"github.com/healthchain/marketplace/cmd/marketplace/handlers"
	"github.com/healthchain/marketplace/cmd/marketplace/middleware"
	"github.com/labstack/echo/v4"
)

// RegisterDatasetRoutes registers upload, download, info and listing routes
func RegisterDatasetRoutes(e *echo.Echo, c *container.Container) {
	uploads := handlers.NewUploadHandler(c)
	datasets := handlers.NewDatasetHandler(c)

	api := e.Group("/api")
	{
		api.POST("/upload-dataset", uploads.UploadDataset) // multipart upload
		api.GET("/dataset/:datasetId", datasets.GetDataset)  // ?userAddress=0x...
		api.GET("/dataset-info/:datasetId", datasets.GetDatasetInfo)
		api.GET("/datasets", datasets.ListDatasets)
	}
}

// RegisterLicenseRoutes registers license lookups
func RegisterLicenseRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewLicenseHandler(c)

	api := e.Group("/api")
	{
		api.GET("/verify-license/:datasetId/:userAddress", h.VerifyLicense)
		api.GET("/user-licenses/:userAddress", h.UserLicenses)
	}
}

// RegisterProviderRoutes registers provider enrollment routes
func RegisterProviderRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewProviderHandler(c)

	api := e.Group("/api")
	{
		api.POST("/register-provider", h.RegisterProvider)
		api.GET("/is-provider/:userAddress", h.IsProvider)
	}
}

// RegisterStatusRoutes registers health and adapter status routes
func RegisterStatusRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewStatusHandler(c)

	api := e.Group("/api")
	{
		api.GET("/health", h.Health)
		api.GET("/ipfs/status", h.StoreStatus)
		api.GET("/ledger/status", h.LedgerStatus)
	}
}

// RegisterAdminRoutes registers maintenance routes behind the admin token
func RegisterAdminRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewAdminHandler(c)

	admin := e.Group("/api/admin", middleware.AdminAuthMiddleware(c.Components.Config.Admin.Token))
	{
		admin.POST("/reindex", h.Reindex)
	}
}

// RegisterAll registers every route group
func RegisterAll(e *echo.Echo, c *container.Container) {
	RegisterStatusRoutes(e, c)
	RegisterDatasetRoutes(e, c)
	RegisterLicenseRoutes(e, c)
	RegisterProviderRoutes(e, c)
	RegisterAdminRoutes(e, c)
}
