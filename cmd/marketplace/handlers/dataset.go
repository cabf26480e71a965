package handlers

import (
	"mime"
	"net/http"

	"github.com/healthchain/marketplace/cmd/marketplace/container"
	"github.com/healthchain/marketplace/cmd/marketplace/service"
	"github.com/labstack/echo/v4"
)

// DatasetHandler serves dataset downloads, public info and listings
type DatasetHandler struct {
	container *container.Container
}

// NewDatasetHandler creates a new dataset handler
func NewDatasetHandler(c *container.Container) *DatasetHandler {
	return &DatasetHandler{container: c}
}

func (h *DatasetHandler) production() bool {
	return h.container.Components.Config.IsProduction()
}

// GetDataset streams a dataset to a licensed requester
// GET /api/dataset/:datasetId?userAddress=0x...
func (h *DatasetHandler) GetDataset(c echo.Context) error {
	id, err := service.ParseDatasetID(c.Param("datasetId"))
	if err != nil {
		return respondError(c, err, h.production())
	}

	dl, err := h.container.AccessService.HandleDownload(c.Request().Context(), id, c.QueryParam("userAddress"))
	if err != nil {
		return respondError(c, err, h.production())
	}

	header := c.Response().Header()
	header.Set(echo.HeaderContentDisposition, mime.FormatMediaType("attachment", map[string]string{"filename": dl.Filename}))
	header.Set("X-Original-Filename", dl.Filename)
	header.Set("Access-Control-Expose-Headers", "Content-Disposition, X-Original-Filename, X-Dataset-Encrypted")
	if dl.Encrypted {
		header.Set("X-Dataset-Encrypted", "true")
	}

	return c.Blob(http.StatusOK, echo.MIMEOctetStream, dl.Data)
}

// GetDatasetInfo returns the public view of a dataset
// GET /api/dataset-info/:datasetId
func (h *DatasetHandler) GetDatasetInfo(c echo.Context) error {
	id, err := service.ParseDatasetID(c.Param("datasetId"))
	if err != nil {
		return respondError(c, err, h.production())
	}

	info, err := h.container.CatalogService.GetDatasetInfo(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err, h.production())
	}

	return c.JSON(http.StatusOK, info)
}

// ListDatasets lists active datasets
// GET /api/datasets?limit=&offset=&sortBy=&sortOrder=&filter=
func (h *DatasetHandler) ListDatasets(c echo.Context) error {
	q, err := service.ParseListQuery(c.QueryParams())
	if err != nil {
		return respondError(c, err, h.production())
	}

	datasets, err := h.container.CatalogService.ListDatasets(c.Request().Context(), q)
	if err != nil {
		return respondError(c, err, h.production())
	}

	return c.JSON(http.StatusOK, datasets)
}
