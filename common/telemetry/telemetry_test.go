package telemetry

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/healthchain/marketplace/common/logger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, tel *Telemetry) string {
	t.Helper()
	rec := httptest.NewRecorder()
	tel.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestTelemetry_CountsRequestsByRoute(t *testing.T) {
	tel := New(0, false, logger.Discard())

	e := echo.New()
	e.Use(tel.Middleware())
	e.GET("/api/dataset-info/:datasetId", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	for _, path := range []string{"/api/dataset-info/1", "/api/dataset-info/2"} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	body := scrape(t, tel)
	assert.Contains(t, body, `healthchain_marketplace_http_requests_total{method="GET",route="/api/dataset-info/:datasetId",status="200"} 2`)
}

func TestTelemetry_PipelineCounters(t *testing.T) {
	tel := New(0, false, logger.Discard())
	tel.RecordUpload("success")
	tel.RecordUpload("store")
	tel.RecordDownload("authorize")
	tel.RecordDuration("encrypt", time.Now())

	body := scrape(t, tel)
	assert.Contains(t, body, `healthchain_marketplace_uploads_total{result="store"} 1`)
	assert.Contains(t, body, `healthchain_marketplace_downloads_total{result="authorize"} 1`)
	assert.Contains(t, body, `healthchain_marketplace_pipeline_stage_duration_seconds_count{stage="encrypt"} 1`)
}

func TestTelemetry_PprofOnlyWhenEnabled(t *testing.T) {
	off := New(0, false, logger.Discard())
	rec := httptest.NewRecorder()
	off.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	on := New(0, true, logger.Discard())
	rec = httptest.NewRecorder()
	on.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
