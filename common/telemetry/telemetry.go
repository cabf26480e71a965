package telemetry

import (
	"fmt"
	"net/http"
	"net/http/pprof"
	"strconv"
	"time"

	"github.com/healthchain/marketplace/common/logger"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "healthchain_marketplace"

// Telemetry holds the service's Prometheus collectors and serves them,
// with optional pprof handlers, on a separate listener.
type Telemetry struct {
	log         *logger.Logger
	registry    *prometheus.Registry
	metricsAddr string
	enablePprof bool

	requests      *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	uploads       *prometheus.CounterVec
	downloads     *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
}

// New creates telemetry components on a private registry
func New(metricsPort int, enablePprof bool, log *logger.Logger) *Telemetry {
	t := &Telemetry{
		log:         log,
		registry:    prometheus.NewRegistry(),
		metricsAddr: fmt.Sprintf(":%d", metricsPort),
		enablePprof: enablePprof,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "The total number of HTTP requests served.",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Dataset uploads by outcome.",
		}, []string{"result"}),
		downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_total",
			Help:      "Dataset downloads by outcome.",
		}, []string{"result"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Time spent in each upload or download stage.",
			Buckets:   []float64{.01, .05, .1, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"stage"}),
	}

	t.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		t.requests, t.latency, t.uploads, t.downloads, t.stageDuration,
	)
	return t
}

// Addr is the listen address of the metrics server
func (t *Telemetry) Addr() string {
	return t.metricsAddr
}

// Handler serves /metrics, /health and, when enabled, /debug/pprof
func (t *Telemetry) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "OK")
	})

	mux.Handle("/metrics", promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{}))

	if t.enablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	return mux
}

// Middleware counts requests by route template and status
func (t *Telemetry) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method

			t.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			t.latency.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// RecordUpload counts one upload; result is "success" or the error kind
func (t *Telemetry) RecordUpload(result string) {
	t.uploads.WithLabelValues(result).Inc()
}

// RecordDownload counts one download; result is "success" or the error kind
func (t *Telemetry) RecordDownload(result string) {
	t.downloads.WithLabelValues(result).Inc()
}

// RecordDuration records how long a pipeline stage took
func (t *Telemetry) RecordDuration(stage string, start time.Time) {
	duration := time.Since(start)
	t.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
	t.log.Debug("stage completed",
		"stage", stage,
		"duration_ms", duration.Milliseconds(),
	)
}
