// Package telemetry exposes Prometheus metrics for the query compiler: HTTP
// server metrics recorded by an Echo middleware, compile outcomes, and
// vocabulary reloads. Metrics live in a private registry served at /metrics.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// TelemetryConfig holds all configuration for the telemetry provider.
type TelemetryConfig struct {
	Namespace        string `json:"namespace"`
	ServiceVersion   string `json:"service_version"`
	Environment      string `json:"environment"`
	MetricsEnabled   *bool  `json:"metrics_enabled"` // nil = use default (true)
	RuntimeCollected bool   `json:"runtime_collected"`
}

// metricsOn returns whether metrics are enabled (defaults to true).
func (c *TelemetryConfig) metricsOn() bool {
	if c.MetricsEnabled == nil {
		return true
	}
	return *c.MetricsEnabled
}

func (c *TelemetryConfig) applyDefaults() {
	if c.Namespace == "" {
		c.Namespace = "nlq"
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = "0.0.0"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
}

// BoolPtr is a helper to create a *bool for TelemetryConfig fields.
func BoolPtr(b bool) *bool {
	return &b
}

var (
	durationBuckets = []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5}
	compileBuckets  = []float64{.00005, .0001, .00025, .0005, .001, .0025, .005, .01, .025}
)

// ---------------------------------------------------------------------------
// TelemetryProvider
// ---------------------------------------------------------------------------

// TelemetryProvider owns the metric registry and the collectors the server
// reports into. It satisfies nlquery.Metrics.
type TelemetryProvider struct {
	cfg      TelemetryConfig
	registry *prometheus.Registry

	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	httpActive     prometheus.Gauge
	compiles       *prometheus.CounterVec
	compileLatency *prometheus.HistogramVec
	vocabSize      prometheus.Gauge
	reloads        *prometheus.CounterVec
	dbConns        *prometheus.GaugeVec
}

// NewTelemetryProvider creates a provider with its own registry.
func NewTelemetryProvider(cfg TelemetryConfig) *TelemetryProvider {
	cfg.applyDefaults()

	reg := prometheus.NewRegistry()
	if cfg.RuntimeCollected {
		reg.MustRegister(collectors.NewGoCollector())
		reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: cfg.Namespace}))
	}
	factory := promauto.With(reg)
	ns := cfg.Namespace

	factory.NewGauge(prometheus.GaugeOpts{
		Namespace:   ns,
		Name:        "build_info",
		Help:        "Build information of the running server",
		ConstLabels: prometheus.Labels{"version": cfg.ServiceVersion, "environment": cfg.Environment},
	}).Set(1)

	return &TelemetryProvider{
		cfg:      cfg,
		registry: reg,
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   durationBuckets,
		}, []string{"method", "route", "status"}),
		httpActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "http_active_requests",
			Help:      "Number of in-flight HTTP requests",
		}),
		compiles: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "compile_total",
			Help:      "Total number of compiled questions by outcome",
		}, []string{"outcome"}),
		compileLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "compile_duration_seconds",
			Help:      "Duration of a single compilation in seconds",
			Buckets:   compileBuckets,
		}, []string{"outcome"}),
		vocabSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "vocabulary_entries",
			Help:      "Number of conditions in the active vocabulary",
		}),
		reloads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "vocabulary_reloads_total",
			Help:      "Total number of vocabulary reloads by source and result",
		}, []string{"source", "result"}),
		dbConns: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "db_pool_connections",
			Help:      "Database pool connections by state",
		}, []string{"state"}),
	}
}

// Registry returns the underlying registry.
func (tp *TelemetryProvider) Registry() *prometheus.Registry {
	return tp.registry
}

// ObserveCompile records one compilation.
func (tp *TelemetryProvider) ObserveCompile(outcome string, d time.Duration) {
	if !tp.cfg.metricsOn() {
		return
	}
	tp.compiles.WithLabelValues(outcome).Inc()
	tp.compileLatency.WithLabelValues(outcome).Observe(d.Seconds())
}

// SetVocabularySize sets the vocabulary_entries gauge.
func (tp *TelemetryProvider) SetVocabularySize(n int) {
	if !tp.cfg.metricsOn() {
		return
	}
	tp.vocabSize.Set(float64(n))
}

// ObserveReload counts a vocabulary reload attempt.
func (tp *TelemetryProvider) ObserveReload(source string, err error) {
	if !tp.cfg.metricsOn() {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	tp.reloads.WithLabelValues(source, result).Inc()
}

// SetDBPool records database pool connection counts.
func (tp *TelemetryProvider) SetDBPool(active, idle int32) {
	if !tp.cfg.metricsOn() {
		return
	}
	tp.dbConns.WithLabelValues("active").Set(float64(active))
	tp.dbConns.WithLabelValues("idle").Set(float64(idle))
}

// ---------------------------------------------------------------------------
// MetricsMiddleware
// ---------------------------------------------------------------------------

// MetricsMiddleware returns an Echo middleware that records HTTP server metrics.
func (tp *TelemetryProvider) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !tp.cfg.metricsOn() {
				return next(c)
			}

			tp.httpActive.Inc()
			defer tp.httpActive.Dec()

			start := time.Now()
			err := next(c)
			duration := time.Since(start).Seconds()

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else if !c.Response().Committed {
					status = http.StatusInternalServerError
				}
			}

			// Route pattern keeps label cardinality bounded.
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			labels := []string{c.Request().Method, route, strconv.Itoa(status)}
			tp.httpRequests.WithLabelValues(labels...).Inc()
			tp.httpDuration.WithLabelValues(labels...).Observe(duration)

			return err
		}
	}
}

// ---------------------------------------------------------------------------
// PrometheusHandler
// ---------------------------------------------------------------------------

// PrometheusHandler returns an Echo handler that serves the registry in the
// Prometheus text exposition format.
func (tp *TelemetryProvider) PrometheusHandler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(tp.registry, promhttp.HandlerOpts{}))
}
