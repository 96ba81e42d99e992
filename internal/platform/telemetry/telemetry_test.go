package telemetry

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	dto "github.com/prometheus/client_model/go"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

// findMetric returns the sample of family name whose labels include want.
func findMetric(t *testing.T, tp *TelemetryProvider, name string, want map[string]string) *dto.Metric {
	t.Helper()
	families, err := tp.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelsMatch(m, want) {
				return m
			}
		}
	}
	return nil
}

func labelsMatch(m *dto.Metric, want map[string]string) bool {
	got := make(map[string]string, len(m.GetLabel()))
	for _, lp := range m.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

func counterValue(t *testing.T, tp *TelemetryProvider, name string, labels map[string]string) float64 {
	t.Helper()
	m := findMetric(t, tp, name, labels)
	if m == nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

// ---------------------------------------------------------------------------
// Config defaults
// ---------------------------------------------------------------------------

func TestTelemetryConfig_Defaults(t *testing.T) {
	tp := NewTelemetryProvider(TelemetryConfig{})

	if tp.cfg.Namespace != "nlq" {
		t.Fatalf("expected default Namespace='nlq', got %q", tp.cfg.Namespace)
	}
	if tp.cfg.ServiceVersion != "0.0.0" {
		t.Fatalf("expected default ServiceVersion='0.0.0', got %q", tp.cfg.ServiceVersion)
	}
	if tp.cfg.Environment != "development" {
		t.Fatalf("expected default Environment='development', got %q", tp.cfg.Environment)
	}
	if !tp.cfg.metricsOn() {
		t.Fatal("expected MetricsEnabled=true by default")
	}

	m := findMetric(t, tp, "nlq_build_info", map[string]string{"version": "0.0.0", "environment": "development"})
	if m == nil || m.GetGauge().GetValue() != 1 {
		t.Fatal("expected build_info gauge set to 1")
	}
}

func TestTelemetryConfig_RuntimeCollectors(t *testing.T) {
	tp := NewTelemetryProvider(TelemetryConfig{RuntimeCollected: true})
	if findMetric(t, tp, "go_goroutines", nil) == nil {
		t.Fatal("expected go runtime metrics when RuntimeCollected is set")
	}
}

// ---------------------------------------------------------------------------
// Compiler metrics
// ---------------------------------------------------------------------------

func TestObserveCompile(t *testing.T) {
	tp := NewTelemetryProvider(TelemetryConfig{})

	tp.ObserveCompile("compiled", 200*time.Microsecond)
	tp.ObserveCompile("compiled", 300*time.Microsecond)
	tp.ObserveCompile("unsupported", 100*time.Microsecond)

	if got := counterValue(t, tp, "nlq_compile_total", map[string]string{"outcome": "compiled"}); got != 2 {
		t.Errorf("expected 2 compiled, got %v", got)
	}
	if got := counterValue(t, tp, "nlq_compile_total", map[string]string{"outcome": "unsupported"}); got != 1 {
		t.Errorf("expected 1 unsupported, got %v", got)
	}

	h := findMetric(t, tp, "nlq_compile_duration_seconds", map[string]string{"outcome": "compiled"})
	if h == nil {
		t.Fatal("expected compile duration histogram")
	}
	if h.GetHistogram().GetSampleCount() != 2 {
		t.Errorf("expected 2 samples, got %d", h.GetHistogram().GetSampleCount())
	}
	if sum := h.GetHistogram().GetSampleSum(); sum < 0.00049 || sum > 0.00051 {
		t.Errorf("expected sum ~0.0005, got %v", sum)
	}
}

func TestSetVocabularySize(t *testing.T) {
	tp := NewTelemetryProvider(TelemetryConfig{})
	tp.SetVocabularySize(12)
	tp.SetVocabularySize(14)

	m := findMetric(t, tp, "nlq_vocabulary_entries", nil)
	if m == nil || m.GetGauge().GetValue() != 14 {
		t.Fatalf("expected vocabulary_entries=14, got %v", m)
	}
}

func TestObserveReload(t *testing.T) {
	tp := NewTelemetryProvider(TelemetryConfig{})
	tp.ObserveReload("file", nil)
	tp.ObserveReload("file", errors.New("bad yaml"))
	tp.ObserveReload("file", nil)
	tp.ObserveReload("postgres", nil)

	tests := []struct {
		source, result string
		want           float64
	}{
		{"file", "success", 2},
		{"file", "failure", 1},
		{"postgres", "success", 1},
		{"postgres", "failure", 0},
	}
	for _, tt := range tests {
		got := counterValue(t, tp, "nlq_vocabulary_reloads_total", map[string]string{"source": tt.source, "result": tt.result})
		if got != tt.want {
			t.Errorf("reloads{%s,%s} = %v, want %v", tt.source, tt.result, got, tt.want)
		}
	}
}

func TestSetDBPool(t *testing.T) {
	tp := NewTelemetryProvider(TelemetryConfig{})
	tp.SetDBPool(3, 2)

	if m := findMetric(t, tp, "nlq_db_pool_connections", map[string]string{"state": "active"}); m == nil || m.GetGauge().GetValue() != 3 {
		t.Errorf("expected 3 active connections, got %v", m)
	}
	if m := findMetric(t, tp, "nlq_db_pool_connections", map[string]string{"state": "idle"}); m == nil || m.GetGauge().GetValue() != 2 {
		t.Errorf("expected 2 idle connections, got %v", m)
	}
}

func TestMetricsDisabled(t *testing.T) {
	tp := NewTelemetryProvider(TelemetryConfig{MetricsEnabled: BoolPtr(false)})
	tp.ObserveCompile("compiled", time.Millisecond)
	tp.ObserveReload("builtin", nil)

	if got := counterValue(t, tp, "nlq_compile_total", map[string]string{"outcome": "compiled"}); got != 0 {
		t.Errorf("expected no compile samples when disabled, got %v", got)
	}
	if got := counterValue(t, tp, "nlq_vocabulary_reloads_total", nil); got != 0 {
		t.Errorf("expected no reload samples when disabled, got %v", got)
	}
}

func TestObserveCompile_Concurrent(t *testing.T) {
	tp := NewTelemetryProvider(TelemetryConfig{})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tp.ObserveCompile("empty", time.Microsecond)
		}()
	}
	wg.Wait()

	if got := counterValue(t, tp, "nlq_compile_total", map[string]string{"outcome": "empty"}); got != 50 {
		t.Errorf("expected 50, got %v", got)
	}
}

// ---------------------------------------------------------------------------
// MetricsMiddleware
// ---------------------------------------------------------------------------

func TestMetricsMiddleware_RecordsRequests(t *testing.T) {
	tp := NewTelemetryProvider(TelemetryConfig{})
	e := echo.New()
	e.Use(tp.MetricsMiddleware())
	e.POST("/nlp", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]bool{"success": true})
	})
	e.GET("/api/v1/vocabulary/lookup", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "unknown condition")
	})

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/nlp", strings.NewReader(`{}`)))
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/vocabulary/lookup?q=gout", nil))

	tests := []struct {
		method, route, status string
		want                  float64
	}{
		{"POST", "/nlp", "200", 3},
		{"GET", "/api/v1/vocabulary/lookup", "404", 1},
	}
	for _, tt := range tests {
		got := counterValue(t, tp, "nlq_http_requests_total", map[string]string{"method": tt.method, "route": tt.route, "status": tt.status})
		if got != tt.want {
			t.Errorf("requests{%s %s %s} = %v, want %v", tt.method, tt.route, tt.status, got, tt.want)
		}
	}

	h := findMetric(t, tp, "nlq_http_request_duration_seconds", map[string]string{"route": "/nlp"})
	if h == nil || h.GetHistogram().GetSampleCount() != 3 {
		t.Errorf("expected 3 duration samples for /nlp, got %v", h)
	}
	if m := findMetric(t, tp, "nlq_http_active_requests", nil); m == nil || m.GetGauge().GetValue() != 0 {
		t.Errorf("expected no in-flight requests, got %v", m)
	}
}

func TestMetricsMiddleware_UnmatchedRoute(t *testing.T) {
	tp := NewTelemetryProvider(TelemetryConfig{})
	e := echo.New()
	handler := tp.MetricsMiddleware()(func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/patients/123", nil), rec)
	if err := handler(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := counterValue(t, tp, "nlq_http_requests_total", map[string]string{"route": "unmatched", "status": "204"}); got != 1 {
		t.Errorf("expected raw paths to collapse into 'unmatched', got %v", got)
	}
}

func TestMetricsMiddleware_PlainErrorCountsAs500(t *testing.T) {
	tp := NewTelemetryProvider(TelemetryConfig{})
	e := echo.New()
	handler := tp.MetricsMiddleware()(func(c echo.Context) error {
		return errors.New("boom")
	})

	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/nlp", nil), httptest.NewRecorder())
	c.SetPath("/nlp")
	if err := handler(c); err == nil {
		t.Fatal("expected the handler error to propagate")
	}

	if got := counterValue(t, tp, "nlq_http_requests_total", map[string]string{"route": "/nlp", "status": "500"}); got != 1 {
		t.Errorf("expected one 500 sample, got %v", got)
	}
}

// ---------------------------------------------------------------------------
// PrometheusHandler
// ---------------------------------------------------------------------------

func TestPrometheusHandler_Exposition(t *testing.T) {
	tp := NewTelemetryProvider(TelemetryConfig{})
	tp.ObserveCompile("compiled", time.Millisecond)
	tp.SetVocabularySize(9)

	e := echo.New()
	e.GET("/metrics", tp.PrometheusHandler())
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`nlq_compile_total{outcome="compiled"} 1`,
		"nlq_vocabulary_entries 9",
		"# TYPE nlq_compile_duration_seconds histogram",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected exposition to contain %q", want)
		}
	}
}
