package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func value(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var out dto.Metric
	if err := m.Write(&out); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	switch {
	case out.Counter != nil:
		return out.GetCounter().GetValue()
	case out.Gauge != nil:
		return out.GetGauge().GetValue()
	}
	t.Fatal("unsupported metric type")
	return 0
}

func TestRecordCatalogLoad(t *testing.T) {
	before := value(t, CatalogLoads.WithLabelValues("fallback", "init", "success"))

	RecordCatalogLoad("fallback", false, true, nil)
	if got := value(t, CatalogDegraded); got != 1 {
		t.Errorf("expected degraded gauge 1, got %v", got)
	}
	if got := value(t, CatalogLoads.WithLabelValues("fallback", "init", "success")); got != before+1 {
		t.Errorf("expected counter to increase by 1, got %v", got-before)
	}

	// A failed refresh leaves the degraded gauge unchanged.
	RecordCatalogLoad("store", true, true, errors.New("down"))
	if got := value(t, CatalogDegraded); got != 1 {
		t.Errorf("failed refresh should not reset the gauge, got %v", got)
	}

	RecordCatalogLoad("store", true, false, nil)
	if got := value(t, CatalogDegraded); got != 0 {
		t.Errorf("expected degraded gauge 0 after recovery, got %v", got)
	}
}

func TestRecordGeneration(t *testing.T) {
	before := value(t, GenerationRequests.WithLabelValues("timeout"))
	RecordGeneration("timeout", 2*time.Second)
	if got := value(t, GenerationRequests.WithLabelValues("timeout")); got != before+1 {
		t.Errorf("expected timeout counter to increase by 1, got %v", got-before)
	}
}

func TestMetricsMiddlewareUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Metrics)
	r.Get("/v1/medications/{name}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := value(t, HTTPRequestTotals.WithLabelValues("GET", "/v1/medications/{name}", "418"))

	req := httptest.NewRequest(http.MethodGet, "/v1/medications/aspirin", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	got := value(t, HTTPRequestTotals.WithLabelValues("GET", "/v1/medications/{name}", "418"))
	if got != before+1 {
		t.Errorf("expected one request recorded under the route pattern, got %v", got-before)
	}
	if v := value(t, HTTPRequestInFlight); v != 0 {
		t.Errorf("in-flight gauge should be back to 0, got %v", v)
	}
}
