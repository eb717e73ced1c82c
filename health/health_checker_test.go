package health

import (
	"net/http"
	"testing"
	"time"

	"github.com/thiskanishk/healthassist-cds/interfaces"
)

type mockStatus struct {
	status interfaces.CatalogStatus
}

func (m *mockStatus) Status() interfaces.CatalogStatus { return m.status }

func TestHealthCheck(t *testing.T) {
	now := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	fresh := interfaces.CatalogStatus{Initialized: true, Source: "store", MedicationCount: 11, GuidelineCount: 3, LastUpdated: now.Add(-time.Hour)}

	withChange := func(change func(*interfaces.CatalogStatus)) interfaces.CatalogStatus {
		s := fresh
		change(&s)
		return s
	}

	tests := []struct {
		name       string
		status     interfaces.CatalogStatus
		generation string
		wantStatus string
		wantHTTP   int
	}{
		{"healthy", fresh, "closed", StatusHealthy, http.StatusOK},
		{"not loaded", interfaces.CatalogStatus{}, "closed", StatusUnhealthy, http.StatusServiceUnavailable},
		{"empty", withChange(func(s *interfaces.CatalogStatus) { s.MedicationCount = 0 }), "closed", StatusUnhealthy, http.StatusServiceUnavailable},
		{"very stale", withChange(func(s *interfaces.CatalogStatus) { s.LastUpdated = now.Add(-49 * time.Hour) }), "closed", StatusUnhealthy, http.StatusServiceUnavailable},
		{"stale", withChange(func(s *interfaces.CatalogStatus) { s.LastUpdated = now.Add(-25 * time.Hour) }), "closed", StatusDegraded, http.StatusOK},
		{"fallback", withChange(func(s *interfaces.CatalogStatus) { s.Degraded = true; s.Source = "fallback" }), "closed", StatusDegraded, http.StatusOK},
		{"circuit open", fresh, "open", StatusDegraded, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthChecker(&mockStatus{status: tt.status}, WithGenerationState(func() string { return tt.generation }))
			h.now = func() time.Time { return now }

			status, data, code := h.HealthCheck()
			if status != tt.wantStatus || code != tt.wantHTTP {
				t.Errorf("got %s/%d, want %s/%d (data %v)", status, code, tt.wantStatus, tt.wantHTTP, data)
			}
			if data["generation_state"] != tt.generation {
				t.Errorf("expected generation state %q, got %v", tt.generation, data["generation_state"])
			}
			if tt.wantStatus != StatusHealthy && data["reasons"] == nil {
				t.Error("non-healthy status should carry reasons")
			}
		})
	}
}

func TestHealthCheckFallbackFields(t *testing.T) {
	h := NewHealthChecker(&mockStatus{status: interfaces.CatalogStatus{
		Initialized: true, Source: "fallback", Degraded: true, MedicationCount: 11, GuidelineCount: 3, LastUpdated: time.Now(),
	}})

	_, data, _ := h.HealthCheck()
	if data["fallback_mode"] != true || data["catalog_source"] != "fallback" {
		t.Errorf("unexpected data %v", data)
	}
	if data["generation_state"] != "unknown" {
		t.Errorf("generation state should be unknown without a breaker, got %v", data["generation_state"])
	}
	if _, ok := data["next_update"]; ok {
		t.Error("next_update should be absent without a schedule")
	}
}

func TestCalculateNextUpdate(t *testing.T) {
	now := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	want := time.Date(2026, 5, 4, 18, 0, 0, 0, time.UTC)

	h := NewHealthChecker(&mockStatus{}, WithNextRefresh(func(time.Time) time.Time { return want }))
	h.now = func() time.Time { return now }

	if got := h.CalculateNextUpdate(); !got.Equal(want) {
		t.Errorf("got %s, want %s", got, want)
	}
	if got := NewHealthChecker(&mockStatus{}).CalculateNextUpdate(); !got.IsZero() {
		t.Errorf("expected zero time without a schedule, got %s", got)
	}
}
