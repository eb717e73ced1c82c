// Package health reports whether the service can give useful answers.
package health

import (
	"math"
	"net/http"
	"time"

	"github.com/thiskanishk/healthassist-cds/interfaces"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Option configures a HealthCheckerImpl.
type Option func(*HealthCheckerImpl)

// WithGenerationState reports the circuit breaker state of the completion
// client ("closed", "half-open" or "open").
func WithGenerationState(state func() string) Option {
	return func(h *HealthCheckerImpl) { h.generationState = state }
}

// WithNextRefresh supplies the refresh schedule.
func WithNextRefresh(next func(now time.Time) time.Time) Option {
	return func(h *HealthCheckerImpl) { h.nextRefresh = next }
}

// HealthCheckerImpl implements the interfaces.HealthChecker interface
type HealthCheckerImpl struct {
	catalog         interfaces.CatalogStatusProvider
	generationState func() string
	nextRefresh     func(now time.Time) time.Time
	now             func() time.Time
}

var _ interfaces.HealthChecker = (*HealthCheckerImpl)(nil)

// NewHealthChecker creates a health checker over the catalog status
func NewHealthChecker(catalog interfaces.CatalogStatusProvider, opts ...Option) *HealthCheckerImpl {
	h := &HealthCheckerImpl{catalog: catalog, now: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HealthCheck returns the status, its details and the HTTP code for /health.
//
// The service is unhealthy without medications or with data older than 48
// hours. It is degraded, but still answers 200, when serving the fallback
// dataset, when data is older than 24 hours or when completions are blocked
// by an open circuit.
func (h *HealthCheckerImpl) HealthCheck() (status string, data map[string]any, httpStatus int) {
	st := h.catalog.Status()
	now := h.now()

	dataAge := time.Duration(0)
	if !st.LastUpdated.IsZero() {
		dataAge = now.Sub(st.LastUpdated)
	}

	generation := "unknown"
	if h.generationState != nil {
		generation = h.generationState()
	}

	var reasons []string
	switch {
	case !st.Initialized || st.MedicationCount == 0:
		status, httpStatus = StatusUnhealthy, http.StatusServiceUnavailable
		reasons = append(reasons, "catalog not loaded")
	case dataAge > 48*time.Hour:
		status, httpStatus = StatusUnhealthy, http.StatusServiceUnavailable
		reasons = append(reasons, "catalog older than 48 hours")
	default:
		status, httpStatus = StatusHealthy, http.StatusOK
		if st.Degraded {
			reasons = append(reasons, "serving fallback catalog")
		}
		if dataAge > 24*time.Hour {
			reasons = append(reasons, "catalog older than 24 hours")
		}
		if generation == "open" {
			reasons = append(reasons, "generation circuit open")
		}
		if len(reasons) > 0 {
			status = StatusDegraded
		}
	}

	data = map[string]any{
		"catalog_source":   st.Source,
		"fallback_mode":    st.Degraded,
		"medications":      st.MedicationCount,
		"guidelines":       st.GuidelineCount,
		"is_refreshing":    st.Refreshing,
		"data_age_hours":   math.Round(dataAge.Hours()*10) / 10,
		"generation_state": generation,
	}
	if !st.LastUpdated.IsZero() {
		data["last_update"] = st.LastUpdated.Format(time.RFC3339)
	}
	if len(reasons) > 0 {
		data["reasons"] = reasons
	}
	if next := h.CalculateNextUpdate(); !next.IsZero() {
		data["next_update"] = next.Format(time.RFC3339)
	}

	return status, data, httpStatus
}

// CalculateNextUpdate returns the next scheduled catalog refresh, or the zero
// time when refreshes are not scheduled.
func (h *HealthCheckerImpl) CalculateNextUpdate() time.Time {
	if h.nextRefresh == nil {
		return time.Time{}
	}
	return h.nextRefresh(h.now())
}
