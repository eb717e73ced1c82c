// Package metrics provides Prometheus metrics for the HTTP host and the
// decision support pipeline:
//   - http_request_total / http_request_duration_seconds / http_request_in_flight
//   - cds_catalog_loads_total and cds_catalog_degraded for catalog provenance
//   - cds_generation_requests_total and cds_generation_duration_seconds
//   - cds_suggestion_parse_total and cds_enrichment_failures_total
//
// All metrics are registered with the Prometheus default registry during
// package initialization.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestTotals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_request_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)

	HTTPRequestInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_request_in_flight",
			Help: "Current in-flight requests",
		},
	)

	RateLimiterBucketsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rate_limiter_buckets_total",
			Help: "Total number of rate limiter buckets (IPs seen in last ~5 minutes)",
		},
	)

	CatalogLoads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cds_catalog_loads_total",
			Help: "Catalog load attempts by source and outcome",
		},
		[]string{"source", "kind", "outcome"},
	)

	CatalogDegraded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cds_catalog_degraded",
			Help: "1 when the catalog serves the bundled fallback dataset",
		},
	)

	GenerationRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cds_generation_requests_total",
			Help: "Text generation calls by outcome",
		},
		[]string{"outcome"},
	)

	GenerationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cds_generation_duration_seconds",
			Help:    "Text generation call latency",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 60},
		},
	)

	SuggestionParses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cds_suggestion_parse_total",
			Help: "Completion parse results (parsed or sentinel)",
		},
		[]string{"result"},
	)

	EnrichmentFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cds_enrichment_failures_total",
			Help: "Suggestions whose enrichment failed and were marked with unknown interaction status",
		},
	)
)

func init() {
	prometheus.MustRegister(HTTPRequestTotals)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(HTTPRequestInFlight)
	prometheus.MustRegister(RateLimiterBucketsTotal)
	prometheus.MustRegister(CatalogLoads)
	prometheus.MustRegister(CatalogDegraded)
	prometheus.MustRegister(GenerationRequests)
	prometheus.MustRegister(GenerationDuration)
	prometheus.MustRegister(SuggestionParses)
	prometheus.MustRegister(EnrichmentFailures)
}

// RecordCatalogLoad tracks one catalog load or refresh.
func RecordCatalogLoad(source string, refresh, degraded bool, err error) {
	kind := "init"
	if refresh {
		kind = "refresh"
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	CatalogLoads.WithLabelValues(source, kind, outcome).Inc()

	if err == nil {
		if degraded {
			CatalogDegraded.Set(1)
		} else {
			CatalogDegraded.Set(0)
		}
	}
}

// RecordGeneration tracks one text generation call. outcome is "success" or
// an error kind.
func RecordGeneration(outcome string, d time.Duration) {
	GenerationRequests.WithLabelValues(outcome).Inc()
	GenerationDuration.Observe(d.Seconds())
}
