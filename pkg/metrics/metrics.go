// Package metrics defines the Prometheus metric collectors for the build and
// serve phases and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the search engine.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	DocsIndexedTotal     prometheus.Counter
	DocsSkippedTotal     *prometheus.CounterVec
	PartialIndexesTotal  prometheus.Counter
	MergeRoundsTotal     prometheus.Counter
	BuildDurationSeconds prometheus.Gauge
	IndexedTermsTotal    prometheus.Gauge
	BuildCompletedAtUnix prometheus.Gauge

	SearchQueriesTotal *prometheus.CounterVec
	SearchLatency      *prometheus.HistogramVec
	SearchResultsCount prometheus.Histogram
	CacheHitsTotal     prometheus.Counter
	CacheMissesTotal   prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	m := NewUnregistered()
	prometheus.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.DocsIndexedTotal,
		m.DocsSkippedTotal,
		m.PartialIndexesTotal,
		m.MergeRoundsTotal,
		m.BuildDurationSeconds,
		m.IndexedTermsTotal,
		m.BuildCompletedAtUnix,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
	)
	return m
}

// NewUnregistered creates the collectors without registering them with the
// default registry. Tests constructing several Metrics in one process use
// this to avoid duplicate-registration panics.
func NewUnregistered() *Metrics {
	return &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		DocsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docs_indexed_total",
				Help: "Total documents indexed during the build phase.",
			},
		),
		DocsSkippedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docs_skipped_total",
				Help: "Documents skipped during indexing by reason (duplicate, malformed).",
			},
			[]string{"reason"},
		),
		PartialIndexesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "partial_indexes_total",
				Help: "Partial index files offloaded to disk.",
			},
		),
		MergeRoundsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "merge_rounds_total",
				Help: "Pairwise merge rounds performed.",
			},
		),
		BuildDurationSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "build_duration_seconds",
				Help: "Wall-clock duration of the last completed build.",
			},
		),
		IndexedTermsTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "indexed_terms_total",
				Help: "Unique terms in the final index after the last build.",
			},
		),
		BuildCompletedAtUnix: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "build_completed_at_unix",
				Help: "Unix timestamp of the last successful build.",
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total search queries by result type (hit, zero_result, error).",
			},
			[]string{"result_type"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Search query latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"cache_status"},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_results_count",
				Help:    "Number of results returned per search query.",
				Buckets: []float64{0, 1, 2, 5, 10},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of query-cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of query-cache misses.",
			},
		),
	}
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
