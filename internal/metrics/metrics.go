package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the edge pipeline
// Using promauto automatically registers metrics with the default registry

var (
	// ==================== HTTP METRICS ====================

	// HTTPRequestDuration tracks the duration of HTTP requests
	// Histogram allows us to calculate percentiles (P50, P95, P99)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint", "status"},
	)

	// HTTPRequestsTotal counts total HTTP requests
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// HTTPRequestsInFlight tracks currently processing requests
	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// ==================== CACHE METRICS ====================

	// CacheHitsTotal counts positive cache hits
	CacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits",
		},
	)

	// CacheMissesTotal counts cache misses (source-of-truth fallthrough)
	CacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses",
		},
	)

	// CacheTombstonesTotal counts tombstone hits: lookups absorbed by a
	// cached negative entry instead of penetrating to the source of truth
	CacheTombstonesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cache_tombstone_hits_total",
			Help: "Total number of lookups answered by a negative cache entry",
		},
	)

	// CacheOperationDuration tracks cache operation latency
	CacheOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cache_operation_duration_seconds",
			Help:    "Duration of cache operations in seconds",
			Buckets: []float64{.0001, .0005, .001, .0025, .005, .01, .025, .05},
		},
		[]string{"operation"}, // get, set, tombstone, invalidate
	)

	// ==================== RATE LIMITING METRICS ====================

	// RateLimitedRequestsTotal counts rate-limited requests
	RateLimitedRequestsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rate_limited_requests_total",
			Help: "Total number of rate-limited requests",
		},
	)

	// RateLimitAllowedRequestsTotal counts allowed requests
	RateLimitAllowedRequestsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rate_limit_allowed_requests_total",
			Help: "Total number of requests allowed by rate limiter",
		},
	)

	// RateLimitFailOpenTotal counts limiter errors where the request was
	// allowed anyway (availability of the hot path outranks enforcement)
	RateLimitFailOpenTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rate_limit_fail_open_total",
			Help: "Total number of requests allowed because the limiter store was unavailable",
		},
	)

	// ==================== DECISION METRICS ====================

	// DecisionsTotal counts redirect-engine outcomes by kind
	DecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redirect_decisions_total",
			Help: "Total number of redirect decisions by kind",
		},
		[]string{"kind"}, // redirect, password, cloak, deeplink, placeholder, block, not_found, gone, error
	)

	// BlockedDestinationsTotal counts reputation-filter blocks
	BlockedDestinationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "blocked_destinations_total",
			Help: "Total number of requests blocked by the reputation filter",
		},
	)

	// ==================== CLICK PIPELINE METRICS ====================

	// ClicksRecordedTotal counts click events committed to the sink
	ClicksRecordedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clicks_recorded_total",
			Help: "Total number of click events recorded",
		},
	)

	// ClicksDroppedTotal counts events dropped on queue overflow or sink failure
	ClicksDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clicks_dropped_total",
			Help: "Total number of click events dropped",
		},
	)

	// ClickQueueDepth tracks the current backlog of the click recorder
	ClickQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "click_queue_depth",
			Help: "Number of click events waiting to be written",
		},
	)

	// ==================== DATABASE METRICS ====================

	// DatabaseQueryDuration tracks source-of-truth query latency
	DatabaseQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "database_query_duration_seconds",
			Help:    "Duration of database queries in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"}, // find_link, find_domain, insert_click
	)

	// DatabaseErrorsTotal counts database errors
	DatabaseErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "database_errors_total",
			Help: "Total number of database errors",
		},
		[]string{"operation"},
	)
)

// RecordCacheHit increments cache hit counter
func RecordCacheHit() {
	CacheHitsTotal.Inc()
}

// RecordCacheMiss increments cache miss counter
func RecordCacheMiss() {
	CacheMissesTotal.Inc()
}

// RecordCacheTombstone increments tombstone hit counter
func RecordCacheTombstone() {
	CacheTombstonesTotal.Inc()
}

// RecordDecision increments the outcome counter for a decision kind
func RecordDecision(kind string) {
	DecisionsTotal.WithLabelValues(kind).Inc()
}

// RecordClickRecorded increments click recording counter
func RecordClickRecorded() {
	ClicksRecordedTotal.Inc()
}

// RecordClickDropped increments click drop counter
func RecordClickDropped() {
	ClicksDroppedTotal.Inc()
}

// RecordRateLimited increments rate-limited requests counter
func RecordRateLimited() {
	RateLimitedRequestsTotal.Inc()
}

// RecordRateLimitAllowed increments allowed requests counter
func RecordRateLimitAllowed() {
	RateLimitAllowedRequestsTotal.Inc()
}
