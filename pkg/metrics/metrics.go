// Package metrics provides Prometheus metrics for the oracle engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PriceUpdatesTotal is a counter of the total number of price updates.
	PriceUpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_updates_total",
			Help: "Total number of price updates received from sources",
		},
		[]string{"source", "symbol"},
	)

	// PriceAggregationDuration is a histogram of price aggregation duration.
	PriceAggregationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "price_aggregation_duration_seconds",
			Help:    "Duration of price aggregation operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"strategy"},
	)

	// AggregationConfidence is a gauge of the confidence score per symbol.
	AggregationConfidence = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aggregation_confidence",
			Help: "Confidence score of the latest aggregation for a symbol (0-1)",
		},
		[]string{"symbol"},
	)

	// OutlierRejectionsTotal is a counter of rejected outlier prices.
	OutlierRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outlier_rejections_total",
			Help: "Total number of outlier prices rejected",
		},
		[]string{"symbol", "method"},
	)

	// SourceRequestsTotal is a counter of price source requests.
	SourceRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "source_requests_total",
			Help: "Total number of requests to price sources",
		},
		[]string{"source", "status"},
	)

	// SourceHealth is a gauge of the health status of price sources.
	SourceHealth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "source_health",
			Help: "Health status of price sources (1=healthy, 0=unhealthy)",
		},
		[]string{"source", "type"},
	)

	// CircuitBreakerState is a gauge of per-source circuit breaker state.
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state per source (0=closed, 1=open, 2=half_open)",
		},
		[]string{"source"},
	)

	// CircuitBreakerTransitionsTotal is a counter of circuit state transitions.
	CircuitBreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"source", "state"},
	)

	// CacheHitsTotal is a counter of cache hits.
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"namespace"},
	)

	// CacheMissesTotal is a counter of cache misses.
	CacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"namespace"},
	)

	// CacheEvictionsTotal is a counter of cache evictions.
	CacheEvictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_evictions_total",
			Help: "Total number of cache evictions",
		},
		[]string{"namespace", "reason"},
	)

	// FallbackServesTotal is a counter of stale prices served on failure.
	FallbackServesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fallback_serves_total",
			Help: "Total number of stale cached prices served after aggregation failure",
		},
		[]string{"symbol"},
	)

	// HTTPRequestsTotal is a counter of total HTTP requests.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"endpoint", "status"},
	)

	// HTTPRequestDuration is a histogram of HTTP request latencies.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"endpoint"},
	)

	// WebsocketClients is a gauge of connected websocket clients.
	WebsocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_clients",
			Help: "Number of connected websocket clients",
		},
	)
)

// Init initializes Prometheus metrics registry.
func Init() {
	// Register all metrics
	prometheus.MustRegister(
		PriceUpdatesTotal,
		PriceAggregationDuration,
		AggregationConfidence,
		OutlierRejectionsTotal,
		SourceRequestsTotal,
		SourceHealth,
		CircuitBreakerState,
		CircuitBreakerTransitionsTotal,
		CacheHitsTotal,
		CacheMissesTotal,
		CacheEvictionsTotal,
		FallbackServesTotal,
		HTTPRequestsTotal,
		HTTPRequestDuration,
		WebsocketClients,
	)
}

// ServeHTTP serves Prometheus metrics on the specified address.
func ServeHTTP(addr string) error {
	http.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:         addr,
		Handler:      http.DefaultServeMux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return server.ListenAndServe()
}

// RecordSourceUpdate records a price update from a source.
func RecordSourceUpdate(source, symbol string) {
	PriceUpdatesTotal.WithLabelValues(source, symbol).Inc()
}

// RecordSourceRequest records the outcome of a source request.
func RecordSourceRequest(source, status string) {
	SourceRequestsTotal.WithLabelValues(source, status).Inc()
}

// RecordSourceHealth records the health status of a source.
func RecordSourceHealth(source, sourceType string, healthy bool) {
	val := 0.0
	if healthy {
		val = 1.0
	}
	SourceHealth.WithLabelValues(source, sourceType).Set(val)
}

// RecordAggregation records a price aggregation operation.
func RecordAggregation(strategy string, duration time.Duration) {
	PriceAggregationDuration.WithLabelValues(strategy).Observe(duration.Seconds())
}

// RecordConfidence records the confidence score of an aggregation.
func RecordConfidence(symbol string, confidence float64) {
	AggregationConfidence.WithLabelValues(symbol).Set(confidence)
}

// RecordOutlierRejection records an outlier rejection.
func RecordOutlierRejection(symbol, method string) {
	OutlierRejectionsTotal.WithLabelValues(symbol, method).Inc()
}

// RecordCircuitState records a circuit breaker state change.
func RecordCircuitState(source, state string, value float64) {
	CircuitBreakerState.WithLabelValues(source).Set(value)
	CircuitBreakerTransitionsTotal.WithLabelValues(source, state).Inc()
}

// RecordCacheHit records a cache hit.
func RecordCacheHit(namespace string) {
	CacheHitsTotal.WithLabelValues(namespace).Inc()
}

// RecordCacheMiss records a cache miss.
func RecordCacheMiss(namespace string) {
	CacheMissesTotal.WithLabelValues(namespace).Inc()
}

// RecordCacheEviction records a cache eviction.
func RecordCacheEviction(namespace, reason string) {
	CacheEvictionsTotal.WithLabelValues(namespace, reason).Inc()
}

// RecordFallbackServe records a stale price served after aggregation failure.
func RecordFallbackServe(symbol string) {
	FallbackServesTotal.WithLabelValues(symbol).Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}
