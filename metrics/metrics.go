package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plotvault_http_requests_total",
			Help: "Total number of HTTP requests handled",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "plotvault_http_request_duration_seconds",
			Help:    "Time taken to serve HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
	)

	DatasetOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plotvault_dataset_operations_total",
			Help: "Total number of dataset store operations",
		},
		[]string{"operation", "result"},
	)

	RateLimitedRequests = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "plotvault_rate_limited_requests_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
	)

	APIPanicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plotvault_api_panics_recovered_total",
			Help: "Total number of panics recovered in HTTP handlers",
		},
		[]string{"method", "path"},
	)

	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plotvault_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plotvault_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache"},
	)

	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plotvault_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"cache", "operation"},
	)

	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "plotvault_websocket_clients",
			Help: "Number of connected WebSocket clients",
		},
	)

	SQLitePoolOpenConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "plotvault_sqlite_pool_open_connections",
			Help: "Open connections per SQLite pool",
		},
		[]string{"pool"},
	)

	SQLitePoolInUse = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "plotvault_sqlite_pool_in_use",
			Help: "Connections currently in use per SQLite pool",
		},
		[]string{"pool"},
	)

	SQLitePoolIdle = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "plotvault_sqlite_pool_idle",
			Help: "Idle connections per SQLite pool",
		},
		[]string{"pool"},
	)
)
