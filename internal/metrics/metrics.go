// Package metrics provides Prometheus metrics for the revstore engine
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the revstore engine
type Metrics struct {
	// Version lifecycle metrics
	VersionsCreatedTotal *prometheus.CounterVec
	DiffCompressionRatio prometheus.Histogram

	// Reconstruction metrics
	ReconstructionsTotal *prometheus.CounterVec
	ReconstructionDepth  prometheus.Histogram

	// Cache metrics
	CacheRequestsTotal *prometheus.CounterVec

	// Retention metrics
	RetentionRunsTotal       prometheus.Counter
	RetentionDeletedTotal    prometheus.Counter
	RetentionPromotionsTotal prometheus.Counter

	// Storage metrics
	StoreOperationsTotal   *prometheus.CounterVec
	StoreOperationDuration *prometheus.HistogramVec
	StoreSizeBytes         prometheus.Gauge

	// HTTP request metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Server metrics
	ServerUptimeSeconds prometheus.Gauge
	ServerStartTime     time.Time
}

// NewMetrics creates all metrics on the default Prometheus registry and
// starts the uptime updater.
func NewMetrics() *Metrics {
	m := NewMetricsWithRegistry(prometheus.DefaultRegisterer)
	go m.updateUptime()
	return m
}

// NewMetricsWithRegistry creates and registers all metrics on reg.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		ServerStartTime: time.Now(),
	}

	// Version lifecycle metrics
	m.VersionsCreatedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "revstore_versions_created_total",
			Help: "Total number of versions created",
		},
		[]string{"kind"},
	)

	m.DiffCompressionRatio = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "revstore_diff_compression_ratio",
			Help:    "Stored diff size relative to full content size",
			Buckets: prometheus.LinearBuckets(0.1, 0.1, 12),
		},
	)

	// Reconstruction metrics
	m.ReconstructionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "revstore_reconstructions_total",
			Help: "Total number of content reconstructions",
		},
		[]string{"status"},
	)

	m.ReconstructionDepth = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "revstore_reconstruction_depth",
			Help:    "Number of diffs replayed per reconstruction",
			Buckets: prometheus.LinearBuckets(0, 1, 10),
		},
	)

	// Cache metrics
	m.CacheRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "revstore_cache_requests_total",
			Help: "Total number of cache lookups",
		},
		[]string{"cache", "result"},
	)

	// Retention metrics
	m.RetentionRunsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "revstore_retention_runs_total",
			Help: "Total number of retention cleanup passes",
		},
	)

	m.RetentionDeletedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "revstore_retention_deleted_total",
			Help: "Total number of versions deleted by retention",
		},
	)

	m.RetentionPromotionsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "revstore_retention_promotions_total",
			Help: "Total number of versions promoted to snapshots by retention",
		},
	)

	// Storage metrics
	m.StoreOperationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "revstore_store_operations_total",
			Help: "Total number of storage adapter operations",
		},
		[]string{"operation", "status"},
	)

	m.StoreOperationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "revstore_store_operation_duration_seconds",
			Help:    "Duration of storage adapter operations in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"operation"},
	)

	m.StoreSizeBytes = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "revstore_store_size_bytes",
			Help: "Current database size in bytes",
		},
	)

	// HTTP request metrics
	m.HTTPRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "revstore_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"path", "status"},
	)

	m.HTTPRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "revstore_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)

	m.HTTPRequestsInFlight = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "revstore_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Server metrics
	m.ServerUptimeSeconds = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "revstore_server_uptime_seconds",
			Help: "Server uptime in seconds",
		},
	)

	return m
}

// updateUptime periodically updates the server uptime metric
func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.ServerUptimeSeconds.Set(time.Since(m.ServerStartTime).Seconds())
	}
}

// VersionCreated records a committed version by kind
func (m *Metrics) VersionCreated(kind string) {
	m.VersionsCreatedTotal.WithLabelValues(kind).Inc()
}

// ReconstructionDone records a finished reconstruction and its replay depth
func (m *Metrics) ReconstructionDone(depth int, failed bool) {
	if failed {
		m.ReconstructionsTotal.WithLabelValues("error").Inc()
		return
	}
	m.ReconstructionsTotal.WithLabelValues("success").Inc()
	m.ReconstructionDepth.Observe(float64(depth))
}

// DiffComputed records the compression ratio of a stored diff
func (m *Metrics) DiffComputed(ratio float64) {
	m.DiffCompressionRatio.Observe(ratio)
}

// CacheRequest records a cache lookup result
func (m *Metrics) CacheRequest(name string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheRequestsTotal.WithLabelValues(name, result).Inc()
}

// RetentionRun records a finished retention cleanup pass
func (m *Metrics) RetentionRun(deleted, promoted int) {
	m.RetentionRunsTotal.Inc()
	m.RetentionDeletedTotal.Add(float64(deleted))
	m.RetentionPromotionsTotal.Add(float64(promoted))
}

// RecordStoreOperation records a storage adapter operation
func (m *Metrics) RecordStoreOperation(operation string, status string, duration time.Duration) {
	m.StoreOperationsTotal.WithLabelValues(operation, status).Inc()
	m.StoreOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordHTTPRequest records an HTTP request with its status code
func (m *Metrics) RecordHTTPRequest(path string, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(path).Observe(duration.Seconds())
}

// UpdateStoreSize updates the database size gauge
func (m *Metrics) UpdateStoreSize(sizeBytes int64) {
	m.StoreSizeBytes.Set(float64(sizeBytes))
}
