// Package metrics provides Prometheus metrics for the tiergate access and
// assessment service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Access decisions - the business core
	accessDecisions   *prometheus.CounterVec
	resolutionLatency prometheus.Histogram

	// Decision cache
	cacheHits          prometheus.Counter
	cacheMisses        prometheus.Counter
	cacheExpired       prometheus.Counter
	cacheSweeps        prometheus.Counter
	cacheInvalidations prometheus.Counter
	cacheSize          prometheus.Gauge

	// Assessment calculations
	calculations       *prometheus.CounterVec
	calculationErrors  prometheus.Counter
	calculationLatency prometheus.Histogram
	blockedFields      prometheus.Counter
	upgradePrompts     *prometheus.CounterVec

	// Project registry
	projectCount prometheus.Gauge

	// Invalidation pipeline
	invalidationsApplied   prometheus.Counter
	invalidationsDuplicate prometheus.Counter
	queueCapacity          prometheus.Gauge
	queueSize              prometheus.Gauge
	queueEnqueues          prometheus.Counter
	queueDequeues          prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	workerCount            prometheus.Gauge
	workerLatency          prometheus.Histogram

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Error tracking
	errorsByComponent *prometheus.CounterVec
	errorsByType      *prometheus.CounterVec
	errorsByEndpoint  *prometheus.CounterVec
	errorLatency      *prometheus.HistogramVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "tiergate",
		subsystem:        "access",
		histogramBuckets: prometheus.DefBuckets,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() { //nolint:funlen // registration list is long by nature
	auto := promauto.With(m.registry)

	m.accessDecisions = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "decisions_total",
			Help:      "Access decisions by scope (field/project) and outcome (allowed/denied)",
		},
		[]string{"scope", "outcome"},
	)

	m.resolutionLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "resolution_latency_milliseconds",
		Help:      "Latency of access resolution including cache lookups",
		Buckets:   m.histogramBuckets,
	})

	m.cacheHits = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "cache_hits_total",
		Help:      "Decision cache hits",
	})

	m.cacheMisses = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "cache_misses_total",
		Help:      "Decision cache misses, stale entries included",
	})

	m.cacheExpired = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "cache_expired_total",
		Help:      "Entries dropped because they exceeded the TTL",
	})

	m.cacheSweeps = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "cache_sweeps_total",
		Help:      "Size-triggered sweeps of expired entries",
	})

	m.cacheInvalidations = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "cache_invalidations_total",
		Help:      "Explicit invalidation calls (subject, field, or full clear)",
	})

	m.cacheSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "cache_size",
		Help:      "Current number of cached decisions",
	})

	m.calculations = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "calculations_total",
			Help:      "Completed assessment calculations by strategy",
		},
		[]string{"strategy"},
	)

	m.calculationErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "calculation_errors_total",
		Help:      "Calculations rejected for an unknown strategy or bad input",
	})

	m.calculationLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "calculation_latency_milliseconds",
		Help:      "Latency of the filter plus calculate pipeline",
		Buckets:   m.histogramBuckets,
	})

	m.blockedFields = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "blocked_fields_total",
		Help:      "Responses dropped because the subject's tier locks the field",
	})

	m.upgradePrompts = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "upgrade_prompts_total",
			Help:      "Upgrade prompts built, by adjacency classification",
		},
		[]string{"kind"},
	)

	m.projectCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "projects_registered",
		Help:      "Number of project definitions in the registry",
	})

	m.invalidationsApplied = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "invalidations_applied_total",
		Help:      "Invalidation events applied to the decision cache",
	})

	m.invalidationsDuplicate = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "invalidations_duplicate_total",
		Help:      "Invalidation events suppressed as duplicate deliveries",
	})

	m.queueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_capacity",
		Help:      "Configured invalidation queue capacity",
	})

	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_size",
		Help:      "Current invalidation queue depth",
	})

	m.queueEnqueues = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_enqueues_total",
		Help:      "Invalidation events accepted into the queue",
	})

	m.queueDequeues = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_dequeues_total",
		Help:      "Invalidation events handed to workers",
	})

	m.queueEnqueueErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_enqueue_errors_total",
		Help:      "Enqueue attempts rejected (full, closed, cancelled)",
	})

	m.workerCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_count",
		Help:      "Number of invalidation workers",
	})

	m.workerLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_latency_milliseconds",
		Help:      "Latency of applying one invalidation event",
		Buckets:   m.histogramBuckets,
	})

	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint, method, and status code",
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_request_duration_milliseconds",
			Help:      "HTTP request duration in milliseconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.errorsByComponent = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "errors_by_component_total",
			Help:      "Errors by component and type",
		},
		[]string{"component", "error_type"},
	)

	m.errorsByType = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "errors_by_type_total",
			Help:      "Errors by type and severity",
		},
		[]string{"error_type", "severity"},
	)

	m.errorsByEndpoint = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "errors_by_endpoint_total",
			Help:      "HTTP-level errors by endpoint and method",
		},
		[]string{"endpoint", "method", "error_type"},
	)

	m.errorLatency = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "error_latency_milliseconds",
			Help:      "Latency of requests that ended in an error",
			Buckets:   m.histogramBuckets,
		},
		[]string{"component", "error_type"},
	)

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_memory_usage_bytes",
		Help:      "System memory usage in bytes",
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_goroutine_count",
		Help:      "Number of goroutines",
	})

	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_gc_pause_time_milliseconds",
		Help:      "GC pause time in milliseconds",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
	})
}

// Access decision helpers.

// RecordAccessDecision counts one resolved decision.
func RecordAccessDecision(scope, outcome string) {
	globalManager.accessDecisions.WithLabelValues(scope, outcome).Inc()
}

// RecordResolutionLatency records access resolution latency in milliseconds.
func RecordResolutionLatency(latencyMs float64) {
	globalManager.resolutionLatency.Observe(latencyMs)
}

// Decision cache helpers.

// RecordCacheHit increments the cache hit counter.
func RecordCacheHit() {
	globalManager.cacheHits.Inc()
}

// RecordCacheMiss increments the cache miss counter.
func RecordCacheMiss() {
	globalManager.cacheMisses.Inc()
}

// RecordCacheExpired counts an entry dropped for exceeding the TTL.
func RecordCacheExpired() {
	globalManager.cacheExpired.Inc()
}

// RecordCacheSweep counts a size-triggered sweep.
func RecordCacheSweep() {
	globalManager.cacheSweeps.Inc()
}

// RecordCacheInvalidation counts an explicit invalidation call.
func RecordCacheInvalidation() {
	globalManager.cacheInvalidations.Inc()
}

// UpdateCacheSize sets the current cache entry count.
func UpdateCacheSize(size int) {
	globalManager.cacheSize.Set(float64(size))
}

// Assessment helpers.

// RecordCalculation counts a completed calculation for a strategy.
func RecordCalculation(strategy string) {
	globalManager.calculations.WithLabelValues(strategy).Inc()
}

// RecordCalculationError counts a rejected calculation.
func RecordCalculationError() {
	globalManager.calculationErrors.Inc()
}

// RecordCalculationLatency records pipeline latency in milliseconds.
func RecordCalculationLatency(latencyMs float64) {
	globalManager.calculationLatency.Observe(latencyMs)
}

// RecordBlockedFields counts responses dropped by the filter.
func RecordBlockedFields(n int) {
	globalManager.blockedFields.Add(float64(n))
}

// RecordUpgradePrompt counts a built prompt by kind (adjacent/generic).
func RecordUpgradePrompt(kind string) {
	globalManager.upgradePrompts.WithLabelValues(kind).Inc()
}

// Registry helpers.

// UpdateProjectCount sets the number of registered projects.
func UpdateProjectCount(count int) {
	globalManager.projectCount.Set(float64(count))
}

// Invalidation pipeline helpers.

// RecordInvalidationApplied counts an applied invalidation event.
func RecordInvalidationApplied() {
	globalManager.invalidationsApplied.Inc()
}

// RecordInvalidationDuplicate counts a suppressed duplicate delivery.
func RecordInvalidationDuplicate() {
	globalManager.invalidationsDuplicate.Inc()
}

// UpdateQueueCapacity sets the configured queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueSize sets the current queue depth.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// RecordQueueEnqueue counts an accepted event.
func RecordQueueEnqueue() {
	globalManager.queueEnqueues.Inc()
}

// RecordQueueDequeue counts an event handed to a worker.
func RecordQueueDequeue() {
	globalManager.queueDequeues.Inc()
}

// RecordQueueEnqueueError counts a rejected enqueue.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// UpdateWorkerCount sets the number of invalidation workers.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records per-event worker latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerLatency.Observe(latencyMs)
}

// HTTP helpers.

// RecordHTTPRequest counts an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// Error helpers.

// RecordErrorByComponent counts an error attributed to a component.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType counts an error by type and severity.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorsByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint counts an HTTP-level error.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorLatency records the latency of a failed operation.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// System helpers.

// UpdateSystemMemoryUsage sets current heap usage.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the goroutine count.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records an average GC pause in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom registry the global manager registers on.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
