// Package metrics provides Prometheus metrics for the risk prediction service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prediction path label values.
const (
	PathLight = "light"
	PathFull  = "full"
)

// Manager owns every Prometheus collector used by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Prediction metrics
	predictions      *prometheus.CounterVec
	lightLatency     prometheus.Histogram
	fullLatency      prometheus.Histogram
	validationErrors prometheus.Counter

	// Job lifecycle metrics
	jobsSubmitted     prometheus.Counter
	jobsFinished      *prometheus.CounterVec
	jobsCancelled     prometheus.Counter
	jobsReplayed      prometheus.Counter
	jobQueueWait      prometheus.Histogram
	jobStoreSize      prometheus.Gauge
	jobStoreEvictions *prometheus.CounterVec

	// Queue metrics
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueDequeued      prometheus.Counter
	queueEnqueueErrors *prometheus.CounterVec

	// Worker metrics
	workerCount             prometheus.Gauge
	workerBusy              prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter
	workerPanics            prometheus.Counter

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRateLimited     *prometheus.CounterVec

	// Error metrics
	errorsByComponent *prometheus.CounterVec
	errorsByEndpoint  *prometheus.CounterVec

	// Config metrics
	configReloads *prometheus.CounterVec

	// System metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // process registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "medrisk",
		subsystem:        "predictor",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		enabled:          true,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	if buckets == nil {
		buckets = m.histogramBuckets
	}
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.constLabels,
	}
}

// initializeMetrics creates all the Prometheus collectors.
func (m *Manager) initializeMetrics() { //nolint:funlen // flat list of collectors
	auto := promauto.With(m.registry)

	m.predictions = auto.NewCounterVec(m.counterOpts("predictions_total",
		"Total number of predictions served by path"), []string{"path"})
	m.lightLatency = auto.NewHistogram(m.histogramOpts("light_score_latency_milliseconds",
		"Light scoring latency in milliseconds", []float64{0.01, 0.05, 0.1, 0.5, 1, 5}))
	m.fullLatency = auto.NewHistogram(m.histogramOpts("full_score_latency_milliseconds",
		"Full scoring latency in milliseconds including the simulated model delay", nil))
	m.validationErrors = auto.NewCounter(m.counterOpts("validation_errors_total",
		"Total number of rejected feature payloads"))

	m.jobsSubmitted = auto.NewCounter(m.counterOpts("jobs_submitted_total",
		"Total number of full prediction jobs accepted"))
	m.jobsFinished = auto.NewCounterVec(m.counterOpts("jobs_finished_total",
		"Total number of jobs that reached a terminal state"), []string{"state"})
	m.jobsCancelled = auto.NewCounter(m.counterOpts("jobs_cancelled_total",
		"Total number of cancellation requests that affected a job"))
	m.jobsReplayed = auto.NewCounter(m.counterOpts("jobs_idempotent_replays_total",
		"Total number of submissions answered from the idempotency cache"))
	m.jobQueueWait = auto.NewHistogram(m.histogramOpts("job_queue_wait_milliseconds",
		"Time a job spent pending before a worker picked it up", nil))
	m.jobStoreSize = auto.NewGauge(m.gaugeOpts("job_store_size",
		"Number of jobs held in the job store"))
	m.jobStoreEvictions = auto.NewCounterVec(m.counterOpts("job_store_evictions_total",
		"Total number of jobs evicted from the job store"), []string{"reason"})

	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size",
		"Current number of pending jobs in the queue"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity",
		"Maximum queue capacity"))
	m.queueUtilization = auto.NewGauge(m.gaugeOpts("queue_utilization_ratio",
		"Queue utilization ratio (current size / capacity)"))
	m.queueEnqueued = auto.NewCounter(m.counterOpts("queue_enqueue_total",
		"Total number of jobs enqueued"))
	m.queueDequeued = auto.NewCounter(m.counterOpts("queue_dequeue_total",
		"Total number of jobs dequeued"))
	m.queueEnqueueErrors = auto.NewCounterVec(m.counterOpts("queue_enqueue_errors_total",
		"Total number of rejected enqueues"), []string{"reason"})

	m.workerCount = auto.NewGauge(m.gaugeOpts("worker_count",
		"Number of workers in the pool"))
	m.workerBusy = auto.NewGauge(m.gaugeOpts("worker_busy_count",
		"Number of workers currently running a job"))
	m.workerProcessingLatency = auto.NewHistogram(m.histogramOpts("worker_processing_latency_milliseconds",
		"Worker processing latency in milliseconds", nil))
	m.workerErrors = auto.NewCounter(m.counterOpts("worker_errors_total",
		"Total number of jobs that failed in a worker"))
	m.workerPanics = auto.NewCounter(m.counterOpts("worker_panics_total",
		"Total number of recovered worker panics"))

	m.httpRequests = auto.NewCounterVec(m.counterOpts("http_requests_total",
		"Total number of HTTP requests by endpoint and method"), []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", nil), []string{"endpoint", "method", "status_code"})
	m.httpRateLimited = auto.NewCounterVec(m.counterOpts("http_rate_limited_total",
		"Total number of requests rejected by the rate limiter"), []string{"endpoint"})

	m.errorsByComponent = auto.NewCounterVec(m.counterOpts("errors_by_component_total",
		"Total number of errors by component"), []string{"component", "error_type"})
	m.errorsByEndpoint = auto.NewCounterVec(m.counterOpts("errors_by_endpoint_total",
		"Total number of errors by endpoint"), []string{"endpoint", "method", "error_type"})

	m.configReloads = auto.NewCounterVec(m.counterOpts("config_reloads_total",
		"Total number of configuration reload attempts"), []string{"result"})

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes",
		"Heap memory in use in bytes"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count",
		"Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(m.histogramOpts("system_gc_pause_time_milliseconds",
		"Average GC pause time in milliseconds", []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}))
}

// Manager methods. Package-level helpers below delegate to the global manager.

func (m *Manager) RecordPrediction(path string, latencyMs float64) {
	if !m.enabled {
		return
	}
	m.predictions.WithLabelValues(path).Inc()
	switch path {
	case PathLight:
		m.lightLatency.Observe(latencyMs)
	case PathFull:
		m.fullLatency.Observe(latencyMs)
	}
}

func (m *Manager) RecordValidationError() {
	if m.enabled {
		m.validationErrors.Inc()
	}
}

func (m *Manager) RecordJobSubmitted() {
	if m.enabled {
		m.jobsSubmitted.Inc()
	}
}

func (m *Manager) RecordJobFinished(state string) {
	if m.enabled {
		m.jobsFinished.WithLabelValues(state).Inc()
	}
}

func (m *Manager) RecordJobCancelled() {
	if m.enabled {
		m.jobsCancelled.Inc()
	}
}

func (m *Manager) RecordJobReplayed() {
	if m.enabled {
		m.jobsReplayed.Inc()
	}
}

func (m *Manager) RecordJobQueueWait(waitMs float64) {
	if m.enabled {
		m.jobQueueWait.Observe(waitMs)
	}
}

func (m *Manager) UpdateJobStoreSize(size int) {
	if m.enabled {
		m.jobStoreSize.Set(float64(size))
	}
}

func (m *Manager) RecordJobEviction(reason string, n int) {
	if m.enabled && n > 0 {
		m.jobStoreEvictions.WithLabelValues(reason).Add(float64(n))
	}
}

func (m *Manager) UpdateQueue(size, capacity int) {
	if !m.enabled {
		return
	}
	m.queueSize.Set(float64(size))
	m.queueCapacity.Set(float64(capacity))
	if capacity > 0 {
		m.queueUtilization.Set(float64(size) / float64(capacity))
	}
}

func (m *Manager) RecordQueueEnqueue() {
	if m.enabled {
		m.queueEnqueued.Inc()
	}
}

func (m *Manager) RecordQueueDequeue() {
	if m.enabled {
		m.queueDequeued.Inc()
	}
}

func (m *Manager) RecordQueueEnqueueError(reason string) {
	if m.enabled {
		m.queueEnqueueErrors.WithLabelValues(reason).Inc()
	}
}

func (m *Manager) UpdateWorkerCount(count int) {
	if m.enabled {
		m.workerCount.Set(float64(count))
	}
}

func (m *Manager) AddWorkerBusy(delta int) {
	if m.enabled {
		m.workerBusy.Add(float64(delta))
	}
}

func (m *Manager) RecordWorkerProcessingLatency(latencyMs float64) {
	if m.enabled {
		m.workerProcessingLatency.Observe(latencyMs)
	}
}

func (m *Manager) RecordWorkerError() {
	if m.enabled {
		m.workerErrors.Inc()
	}
}

func (m *Manager) RecordWorkerPanic() {
	if m.enabled {
		m.workerPanics.Inc()
	}
}

func (m *Manager) RecordHTTPRequest(endpoint, method, statusCode string, durationMs float64) {
	if !m.enabled {
		return
	}
	m.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	m.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

func (m *Manager) RecordRateLimited(endpoint string) {
	if m.enabled {
		m.httpRateLimited.WithLabelValues(endpoint).Inc()
	}
}

func (m *Manager) RecordErrorByComponent(component, errorType string) {
	if m.enabled {
		m.errorsByComponent.WithLabelValues(component, errorType).Inc()
	}
}

func (m *Manager) RecordErrorByEndpoint(endpoint, method, errorType string) {
	if m.enabled {
		m.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
	}
}

func (m *Manager) RecordConfigReload(result string) {
	if m.enabled {
		m.configReloads.WithLabelValues(result).Inc()
	}
}

func (m *Manager) UpdateSystem(memBytes uint64, goroutines int, avgGCPauseMs float64) {
	if !m.enabled {
		return
	}
	m.systemMemoryUsage.Set(float64(memBytes))
	m.systemGoroutineCount.Set(float64(goroutines))
	if avgGCPauseMs > 0 {
		m.systemGCPauseTime.Observe(avgGCPauseMs)
	}
}

// RecordPrediction counts a served prediction and its latency.
func RecordPrediction(path string, latencyMs float64) { globalManager.RecordPrediction(path, latencyMs) }

// RecordValidationError counts a rejected feature payload.
func RecordValidationError() { globalManager.RecordValidationError() }

// RecordJobSubmitted counts an accepted full prediction job.
func RecordJobSubmitted() { globalManager.RecordJobSubmitted() }

// RecordJobFinished counts a job reaching the given terminal state.
func RecordJobFinished(state string) { globalManager.RecordJobFinished(state) }

// RecordJobCancelled counts an effective cancellation.
func RecordJobCancelled() { globalManager.RecordJobCancelled() }

// RecordJobReplayed counts a submission answered from the idempotency cache.
func RecordJobReplayed() { globalManager.RecordJobReplayed() }

// RecordJobQueueWait observes the pending time of a job.
func RecordJobQueueWait(waitMs float64) { globalManager.RecordJobQueueWait(waitMs) }

// UpdateJobStoreSize sets the number of stored jobs.
func UpdateJobStoreSize(size int) { globalManager.UpdateJobStoreSize(size) }

// RecordJobEviction counts n evicted jobs.
func RecordJobEviction(reason string, n int) { globalManager.RecordJobEviction(reason, n) }

// UpdateQueue sets queue size, capacity and utilization.
func UpdateQueue(size, capacity int) { globalManager.UpdateQueue(size, capacity) }

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() { globalManager.RecordQueueEnqueue() }

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() { globalManager.RecordQueueDequeue() }

// RecordQueueEnqueueError counts a rejected enqueue.
func RecordQueueEnqueueError(reason string) { globalManager.RecordQueueEnqueueError(reason) }

// UpdateWorkerCount sets the pool size.
func UpdateWorkerCount(count int) { globalManager.UpdateWorkerCount(count) }

// AddWorkerBusy adjusts the number of busy workers.
func AddWorkerBusy(delta int) { globalManager.AddWorkerBusy(delta) }

// RecordWorkerProcessingLatency observes worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.RecordWorkerProcessingLatency(latencyMs)
}

// RecordWorkerError counts a failed job.
func RecordWorkerError() { globalManager.RecordWorkerError() }

// RecordWorkerPanic counts a recovered panic.
func RecordWorkerPanic() { globalManager.RecordWorkerPanic() }

// RecordHTTPRequest records an HTTP request and its duration.
func RecordHTTPRequest(endpoint, method, statusCode string, durationMs float64) {
	globalManager.RecordHTTPRequest(endpoint, method, statusCode, durationMs)
}

// RecordRateLimited counts a request rejected by the limiter.
func RecordRateLimited(endpoint string) { globalManager.RecordRateLimited(endpoint) }

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.RecordErrorByComponent(component, errorType)
}

// RecordErrorByEndpoint records an error with endpoint, method and type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.RecordErrorByEndpoint(endpoint, method, errorType)
}

// RecordConfigReload counts a configuration reload attempt.
func RecordConfigReload(result string) { globalManager.RecordConfigReload(result) }

// UpdateSystem sets process level gauges.
func UpdateSystem(memBytes uint64, goroutines int, avgGCPauseMs float64) {
	globalManager.UpdateSystem(memBytes, goroutines, avgGCPauseMs)
}

// GetRegistry returns the custom Prometheus registry used by the service.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
