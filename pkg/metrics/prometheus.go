package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// deltaBuckets span the full reward delta range [-100, 100].
var deltaBuckets = []float64{-75, -50, -35, -20, -10, -5, 0, 5, 10, 20, 35, 50, 75} //nolint:gochecknoglobals // fixed bucket layout

// latencyBuckets are milliseconds; model calls dominate the upper end.
var latencyBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000} //nolint:gochecknoglobals // fixed bucket layout

// Manager manages all Prometheus metrics for the talentloop service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	refreshInterval  time.Duration
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Feedback loop
	feedbackProcessed *prometheus.CounterVec
	feedbackLatency   prometheus.Histogram
	rewardDelta       prometheus.Histogram
	rewardWeight      prometheus.Histogram
	policyUpdates     prometheus.Counter
	contextRequests   *prometheus.CounterVec

	// Scoring
	scoringLatency *prometheus.HistogramVec
	scoringErrors  *prometheus.CounterVec
	evaluations    *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Repository
	repositoryLatency *prometheus.HistogramVec
	repositoryErrors  *prometheus.CounterVec

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueDequeued      prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Workers
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	errorsByComponent *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "talentloop",
		subsystem:        "calibration",
		histogramBuckets: latencyBuckets,
		refreshInterval:  defaultRefreshInterval,
		constLabels:      map[string]string{},
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
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // flat list of metric definitions
	auto := promauto.With(m.registry)

	m.feedbackProcessed = auto.NewCounterVec(
		m.counterOpts("feedback_total", "Recruiter feedback submissions by outcome"),
		[]string{"outcome"},
	)
	m.feedbackLatency = auto.NewHistogram(
		m.histogramOpts("feedback_latency_milliseconds", "End-to-end feedback processing latency", m.histogramBuckets),
	)
	m.rewardDelta = auto.NewHistogram(
		m.histogramOpts("reward_delta", "Distribution of recruiter minus AI score deltas", deltaBuckets),
	)
	m.rewardWeight = auto.NewHistogram(
		m.histogramOpts("reward_weight", "Distribution of reward weights after policy updates",
			[]float64{0.05, 0.1, 0.25, 0.5, 0.75, 0.9, 1}),
	)
	m.policyUpdates = auto.NewCounter(
		m.counterOpts("policy_updates_total", "Number of committed policy state updates"),
	)
	m.contextRequests = auto.NewCounterVec(
		m.counterOpts("context_requests_total", "Calibration context lookups by result"),
		[]string{"result"},
	)

	m.scoringLatency = auto.NewHistogramVec(
		m.histogramOpts("scoring_latency_milliseconds", "Latency of a single candidate scoring call", m.histogramBuckets),
		[]string{"scorer"},
	)
	m.scoringErrors = auto.NewCounterVec(
		m.counterOpts("scoring_errors_total", "Scoring failures by reason"),
		[]string{"reason"},
	)
	m.evaluations = auto.NewCounterVec(
		m.counterOpts("evaluations_total", "Asynchronous evaluations by outcome"),
		[]string{"outcome"},
	)

	m.httpRequests = auto.NewCounterVec(
		m.counterOpts("http_requests_total", "Total number of HTTP requests by endpoint and method"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds", m.histogramBuckets),
		[]string{"endpoint", "method", "status_code"},
	)

	m.repositoryLatency = auto.NewHistogramVec(
		m.histogramOpts("repository_latency_milliseconds", "Repository operation latency", m.histogramBuckets),
		[]string{"operation"},
	)
	m.repositoryErrors = auto.NewCounterVec(
		m.counterOpts("repository_errors_total", "Repository operation failures"),
		[]string{"operation"},
	)

	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size", "Current evaluation queue backlog"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity", "Maximum evaluation queue capacity"))
	m.queueUtilization = auto.NewGauge(m.gaugeOpts("queue_utilization_ratio", "Queue size divided by capacity"))
	m.queueEnqueued = auto.NewCounter(m.counterOpts("queue_enqueued_total", "Evaluations accepted into the queue"))
	m.queueDequeued = auto.NewCounter(m.counterOpts("queue_dequeued_total", "Evaluations taken off the queue"))
	m.queueEnqueueErrors = auto.NewCounter(m.counterOpts("queue_enqueue_errors_total", "Evaluations rejected by the queue"))

	m.workerActiveCount = auto.NewGauge(m.gaugeOpts("worker_active_count", "Number of running evaluation workers"))
	m.workerProcessingLatency = auto.NewHistogram(
		m.histogramOpts("worker_processing_latency_milliseconds", "Per-evaluation worker processing latency", m.histogramBuckets),
	)
	m.workerErrors = auto.NewCounter(m.counterOpts("worker_errors_total", "Evaluations that failed inside a worker"))

	m.errorsByComponent = auto.NewCounterVec(
		m.counterOpts("errors_total", "Errors by component and type"),
		[]string{"component", "error_type"},
	)

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_bytes", "Heap bytes in use"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutines", "Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(
		m.histogramOpts("system_gc_pause_milliseconds", "Most recent GC pause", m.histogramBuckets),
	)
}

// Feedback loop.

// RecordFeedback counts a feedback submission; outcome is applied, invalid or failed.
func RecordFeedback(outcome string) {
	globalManager.feedbackProcessed.WithLabelValues(outcome).Inc()
}

// RecordFeedbackLatency observes end-to-end feedback latency.
func RecordFeedbackLatency(latencyMs float64) {
	globalManager.feedbackLatency.Observe(latencyMs)
}

// RecordRewardDelta observes a committed reward delta.
func RecordRewardDelta(delta float64) {
	globalManager.rewardDelta.Observe(delta)
}

// RecordPolicyUpdate counts a committed policy update and its resulting weight.
func RecordPolicyUpdate(weight float64) {
	globalManager.policyUpdates.Inc()
	globalManager.rewardWeight.Observe(weight)
}

// RecordContextRequest counts a calibration context lookup (hit, miss, empty, error).
func RecordContextRequest(result string) {
	globalManager.contextRequests.WithLabelValues(result).Inc()
}

// Scoring.

// RecordScoringLatency records the latency of one scoring call.
func RecordScoringLatency(scorer string, latencyMs float64) {
	globalManager.scoringLatency.WithLabelValues(scorer).Observe(latencyMs)
}

// RecordScoringError counts a scoring failure.
func RecordScoringError(reason string) {
	globalManager.scoringErrors.WithLabelValues(reason).Inc()
}

// RecordEvaluation counts an asynchronous evaluation outcome (accepted, duplicate, scored, unparsed, failed).
func RecordEvaluation(outcome string) {
	globalManager.evaluations.WithLabelValues(outcome).Inc()
}

// HTTP.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Repository.

// RecordRepositoryLatency records the latency of a repository operation.
func RecordRepositoryLatency(operation string, latencyMs float64) {
	globalManager.repositoryLatency.WithLabelValues(operation).Observe(latencyMs)
}

// RecordRepositoryError counts a failed repository operation.
func RecordRepositoryError(operation string) {
	globalManager.repositoryErrors.WithLabelValues(operation).Inc()
}

// Queue.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// Workers.

// UpdateWorkerActiveCount sets the number of active workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// System.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// RefreshInterval is how often periodic gauges should be refreshed.
func RefreshInterval() time.Duration {
	return globalManager.refreshInterval
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
