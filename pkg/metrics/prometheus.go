// Package metrics provides Prometheus metrics for the readiness service.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every collector exported by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Core evaluation metrics
	evaluations        *prometheus.CounterVec
	flags              *prometheus.CounterVec
	unknownMetrics     *prometheus.CounterVec
	evaluationLatency  prometheus.Histogram
	batchDuration      prometheus.Histogram
	scoreUnavailable   prometheus.Counter
	readinessScore     prometheus.Histogram
	rosterSize         prometheus.Gauge
	lastBatchAthletes  prometheus.Gauge
	lastBatchUnixEpoch prometheus.Gauge

	// Ingestion metrics
	recordsIngested  *prometheus.CounterVec
	recordsMalformed *prometheus.CounterVec
	recordsDuplicate prometheus.Counter

	// Repository metrics
	repositoryLatency *prometheus.HistogramVec

	// Queue and worker metrics
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueDequeued      prometheus.Counter
	queueEnqueueErrors *prometheus.CounterVec
	workerCount        prometheus.Gauge
	workerErrors       prometheus.Counter

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors by component
	errorsByComponent *prometheus.CounterVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "readiness",
		subsystem:        "status",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		constLabels:      prometheus.Labels{},
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

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.evaluations = auto.NewCounterVec(
		m.counterOpts("evaluations_total", "Daily statuses resolved, by status"),
		[]string{"status", "rule"},
	)
	m.flags = auto.NewCounterVec(
		m.counterOpts("flags_total", "Active risk flags raised, by metric and level"),
		[]string{"metric", "level"},
	)
	m.unknownMetrics = auto.NewCounterVec(
		m.counterOpts("unknown_metrics_total", "Metrics that could not be computed, by reason"),
		[]string{"metric", "reason"},
	)
	m.evaluationLatency = auto.NewHistogram(
		m.histogramOpts("evaluation_latency_milliseconds", "Latency of a single athlete evaluation", m.histogramBuckets),
	)
	m.batchDuration = auto.NewHistogram(
		m.histogramOpts("batch_duration_milliseconds", "Duration of a full roster evaluation",
			[]float64{1, 5, 10, 50, 100, 250, 500, 1000, 5000}),
	)
	m.scoreUnavailable = auto.NewCounter(
		m.counterOpts("score_unavailable_total", "Composite scores disqualified by missing inputs"),
	)
	m.readinessScore = auto.NewHistogram(
		m.histogramOpts("composite_score", "Distribution of available composite readiness scores",
			[]float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}),
	)
	m.rosterSize = auto.NewGauge(m.gaugeOpts("roster_size", "Athletes on the roster"))
	m.lastBatchAthletes = auto.NewGauge(m.gaugeOpts("last_batch_athletes", "Athletes evaluated by the last batch"))
	m.lastBatchUnixEpoch = auto.NewGauge(m.gaugeOpts("last_batch_unix", "Unix time the last batch finished"))

	m.recordsIngested = auto.NewCounterVec(
		m.counterOpts("records_ingested_total", "Daily metric records accepted, by domain"),
		[]string{"domain"},
	)
	m.recordsMalformed = auto.NewCounterVec(
		m.counterOpts("records_malformed_total", "Daily metric records rejected by validation, by domain"),
		[]string{"domain"},
	)
	m.recordsDuplicate = auto.NewCounter(
		m.counterOpts("records_duplicate_total", "Records skipped because their id was already ingested"),
	)

	m.repositoryLatency = auto.NewHistogramVec(
		m.histogramOpts("repository_latency_milliseconds", "Repository operation latency", m.histogramBuckets),
		[]string{"operation"},
	)

	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size", "Evaluation jobs waiting in the queue"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity", "Evaluation queue capacity"))
	m.queueEnqueued = auto.NewCounter(m.counterOpts("queue_enqueued_total", "Evaluation jobs enqueued"))
	m.queueDequeued = auto.NewCounter(m.counterOpts("queue_dequeued_total", "Evaluation jobs dequeued"))
	m.queueEnqueueErrors = auto.NewCounterVec(
		m.counterOpts("queue_enqueue_errors_total", "Evaluation jobs rejected by the queue"),
		[]string{"reason"},
	)
	m.workerCount = auto.NewGauge(m.gaugeOpts("worker_count", "Evaluation workers running"))
	m.workerErrors = auto.NewCounter(m.counterOpts("worker_errors_total", "Evaluation jobs that failed in a worker"))

	m.httpRequests = auto.NewCounterVec(
		m.counterOpts("http_requests_total", "HTTP requests by endpoint, method and status code"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds", m.histogramBuckets),
		[]string{"endpoint", "method", "status_code"},
	)

	m.errorsByComponent = auto.NewCounterVec(
		m.counterOpts("errors_total", "Errors by component and type"),
		[]string{"component", "type"},
	)
}

// RecordEvaluation counts one resolved status.
func (m *Manager) RecordEvaluation(status, rule string, latencyMs float64) {
	if !m.enabled {
		return
	}
	m.evaluations.WithLabelValues(status, rule).Inc()
	m.evaluationLatency.Observe(latencyMs)
}

// RecordScore observes an available composite score, or counts an unavailable one.
func (m *Manager) RecordScore(available bool, score int) {
	if !m.enabled {
		return
	}
	if !available {
		m.scoreUnavailable.Inc()
		return
	}
	m.readinessScore.Observe(float64(score))
}

// RecordFlag counts an active flag.
func (m *Manager) RecordFlag(metric, level string) {
	if !m.enabled {
		return
	}
	m.flags.WithLabelValues(metric, level).Inc()
}

// RecordUnknownMetric counts a metric excluded from classification.
func (m *Manager) RecordUnknownMetric(metric, reason string) {
	if !m.enabled {
		return
	}
	m.unknownMetrics.WithLabelValues(metric, reason).Inc()
}

// RecordBatch records the outcome of a roster-wide evaluation.
func (m *Manager) RecordBatch(athletes int, durationMs float64, finishedUnix int64) {
	if !m.enabled {
		return
	}
	m.batchDuration.Observe(durationMs)
	m.lastBatchAthletes.Set(float64(athletes))
	m.lastBatchUnixEpoch.Set(float64(finishedUnix))
}

// Package-level helpers delegate to the global manager.

// RecordEvaluation counts one resolved status on the global manager.
func RecordEvaluation(status, rule string, latencyMs float64) {
	globalManager.RecordEvaluation(status, rule, latencyMs)
}

// RecordScore records a composite score on the global manager.
func RecordScore(available bool, score int) {
	globalManager.RecordScore(available, score)
}

// RecordFlag counts an active flag on the global manager.
func RecordFlag(metric, level string) {
	globalManager.RecordFlag(metric, level)
}

// RecordUnknownMetric counts an uncomputable metric on the global manager.
func RecordUnknownMetric(metric, reason string) {
	globalManager.RecordUnknownMetric(metric, reason)
}

// RecordBatch records a roster-wide evaluation on the global manager.
func RecordBatch(athletes int, durationMs float64, finishedUnix int64) {
	globalManager.RecordBatch(athletes, durationMs, finishedUnix)
}

// UpdateRosterSize sets the roster size gauge.
func UpdateRosterSize(count int) {
	globalManager.rosterSize.Set(float64(count))
}

// RecordRecordIngested counts an accepted record.
func RecordRecordIngested(domain string) {
	globalManager.recordsIngested.WithLabelValues(domain).Inc()
}

// RecordRecordMalformed counts a rejected record.
func RecordRecordMalformed(domain string) {
	globalManager.recordsMalformed.WithLabelValues(domain).Inc()
}

// RecordRecordDuplicate counts a record skipped by the deduper.
func RecordRecordDuplicate() {
	globalManager.recordsDuplicate.Inc()
}

// RecordRepositoryLatency observes a repository operation latency.
func RecordRepositoryLatency(operation string, latencyMs float64) {
	globalManager.repositoryLatency.WithLabelValues(operation).Observe(latencyMs)
}

// UpdateQueueSize sets the queue backlog gauge.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the queue capacity gauge.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue counts an enqueued job.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue counts a dequeued job.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// RecordQueueEnqueueError counts a rejected job.
func RecordQueueEnqueueError(reason string) {
	globalManager.queueEnqueueErrors.WithLabelValues(reason).Inc()
}

// UpdateWorkerCount sets the worker gauge.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordWorkerError counts a failed job.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// RecordHTTPRequest counts an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration observes an HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// RecordErrorByComponent counts an error raised by a component.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// GetRegistry returns the custom registry backing the global manager.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// RegisterRuntimeCollectors adds the Go runtime and process collectors to
// the custom registry. Repeated calls are no-ops.
func RegisterRuntimeCollectors() error {
	for _, c := range []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := customRegistry.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return err
			}
		}
	}
	return nil
}
