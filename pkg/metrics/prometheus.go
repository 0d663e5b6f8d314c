// Package metrics provides Prometheus metrics for the rankd rating service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager owns every Prometheus collector used by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Rating core
	ratingUpdates          *prometheus.CounterVec
	ratingUpdateErrors     *prometheus.CounterVec
	ratingUpdateLatency    *prometheus.HistogramVec
	expectedOutcomeQueries *prometheus.CounterVec
	volatilityIterations   prometheus.Histogram
	registryResolutions    *prometheus.CounterVec
	inactivityDecays       prometheus.Counter

	// Leaderboard pipeline
	matchesSubmitted prometheus.Counter
	matchesDuplicate prometheus.Counter
	matchesProcessed prometheus.Counter
	participants     prometheus.Gauge

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueueErrors *prometheus.CounterVec

	// Workers
	workerCount             prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// Repository
	repositoryUpdateLatency prometheus.Histogram
	repositoryQueryLatency  prometheus.Histogram

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
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
		namespace:        "rankd",
		subsystem:        "ratings",
		histogramBuckets: prometheus.DefBuckets,
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

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for all collectors
	auto := promauto.With(m.registry)

	m.ratingUpdates = auto.NewCounterVec(
		m.counterOpts("updates_total", "Rating updates applied, by algorithm"),
		[]string{"algorithm"},
	)
	m.ratingUpdateErrors = auto.NewCounterVec(
		m.counterOpts("update_errors_total", "Rating updates that failed, by algorithm and reason"),
		[]string{"algorithm", "reason"},
	)
	m.ratingUpdateLatency = auto.NewHistogramVec(
		m.histogramOpts("update_latency_milliseconds", "Rating update latency in milliseconds", m.histogramBuckets),
		[]string{"algorithm"},
	)
	m.expectedOutcomeQueries = auto.NewCounterVec(
		m.counterOpts("expected_outcome_queries_total", "Win-probability queries, by algorithm"),
		[]string{"algorithm"},
	)
	m.volatilityIterations = auto.NewHistogram(
		m.histogramOpts("volatility_solver_iterations", "Iterations used by the Glicko-2 volatility solve",
			[]float64{1, 2, 3, 5, 8, 13, 21, 34, 55, 100}),
	)
	m.registryResolutions = auto.NewCounterVec(
		m.counterOpts("registry_resolutions_total", "Algorithm registry resolutions, by name and status"),
		[]string{"algorithm", "status"},
	)
	m.inactivityDecays = auto.NewCounter(
		m.counterOpts("inactivity_decays_total", "Participants updated with no outcomes at a period end"),
	)

	m.matchesSubmitted = auto.NewCounter(m.counterOpts("matches_submitted_total", "Matches accepted for processing"))
	m.matchesDuplicate = auto.NewCounter(m.counterOpts("matches_duplicate_total", "Matches dropped as duplicates"))
	m.matchesProcessed = auto.NewCounter(m.counterOpts("matches_processed_total", "Matches applied to the standings"))
	m.participants = auto.NewGauge(m.gaugeOpts("participants", "Participants present in the standings"))

	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size", "Matches waiting in the queue"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity", "Maximum queue capacity"))
	m.queueEnqueueErrors = auto.NewCounterVec(
		m.counterOpts("queue_enqueue_errors_total", "Rejected enqueue attempts, by reason"),
		[]string{"reason"},
	)

	m.workerCount = auto.NewGauge(m.gaugeOpts("worker_count", "Running rating workers"))
	m.workerProcessingLatency = auto.NewHistogram(
		m.histogramOpts("worker_processing_latency_milliseconds", "Time a worker spends on one match", m.histogramBuckets),
	)
	m.workerErrors = auto.NewCounter(m.counterOpts("worker_errors_total", "Matches a worker failed to apply"))

	m.repositoryUpdateLatency = auto.NewHistogram(
		m.histogramOpts("repository_update_latency_milliseconds", "Standings store write latency", m.histogramBuckets),
	)
	m.repositoryQueryLatency = auto.NewHistogram(
		m.histogramOpts("repository_query_latency_milliseconds", "Standings store read latency", m.histogramBuckets),
	)

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes", "Heap bytes allocated"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count", "Number of goroutines"))
}

// RecordRatingUpdate counts a successful update and its latency.
func RecordRatingUpdate(algorithm string, latencyMs float64) {
	globalManager.ratingUpdates.WithLabelValues(algorithm).Inc()
	globalManager.ratingUpdateLatency.WithLabelValues(algorithm).Observe(latencyMs)
}

// RecordRatingError counts a failed update.
func RecordRatingError(algorithm, reason string) {
	globalManager.ratingUpdateErrors.WithLabelValues(algorithm, reason).Inc()
}

// RecordExpectedOutcome counts a win-probability query.
func RecordExpectedOutcome(algorithm string) {
	globalManager.expectedOutcomeQueries.WithLabelValues(algorithm).Inc()
}

// ObserveVolatilityIterations records how many iterations one volatility solve took.
func ObserveVolatilityIterations(iterations int) {
	globalManager.volatilityIterations.Observe(float64(iterations))
}

// RecordRegistryResolution counts a registry lookup; status is "ok", "unknown" or "invalid".
func RecordRegistryResolution(algorithm, status string) {
	globalManager.registryResolutions.WithLabelValues(algorithm, status).Inc()
}

// RecordInactivityDecays adds n period-end inactivity updates.
func RecordInactivityDecays(n int) {
	globalManager.inactivityDecays.Add(float64(n))
}

// RecordMatchSubmitted increments the submitted matches counter.
func RecordMatchSubmitted() {
	globalManager.matchesSubmitted.Inc()
}

// RecordMatchDuplicate increments the duplicate matches counter.
func RecordMatchDuplicate() {
	globalManager.matchesDuplicate.Inc()
}

// RecordMatchProcessed increments the processed matches counter.
func RecordMatchProcessed() {
	globalManager.matchesProcessed.Inc()
}

// UpdateParticipants sets the participants gauge.
func UpdateParticipants(count int) {
	globalManager.participants.Set(float64(count))
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueueError counts a rejected enqueue.
func RecordQueueEnqueueError(reason string) {
	globalManager.queueEnqueueErrors.WithLabelValues(reason).Inc()
}

// UpdateWorkerCount sets the number of running workers.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// RecordRepositoryUpdateLatency records store write latency.
func RecordRepositoryUpdateLatency(latencyMs float64) {
	globalManager.repositoryUpdateLatency.Observe(latencyMs)
}

// RecordRepositoryQueryLatency records store read latency.
func RecordRepositoryQueryLatency(latencyMs float64) {
	globalManager.repositoryQueryLatency.Observe(latencyMs)
}

// UpdateSystemMemoryUsage sets the heap allocation in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// Handler serves the custom registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(customRegistry, promhttp.HandlerOpts{})
}
