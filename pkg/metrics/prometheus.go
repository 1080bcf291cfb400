// Package metrics provides Prometheus metrics for the rubric grading toolchain.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the grading toolchain.
type Manager struct {
	namespace      string
	subsystem      string
	latencyBuckets []float64
	constLabels    map[string]string
	registry       prometheus.Registerer

	// Normalization
	normalizationRuns   *prometheus.CounterVec
	normalizedRecords   *prometheus.CounterVec
	distributionMean    *prometheus.GaugeVec
	distributionMin     *prometheus.GaugeVec
	distributionMax     *prometheus.GaugeVec
	meanDeviation       prometheus.Gauge
	clampedComponents   prometheus.Counter
	normalizationLength prometheus.Histogram

	// Grading
	assessments       *prometheus.CounterVec
	assessmentLatency prometheus.Histogram
	assessmentRetries prometheus.Counter
	recordsGraded     *prometheus.CounterVec
	commentsRefined   *prometheus.CounterVec

	// Store
	storeOperations *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:      "rubric",
		subsystem:      "grading",
		latencyBuckets: prometheus.DefBuckets,
		constLabels:    make(map[string]string),
		registry:       prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)
	labels := prometheus.Labels(m.constLabels)

	m.normalizationRuns = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "normalization_runs_total",
		Help:        "Normalization runs by outcome (normalized, skipped, failed)",
		ConstLabels: labels,
	}, []string{"outcome"})

	m.normalizedRecords = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "normalization_records_total",
		Help:        "Records handled by normalization runs by status (succeeded, skipped, failed)",
		ConstLabels: labels,
	}, []string{"status"})

	m.distributionMean = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "distribution_mean",
		Help:        "Cohort mean total score before and after the last normalization run",
		ConstLabels: labels,
	}, []string{"phase"})

	m.distributionMin = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "distribution_min",
		Help:        "Cohort minimum total score before and after the last normalization run",
		ConstLabels: labels,
	}, []string{"phase"})

	m.distributionMax = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "distribution_max",
		Help:        "Cohort maximum total score before and after the last normalization run",
		ConstLabels: labels,
	}, []string{"phase"})

	m.meanDeviation = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "normalization_mean_deviation",
		Help:        "Realized mean minus target mean after the last normalization run",
		ConstLabels: labels,
	})

	m.clampedComponents = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "normalization_clamped_components_total",
		Help:        "Component scores clamped to their rubric bounds during redistribution",
		ConstLabels: labels,
	})

	m.normalizationLength = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "normalization_duration_milliseconds",
		Help:        "Wall time of a normalization run in milliseconds",
		Buckets:     []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		ConstLabels: labels,
	})

	m.assessments = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "assessments_total",
		Help:        "Rubric criterion assessments by status (ok, failed)",
		ConstLabels: labels,
	}, []string{"status"})

	m.assessmentLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "assessment_latency_seconds",
		Help:        "Latency of a single criterion assessment including retries",
		Buckets:     m.latencyBuckets,
		ConstLabels: labels,
	})

	m.assessmentRetries = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "assessment_retries_total",
		Help:        "Retried assessment attempts after transient grader errors",
		ConstLabels: labels,
	})

	m.recordsGraded = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "records_graded_total",
		Help:        "Submissions graded by status (complete, partial, failed, skipped)",
		ConstLabels: labels,
	}, []string{"status"})

	m.commentsRefined = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "comments_refined_total",
		Help:        "Component comments processed by the tone refiner by status",
		ConstLabels: labels,
	}, []string{"status"})

	m.storeOperations = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "store_operations_total",
		Help:        "Record store operations by kind and result",
		ConstLabels: labels,
	}, []string{"op", "result"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_requests_total",
		Help:        "Total number of HTTP requests by endpoint and method",
		ConstLabels: labels,
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_request_duration_milliseconds",
		Help:        "HTTP request duration in milliseconds",
		Buckets:     []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		ConstLabels: labels,
	}, []string{"endpoint", "method", "status_code"})
}

// RecordNormalizationRun counts a normalization run by outcome.
func RecordNormalizationRun(outcome string) {
	globalManager.normalizationRuns.WithLabelValues(outcome).Inc()
}

// RecordNormalizedRecords adds n records with the given status.
func RecordNormalizedRecords(status string, n int) {
	if n <= 0 {
		return
	}
	globalManager.normalizedRecords.WithLabelValues(status).Add(float64(n))
}

// UpdateDistribution publishes cohort statistics for a phase ("before" or "after").
func UpdateDistribution(phase string, mean, lowest, highest float64) {
	globalManager.distributionMean.WithLabelValues(phase).Set(mean)
	globalManager.distributionMin.WithLabelValues(phase).Set(lowest)
	globalManager.distributionMax.WithLabelValues(phase).Set(highest)
}

// UpdateMeanDeviation records how far the realized mean landed from the target.
func UpdateMeanDeviation(delta float64) {
	globalManager.meanDeviation.Set(delta)
}

// RecordClampedComponents adds n clamped component scores.
func RecordClampedComponents(n int) {
	if n <= 0 {
		return
	}
	globalManager.clampedComponents.Add(float64(n))
}

// RecordNormalizationDuration records a run's wall time in milliseconds.
func RecordNormalizationDuration(ms float64) {
	globalManager.normalizationLength.Observe(ms)
}

// RecordAssessment counts a criterion assessment and observes its latency.
func RecordAssessment(status string, seconds float64) {
	globalManager.assessments.WithLabelValues(status).Inc()
	globalManager.assessmentLatency.Observe(seconds)
}

// RecordAssessmentRetry counts a retried grader call.
func RecordAssessmentRetry() {
	globalManager.assessmentRetries.Inc()
}

// RecordGradedRecord counts a submission by grading status.
func RecordGradedRecord(status string) {
	globalManager.recordsGraded.WithLabelValues(status).Inc()
}

// RecordCommentRefined counts a refined comment by status.
func RecordCommentRefined(status string) {
	globalManager.commentsRefined.WithLabelValues(status).Inc()
}

// RecordStoreOperation counts a store operation.
func RecordStoreOperation(op, result string) {
	globalManager.storeOperations.WithLabelValues(op, result).Inc()
}

// RecordHTTPRequest increments the HTTP request counter.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
