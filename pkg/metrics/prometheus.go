// Package metrics provides Prometheus metrics for the growth leveling service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector exported by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Leveling
	submissions       prometheus.Counter
	submissionsDup    prometheus.Counter
	levelCommits      *prometheus.CounterVec
	gatingRejections  *prometheus.CounterVec
	publications      *prometheus.CounterVec
	reconcileLatency  prometheus.Histogram
	registeredRecords prometheus.Gauge

	// Record growth
	growthBytes    prometheus.Counter
	growthLamports prometheus.Counter
	growthFailures prometheus.Counter

	// Ledger
	ledgerTxLatency  prometheus.Histogram
	ledgerTxAborted  *prometheus.CounterVec
	ledgerAccounts   prometheus.Gauge
	ledgerPersistErr prometheus.Counter

	// Queue
	queueSize        prometheus.Gauge
	queueCapacity    prometheus.Gauge
	queueEnqueued    prometheus.Counter
	queueDequeued    prometheus.Counter
	queueRejected    *prometheus.CounterVec
	queueUtilization prometheus.Gauge

	// Workers
	workerActive      prometheus.Gauge
	workerLatency     prometheus.Histogram
	workerErrors      prometheus.Counter
	workerThroughput  prometheus.Gauge
	sweepRuns         prometheus.Counter
	sweepRecordsTotal prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec
	errorsByEndpoint  *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // registry without default Go collectors

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager. Collectors are registered on the
// configured registry (prometheus.DefaultRegisterer unless overridden).
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "growth",
		subsystem:        "leveling",
		histogramBuckets: []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		constLabels:      prometheus.Labels{},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: m.histogramBuckets,
	})
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	m.submissions = m.counter("submissions_total", "Review submissions applied to score records")
	m.submissionsDup = m.counter("submissions_duplicate_total", "Review submissions dropped as duplicates")
	m.levelCommits = m.counterVec("level_commits_total", "Committed level changes by path", "path")
	m.gatingRejections = m.counterVec("gating_rejections_total", "Candidate level changes discarded by the gate", "reason")
	m.publications = m.counterVec("publications_total", "Badge metadata publications by outcome", "outcome")
	m.reconcileLatency = m.histogram("reconcile_latency_milliseconds", "Latency of one reconcile transaction in milliseconds")
	m.registeredRecords = m.gauge("score_records", "Number of score records in the ledger")

	m.growthBytes = m.counter("growth_bytes_total", "Bytes added to records by the growth manager")
	m.growthLamports = m.counter("growth_lamports_total", "Lamports transferred to fund record growth")
	m.growthFailures = m.counter("growth_failures_total", "Record growth attempts that aborted")

	m.ledgerTxLatency = m.histogram("ledger_tx_latency_milliseconds", "Ledger transaction latency in milliseconds")
	m.ledgerTxAborted = m.counterVec("ledger_tx_aborted_total", "Ledger transactions rolled back", "driver")
	m.ledgerAccounts = m.gauge("ledger_accounts", "Accounts held by the ledger")
	m.ledgerPersistErr = m.counter("ledger_persist_errors_total", "Snapshot persistence failures")

	m.queueSize = m.gauge("queue_size", "Current size of the submission queue")
	m.queueCapacity = m.gauge("queue_capacity", "Configured capacity of the submission queue")
	m.queueEnqueued = m.counter("queue_enqueued_total", "Submissions enqueued")
	m.queueDequeued = m.counter("queue_dequeued_total", "Submissions dequeued")
	m.queueRejected = m.counterVec("queue_rejected_total", "Submissions refused by the queue", "reason")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue size divided by capacity")

	m.workerActive = m.gauge("worker_active", "Running submission workers")
	m.workerLatency = m.histogram("worker_processing_latency_milliseconds", "Worker processing latency in milliseconds")
	m.workerErrors = m.counter("worker_errors_total", "Submissions that failed in a worker")
	m.workerThroughput = m.gauge("worker_messages_per_second", "Worker throughput")
	m.sweepRuns = m.counter("sweep_runs_total", "Periodic reconcile sweeps executed")
	m.sweepRecordsTotal = m.counter("sweep_records_total", "Score records visited by reconcile sweeps")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: "http_request_duration_milliseconds",
		Help: "HTTP request duration in milliseconds", ConstLabels: m.constLabels, Buckets: m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.errorsByComponent = m.counterVec("errors_by_component_total", "Errors by component and type", "component", "error_type")
	m.errorsByEndpoint = m.counterVec("errors_by_endpoint_total", "HTTP errors by endpoint", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Number of goroutines")
}

// RecordSubmission counts one applied review submission.
func RecordSubmission() { globalManager.submissions.Inc() }

// RecordSubmissionDuplicate counts one submission dropped as a duplicate.
func RecordSubmissionDuplicate() { globalManager.submissionsDup.Inc() }

// RecordLevelCommit counts a committed level change on path ("submit" or "override").
func RecordLevelCommit(path string) { globalManager.levelCommits.WithLabelValues(path).Inc() }

// RecordGatingRejection counts a discarded candidate by reason ("cooldown", "quorum").
func RecordGatingRejection(reason string) { globalManager.gatingRejections.WithLabelValues(reason).Inc() }

// RecordPublication counts a publication attempt by outcome ("published", "unverified", "failed").
func RecordPublication(outcome string) { globalManager.publications.WithLabelValues(outcome).Inc() }

// RecordReconcileLatency observes the latency of one reconcile transaction.
func RecordReconcileLatency(ms float64) { globalManager.reconcileLatency.Observe(ms) }

// UpdateScoreRecords sets the number of score records.
func UpdateScoreRecords(n int) { globalManager.registeredRecords.Set(float64(n)) }

// RecordGrowth records one successful grow step.
func RecordGrowth(bytes int, lamports uint64) {
	globalManager.growthBytes.Add(float64(bytes))
	globalManager.growthLamports.Add(float64(lamports))
}

// RecordGrowthFailure counts an aborted grow step.
func RecordGrowthFailure() { globalManager.growthFailures.Inc() }

// RecordLedgerTxLatency observes one ledger transaction.
func RecordLedgerTxLatency(ms float64) { globalManager.ledgerTxLatency.Observe(ms) }

// RecordLedgerTxAborted counts a rolled back transaction.
func RecordLedgerTxAborted(driver string) { globalManager.ledgerTxAborted.WithLabelValues(driver).Inc() }

// UpdateLedgerAccounts sets the account count.
func UpdateLedgerAccounts(n int) { globalManager.ledgerAccounts.Set(float64(n)) }

// RecordLedgerPersistError counts a snapshot persistence failure.
func RecordLedgerPersistError() { globalManager.ledgerPersistErr.Inc() }

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(ratio float64) { globalManager.queueUtilization.Set(ratio) }

// RecordQueueEnqueue counts an enqueue.
func RecordQueueEnqueue() { globalManager.queueEnqueued.Inc() }

// RecordQueueDequeue counts a dequeue.
func RecordQueueDequeue() { globalManager.queueDequeued.Inc() }

// RecordQueueRejected counts a refused enqueue by reason.
func RecordQueueRejected(reason string) { globalManager.queueRejected.WithLabelValues(reason).Inc() }

// UpdateWorkerActive sets the running worker count.
func UpdateWorkerActive(n int) { globalManager.workerActive.Set(float64(n)) }

// RecordWorkerLatency observes worker processing latency.
func RecordWorkerLatency(ms float64) { globalManager.workerLatency.Observe(ms) }

// RecordWorkerError counts a failed submission in a worker.
func RecordWorkerError() { globalManager.workerErrors.Inc() }

// UpdateWorkerThroughput sets messages processed per second.
func UpdateWorkerThroughput(rate float64) { globalManager.workerThroughput.Set(rate) }

// RecordSweep counts one sweep and the records it visited.
func RecordSweep(records int) {
	globalManager.sweepRuns.Inc()
	globalManager.sweepRecordsTotal.Add(float64(records))
}

// RecordHTTPRequest records an HTTP request and its duration.
func RecordHTTPRequest(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records an HTTP error.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage sets heap bytes.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the goroutine count.
func UpdateSystemGoroutineCount(count int) { globalManager.systemGoroutineCount.Set(float64(count)) }

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
