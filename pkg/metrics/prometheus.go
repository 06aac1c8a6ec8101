// Package metrics provides Prometheus metrics for the dispatch engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the dispatch service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Geo distance cache
	distanceLookups   *prometheus.CounterVec
	distanceMemoReuse prometheus.Counter
	routeCacheWrites  *prometheus.CounterVec
	routeLookupTime   *prometheus.HistogramVec

	// External geocoding
	geocodeRequests *prometheus.CounterVec
	geocodeLatency  *prometheus.HistogramVec

	// Dispatch decisions
	coverageEligible       prometheus.Histogram
	advisoryRadiusExceeded prometheus.Counter
	slotsEmitted           prometheus.Counter
	availabilityLatency    prometheus.Histogram
	calendarDays           *prometheus.CounterVec
	calendarLatency        prometheus.Histogram
	autoAssignments        *prometheus.CounterVec
	assignmentConflicts    prometheus.Counter
	recommendations        *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Warm-up queue
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueueRate       prometheus.Counter
	queueDequeueRate       prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Warm-up workers
	workerActiveCount       prometheus.Gauge
	workerIdleCount         prometheus.Gauge
	workerMessagesPerSecond prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "dispatch",
		subsystem:        "engine",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) name(base string) string {
	if m.metricPrefix == "" {
		return base
	}
	return m.metricPrefix + "_" + base
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	if buckets == nil {
		buckets = m.histogramBuckets
	}
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.customLabels,
	}
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every metric
	auto := promauto.With(m.registry)

	m.distanceLookups = auto.NewCounterVec(
		m.counterOpts("distance_lookups_total", "Distance resolutions by tier and result"),
		[]string{"tier", "result"},
	)
	m.distanceMemoReuse = auto.NewCounter(
		m.counterOpts("distance_memo_reuse_total", "Pairs answered from a classification pass memo"),
	)
	m.routeCacheWrites = auto.NewCounterVec(
		m.counterOpts("route_cache_writes_total", "Route cache insert-or-ignore outcomes"),
		[]string{"result"},
	)
	m.routeLookupTime = auto.NewHistogramVec(
		m.histogramOpts("distance_lookup_latency_milliseconds", "Latency of a distance resolution per tier", nil),
		[]string{"tier"},
	)

	m.geocodeRequests = auto.NewCounterVec(
		m.counterOpts("geocode_requests_total", "External geocoding requests by provider and result"),
		[]string{"provider", "result"},
	)
	m.geocodeLatency = auto.NewHistogramVec(
		m.histogramOpts("geocode_latency_milliseconds", "External geocoding latency", nil),
		[]string{"provider"},
	)

	m.coverageEligible = auto.NewHistogram(
		m.histogramOpts("coverage_eligible_workers", "Eligible workers returned by coverage resolution",
			[]float64{0, 1, 2, 3, 5, 8, 13, 21}),
	)
	m.advisoryRadiusExceeded = auto.NewCounter(
		m.counterOpts("coverage_radius_exceeded_total", "Eligible workers whose base is beyond their travel radius"),
	)
	m.slotsEmitted = auto.NewCounter(
		m.counterOpts("availability_slots_emitted_total", "Bookable slots emitted"),
	)
	m.availabilityLatency = auto.NewHistogram(
		m.histogramOpts("availability_latency_milliseconds", "Slot generation latency", nil),
	)
	m.calendarDays = auto.NewCounterVec(
		m.counterOpts("calendar_days_total", "Calendar days classified by status"),
		[]string{"status"},
	)
	m.calendarLatency = auto.NewHistogram(
		m.histogramOpts("calendar_latency_milliseconds", "Month viability classification latency", nil),
	)
	m.autoAssignments = auto.NewCounterVec(
		m.counterOpts("auto_assignments_total", "Job intake assignment outcomes"),
		[]string{"outcome"},
	)
	m.assignmentConflicts = auto.NewCounter(
		m.counterOpts("assignment_conflicts_total", "Assignments rejected by compare-and-swap or collision"),
	)
	m.recommendations = auto.NewCounterVec(
		m.counterOpts("recommendations_total", "Recommender suggestions returned"),
		[]string{"mode", "kind"},
	)

	m.httpRequests = auto.NewCounterVec(
		m.counterOpts("http_requests_total", "Total number of HTTP requests"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds", nil),
		[]string{"endpoint", "method", "status_code"},
	)

	m.queueSize = auto.NewGauge(m.gaugeOpts("warmup_queue_size", "Route pairs waiting in the warm-up queue"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("warmup_queue_capacity", "Warm-up queue capacity"))
	m.queueUtilization = auto.NewGauge(m.gaugeOpts("warmup_queue_utilization_ratio", "Warm-up queue utilization (0-1)"))
	m.queueEnqueueRate = auto.NewCounter(m.counterOpts("warmup_queue_enqueue_total", "Pairs enqueued"))
	m.queueDequeueRate = auto.NewCounter(m.counterOpts("warmup_queue_dequeue_total", "Pairs dequeued"))
	m.queueEnqueueErrors = auto.NewCounter(m.counterOpts("warmup_queue_enqueue_errors_total", "Rejected enqueues"))
	m.queueProcessingLatency = auto.NewHistogram(
		m.histogramOpts("warmup_queue_enqueue_latency_milliseconds", "Enqueue latency", nil),
	)

	m.workerActiveCount = auto.NewGauge(m.gaugeOpts("warmup_workers_active", "Active warm-up workers"))
	m.workerIdleCount = auto.NewGauge(m.gaugeOpts("warmup_workers_idle", "Idle warm-up workers"))
	m.workerMessagesPerSecond = auto.NewGauge(m.gaugeOpts("warmup_pairs_per_second", "Pairs resolved per second"))
	m.workerProcessingLatency = auto.NewHistogram(
		m.histogramOpts("warmup_pair_latency_milliseconds", "Time to resolve one warm-up pair", nil),
	)
	m.workerErrorRate = auto.NewCounter(m.counterOpts("warmup_errors_total", "Warm-up pair failures"))

	m.errorRateByComponent = auto.NewCounterVec(
		m.counterOpts("errors_by_component_total", "Total number of errors by component"),
		[]string{"component", "error_type"},
	)
	m.errorRateByType = auto.NewCounterVec(
		m.counterOpts("errors_by_type_total", "Total number of errors by type"),
		[]string{"error_type", "severity"},
	)
	m.errorRateByEndpoint = auto.NewCounterVec(
		m.counterOpts("errors_by_endpoint_total", "Total number of errors by endpoint"),
		[]string{"endpoint", "method", "error_type"},
	)
	m.errorLatency = auto.NewHistogramVec(
		m.histogramOpts("error_latency_milliseconds", "Latency of operations that resulted in errors", nil),
		[]string{"component", "error_type"},
	)

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes", "System memory usage in bytes"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count", "Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(
		m.histogramOpts("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
			[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}),
	)
}

// Geo distance cache.

// RecordDistanceLookup counts a distance resolution. Result is one of
// hit, computed, unavailable or error.
func RecordDistanceLookup(tier, result string) {
	globalManager.distanceLookups.WithLabelValues(tier, result).Inc()
}

// RecordDistanceLatency records how long a tier took to answer.
func RecordDistanceLatency(tier string, latencyMs float64) {
	globalManager.routeLookupTime.WithLabelValues(tier).Observe(latencyMs)
}

// RecordDistanceMemoReuse counts a pair answered from a pass memo.
func RecordDistanceMemoReuse() {
	globalManager.distanceMemoReuse.Inc()
}

// RecordRouteCacheWrite counts a cache write outcome: inserted, existing or error.
func RecordRouteCacheWrite(result string) {
	globalManager.routeCacheWrites.WithLabelValues(result).Inc()
}

// External geocoding.

// RecordGeocodeRequest counts an external lookup by outcome (ok, miss,
// cached_miss, throttled, disabled or error).
func RecordGeocodeRequest(provider, result string) {
	globalManager.geocodeRequests.WithLabelValues(provider, result).Inc()
}

// RecordGeocodeLatency records external lookup latency.
func RecordGeocodeLatency(provider string, latencyMs float64) {
	globalManager.geocodeLatency.WithLabelValues(provider).Observe(latencyMs)
}

// Dispatch decisions.

// RecordCoverageResult observes the size of a coverage result.
func RecordCoverageResult(eligible int) {
	globalManager.coverageEligible.Observe(float64(eligible))
}

// RecordAdvisoryRadiusExceeded counts an eligible worker outside their radius.
func RecordAdvisoryRadiusExceeded() {
	globalManager.advisoryRadiusExceeded.Inc()
}

// RecordSlotsEmitted adds n emitted slots.
func RecordSlotsEmitted(n int) {
	globalManager.slotsEmitted.Add(float64(n))
}

// RecordAvailabilityLatency records slot generation latency.
func RecordAvailabilityLatency(latencyMs float64) {
	globalManager.availabilityLatency.Observe(latencyMs)
}

// RecordCalendarDay counts a classified day.
func RecordCalendarDay(status string) {
	globalManager.calendarDays.WithLabelValues(status).Inc()
}

// RecordCalendarLatency records month classification latency.
func RecordCalendarLatency(latencyMs float64) {
	globalManager.calendarLatency.Observe(latencyMs)
}

// RecordAutoAssignment counts an intake outcome: confirmed, pending or no_coverage.
func RecordAutoAssignment(outcome string) {
	globalManager.autoAssignments.WithLabelValues(outcome).Inc()
}

// RecordAssignmentConflict counts a rejected assignment.
func RecordAssignmentConflict() {
	globalManager.assignmentConflicts.Inc()
}

// RecordRecommendations adds n suggestions of a kind for a recommender mode.
func RecordRecommendations(mode, kind string, n int) {
	globalManager.recommendations.WithLabelValues(mode, kind).Add(float64(n))
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

// Queue Metrics Functions.

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
	globalManager.queueEnqueueRate.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeueRate.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// RecordQueueProcessingLatency records queue processing latency.
func RecordQueueProcessingLatency(latencyMs float64) {
	globalManager.queueProcessingLatency.Observe(latencyMs)
}

// Worker Metrics Functions.

// UpdateWorkerActiveCount sets the number of active workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// UpdateWorkerIdleCount sets the number of idle workers.
func UpdateWorkerIdleCount(count int) {
	globalManager.workerIdleCount.Set(float64(count))
}

// UpdateWorkerMessagesPerSecond sets the average pairs resolved per second.
func UpdateWorkerMessagesPerSecond(rate float64) {
	globalManager.workerMessagesPerSecond.Set(rate)
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrorRate.Inc()
}

// Error Metrics Functions.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorLatency records the latency of an operation that resulted in an error.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// System Performance Metrics Functions.

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

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
