// Package metrics provides Prometheus metrics for the usage dashboard service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the usagedash service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Telemetry source
	telemetryPages         prometheus.Counter
	telemetryPageFailures  *prometheus.CounterVec
	telemetryEvents        prometheus.Counter
	telemetryDuplicates    prometheus.Counter
	telemetryFetchDuration prometheus.Histogram

	// Attribution
	attributionRules *prometheus.CounterVec

	// Ledger source
	ledgerQueries       *prometheus.CounterVec
	ledgerQueryLatency  *prometheus.HistogramVec
	ledgerScalingFactor prometheus.Gauge
	ledgerSampled       prometheus.Counter
	ledgerRenormalized  prometheus.Counter

	// Façade
	fallbacks   *prometheus.CounterVec
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Error Metrics
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec

	// System Performance Metrics
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
		namespace:        "usagedash",
		subsystem:        "dashboard",
		histogramBuckets: prometheus.ExponentialBuckets(1, 2, 18), // 1ms .. ~131s
		customLabels:     make(map[string]string),
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
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) histogramOpts(name, help string) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	}
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	m.telemetryPages = auto.NewCounter(m.counterOpts(
		"telemetry_pages_total", "Total number of telemetry pages fetched"))
	m.telemetryPageFailures = auto.NewCounterVec(m.counterOpts(
		"telemetry_page_failures_total", "Telemetry page failures by page position (first or later)"),
		[]string{"position"})
	m.telemetryEvents = auto.NewCounter(m.counterOpts(
		"telemetry_events_total", "Total number of telemetry events fetched"))
	m.telemetryDuplicates = auto.NewCounter(m.counterOpts(
		"telemetry_duplicate_events_total", "Telemetry events dropped because their id was already seen"))
	m.telemetryFetchDuration = auto.NewHistogram(m.histogramOpts(
		"telemetry_fetch_duration_milliseconds", "Duration of a full paginated telemetry fetch"))

	m.attributionRules = auto.NewCounterVec(m.counterOpts(
		"attribution_resolved_total", "Events attributed, by the rule that matched"),
		[]string{"rule"})

	m.ledgerQueries = auto.NewCounterVec(m.counterOpts(
		"ledger_queries_total", "Ledger queries by operation and status"),
		[]string{"op", "status"})
	m.ledgerQueryLatency = auto.NewHistogramVec(m.histogramOpts(
		"ledger_query_duration_milliseconds", "Ledger query duration by operation"),
		[]string{"op"})
	m.ledgerScalingFactor = auto.NewGauge(m.gaugeOpts(
		"ledger_scaling_factor", "Scaling factor applied by the most recent ledger reconciliation"))
	m.ledgerSampled = auto.NewCounter(m.counterOpts(
		"ledger_sampled_reconciliations_total", "Ledger reconciliations that used a sample instead of a full scan"))
	m.ledgerRenormalized = auto.NewCounter(m.counterOpts(
		"ledger_renormalized_total", "Ledger breakdowns that needed the whole-breakdown correction"))

	m.fallbacks = auto.NewCounterVec(m.counterOpts(
		"fallbacks_total", "Degraded path substitutions by stage"),
		[]string{"stage"})
	m.cacheHits = auto.NewCounterVec(m.counterOpts(
		"cache_hits_total", "Cache hits by cache name"),
		[]string{"cache"})
	m.cacheMisses = auto.NewCounterVec(m.counterOpts(
		"cache_misses_total", "Cache misses by cache name"),
		[]string{"cache"})

	m.httpRequests = auto.NewCounterVec(m.counterOpts(
		"http_requests_total", "Total number of HTTP requests by endpoint and method"),
		[]string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts(
		"http_request_duration_milliseconds", "HTTP request duration in milliseconds"),
		[]string{"endpoint", "method", "status_code"})

	m.errorRateByComponent = auto.NewCounterVec(m.counterOpts(
		"errors_by_component_total", "Total number of errors by component and type"),
		[]string{"component", "error_type"})
	m.errorRateByType = auto.NewCounterVec(m.counterOpts(
		"errors_by_type_total", "Total number of errors by type and severity"),
		[]string{"error_type", "severity"})
	m.errorRateByEndpoint = auto.NewCounterVec(m.counterOpts(
		"errors_by_endpoint_total", "Total number of errors by endpoint"),
		[]string{"endpoint", "method", "error_type"})
	m.errorLatency = auto.NewHistogramVec(m.histogramOpts(
		"error_latency_milliseconds", "Latency of operations that resulted in errors"),
		[]string{"component", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts(
		"system_memory_usage_bytes", "Current memory usage in bytes"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts(
		"system_goroutine_count", "Current number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(m.histogramOpts(
		"system_gc_pause_time_milliseconds", "Average GC pause time in milliseconds"))
}

// Telemetry source.

// RecordTelemetryPage increments the fetched pages counter.
func RecordTelemetryPage() {
	globalManager.telemetryPages.Inc()
}

// RecordTelemetryPageFailure records a failed page; position is "first" or "later".
func RecordTelemetryPageFailure(position string) {
	globalManager.telemetryPageFailures.WithLabelValues(position).Inc()
}

// RecordTelemetryEvents adds n fetched events.
func RecordTelemetryEvents(n int) {
	globalManager.telemetryEvents.Add(float64(n))
}

// RecordTelemetryDuplicate increments the duplicate event counter.
func RecordTelemetryDuplicate() {
	globalManager.telemetryDuplicates.Inc()
}

// RecordTelemetryFetchDuration records a complete fetch duration in milliseconds.
func RecordTelemetryFetchDuration(ms float64) {
	globalManager.telemetryFetchDuration.Observe(ms)
}

// RecordAttribution increments the counter for the attribution rule that matched.
func RecordAttribution(rule string) {
	globalManager.attributionRules.WithLabelValues(rule).Inc()
}

// Ledger source.

// RecordLedgerQuery records one ledger query outcome and latency.
func RecordLedgerQuery(op string, err error, ms float64) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	globalManager.ledgerQueries.WithLabelValues(op, status).Inc()
	globalManager.ledgerQueryLatency.WithLabelValues(op).Observe(ms)
}

// UpdateLedgerScalingFactor sets the last applied scaling factor.
func UpdateLedgerScalingFactor(factor float64) {
	globalManager.ledgerScalingFactor.Set(factor)
}

// RecordLedgerSampled increments the sampled reconciliation counter.
func RecordLedgerSampled() {
	globalManager.ledgerSampled.Inc()
}

// RecordLedgerRenormalized increments the renormalization counter.
func RecordLedgerRenormalized() {
	globalManager.ledgerRenormalized.Inc()
}

// Façade.

// RecordFallback records a degraded-path substitution at the given stage.
func RecordFallback(stage string) {
	globalManager.fallbacks.WithLabelValues(stage).Inc()
}

// RecordCacheHit records a cache hit.
func RecordCacheHit(cache string) {
	globalManager.cacheHits.WithLabelValues(cache).Inc()
}

// RecordCacheMiss records a cache miss.
func RecordCacheMiss(cache string) {
	globalManager.cacheMisses.WithLabelValues(cache).Inc()
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

// Errors.

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

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
