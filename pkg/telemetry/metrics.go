package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for seeding runs, content API calls
// and change notifications. A nil or disabled *Metrics is a no-op.
type Metrics struct {
	config MetricsConfig

	// Seed run metrics
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	activeRuns    prometheus.Gauge

	// Entity metrics
	entities       *prometheus.CounterVec
	entityDuration *prometheus.HistogramVec

	// Error metrics
	errorsByClass *prometheus.CounterVec
	errorsByCode  *prometheus.CounterVec

	// Content API metrics
	apiRequests *prometheus.CounterVec
	apiDuration *prometheus.HistogramVec

	// Notifier metrics
	lifecycleEvents *prometheus.CounterVec
	notifications   *prometheus.CounterVec
	pendingFlush    prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.Buckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		runsStarted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "seed_runs_started_total",
				Help:      "Total number of seed runs started",
			},
		),
		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "seed_runs_completed_total",
				Help:      "Total number of seed runs completed",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "seed_run_duration_seconds",
				Help:      "Duration of seed runs in seconds",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
			},
			[]string{"status"},
		),
		activeRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "seed_runs_active",
				Help:      "Current number of seed runs in progress",
			},
		),

		entities: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "seed_entities_total",
				Help:      "Entities processed by seed runs, by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		entityDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "seed_entity_duration_seconds",
				Help:      "Time spent ensuring a single entity exists",
				Buckets:   buckets,
			},
			[]string{"kind"},
		),

		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by error class",
			},
			[]string{"class"},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_code_total",
				Help:      "Total number of errors by error code",
			},
			[]string{"code"},
		),

		apiRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "content_api_requests_total",
				Help:      "Requests issued to the content API",
			},
			[]string{"resource", "method", "code"},
		),
		apiDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "content_api_request_duration_seconds",
				Help:      "Content API request latency in seconds",
				Buckets:   buckets,
			},
			[]string{"resource", "method"},
		),

		lifecycleEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lifecycle_events_total",
				Help:      "Content lifecycle events observed by the notifier",
			},
			[]string{"action", "result"},
		),
		notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_total",
				Help:      "Change notifications dispatched, by result",
			},
			[]string{"result"},
		),
		pendingFlush: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "notifier_flush_pending",
				Help:      "1 while a change notification is scheduled",
			},
		),
	}

	registry.MustRegister(
		m.runsStarted,
		m.runsCompleted,
		m.runDuration,
		m.activeRuns,
		m.entities,
		m.entityDuration,
		m.errorsByClass,
		m.errorsByCode,
		m.apiRequests,
		m.apiDuration,
		m.lifecycleEvents,
		m.notifications,
		m.pendingFlush,
	)

	return m, nil
}

func (m *Metrics) enabled() bool {
	return m != nil && m.registry != nil
}

// Seed Run Metrics

// RecordRunStarted increments the counter for started runs.
func (m *Metrics) RecordRunStarted() {
	if !m.enabled() {
		return
	}
	m.runsStarted.Inc()
	m.activeRuns.Inc()
}

// RecordRunCompleted records a completed run with its status and duration.
func (m *Metrics) RecordRunCompleted(status string, duration time.Duration) {
	if !m.enabled() {
		return
	}
	m.runsCompleted.WithLabelValues(status).Inc()
	m.runDuration.WithLabelValues(status).Observe(duration.Seconds())
	m.activeRuns.Dec()
}

// RecordEntity records the outcome of ensuring one entity.
func (m *Metrics) RecordEntity(kind, outcome string, duration time.Duration) {
	if !m.enabled() {
		return
	}
	m.entities.WithLabelValues(kind, outcome).Inc()
	m.entityDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordError records an error by class and optionally by code.
func (m *Metrics) RecordError(errorClass, errorCode string) {
	if !m.enabled() {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
	if errorCode != "" {
		m.errorsByCode.WithLabelValues(errorCode).Inc()
	}
}

// Content API Metrics

// RecordAPIRequest records one content API request. status 0 means the
// request never got a response.
func (m *Metrics) RecordAPIRequest(resource, method string, status int, duration time.Duration) {
	if !m.enabled() {
		return
	}
	code := "error"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	m.apiRequests.WithLabelValues(resource, method, code).Inc()
	m.apiDuration.WithLabelValues(resource, method).Observe(duration.Seconds())
}

// Notifier Metrics

// RecordLifecycleEvent records a received lifecycle webhook. result is one
// of observed, ignored, invalid or unauthorized.
func (m *Metrics) RecordLifecycleEvent(action, result string) {
	if !m.enabled() {
		return
	}
	m.lifecycleEvents.WithLabelValues(action, result).Inc()
}

// RecordNotification records a flush. result is one of sent, failed or skipped.
func (m *Metrics) RecordNotification(result string) {
	if !m.enabled() {
		return
	}
	m.notifications.WithLabelValues(result).Inc()
}

// SetFlushPending reports whether a notification is currently scheduled.
func (m *Metrics) SetFlushPending(pending bool) {
	if !m.enabled() {
		return
	}
	if pending {
		m.pendingFlush.Set(1)
	} else {
		m.pendingFlush.Set(0)
	}
}

// Registry returns the underlying registry, or nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if !m.enabled() {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Path returns the configured metrics path.
func (m *Metrics) Path() string {
	if m == nil || m.config.Path == "" {
		return "/metrics"
	}
	return m.config.Path
}
