package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// RequestLatency tracks HTTP request latency by endpoint and method
	RequestLatency *prometheus.HistogramVec
	// HTTPRequestsTotal total HTTP requests
	HTTPRequestsTotal *prometheus.CounterVec
	// HTTPRequestsInFlight current HTTP requests being processed
	HTTPRequestsInFlight prometheus.Gauge
	// ErrorCounter counts errors by type and endpoint
	ErrorCounter *prometheus.CounterVec
	// LiveSessionsActive tracks currently open live update sessions
	LiveSessionsActive prometheus.Gauge
	// LivePollTicks counts live poll ticks by result
	LivePollTicks *prometheus.CounterVec
	// LiveEventsEmitted counts engagement events delivered to clients
	LiveEventsEmitted *prometheus.CounterVec
	// CredentialSelections counts credential pool selections by provider
	CredentialSelections *prometheus.CounterVec
	// GenerationRequests counts generation requests by provider and status
	GenerationRequests *prometheus.CounterVec
	// GenerationLatency tracks generation latency by provider
	GenerationLatency *prometheus.HistogramVec
	// registry is the custom registry for this metrics instance
	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		RequestLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_latency_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"endpoint", "method", "status"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"endpoint", "method", "status"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),
		ErrorCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of errors",
			},
			[]string{"type", "endpoint", "method"},
		),
		LiveSessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "live_sessions_active",
				Help:      "Current number of open live update sessions",
			},
		),
		LivePollTicks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "live_poll_ticks_total",
				Help:      "Total number of live session poll ticks",
			},
			[]string{"result"},
		),
		LiveEventsEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "live_events_emitted_total",
				Help:      "Total number of engagement events delivered over live sessions",
			},
			[]string{"kind"},
		),
		CredentialSelections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "credential_selections_total",
				Help:      "Total number of credential pool selections",
			},
			[]string{"provider"},
		),
		GenerationRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generation_requests_total",
				Help:      "Total number of generation requests",
			},
			[]string{"provider", "status"},
		),
		GenerationLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "generation_latency_seconds",
				Help:      "Generation request latency in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0, 120.0},
			},
			[]string{"provider"},
		),
	}

	// Register metrics with custom registry
	registry.MustRegister(
		m.RequestLatency,
		m.HTTPRequestsTotal,
		m.HTTPRequestsInFlight,
		m.ErrorCounter,
		m.LiveSessionsActive,
		m.LivePollTicks,
		m.LiveEventsEmitted,
		m.CredentialSelections,
		m.GenerationRequests,
		m.GenerationLatency,
	)

	return m
}

// Handler returns a Prometheus handler for these metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequestLatency records the latency of an HTTP request
func (m *Metrics) RecordRequestLatency(endpoint, method, status string, durationSeconds float64) {
	m.RequestLatency.WithLabelValues(endpoint, method, status).Observe(durationSeconds)
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(endpoint, method, status string) {
	m.HTTPRequestsTotal.WithLabelValues(endpoint, method, status).Inc()
}

// IncHTTPRequestsInFlight increments the in-flight requests counter
func (m *Metrics) IncHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Inc()
}

// DecHTTPRequestsInFlight decrements the in-flight requests counter
func (m *Metrics) DecHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Dec()
}

// RecordError records an error
func (m *Metrics) RecordError(errorType, endpoint, method string) {
	m.ErrorCounter.WithLabelValues(errorType, endpoint, method).Inc()
}

// LiveSessionStarted bumps the active session gauge
func (m *Metrics) LiveSessionStarted() {
	m.LiveSessionsActive.Inc()
}

// LiveSessionStopped lowers the active session gauge
func (m *Metrics) LiveSessionStopped() {
	m.LiveSessionsActive.Dec()
}

// RecordLivePollTick records one live poll tick with its result
func (m *Metrics) RecordLivePollTick(result string) {
	m.LivePollTicks.WithLabelValues(result).Inc()
}

// RecordLiveEvents records delivered engagement events of one kind
func (m *Metrics) RecordLiveEvents(kind string, count int) {
	if count <= 0 {
		return
	}
	m.LiveEventsEmitted.WithLabelValues(kind).Add(float64(count))
}

// RecordCredentialSelection records a credential pool selection
func (m *Metrics) RecordCredentialSelection(provider string) {
	m.CredentialSelections.WithLabelValues(provider).Inc()
}

// RecordGeneration records a generation request outcome
func (m *Metrics) RecordGeneration(provider, status string, durationSeconds float64) {
	m.GenerationRequests.WithLabelValues(provider, status).Inc()
	m.GenerationLatency.WithLabelValues(provider).Observe(durationSeconds)
}
