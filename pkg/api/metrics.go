package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/ssargent/visionfs/pkg/engine"
)

const (
	statusSuccess  = "success"
	statusError    = "error"
	statusNotFound = "not_found"
	statusLocked   = "locked"
)

// Metrics holds all Prometheus metrics for the API and the engine
type Metrics struct {
	// HTTP request metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight *prometheus.GaugeVec

	// Engine call metrics
	engineCallsTotal   *prometheus.CounterVec
	engineCallDuration *prometheus.HistogramVec

	// Records decoded and returned by the API
	recordsServedTotal *prometheus.CounterVec

	// API key authentication metrics
	authRequestsTotal *prometheus.CounterVec

	// Health check metrics
	healthChecksTotal *prometheus.CounterVec
}

var _ engine.Observer = (*Metrics)(nil)

// NewMetrics creates all Prometheus metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{
		// HTTP request metrics
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "visionfs_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "visionfs_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		httpRequestsInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "visionfs_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
			[]string{"method", "endpoint"},
		),

		// Engine call metrics
		engineCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "visionfs_engine_calls_total",
				Help: "Total number of ISAM engine calls",
			},
			[]string{"operation", "status"},
		),

		engineCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "visionfs_engine_call_duration_seconds",
				Help:    "ISAM engine call duration in seconds, gate wait included",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		recordsServedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "visionfs_records_served_total",
				Help: "Total number of records returned by the API",
			},
			[]string{"file"},
		),

		// Authentication metrics
		authRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "visionfs_auth_requests_total",
				Help: "Total number of authentication requests",
			},
			[]string{"status"},
		),

		// Health check metrics
		healthChecksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "visionfs_health_checks_total",
				Help: "Total number of health checks",
			},
			[]string{"status"},
		),
	}

	return m
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	statusCodeStr := strconv.Itoa(statusCode)

	m.httpRequestsTotal.WithLabelValues(method, endpoint, statusCodeStr).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// ObserveEngineCall records one engine call; it makes Metrics an engine.Observer
func (m *Metrics) ObserveEngineCall(op string, status engine.Status, d time.Duration) {
	m.engineCallsTotal.WithLabelValues(op, engineStatusLabel(status)).Inc()
	m.engineCallDuration.WithLabelValues(op).Observe(d.Seconds())
}

func engineStatusLabel(status engine.Status) string {
	switch {
	case status.IsOK():
		return statusSuccess
	case status.IsNotFound():
		return statusNotFound
	case status.IsLock():
		return statusLocked
	default:
		return statusError
	}
}

// RecordRecordsServed counts records returned for a file
func (m *Metrics) RecordRecordsServed(file string, n int) {
	m.recordsServedTotal.WithLabelValues(file).Add(float64(n))
}

// RecordAuthRequest records an authentication request
func (m *Metrics) RecordAuthRequest(success bool) {
	status := statusSuccess
	if !success {
		status = statusError
	}
	m.authRequestsTotal.WithLabelValues(status).Inc()
}

// RecordHealthCheck records a health check
func (m *Metrics) RecordHealthCheck(success bool) {
	status := statusSuccess
	if !success {
		status = statusError
	}
	m.healthChecksTotal.WithLabelValues(status).Inc()
}

// InstrumentHandler instruments an HTTP handler with metrics
func (m *Metrics) InstrumentHandler(method, endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		gauge := m.httpRequestsInFlight.WithLabelValues(method, endpoint)
		gauge.Inc()
		defer gauge.Dec()

		// Capture the status code
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		handler(rw, r)

		m.RecordHTTPRequest(method, endpoint, rw.statusCode, time.Since(start))
	}
}

// InstrumentAuthMiddleware instruments the authentication middleware
func (m *Metrics) InstrumentAuthMiddleware(next func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hasAPIKey := r.Header.Get(apiKeyHeader) != ""

			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next(h).ServeHTTP(rw, r)

			if hasAPIKey {
				m.RecordAuthRequest(rw.statusCode != http.StatusUnauthorized)
			}
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
