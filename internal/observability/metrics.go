package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Histogram bucket definitions.
var (
	httpDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	bodySizeBuckets     = []float64{100, 1024, 10240, 102400, 1048576}
)

// Metrics holds all Prometheus metric instruments for the bus service.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestSizeBytes  *prometheus.HistogramVec
	HTTPResponseSizeBytes *prometheus.HistogramVec

	// Bus metrics
	EmissionsTotal   *prometheus.CounterVec
	PausesTotal      *prometheus.CounterVec
	ResumesTotal     *prometheus.CounterVec
	EscalationsTotal *prometheus.CounterVec
	TrackedIncidents prometheus.Gauge
	PendingActions   prometheus.Gauge

	// Delivery metrics
	SubscriberErrorsTotal prometheus.Counter
	WatchDropsTotal       prometheus.Counter
	LiveConnections       prometheus.Gauge

	// Persistence metrics
	PersistFailuresTotal prometheus.Counter
	RestoredStatesTotal  prometheus.Counter
	RestoredActionsTotal prometheus.Counter
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		// HTTP
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signoff_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "signoff_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPRequestSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "signoff_http_request_size_bytes",
			Help:    "HTTP request body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPResponseSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "signoff_http_response_size_bytes",
			Help:    "HTTP response body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),

		// Bus
		EmissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signoff_state_emissions_total",
			Help: "Total number of workflow state emissions.",
		}, []string{"kind"}),
		PausesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signoff_pauses_total",
			Help: "Total number of pauses for human action.",
		}, []string{"action_kind"}),
		ResumesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signoff_resumes_total",
			Help: "Total number of resume attempts by outcome.",
		}, []string{"outcome"}),
		EscalationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signoff_escalations_total",
			Help: "Total number of timeout escalations by outcome.",
		}, []string{"outcome"}),
		TrackedIncidents: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signoff_tracked_incidents",
			Help: "Number of incidents with an in-memory workflow state.",
		}),
		PendingActions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signoff_pending_actions",
			Help: "Number of actions waiting for a human decision.",
		}),

		// Delivery
		SubscriberErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signoff_subscriber_errors_total",
			Help: "Total subscriber callback errors and panics.",
		}),
		WatchDropsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signoff_watch_dropped_total",
			Help: "Total state snapshots dropped because a watcher buffer was full.",
		}),
		LiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signoff_live_connections",
			Help: "Number of open live-update connections.",
		}),

		// Persistence
		PersistFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signoff_persist_failures_total",
			Help: "Total failed best-effort state persistence attempts.",
		}),
		RestoredStatesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signoff_restored_states_total",
			Help: "Total workflow states restored at startup.",
		}),
		RestoredActionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signoff_restored_actions_total",
			Help: "Total pending actions restored at startup.",
		}),
	}

	reg.MustRegister(
		// HTTP
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSizeBytes,
		m.HTTPResponseSizeBytes,
		// Bus
		m.EmissionsTotal,
		m.PausesTotal,
		m.ResumesTotal,
		m.EscalationsTotal,
		m.TrackedIncidents,
		m.PendingActions,
		// Delivery
		m.SubscriberErrorsTotal,
		m.WatchDropsTotal,
		m.LiveConnections,
		// Persistence
		m.PersistFailuresTotal,
		m.RestoredStatesTotal,
		m.RestoredActionsTotal,
	)

	return m
}

// --- Recording helpers ---

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration, reqSize, respSize int) {
	statusStr := strconv.Itoa(status)
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
	m.HTTPRequestSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(reqSize))
	m.HTTPResponseSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(respSize))
}

// RecordEmission records a workflow state emission.
func (m *Metrics) RecordEmission(kind string) {
	m.EmissionsTotal.WithLabelValues(kind).Inc()
}

// RecordPause records a pause for human action.
func (m *Metrics) RecordPause(actionKind string) {
	m.PausesTotal.WithLabelValues(actionKind).Inc()
}

// RecordResume records a resume attempt.
// Outcomes: resumed, replayed, not_found, mismatch.
func (m *Metrics) RecordResume(outcome string) {
	m.ResumesTotal.WithLabelValues(outcome).Inc()
}

// RecordEscalation records a timeout escalation.
// Outcomes: escalated, terminal.
func (m *Metrics) RecordEscalation(outcome string) {
	m.EscalationsTotal.WithLabelValues(outcome).Inc()
}

// SetTrackedIncidents sets the number of tracked incidents.
func (m *Metrics) SetTrackedIncidents(count float64) {
	m.TrackedIncidents.Set(count)
}

// SetPendingActions sets the number of pending actions.
func (m *Metrics) SetPendingActions(count float64) {
	m.PendingActions.Set(count)
}

// RecordSubscriberError records a subscriber callback error or panic.
func (m *Metrics) RecordSubscriberError() {
	m.SubscriberErrorsTotal.Inc()
}

// RecordWatchDrop records a snapshot dropped by a full watcher buffer.
func (m *Metrics) RecordWatchDrop() {
	m.WatchDropsTotal.Inc()
}

// RecordLiveConnect records an opened live-update connection.
func (m *Metrics) RecordLiveConnect() {
	m.LiveConnections.Inc()
}

// RecordLiveDisconnect records a closed live-update connection.
func (m *Metrics) RecordLiveDisconnect() {
	m.LiveConnections.Dec()
}

// RecordPersistFailure records a failed persistence attempt.
func (m *Metrics) RecordPersistFailure() {
	m.PersistFailuresTotal.Inc()
}

// RecordRestore records the states and pending actions recovered at startup.
func (m *Metrics) RecordRestore(states, actions int) {
	m.RestoredStatesTotal.Add(float64(states))
	m.RestoredActionsTotal.Add(float64(actions))
}

// --- HTTP Middleware ---

// MetricsMiddleware returns HTTP middleware that records request metrics using
// chi's route pattern (not the actual URL path) to avoid label cardinality
// explosion.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &metricsResponseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		duration := time.Since(start)
		pathPattern := routePattern(r)
		reqSize := 0
		if r.ContentLength > 0 {
			reqSize = int(r.ContentLength)
		}

		m.RecordHTTPRequest(r.Method, pathPattern, sw.status, duration, reqSize, sw.bytes)
	})
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// routePattern extracts chi's route pattern from the request context.
// Falls back to the raw URL path if no pattern is found.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	pattern := strings.Join(rctx.RoutePatterns, "")
	// chi route patterns have trailing /*, remove it.
	pattern = strings.TrimSuffix(pattern, "/*")
	if pattern == "" {
		return r.URL.Path
	}
	return pattern
}

// metricsResponseWriter wraps http.ResponseWriter to capture status and bytes.
type metricsResponseWriter struct {
	http.ResponseWriter
	status  int
	bytes   int
	written bool
}

func (w *metricsResponseWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *metricsResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.written = true
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer so
// connection upgrades work through the middleware.
func (w *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
