package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Interpretation metrics
	interpretationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interpretations_total",
			Help: "Total number of interpretation requests by variant and outcome code",
		},
		[]string{"variant", "outcome"},
	)

	aiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_request_duration_seconds",
			Help:    "Chat-completion round trip in seconds",
			Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"variant", "status"},
	)

	testsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "anonymizer_tests_dropped_total",
			Help: "Test entries dropped by the allow-list anonymizer",
		},
	)

	piiFindings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prompt_pii_findings_total",
			Help: "PII-like patterns detected in outbound prompts",
		},
		[]string{"type"},
	)

	auditEntriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_entries_total",
			Help: "Total number of audit entries created",
		},
	)

	auditWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_write_failures_total",
			Help: "Audit writes that failed and were swallowed",
		},
	)

	labsImported = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lab_results_imported_total",
			Help: "Blood test result records imported from the LIS",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware creates HTTP metrics middleware
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := routePattern(r)

		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
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

// routePattern uses the matched chi route to keep label cardinality bounded.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// RecordInterpretation records the final outcome of a pipeline run.
func RecordInterpretation(variant, outcome string) {
	interpretationsTotal.WithLabelValues(variant, outcome).Inc()
}

// RecordAIRequest records a gateway round trip.
func RecordAIRequest(variant string, status int, duration time.Duration) {
	aiRequestDuration.WithLabelValues(variant, strconv.Itoa(status)).Observe(duration.Seconds())
}

// RecordTestsDropped records entries removed by the allow-list.
func RecordTestsDropped(n int) {
	if n > 0 {
		testsDropped.Add(float64(n))
	}
}

// RecordPIIFinding records a PII-like pattern found in an outbound prompt.
func RecordPIIFinding(kind string) {
	piiFindings.WithLabelValues(kind).Inc()
}

// RecordAuditEntry records an audit entry creation
func RecordAuditEntry() {
	auditEntriesTotal.Inc()
}

// RecordAuditWriteFailure records a swallowed audit failure.
func RecordAuditWriteFailure() {
	auditWriteFailures.Inc()
}

// RecordLabsImported records imported result records.
func RecordLabsImported(n int) {
	labsImported.Add(float64(n))
}
