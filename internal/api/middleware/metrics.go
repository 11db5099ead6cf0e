package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)

	requestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// Business metrics, exported for use by the booking engine and sweeper
	BookingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parkease_bookings_total",
			Help: "Booking creation attempts by outcome",
		},
		[]string{"outcome"},
	)

	BookingTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parkease_booking_transitions_total",
			Help: "Booking state transitions by target status and trigger",
		},
		[]string{"to", "trigger"},
	)

	ActiveBookings = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "parkease_active_bookings",
			Help: "Confirmed bookings across all pools as of the last capacity audit",
		},
	)

	SweeperRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "parkease_sweeper_runs_total",
			Help: "Total number of expiry sweeper ticks",
		},
	)

	SweeperCompletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "parkease_sweeper_completed_total",
			Help: "Total number of bookings auto-completed by the sweeper",
		},
	)

	SweeperFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "parkease_sweeper_failures_total",
			Help: "Total number of per-booking sweeper failures",
		},
	)

	CapacityInvariantViolationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parkease_capacity_invariant_violations_total",
			Help: "Pool counter drift detected, by source",
		},
		[]string{"source"},
	)

	LeaderStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "parkease_leader_status",
			Help: "Whether this instance is the leader (1) or not (0)",
		},
	)

	PanicsRecoveredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "parkease_panics_recovered_total",
			Help: "Total number of recovered panics",
		},
	)

	RateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "parkease_rate_limited_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
	)
)

// Metrics returns a middleware that collects Prometheus metrics
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap response writer to capture status code
		wrapped := &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		status := strconv.Itoa(wrapped.statusCode)

		// Use Chi route pattern to avoid cardinality explosion from dynamic path segments
		endpoint := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				endpoint = pattern
			}
		}
		// Normalize trailing slashes
		endpoint = strings.TrimRight(endpoint, "/")
		if endpoint == "" {
			endpoint = "/"
		}

		// Record metrics
		requestDuration.WithLabelValues(r.Method, endpoint, status).Observe(duration.Seconds())
		requestCount.WithLabelValues(r.Method, endpoint, status).Inc()
	})
}

// metricsResponseWriter wraps http.ResponseWriter to capture status code
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
