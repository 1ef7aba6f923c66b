package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	authLoginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Login attempts by account type and result.",
		},
		[]string{"account_type", "result"},
	)

	authTokenRotationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_token_rotations_total",
		Help: "Refresh token rotations performed.",
	})

	authSessionRevocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_session_revocations_total",
			Help: "Logout-everywhere revocations by trigger.",
		},
		[]string{"trigger"},
	)
)

// Init registers all metrics with the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight,
		httpRequestsTotal,
		httpRequestDuration,
		authLoginsTotal,
		authTokenRotationsTotal,
		authSessionRevocationsTotal,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveLogin counts a login attempt outcome.
func ObserveLogin(accountType, result string) {
	authLoginsTotal.WithLabelValues(accountType, result).Inc()
}

// ObserveTokenRotation counts one successful refresh token rotation.
func ObserveTokenRotation() {
	authTokenRotationsTotal.Inc()
}

// ObserveSessionRevocation counts a logout-everywhere sweep. Trigger is one of
// "logout" or "password_change".
func ObserveSessionRevocation(trigger string) {
	authSessionRevocationsTotal.WithLabelValues(trigger).Inc()
}

// Instrument wraps a handler with RPS/latency/in-flight measurements.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// knownPaths keeps label cardinality bounded; anything else collapses into a
// single bucket.
var knownPaths = map[string]struct{}{
	"/":                        {},
	"/healthz":                 {},
	"/readyz":                  {},
	"/metrics":                 {},
	"/v1/info":                 {},
	"/v1/auth/login":           {},
	"/v1/auth/register":        {},
	"/v1/auth/refresh":         {},
	"/v1/auth/logout":          {},
	"/v1/auth/profile":         {},
	"/v1/auth/change-password": {},
}

// CanonicalPath normalizes a request path for use as a metric label.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	if _, ok := knownPaths[path]; ok {
		return path
	}
	return "/other"
}

// statusWriter records the response code for metric labels.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
