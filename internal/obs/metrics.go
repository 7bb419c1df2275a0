package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Marketplace API build information.",
		},
		[]string{"version"},
	)

	authOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_operations_total",
			Help: "Authentication operations by outcome.",
		},
		[]string{"op", "outcome"},
	)

	storeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "auth_store_duration_seconds",
			Help:    "Latency of auth store calls in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

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
)

// Init registers metrics in the default registry and publishes build_info.
// Collectors work unregistered too, so packages may record before Init runs.
func Init(version string) {
	registerOnce.Do(func() {
		prometheus.MustRegister(buildInfo, authOperations, storeDuration,
			httpInFlight, httpRequestsTotal, httpRequestDuration)
	})
	buildInfo.WithLabelValues(version).Set(1)
}

// Handler exposes the Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveAuth counts one auth operation outcome ("ok", a denial reason, or "error").
func ObserveAuth(op, outcome string) {
	authOperations.WithLabelValues(op, outcome).Inc()
}

// ObserveStore records the latency of a store call.
func ObserveStore(op string, d time.Duration) {
	storeDuration.WithLabelValues(op).Observe(d.Seconds())
}

var knownPaths = map[string]struct{}{
	"/healthz":            {},
	"/readyz":             {},
	"/metrics":            {},
	"/v1/auth/register":   {},
	"/v1/auth/login":      {},
	"/v1/auth/refresh":    {},
	"/v1/auth/logout":     {},
	"/v1/auth/deactivate": {},
	"/v1/auth/me":         {},
	"/v1/auth/authorize":  {},
}

// CanonicalPath maps a request path onto a bounded label set.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == "/" {
		return "/"
	}
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	if _, ok := knownPaths[path]; ok {
		return path
	}
	return "other"
}

// Instrument measures RPS, latency and in-flight requests.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		status := strconv.Itoa(sw.code)
		httpRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
