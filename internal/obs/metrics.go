package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP-level metrics.
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
)

// Authorization pipeline metrics. The permission decision sits on the hot
// path of every API call, so its latency and outcome mix are first-class.
var (
	authzDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authz_decisions_total",
			Help: "Authorization decisions by check kind and outcome.",
		},
		[]string{"check", "outcome"},
	)

	authzDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "authz_decision_duration_seconds",
		Help: "Permission decision latencies in seconds.",
		// Decisions are expected to complete well under 10ms on cache hits.
		Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
	})

	permCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "permission_cache_hits_total",
		Help: "Permission cache hits with a current generation.",
	})

	permCacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "permission_cache_misses_total",
		Help: "Permission cache misses requiring an upstream fetch.",
	})

	permCacheStale = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "permission_cache_stale_total",
		Help: "Permission cache entries bypassed due to a stale generation.",
	})
)

// Init registers all metrics with the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		authzDecisions, authzDuration,
		permCacheHits, permCacheMisses, permCacheStale,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveDecision records one authorization decision.
func ObserveDecision(check, outcome string, d time.Duration) {
	authzDecisions.WithLabelValues(check, outcome).Inc()
	authzDuration.Observe(d.Seconds())
}

// CacheHit records a permission cache hit.
func CacheHit() { permCacheHits.Inc() }

// CacheMiss records a permission cache miss.
func CacheMiss() { permCacheMisses.Inc() }

// CacheStale records a generation mismatch on a cached entry.
func CacheStale() { permCacheStale.Inc() }

// Instrument wraps an http.Handler with request counters and latency.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(r.Method, r.URL.Path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		httpInFlight.Dec()
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
