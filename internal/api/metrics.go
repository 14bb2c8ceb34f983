package api

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
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tally",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path and status.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tally",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	validationFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tally",
			Name:      "validation_failures_total",
			Help:      "Commission writes rejected by range validation.",
		},
	)

	blockedResolutionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tally",
			Name:      "blocked_resolutions_total",
			Help:      "Settlements blocked by a resolution miss.",
		},
	)
)

// MetricsMiddleware records request counts and latency per route.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		// Counters keyed on the raw path would explode cardinality with
		// record IDs; URL params are collapsed by the router pattern.
		path := r.URL.Path
		if rctx := routePattern(r); rctx != "" {
			path = rctx
		}

		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rw.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())

		if rw.statusCode == http.StatusUnprocessableEntity {
			switch path {
			case "/settle":
				blockedResolutionsTotal.Inc()
			default:
				validationFailuresTotal.Inc()
			}
		}
	})
}

// routePattern returns the chi route pattern once routing has run.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}

// MetricsHandler exposes the Prometheus scrape endpoint.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
