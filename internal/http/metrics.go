package docsynchttp

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/theroutercompany/docsync/pkg/metrics"
)

type httpMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	routes   map[string]struct{}
}

func newHTTPMetrics(reg *metrics.Registry, routes ...string) *httpMetrics {
	if reg == nil {
		return nil
	}

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: reg.Name("http_requests_total"),
		Help: "HTTP requests served, by route, method and status code.",
	}, []string{"route", "method", "code"})

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    reg.Name("http_request_duration_seconds"),
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	reg.Register(requests)
	reg.Register(duration)

	known := make(map[string]struct{}, len(routes))
	for _, r := range routes {
		known[r] = struct{}{}
	}
	return &httpMetrics{requests: requests, duration: duration, routes: known}
}

func (m *httpMetrics) observe(r *http.Request, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	// Unknown paths collapse into one label to bound cardinality.
	route := r.URL.Path
	if _, ok := m.routes[route]; !ok {
		route = "other"
	}
	m.requests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(route).Observe(elapsed.Seconds())
}
