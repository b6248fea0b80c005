// ABOUTME: Prometheus metrics for builds, generation, workspaces, publishing, and HTTP traffic.
// ABOUTME: Metrics live in a private registry exposed through Handler at /metrics.

package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the server.
type Metrics struct {
	BuildsTotal      *prometheus.CounterVec
	BuildDuration    *prometheus.HistogramVec
	GenerateTotal    *prometheus.CounterVec
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
	WorkspacesActive prometheus.Gauge
	PreviewErrors    prometheus.Counter
	PublishTotal     *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		BuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "buildr_builds_total",
				Help: "Settled build requests by outcome.",
			},
			[]string{"outcome"},
		),
		BuildDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "buildr_build_duration_seconds",
				Help:    "Time from submit to settle by outcome.",
				Buckets: []float64{0.05, 0.5, 2, 5, 10, 20, 40, 80, 160},
			},
			[]string{"outcome"},
		),
		GenerateTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "buildr_generate_requests_total",
				Help: "Generate endpoint requests by outcome.",
			},
			[]string{"outcome"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "buildr_http_requests_total",
				Help: "HTTP requests by method, route pattern, and status code.",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "buildr_http_request_duration_seconds",
				Help:    "HTTP request duration by route pattern.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		WorkspacesActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "buildr_workspaces_active",
				Help: "Workspaces currently held in memory.",
			},
		),
		PreviewErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "buildr_preview_errors_total",
				Help: "Runtime errors reported by preview frames.",
			},
		),
		PublishTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "buildr_publish_total",
				Help: "Publish attempts by result.",
			},
			[]string{"result"},
		),
		registry: reg,
	}

	reg.MustRegister(m.BuildsTotal)
	reg.MustRegister(m.BuildDuration)
	reg.MustRegister(m.GenerateTotal)
	reg.MustRegister(m.HTTPRequests)
	reg.MustRegister(m.HTTPDuration)
	reg.MustRegister(m.WorkspacesActive)
	reg.MustRegister(m.PreviewErrors)
	reg.MustRegister(m.PublishTotal)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordBuild counts a settled build and its duration.
func (m *Metrics) RecordBuild(outcome string, seconds float64) {
	m.BuildsTotal.WithLabelValues(outcome).Inc()
	m.BuildDuration.WithLabelValues(outcome).Observe(seconds)
}

// RecordGenerate counts a generate endpoint outcome.
func (m *Metrics) RecordGenerate(outcome string) {
	m.GenerateTotal.WithLabelValues(outcome).Inc()
}

// ObserveHTTP records one served request. route is the router pattern, not
// the raw path, to keep label cardinality bounded.
func (m *Metrics) ObserveHTTP(method, route string, status int, seconds float64) {
	if route == "" {
		route = "unmatched"
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(seconds)
}

// SetWorkspaces sets the active workspace count.
func (m *Metrics) SetWorkspaces(n int) {
	m.WorkspacesActive.Set(float64(n))
}

// RecordPreviewError counts a preview runtime error.
func (m *Metrics) RecordPreviewError() {
	m.PreviewErrors.Inc()
}

// RecordPublish counts a publish attempt.
func (m *Metrics) RecordPublish(result string) {
	m.PublishTotal.WithLabelValues(result).Inc()
}
