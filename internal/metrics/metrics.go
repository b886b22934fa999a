package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes the Prometheus instruments of the service.
type Metrics struct {
	extractions  *prometheus.CounterVec
	modelCalls   *prometheus.HistogramVec
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	gatherer     prometheus.Gatherer
}

// New registers the service metrics on reg. A nil reg uses a fresh registry
// that also carries the Go and process collectors.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	extractions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "invoice_extractions_total",
		Help: "Extraction attempts by outcome and model backend.",
	}, []string{"outcome", "backend"})

	modelCalls := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "invoice_model_call_duration_seconds",
		Help:    "Model call latency by backend and result code.",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 45, 90},
	}, []string{"backend", "status"})

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "invoice_http_requests_total",
		Help: "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	httpDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "invoice_http_request_duration_seconds",
		Help:    "HTTP request latency by method and route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	reg.MustRegister(extractions, modelCalls, httpRequests, httpDuration)

	return &Metrics{
		extractions:  extractions,
		modelCalls:   modelCalls,
		httpRequests: httpRequests,
		httpDuration: httpDuration,
		gatherer:     reg,
	}
}

// ExtractionFinished counts one extraction attempt.
func (m *Metrics) ExtractionFinished(outcome, backend string) {
	if m == nil {
		return
	}
	m.extractions.WithLabelValues(outcome, label(backend)).Inc()
}

// ModelCallFinished observes one model call.
func (m *Metrics) ModelCallFinished(backend, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.modelCalls.WithLabelValues(label(backend), label(status)).Observe(elapsed.Seconds())
}

// ObserveHTTPRequest records an HTTP request and its latency.
func (m *Metrics) ObserveHTTPRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	route = label(route)
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func label(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
