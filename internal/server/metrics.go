package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry       *prometheus.Registry
	requests       *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	providerErrors *prometheus.CounterVec
	recommended    prometheus.Histogram
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "teabot",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "teabot",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			// generation dominates; local models can take tens of seconds
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"method", "route"}),
		providerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "teabot",
			Name:      "provider_errors_total",
			Help:      "Failed embedding, index and generation calls.",
		}, []string{"provider", "op"}),
		recommended: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "teabot",
			Name:      "recommended_names",
			Help:      "Number of names returned per recommendation.",
			Buckets:   prometheus.LinearBuckets(0, 1, 6),
		}),
	}
	m.registry.MustRegister(
		m.requests,
		m.duration,
		m.providerErrors,
		m.recommended,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
