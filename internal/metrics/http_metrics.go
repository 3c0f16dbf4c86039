package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics содержит метрики REST API.
type HTTPMetrics struct {
	Requests *prometheus.CounterVec
	Latency  *prometheus.HistogramVec
}

// NewHTTPMetrics регистрирует метрики запросов в переданном реестре.
func NewHTTPMetrics(registerer prometheus.Registerer) *HTTPMetrics {
	return &HTTPMetrics{
		Requests: register(registerer, "epiccart_http_requests_total", prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "epiccart",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status"})),
		Latency: register(registerer, "epiccart_http_request_duration_seconds", prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "epiccart",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method", "route"})),
	}
}
