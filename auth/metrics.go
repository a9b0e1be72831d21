package auth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Общие метрики запросов
	AuthRequestsTotal *prometheus.CounterVec   // Количество запросов авторизации
	AuthLatency       *prometheus.HistogramVec // Латентность авторизации
}

func NewMetrics() *Metrics {
	return &Metrics{
		AuthRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "s3proxy_auth_requests_total",
				Help: "Total number of authorization requests",
			},
			[]string{"result"}, // success/forbidden/error
		),
		AuthLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "s3proxy_auth_latency_seconds",
				Help:    "Latency of authorization requests in seconds",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
			},
			[]string{"result"},
		),
	}
}
