package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	AllowedTotal     *prometheus.CounterVec // Количество пропущенных запросов
	RateLimitedTotal *prometheus.CounterVec // Количество отклоненных запросов
}

func NewMetrics() *Metrics {
	return &Metrics{
		AllowedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "s3proxy_ratelimit_allowed_total",
				Help: "Total number of requests allowed by the rate limiter",
			},
			[]string{"user"},
		),
		RateLimitedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "s3proxy_ratelimit_rejected_total",
				Help: "Total number of requests rejected by the rate limiter",
			},
			[]string{"user"},
		),
	}
}
