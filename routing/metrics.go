package routing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Исходы маршрутизации чтения: cache_hit/source_fetch/miss/unavailable.
	// Отношение cache_hit к source_fetch - главный показатель полезности кэша.
	DecisionsTotal *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		DecisionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "s3proxy_routing_decisions_total",
				Help: "Total number of read routing decisions by outcome",
			},
			[]string{"kind"},
		),
	}
}
