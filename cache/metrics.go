package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Фоновые заполнения кэша: success/error
	PopulationsTotal *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		PopulationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "s3proxy_cache_populations_total",
				Help: "Total number of background cache population attempts by result",
			},
			[]string{"result"},
		),
	}
}
