package monitoring

import (
	"github.com/arazmj/s3-proxy/apigw"
	"github.com/arazmj/s3-proxy/auth"
	"github.com/arazmj/s3-proxy/backend"
	"github.com/arazmj/s3-proxy/cache"
	"github.com/arazmj/s3-proxy/ratelimit"
	"github.com/arazmj/s3-proxy/routing"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics - единая структура для хранения метрик всех модулей.
// Экземпляр создается один раз при старте и передается в модули,
// которым нужно обновлять метрики. Тесты передают вместо него nil,
// чтобы не регистрировать коллекторы повторно.
type Metrics struct {
	Gateway   *apigw.Metrics
	Auth      *auth.Metrics
	RateLimit *ratelimit.Metrics
	Backend   *backend.Metrics
	Routing   *routing.Metrics
	Cache     *cache.Metrics
}

// NewMetrics создает и регистрирует все метрики в Prometheus.
// Использует promauto для автоматической регистрации метрик в default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		Gateway:   apigw.NewMetrics(),
		Auth:      auth.NewMetrics(),
		RateLimit: ratelimit.NewMetrics(),
		Backend:   backend.NewMetrics(),
		Routing:   routing.NewMetrics(),
		Cache:     cache.NewMetrics(),
	}
}

// GetRegistry возвращает default Prometheus registry.
func GetRegistry() *prometheus.Registry {
	return prometheus.DefaultRegisterer.(*prometheus.Registry)
}
