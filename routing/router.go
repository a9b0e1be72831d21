package routing

import (
	"context"
	"time"

	"github.com/arazmj/s3-proxy/backend"
	"github.com/arazmj/s3-proxy/logger"
)

// Router определяет, откуда обслуживать запрос на чтение.
// Сначала проверяется целевой бакет (кэш), затем источники строго
// в порядке их объявления в конфигурации. Первый бэкенд, подтвердивший
// наличие объекта, выигрывает.
type Router struct {
	provider backend.BackendProvider
	metrics  *Metrics // может быть nil
}

// NewRouter создает новый маршрутизатор чтения
func NewRouter(provider backend.BackendProvider, metrics *Metrics) *Router {
	return &Router{
		provider: provider,
		metrics:  metrics,
	}
}

// RouteRead пробует найти объект с ключом key.
//
// Переходная ошибка бэкенда трактуется как "на этой попытке объекта нет",
// но запоминается: если в итоге ни один бэкенд не ответил определенно,
// возвращается ErrUpstreamUnavailable, а не ErrObjectNotFound. Клиент
// должен уметь отличать "объекта нет" от "мы не смогли проверить".
func (r *Router) RouteRead(ctx context.Context, key string) (*Decision, error) {
	erroredProbes := 0
	definiteAnswers := 0

	// 1. Целевой бакет - он же кэш
	target := r.provider.Target()
	decision, outcome := r.probe(ctx, target, key)
	switch outcome {
	case probeFound:
		decision.Kind = CacheHit
		r.observe(CacheHit)
		return decision, nil
	case probeAbsent:
		definiteAnswers++
	case probeErrored:
		erroredProbes++
	}

	// 2. Источники в порядке объявления
	for _, source := range r.provider.Sources() {
		decision, outcome = r.probe(ctx, source, key)
		switch outcome {
		case probeFound:
			decision.Kind = SourceFetch
			r.observe(SourceFetch)
			return decision, nil
		case probeAbsent:
			definiteAnswers++
		case probeErrored:
			erroredProbes++
		}
	}

	// Никто не подтвердил наличие. Если не было ни одного определенного
	// ответа, мы не вправе утверждать, что объекта нет.
	if definiteAnswers == 0 && erroredProbes > 0 {
		logger.Warn("RouteRead: all %d probes for key '%s' errored, cannot confirm absence", erroredProbes, key)
		r.observe(unavailable)
		return nil, ErrUpstreamUnavailable
	}

	logger.Debug("RouteRead: key '%s' absent (%d definite answers, %d errored probes)",
		key, definiteAnswers, erroredProbes)
	r.observe(Miss)
	return &Decision{Kind: Miss}, nil
}

type probeOutcome int

const (
	probeFound probeOutcome = iota
	probeAbsent
	probeErrored
)

// probe проверяет наличие объекта на одном бэкенде
func (r *Router) probe(ctx context.Context, b *backend.Backend, key string) (*Decision, probeOutcome) {
	// Бэкенд с открытым Circuit Breaker не опрашиваем: считаем пробу
	// неудавшейся, восстановление - забота активных проверок здоровья
	if b.GetState() == backend.StateDown {
		logger.Debug("Probe skipped: backend '%s' is DOWN", b.ID)
		return nil, probeErrored
	}

	start := time.Now()
	head, err := b.HeadObject(ctx, key)
	duration := time.Since(start)

	if err == nil {
		r.provider.ReportSuccess(&backend.BackendResult{
			BackendID:  b.ID,
			Method:     "HEAD",
			StatusCode: 200,
			Duration:   duration,
		})
		return &Decision{Backend: b, Head: head}, probeFound
	}

	if backend.IsNotFound(err) {
		// Определенный ответ: объекта здесь нет
		r.provider.ReportSuccess(&backend.BackendResult{
			BackendID:  b.ID,
			Method:     "HEAD",
			StatusCode: 404,
			Duration:   duration,
		})
		return nil, probeAbsent
	}

	logger.Warn("Probe failed on backend '%s' for key '%s': %v", b.ID, key, err)
	r.provider.ReportFailure(&backend.BackendResult{
		BackendID: b.ID,
		Method:    "HEAD",
		Err:       err,
		Duration:  duration,
	})
	return nil, probeErrored
}

// unavailable - псевдо-исход для метрик, не является DecisionKind маршрута
const unavailable DecisionKind = "unavailable"

func (r *Router) observe(kind DecisionKind) {
	if r.metrics == nil {
		return
	}
	r.metrics.DecisionsTotal.WithLabelValues(string(kind)).Inc()
}
