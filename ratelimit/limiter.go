package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/arazmj/s3-proxy/auth"
	"github.com/arazmj/s3-proxy/logger"
)

// RateLimitedError возвращается, когда бюджет запросов Principal'а исчерпан.
// RetryAfter подсказывает клиенту, когда окно откроется снова.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter.Round(time.Second))
}

// budget хранит счетчик запросов одного Principal'а в текущем окне.
// Каждый budget защищен собственным мьютексом, чтобы разные пользователи
// не конкурировали за одну блокировку.
type budget struct {
	mu          sync.Mutex
	windowStart time.Time
	count       int
	limit       int
	window      time.Duration
}

// Limiter реализует лимитирование запросов по фиксированному окну
// для каждого Principal'а. Бюджеты создаются лениво при первом запросе
// и живут до конца процесса: множество ключей ограничено конфигурацией,
// вытеснение не требуется.
type Limiter struct {
	mu      sync.Mutex // защищает только карту budgets, не сами бюджеты
	budgets map[string]*budget
	metrics *Metrics

	// nowFunc подменяется в тестах
	nowFunc func() time.Time
}

// NewLimiter создает новый лимитер. metrics может быть nil.
func NewLimiter(metrics *Metrics) *Limiter {
	return &Limiter{
		budgets: make(map[string]*budget),
		metrics: metrics,
		nowFunc: time.Now,
	}
}

// CheckAndConsume атомарно проверяет и расходует бюджет Principal'а.
// При превышении лимита счетчик все равно инкрементируется, поэтому
// непрерывный поток сверх лимита продолжает получать отказ до конца окна.
func (l *Limiter) CheckAndConsume(p *auth.Principal) error {
	b := l.budgetFor(p)

	b.mu.Lock()
	defer b.mu.Unlock()

	now := l.nowFunc()

	// Окно закончилось - начинаем новое
	if now.Sub(b.windowStart) >= b.window {
		b.windowStart = now
		b.count = 0
	}

	b.count++
	if b.count > b.limit {
		retryAfter := b.windowStart.Add(b.window).Sub(now)
		logger.Debug("Rate limit exceeded for user %s: %d/%d in window", p.DisplayName, b.count, b.limit)
		if l.metrics != nil {
			l.metrics.RateLimitedTotal.WithLabelValues(p.DisplayName).Inc()
		}
		return &RateLimitedError{RetryAfter: retryAfter}
	}

	if l.metrics != nil {
		l.metrics.AllowedTotal.WithLabelValues(p.DisplayName).Inc()
	}
	return nil
}

// budgetFor возвращает бюджет Principal'а, создавая его при первом обращении
func (l *Limiter) budgetFor(p *auth.Principal) *budget {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, exists := l.budgets[p.APIKey]
	if !exists {
		b = &budget{
			limit:  p.RateLimit,
			window: p.RateWindow,
			// Нулевое windowStart означает, что первое же обращение
			// откроет новое окно.
		}
		l.budgets[p.APIKey] = b
		logger.Debug("Created rate budget for user %s: limit=%d, window=%v",
			p.DisplayName, p.RateLimit, p.RateWindow)
	}
	return b
}
