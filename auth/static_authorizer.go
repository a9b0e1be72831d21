package auth

import (
	"crypto/subtle"
	"errors"
	"time"

	"github.com/arazmj/s3-proxy/apigw"
	"github.com/arazmj/s3-proxy/logger"
)

// StaticAuthorizer реализует интерфейс Authorizer поверх статической
// таблицы Principal'ов, загруженной из конфигурации.
type StaticAuthorizer struct {
	principals []*Principal
	metrics    *Metrics
}

// NewStaticAuthorizer создает новый экземпляр авторизатора.
// metrics может быть nil (например, в тестах).
func NewStaticAuthorizer(principals []*Principal, metrics *Metrics) (*StaticAuthorizer, error) {
	if len(principals) == 0 {
		return nil, errors.New("principals list cannot be nil or empty")
	}

	return &StaticAuthorizer{
		principals: principals,
		metrics:    metrics,
	}, nil
}

// Authorize реализует интерфейс Authorizer.
func (s *StaticAuthorizer) Authorize(req *apigw.S3Request) (*Principal, error) {
	start := time.Now()

	// 1. Извлечение API-ключа из заголовка
	apiKey := req.APIKey()
	if apiKey == "" {
		logger.Debug("Missing x-api-key header")
		s.observe("error", start)
		return nil, ErrMissingAPIKey
	}

	// 2. Поиск Principal по ключу.
	// Сравнение всегда проходит по всей таблице за константное время,
	// чтобы по времени ответа нельзя было угадывать ключи.
	principal := s.lookup(apiKey)
	if principal == nil {
		logger.Warn("Unknown API key presented for %s %s", req.Operation, req.Bucket)
		s.observe("error", start)
		return nil, ErrUnknownAPIKey
	}

	// 3. Проверка доступа к бакету
	if !principal.AllowsBucket(req.Bucket) {
		logger.Warn("User %s is not allowed to access bucket %s", principal.DisplayName, req.Bucket)
		s.observe("forbidden", start)
		return nil, ErrBucketForbidden
	}

	// 4. Проверка права на запись
	if req.Operation.IsWrite() && !principal.Role.CanWrite() {
		logger.Warn("User %s (role %s) is not allowed to write", principal.DisplayName, principal.Role)
		s.observe("forbidden", start)
		return nil, ErrWriteForbidden
	}

	logger.Debug("Authorized user %s (role %s) for %s on bucket %s",
		principal.DisplayName, principal.Role, req.Operation, req.Bucket)
	s.observe("success", start)
	return principal, nil
}

// lookup находит Principal по ключу, не завершая перебор досрочно
func (s *StaticAuthorizer) lookup(apiKey string) *Principal {
	var found *Principal
	for _, p := range s.principals {
		if subtle.ConstantTimeCompare([]byte(p.APIKey), []byte(apiKey)) == 1 {
			found = p
		}
	}
	return found
}

// observe обновляет метрики авторизации
func (s *StaticAuthorizer) observe(result string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.AuthRequestsTotal.WithLabelValues(result).Inc()
	s.metrics.AuthLatency.WithLabelValues(result).Observe(time.Since(start).Seconds())
}
