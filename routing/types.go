package routing

import (
	"context"
	"errors"

	"github.com/arazmj/s3-proxy/apigw"
	"github.com/arazmj/s3-proxy/backend"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// DecisionKind описывает исход маршрутизации запроса на чтение
type DecisionKind string

const (
	// CacheHit - объект найден в целевом бакете, отдаем из кэша
	CacheHit DecisionKind = "cache_hit"
	// SourceFetch - объект найден на одном из источников
	SourceFetch DecisionKind = "source_fetch"
	// Miss - объекта нет ни в кэше, ни на источниках
	Miss DecisionKind = "miss"
)

// Decision - результат пробинга бэкендов для одного ключа
type Decision struct {
	Kind DecisionKind

	// Backend - бэкенд, на котором найден объект.
	// Заполнен для CacheHit (целевой) и SourceFetch (источник).
	Backend *backend.Backend

	// Head - ответ HeadObject с найденного бэкенда. Позволяет обслужить
	// HEAD-запрос без повторного обращения к бэкенду.
	Head *s3.HeadObjectOutput
}

var (
	// ErrObjectNotFound - объект отсутствует везде, где мы смогли проверить
	ErrObjectNotFound = errors.New("object not found")

	// ErrUpstreamUnavailable - ни один бэкенд не дал определенного ответа:
	// объект может существовать, но подтвердить это сейчас невозможно
	ErrUpstreamUnavailable = errors.New("upstream backends unavailable")
)

// CacheExecutor - интерфейс исполнителя операций, реализуемый менеджером
// кэша. Engine маршрутизирует на него авторизованные запросы.
type CacheExecutor interface {
	GetObject(ctx context.Context, req *apigw.S3Request) *apigw.S3Response
	HeadObject(ctx context.Context, req *apigw.S3Request) *apigw.S3Response
	PutObject(ctx context.Context, req *apigw.S3Request) *apigw.S3Response
	HeadBucket(ctx context.Context, req *apigw.S3Request) *apigw.S3Response
	ListObjects(ctx context.Context, req *apigw.S3Request) *apigw.S3Response
}
