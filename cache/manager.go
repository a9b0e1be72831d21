package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/arazmj/s3-proxy/apigw"
	"github.com/arazmj/s3-proxy/backend"
	"github.com/arazmj/s3-proxy/logger"
	"github.com/arazmj/s3-proxy/routing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Manager реализует routing.CacheExecutor. Чтение обслуживается по
// решению маршрутизатора (кэш или источник), запись идет только в
// целевой бакет, найденные на источниках объекты асинхронно
// заполняются в кэш.
type Manager struct {
	provider backend.BackendProvider
	router   *routing.Router
	config   *Config
	metrics  *Metrics // может быть nil

	// Ограничивает суммарное количество записей в целевой бакет
	semaphore chan struct{}

	// Учет фоновых заполнений, в тестах позволяет их дождаться
	populateWG sync.WaitGroup
}

// NewManager создает новый менеджер кэша. metrics может быть nil.
func NewManager(provider backend.BackendProvider, router *routing.Router, config *Config, metrics *Metrics) (*Manager, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cache config: %w", err)
	}

	return &Manager{
		provider:  provider,
		router:    router,
		config:    config,
		metrics:   metrics,
		semaphore: make(chan struct{}, config.MaxConcurrentWrites),
	}, nil
}

// GetObject обслуживает GET: кэш, затем источники. Объект, найденный
// на источнике, отдается клиенту и параллельно заполняется в кэш.
func (m *Manager) GetObject(ctx context.Context, req *apigw.S3Request) *apigw.S3Response {
	decision, err := m.router.RouteRead(ctx, req.Key)
	if err != nil {
		return m.routeErrorResponse(err)
	}

	if decision.Kind == routing.Miss {
		return m.createErrorResponse(http.StatusNotFound, "NoSuchKey", "The specified key does not exist.")
	}

	response := m.performGetObject(ctx, decision.Backend, req.Key)
	if response.Error != nil {
		// Объект мог исчезнуть между пробой и чтением
		if backend.IsNotFound(response.Error) {
			return m.createErrorResponse(http.StatusNotFound, "NoSuchKey", "The specified key does not exist.")
		}
		return m.createErrorResponse(http.StatusBadGateway, "ServiceUnavailable",
			"Failed to read the object from the upstream backend.")
	}

	if decision.Kind == routing.SourceFetch {
		m.schedulePopulation(req.Key, decision.Backend)
	}

	return response
}

// HeadObject обслуживается из ответа пробы, без повторного обращения к бэкенду
func (m *Manager) HeadObject(ctx context.Context, req *apigw.S3Request) *apigw.S3Response {
	decision, err := m.router.RouteRead(ctx, req.Key)
	if err != nil {
		return m.routeErrorResponse(err)
	}

	if decision.Kind == routing.Miss {
		return m.createErrorResponse(http.StatusNotFound, "NoSuchKey", "The specified key does not exist.")
	}

	return &apigw.S3Response{
		StatusCode: http.StatusOK,
		Headers:    headObjectHeaders(decision.Head),
		Body:       nil,
	}
}

// HeadBucket проверяет доступность целевого бакета
func (m *Manager) HeadBucket(ctx context.Context, req *apigw.S3Request) *apigw.S3Response {
	target := m.provider.Target()

	start := time.Now()
	_, err := target.S3Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: &target.Config.Bucket,
	})
	duration := time.Since(start)

	if err != nil {
		m.provider.ReportFailure(&backend.BackendResult{
			BackendID: target.ID,
			Method:    "HEAD",
			Err:       err,
			Duration:  duration,
		})
		return m.createErrorResponse(http.StatusNotFound, "NoSuchBucket", "The specified bucket does not exist.")
	}

	m.provider.ReportSuccess(&backend.BackendResult{
		BackendID:  target.ID,
		Method:     "HEAD",
		StatusCode: http.StatusOK,
		Duration:   duration,
	})

	return &apigw.S3Response{
		StatusCode: http.StatusOK,
		Headers:    make(http.Header),
	}
}

// performGetObject выполняет GET запрос к конкретному бэкенду
func (m *Manager) performGetObject(ctx context.Context, b *backend.Backend, key string) *apigw.S3Response {
	start := time.Now()
	result, err := b.GetObject(ctx, key)
	duration := time.Since(start)

	if err != nil {
		m.provider.ReportFailure(&backend.BackendResult{
			BackendID: b.ID,
			Method:    "GET",
			Err:       err,
			Duration:  duration,
		})
		return &apigw.S3Response{
			StatusCode: http.StatusInternalServerError,
			Headers:    make(http.Header),
			Error:      err,
		}
	}

	m.provider.ReportSuccess(&backend.BackendResult{
		BackendID:  b.ID,
		Method:     "GET",
		StatusCode: http.StatusOK,
		Duration:   duration,
	})

	headers := make(http.Header)
	if result.ContentType != nil {
		headers.Set("Content-Type", *result.ContentType)
	}
	if result.ContentLength != nil {
		headers.Set("Content-Length", fmt.Sprintf("%d", *result.ContentLength))
	}
	if result.LastModified != nil {
		headers.Set("Last-Modified", result.LastModified.Format(time.RFC1123))
	}
	if result.ETag != nil {
		headers.Set("ETag", *result.ETag)
	}

	return &apigw.S3Response{
		StatusCode: http.StatusOK,
		Headers:    headers,
		Body:       &bytesCountingReadCloser{reader: result.Body},
	}
}

// headObjectHeaders собирает HTTP-заголовки из ответа HeadObject
func headObjectHeaders(result *s3.HeadObjectOutput) http.Header {
	headers := make(http.Header)
	if result == nil {
		return headers
	}
	if result.ContentType != nil {
		headers.Set("Content-Type", *result.ContentType)
	}
	if result.ContentLength != nil {
		headers.Set("Content-Length", fmt.Sprintf("%d", *result.ContentLength))
	}
	if result.LastModified != nil {
		headers.Set("Last-Modified", result.LastModified.Format(time.RFC1123))
	}
	if result.ETag != nil {
		headers.Set("ETag", *result.ETag)
	}
	return headers
}

// routeErrorResponse преобразует ошибку маршрутизации в ответ клиенту.
// Недоступность бэкендов - это 502, а не 404: мы не вправе утверждать,
// что объекта не существует.
func (m *Manager) routeErrorResponse(err error) *apigw.S3Response {
	if errors.Is(err, routing.ErrUpstreamUnavailable) {
		return m.createErrorResponse(http.StatusBadGateway, "ServiceUnavailable",
			"Upstream backends are unavailable. Please try again.")
	}
	logger.Error("Unexpected routing error: %v", err)
	return m.createErrorResponse(http.StatusInternalServerError, "InternalError",
		"We encountered an internal error. Please try again.")
}

// createErrorResponse собирает готовый S3Response с XML-телом ошибки
func (m *Manager) createErrorResponse(statusCode int, code, message string) *apigw.S3Response {
	errorBody := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<Error>
    <Code>%s</Code>
    <Message>%s</Message>
    <RequestId>%s</RequestId>
    <HostId>%s</HostId>
</Error>`, code, message, "cache-manager", "s3proxy")

	headers := make(http.Header)
	headers.Set("Content-Type", "application/xml")
	headers.Set("Content-Length", fmt.Sprintf("%d", len(errorBody)))

	return &apigw.S3Response{
		StatusCode: statusCode,
		Headers:    headers,
		Body:       io.NopCloser(strings.NewReader(errorBody)),
	}
}
