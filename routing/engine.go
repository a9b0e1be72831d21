package routing

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"

	"github.com/arazmj/s3-proxy/apigw"
	"github.com/arazmj/s3-proxy/auth"
	"github.com/arazmj/s3-proxy/logger"
	"github.com/arazmj/s3-proxy/ratelimit"
)

// Engine - это реализация Policy & Routing Engine. Каждый запрос проходит
// авторизацию, лимитирование и затем диспетчеризуется на исполнителя.
type Engine struct {
	auth     auth.Authorizer
	limiter  *ratelimit.Limiter
	executor CacheExecutor
}

// NewEngine создает новый экземпляр Engine
func NewEngine(authorizer auth.Authorizer, limiter *ratelimit.Limiter, executor CacheExecutor) *Engine {
	return &Engine{
		auth:     authorizer,
		limiter:  limiter,
		executor: executor,
	}
}

// Handle - реализация интерфейса RequestHandler. Это точка входа в модуль
func (e *Engine) Handle(req *apigw.S3Request) *apigw.S3Response {
	logger.Debug("Policy & Routing Engine: handling request - Operation: %s, Bucket: %s, Key: %s",
		req.Operation, req.Bucket, req.Key)

	// Шаг 1: Авторизация
	principal, err := e.auth.Authorize(req)
	if err != nil {
		logger.Debug("Authorization failed: %v", err)
		return e.createAuthErrorResponse(err)
	}

	logger.Debug("Authorized request from %s (role %s): %s %s/%s",
		principal.DisplayName, principal.Role, req.Operation, req.Bucket, req.Key)

	// Шаг 2: Лимитирование запросов
	if err := e.limiter.CheckAndConsume(principal); err != nil {
		var rateErr *ratelimit.RateLimitedError
		if errors.As(err, &rateErr) {
			return e.createRateLimitResponse(rateErr)
		}
		// Другого типа лимитер не возвращает, но перестрахуемся
		return e.createRateLimitResponse(&ratelimit.RateLimitedError{})
	}

	// Шаг 3: Маршрутизация на основе типа операции
	switch req.Operation {
	case apigw.PutObject:
		return e.executor.PutObject(req.Context, req)

	case apigw.GetObject:
		return e.executor.GetObject(req.Context, req)

	case apigw.HeadObject:
		return e.executor.HeadObject(req.Context, req)

	case apigw.HeadBucket:
		return e.executor.HeadBucket(req.Context, req)

	case apigw.ListObjectsV2:
		return e.executor.ListObjects(req.Context, req)

	default:
		logger.Warn("Unsupported operation: %s", req.Operation)
		return e.createOperationNotImplementedResponse(req.Operation)
	}
}

// createAuthErrorResponse преобразует ошибку авторизации в стандартный S3Response
func (e *Engine) createAuthErrorResponse(err error) *apigw.S3Response {
	var code string
	var message string
	var statusCode int

	switch {
	case errors.Is(err, auth.ErrMissingAPIKey):
		code = "MissingSecurityHeader"
		message = "Your request was missing a required header."
		statusCode = http.StatusUnauthorized // 401 - клиент не предоставил ключ
	case errors.Is(err, auth.ErrUnknownAPIKey):
		code = "InvalidAccessKeyId"
		message = "The API key you provided does not exist in our records."
		statusCode = http.StatusUnauthorized // 401 - ключ не опознан
	case errors.Is(err, auth.ErrBucketForbidden):
		code = "AccessDenied"
		message = "Access Denied"
		statusCode = http.StatusForbidden // 403 - бакет не разрешен
	case errors.Is(err, auth.ErrWriteForbidden):
		code = "AccessDenied"
		message = "Access Denied"
		statusCode = http.StatusForbidden // 403 - нет права на запись
	default:
		// Для неизвестных ошибок авторизации используем 403, а не 500
		code = "AccessDenied"
		message = "Access Denied"
		statusCode = http.StatusForbidden
	}

	return e.createErrorResponse(statusCode, code, message, nil)
}

// createRateLimitResponse создает ответ 429 с подсказкой Retry-After
func (e *Engine) createRateLimitResponse(rateErr *ratelimit.RateLimitedError) *apigw.S3Response {
	retryAfter := int(math.Ceil(rateErr.RetryAfter.Seconds()))
	if retryAfter < 1 {
		retryAfter = 1
	}

	headers := make(http.Header)
	headers.Set("Retry-After", fmt.Sprintf("%d", retryAfter))

	return e.createErrorResponse(http.StatusTooManyRequests, "SlowDown",
		"Please reduce your request rate.", headers)
}

// createOperationNotImplementedResponse создает ответ для неподдерживаемых операций
func (e *Engine) createOperationNotImplementedResponse(operation apigw.S3Operation) *apigw.S3Response {
	message := fmt.Sprintf("The operation %s is not implemented", operation)
	return e.createErrorResponse(http.StatusNotImplemented, "NotImplemented", message, nil)
}

// createErrorResponse собирает готовый S3Response с XML-телом ошибки
func (e *Engine) createErrorResponse(statusCode int, code, message string, headers http.Header) *apigw.S3Response {
	errorBody := e.formatS3ErrorXML(code, message)

	if headers == nil {
		headers = make(http.Header)
	}
	headers.Set("Content-Type", "application/xml")
	headers.Set("Content-Length", fmt.Sprintf("%d", len(errorBody)))

	return &apigw.S3Response{
		StatusCode: statusCode,
		Body:       io.NopCloser(strings.NewReader(errorBody)),
		Headers:    headers,
		// Не устанавливаем Error, так как у нас уже есть правильно сформированный ответ
	}
}

// formatS3ErrorXML форматирует ошибку в стандартный S3 XML формат
func (e *Engine) formatS3ErrorXML(code, message string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<Error>
    <Code>%s</Code>
    <Message>%s</Message>
    <RequestId>%s</RequestId>
    <HostId>%s</HostId>
</Error>`, code, message, "policy-routing-engine", "s3proxy")
}
