package cache

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/arazmj/s3-proxy/apigw"
	"github.com/arazmj/s3-proxy/backend"
	"github.com/arazmj/s3-proxy/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// PutObject записывает объект в целевой бакет. Источники никогда не
// принимают запись: они остаются зеркалами только для чтения.
func (m *Manager) PutObject(ctx context.Context, req *apigw.S3Request) *apigw.S3Response {
	m.semaphore <- struct{}{}
	defer func() { <-m.semaphore }()

	result := m.performPutToTarget(ctx, req, req.Body)

	if result.Err != nil {
		m.provider.ReportFailure(result)
		return m.createErrorResponse(http.StatusServiceUnavailable, "ServiceUnavailable",
			"Failed to write the object to the target bucket.")
	}
	m.provider.ReportSuccess(result)

	headers := make(http.Header)
	if putOutput, ok := result.Response.(*s3.PutObjectOutput); ok {
		if putOutput.ETag != nil {
			headers.Set("ETag", *putOutput.ETag)
		}
		if putOutput.VersionId != nil {
			headers.Set("x-amz-version-id", *putOutput.VersionId)
		}
	}

	return &apigw.S3Response{
		StatusCode: http.StatusOK,
		Headers:    headers,
	}
}

// performPutToTarget выполняет PUT в целевой бакет с повторами
func (m *Manager) performPutToTarget(ctx context.Context, req *apigw.S3Request, body io.Reader) *backend.BackendResult {
	target := m.provider.Target()
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(ctx, m.config.OperationTimeout)
	defer cancel()

	countingReader := NewCountingReader(body)
	isStreamingClient := target.StreamingPutClient != nil

	// 1. Создаем "скелет" запроса с обязательными полями.
	// Bucket и физический ключ подставит адаптер бэкенда.
	putInput := &s3.PutObjectInput{
		Key:  aws.String(req.Key),
		Body: countingReader,
	}

	// 2. Явно указываем ContentLength. Это критически важно для корректной
	// подписи и обработки запроса на стороне S3-совместимого хранилища.
	if req.ContentLength > 0 {
		putInput.ContentLength = aws.Int64(req.ContentLength)
	}

	// 3. Перебираем заголовки входящего запроса и "перекладываем" их в поля
	// PutObjectInput. Это - необходимая логика прокси, которую нельзя
	// автоматизировать через SDK.
	metadata := make(map[string]string)
	for key, values := range req.Headers {
		if len(values) == 0 {
			continue
		}
		canonicalKey := http.CanonicalHeaderKey(key)
		value := values[0]

		switch canonicalKey {
		case "Content-Type":
			putInput.ContentType = aws.String(value)
		case "Content-Encoding":
			putInput.ContentEncoding = aws.String(value)
		case "Content-Md5":
			putInput.ContentMD5 = aws.String(value)
		case "Cache-Control":
			putInput.CacheControl = aws.String(value)
		case "X-Amz-Storage-Class":
			putInput.StorageClass = types.StorageClass(value)
		// Если клиент прислал SHA256 хэш, мы ему доверяем и используем его.
		// Это избавляет SDK от необходимости читать поток для вычисления хэша.
		case "X-Amz-Content-Sha256":
			if !isStreamingClient {
				putInput.ChecksumSHA256 = aws.String(value)
			}
		// Игнорируем только то, что относится к подписи и транспорту
		case "Authorization", "X-Amz-Date", "Host", "Content-Length", "X-Api-Key":
			continue
		default:
			// Все, что начинается с "X-Amz-Meta-", складываем в метаданные
			if strings.HasPrefix(canonicalKey, "X-Amz-Meta-") {
				metaKey := strings.TrimPrefix(canonicalKey, "X-Amz-Meta-")
				metadata[strings.ToLower(metaKey)] = value
			}
		}
	}

	if len(metadata) > 0 {
		putInput.Metadata = metadata
	}

	logger.Debug("performPutToTarget: sending PUT for key %s with ContentLength=%d, Metadata: %v",
		req.Key, req.ContentLength, putInput.Metadata)

	var response *s3.PutObjectOutput
	var err error

	// Перематывается исходное тело, а не обертка: CountingReader намеренно
	// не реализует io.Seeker, чтобы SDK не пробовал Seek на потоке клиента
	bodySeeker, bodyRewindable := body.(io.Seeker)

	for attempt := 0; attempt <= m.config.RetryAttempts; attempt++ {
		if attempt > 0 {
			// Повтор возможен только с перемоткой в начало: иначе ушел бы
			// уже прочитанный поток
			if !bodyRewindable {
				logger.Warn("performPutToTarget: request body for key %s is not rewindable, stopping retries", req.Key)
				break
			}
			if _, seekErr := bodySeeker.Seek(0, io.SeekStart); seekErr != nil {
				logger.Warn("performPutToTarget: cannot rewind request body for key %s, stopping retries: %v",
					req.Key, seekErr)
				break
			}
			countingReader.Reset()
			logger.Debug("performPutToTarget: retry attempt %d for key %s", attempt, req.Key)
			time.Sleep(m.config.RetryDelay)
		}

		response, err = target.PutObject(ctx, putInput)
		if err == nil {
			break
		}
		logger.Debug("performPutToTarget: attempt %d failed for key %s: %v", attempt+1, req.Key, err)

		// Нет смысла повторять запрос, если это ошибка клиента (4xx)
		var responseError interface {
			HTTPStatusCode() int
		}
		if ok := errors.As(err, &responseError); ok {
			if responseError.HTTPStatusCode() >= 400 && responseError.HTTPStatusCode() < 500 {
				logger.Error("performPutToTarget: received client error %d, stopping retries.", responseError.HTTPStatusCode())
				break
			}
		}
	}

	duration := time.Since(startTime)
	bytesWritten := countingReader.Count()

	if err != nil {
		logger.Error("performPutToTarget: failed for key %s after retries: %v", req.Key, err)
	} else {
		logger.Debug("performPutToTarget: success for key %s, bytes=%d, duration=%v", req.Key, bytesWritten, duration)
	}

	return &backend.BackendResult{
		BackendID:    target.ID,
		Method:       "PUT",
		Response:     response,
		Err:          err,
		Duration:     duration,
		BytesWritten: bytesWritten,
	}
}
