package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/arazmj/s3-proxy/apigw"
	"github.com/arazmj/s3-proxy/logger"
)

// MockHandler - тестовая реализация RequestHandler для демонстрации
type MockHandler struct{}

// NewMockHandler создает новый экземпляр тестового обработчика
func NewMockHandler() *MockHandler {
	return &MockHandler{}
}

// Handle реализует интерфейс RequestHandler
func (h *MockHandler) Handle(req *apigw.S3Request) *apigw.S3Response {
	logger.Debug("MockHandler: handling request - Operation: %s, Bucket: %s, Key: %s",
		req.Operation.String(), req.Bucket, req.Key)

	switch req.Operation {
	case apigw.GetObject:
		return h.handleGetObject(req)
	case apigw.PutObject:
		return h.handlePutObject(req)
	case apigw.HeadObject:
		return h.handleHeadObject(req)
	case apigw.HeadBucket:
		return h.handleHeadBucket(req)
	case apigw.ListObjectsV2:
		return h.handleListObjects(req)
	default:
		return &apigw.S3Response{
			StatusCode: http.StatusNotImplemented,
			Error:      fmt.Errorf("operation %s not implemented", req.Operation.String()),
		}
	}
}

func (h *MockHandler) handleGetObject(req *apigw.S3Request) *apigw.S3Response {
	// Симулируем получение объекта
	content := fmt.Sprintf("Mock content for object %s/%s", req.Bucket, req.Key)

	headers := make(http.Header)
	headers.Set("Content-Type", "text/plain")
	headers.Set("Content-Length", fmt.Sprintf("%d", len(content)))
	headers.Set("ETag", `"mock-etag-12345"`)

	return &apigw.S3Response{
		StatusCode: http.StatusOK,
		Headers:    headers,
		Body:       io.NopCloser(strings.NewReader(content)),
	}
}

func (h *MockHandler) handlePutObject(req *apigw.S3Request) *apigw.S3Response {
	// Симулируем загрузку объекта
	headers := make(http.Header)
	headers.Set("ETag", `"mock-etag-67890"`)

	return &apigw.S3Response{
		StatusCode: http.StatusOK,
		Headers:    headers,
	}
}

func (h *MockHandler) handleHeadObject(req *apigw.S3Request) *apigw.S3Response {
	// Симулируем получение метаданных объекта
	headers := make(http.Header)
	headers.Set("Content-Type", "text/plain")
	headers.Set("Content-Length", "100")
	headers.Set("ETag", `"mock-etag-12345"`)
	headers.Set("Last-Modified", "Wed, 20 Jun 2025 20:00:00 GMT")

	return &apigw.S3Response{
		StatusCode: http.StatusOK,
		Headers:    headers,
	}
}

func (h *MockHandler) handleHeadBucket(req *apigw.S3Request) *apigw.S3Response {
	// Симулируем проверку существования бакета
	headers := make(http.Header)
	headers.Set("x-amz-bucket-region", "us-east-1")

	return &apigw.S3Response{
		StatusCode: http.StatusOK,
		Headers:    headers,
	}
}

func (h *MockHandler) handleListObjects(req *apigw.S3Request) *apigw.S3Response {
	// Симулируем список объектов
	xmlContent := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">
    <Name>%s</Name>
    <Prefix></Prefix>
    <Marker></Marker>
    <MaxKeys>1000</MaxKeys>
    <IsTruncated>false</IsTruncated>
    <Contents>
        <Key>example-object.txt</Key>
        <LastModified>2025-06-20T20:00:00.000Z</LastModified>
        <ETag>"mock-etag-example"</ETag>
        <Size>100</Size>
        <StorageClass>STANDARD</StorageClass>
    </Contents>
</ListBucketResult>`, req.Bucket)

	headers := make(http.Header)
	headers.Set("Content-Type", "application/xml")
	headers.Set("Content-Length", fmt.Sprintf("%d", len(xmlContent)))

	return &apigw.S3Response{
		StatusCode: http.StatusOK,
		Headers:    headers,
		Body:       io.NopCloser(strings.NewReader(xmlContent)),
	}
}
