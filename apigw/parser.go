package apigw

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/arazmj/s3-proxy/logger"
)

// RequestParser отвечает за парсинг HTTP запросов в S3Request
type RequestParser struct{}

// NewRequestParser создает новый экземпляр парсера
func NewRequestParser() *RequestParser {
	return &RequestParser{}
}

// Parse анализирует HTTP запрос и создает S3Request
func (p *RequestParser) Parse(r *http.Request) (*S3Request, error) {
	logger.Debug("Parsing HTTP request: %s %s", r.Method, r.URL.Path)

	// Определяем схему из запроса
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	// Также проверяем заголовки для случаев с прокси/балансировщиками
	if r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}

	s3req := &S3Request{
		Host:    r.Host,
		Scheme:  scheme,
		Headers: r.Header.Clone(),
		Query:   r.URL.Query(),
		Body:    r.Body,
		Context: r.Context(),
	}

	// Извлекаем Content-Length
	if contentLengthStr := r.Header.Get("Content-Length"); contentLengthStr != "" {
		if contentLength, err := strconv.ParseInt(contentLengthStr, 10, 64); err == nil {
			s3req.ContentLength = contentLength
		}
	}

	// Парсим путь для извлечения bucket и key
	if err := p.parsePath(r.URL.Path, s3req); err != nil {
		logger.Debug("Failed to parse path: %v", err)
		return nil, err
	}

	// Определяем операцию на основе метода и пути
	if err := p.determineOperation(r.Method, s3req); err != nil {
		logger.Debug("Failed to determine operation: %v", err)
		return nil, err
	}

	logger.Debug("Parsed operation: %s, Bucket: %s, Key: %s",
		s3req.Operation.String(), s3req.Bucket, s3req.Key)
	return s3req, nil
}

// parsePath извлекает bucket и key из пути URL
func (p *RequestParser) parsePath(path string, s3req *S3Request) error {
	// Убираем ведущий слеш
	path = strings.TrimPrefix(path, "/")

	// Пустой путь - запрос без бакета, операция определится дальше
	if path == "" {
		return nil
	}

	// Разделяем путь на части
	parts := strings.SplitN(path, "/", 2)

	// Первая часть - это всегда bucket
	s3req.Bucket = parts[0]

	// Если есть вторая часть, это key
	if len(parts) > 1 {
		s3req.Key = parts[1]
	}

	return nil
}

// determineOperation определяет тип S3 операции на основе HTTP метода и пути
func (p *RequestParser) determineOperation(method string, s3req *S3Request) error {
	switch method {
	case "GET":
		return p.determineGetOperation(s3req)
	case "PUT":
		return p.determinePutOperation(s3req)
	case "HEAD":
		return p.determineHeadOperation(s3req)
	default:
		s3req.Operation = UnsupportedOperation
		return fmt.Errorf("unsupported HTTP method: %s", method)
	}
}

// determineGetOperation определяет GET операции
func (p *RequestParser) determineGetOperation(s3req *S3Request) error {
	if s3req.Bucket == "" {
		s3req.Operation = UnsupportedOperation
		return fmt.Errorf("unsupported GET operation: no bucket in path")
	}

	// Если нет key или key заканчивается на "/", это список объектов
	if s3req.Key == "" || strings.HasSuffix(s3req.Key, "/") {
		s3req.Operation = ListObjectsV2
		return nil
	}

	// Иначе это получение объекта
	s3req.Operation = GetObject
	return nil
}

// determinePutOperation определяет PUT операции
func (p *RequestParser) determinePutOperation(s3req *S3Request) error {
	// Загрузка объекта: обязательны и bucket, и key
	if s3req.Bucket != "" && s3req.Key != "" {
		s3req.Operation = PutObject
		return nil
	}

	s3req.Operation = UnsupportedOperation
	return fmt.Errorf("unsupported PUT operation")
}

// determineHeadOperation определяет HEAD операции
func (p *RequestParser) determineHeadOperation(s3req *S3Request) error {
	// HEAD для объекта (bucket + key)
	if s3req.Bucket != "" && s3req.Key != "" {
		s3req.Operation = HeadObject
		return nil
	}

	// HEAD для бакета (только bucket, без key)
	if s3req.Bucket != "" && s3req.Key == "" {
		s3req.Operation = HeadBucket
		return nil
	}

	s3req.Operation = UnsupportedOperation
	return fmt.Errorf("unsupported HEAD operation")
}
