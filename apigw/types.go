package apigw

import (
	"context"
	"io"
	"net/http"
	"net/url"
)

// S3Operation определяет тип S3 операции.
type S3Operation int

const (
	// Определяем константы для всех поддерживаемых операций
	UnsupportedOperation S3Operation = iota
	PutObject
	GetObject
	HeadObject
	HeadBucket
	ListObjectsV2
)

// String возвращает строковое представление операции
func (op S3Operation) String() string {
	switch op {
	case PutObject:
		return "PUT_OBJECT"
	case GetObject:
		return "GET_OBJECT"
	case HeadObject:
		return "HEAD_OBJECT"
	case HeadBucket:
		return "HEAD_BUCKET"
	case ListObjectsV2:
		return "LIST_OBJECTS_V2"
	default:
		return "UNSUPPORTED_OPERATION"
	}
}

// IsWrite возвращает true для операций, изменяющих данные.
// Используется модулем авторизации для проверки права на запись.
func (op S3Operation) IsWrite() bool {
	return op == PutObject
}

// S3Request - это стандартизированное внутреннее представление S3-запроса.
// Создается модулем API Gateway из http.Request.
type S3Request struct {
	// Тип операции, определенный парсером.
	Operation S3Operation

	// Имя бакета, извлеченное из URL.
	Bucket string

	// Ключ объекта, извлеченный из URL.
	Key string

	// Хост из заголовка Host
	Host string

	// Схема запроса (http или https)
	Scheme string

	// Оригинальные заголовки HTTP запроса.
	Headers http.Header

	// Оригинальные query-параметры запроса.
	Query url.Values

	// Тело запроса для операций PUT.
	// Передается как есть для потоковой обработки.
	Body io.ReadCloser

	// Размер тела запроса, из заголовка Content-Length.
	ContentLength int64

	// Оригинальный контекст запроса для поддержки таймаутов и отмены.
	Context context.Context
}

// APIKey возвращает значение заголовка x-api-key.
// Пустая строка означает, что клиент не представился.
func (r *S3Request) APIKey() string {
	return r.Headers.Get("x-api-key")
}

// S3Response - это стандартизированное внутреннее представление ответа.
// Формируется нижележащими модулями и используется API Gateway для отправки ответа.
type S3Response struct {
	// HTTP код состояния для отправки клиенту (например, 200, 404, 502).
	StatusCode int

	// Заголовки для отправки клиенту.
	Headers http.Header

	// Тело ответа для отправки клиенту.
	// Должно быть потоком для эффективной передачи больших объектов.
	Body io.ReadCloser

	// Ошибка, возникшая при обработке. Если не nil, Body игнорируется.
	// Используется для формирования стандартного S3 XML-ответа об ошибке.
	Error error
}

// RequestHandler - это интерфейс, который должен реализовывать
// следующий по цепочке модуль (Policy & Routing Engine).
type RequestHandler interface {
	// Handle принимает распарсенный S3Request и выполняет всю бизнес-логику,
	// возвращая S3Response, готовый для отправки клиенту.
	Handle(req *S3Request) *S3Response
}
