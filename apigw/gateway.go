package apigw

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/arazmj/s3-proxy/logger"
)

// Gateway представляет модуль API Gateway
type Gateway struct {
	config         Config
	handler        RequestHandler
	parser         *RequestParser
	responseWriter *ResponseWriter
	server         *http.Server
	metrics        *Metrics
}

// New создает новый экземпляр API Gateway. metrics может быть nil.
func New(config Config, handler RequestHandler, metrics *Metrics) *Gateway {
	return &Gateway{
		config:         config,
		handler:        handler,
		parser:         NewRequestParser(),
		responseWriter: NewResponseWriter(),
		metrics:        metrics,
	}
}

// ServeHTTP реализует интерфейс http.Handler
func (gw *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	logger.Info("Incoming request: %s %s", r.Method, r.URL.Path)

	// Парсим запрос
	s3req, err := gw.parser.Parse(r)
	if err != nil {
		logger.Error("Failed to parse request: %v", err)
		s3resp := &S3Response{
			StatusCode: http.StatusBadRequest,
			Error:      fmt.Errorf("invalid request: %v", err),
		}
		gw.responseWriter.WriteResponse(w, s3resp)
		gw.observe(r.Method, s3resp.StatusCode, start)
		return
	}

	// Ограничение на размер тела PUT запроса. Проверяем до того,
	// как тело уедет на бэкенд.
	if s3req.Operation == PutObject && gw.config.MaxFileSize > 0 && s3req.ContentLength > gw.config.MaxFileSize {
		logger.Warn("Rejecting PUT %s/%s: content length %d exceeds limit %d",
			s3req.Bucket, s3req.Key, s3req.ContentLength, gw.config.MaxFileSize)
		s3resp := &S3Response{
			StatusCode: http.StatusBadRequest,
			Error: fmt.Errorf("invalid request: file size %d exceeds maximum allowed size of %d bytes",
				s3req.ContentLength, gw.config.MaxFileSize),
		}
		gw.responseWriter.WriteResponse(w, s3resp)
		gw.observe(r.Method, s3resp.StatusCode, start)
		return
	}

	// Передаем управление обработчику
	s3resp := gw.handler.Handle(s3req)

	// Отправляем ответ клиенту
	if err := gw.responseWriter.WriteResponse(w, s3resp); err != nil {
		logger.Error("Failed to write response: %v", err)
	}

	logger.Info("Response sent: %d, %.3f ms", s3resp.StatusCode, float64(time.Since(start).Microseconds())/1000.0)
	gw.observe(r.Method, s3resp.StatusCode, start)
}

// observe обновляет метрики обработанного запроса
func (gw *Gateway) observe(method string, statusCode int, start time.Time) {
	if gw.metrics == nil {
		return
	}
	gw.metrics.RequestsTotal.WithLabelValues(method, strconv.Itoa(statusCode)).Inc()
	gw.metrics.RequestLatency.WithLabelValues(method).Observe(time.Since(start).Seconds())
}

// Start запускает сервер
func (gw *Gateway) Start() error {
	gw.server = &http.Server{
		Addr:         gw.config.ListenAddress,
		Handler:      gw,
		ReadTimeout:  gw.config.ReadTimeout,
		WriteTimeout: gw.config.WriteTimeout,
	}

	logger.Info("Starting API Gateway on %s", gw.config.ListenAddress)

	// Проверяем, нужно ли использовать TLS
	if gw.config.TLSCertFile != "" && gw.config.TLSKeyFile != "" {
		logger.Info("Starting HTTPS server with TLS")
		return gw.server.ListenAndServeTLS(gw.config.TLSCertFile, gw.config.TLSKeyFile)
	}

	logger.Info("Starting HTTP server")
	return gw.server.ListenAndServe()
}

// Stop останавливает сервер
func (gw *Gateway) Stop(ctx context.Context) error {
	if gw.server == nil {
		return nil
	}

	logger.Info("Stopping API Gateway...")
	return gw.server.Shutdown(ctx)
}
