package cache

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"encoding/xml"
	"errors"
	"io"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/arazmj/s3-proxy/apigw"
	"github.com/arazmj/s3-proxy/backend"
	"github.com/arazmj/s3-proxy/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// --- Структуры для XML-ответов ---

type ListObjectsV2Result struct {
	XMLName               xml.Name `xml:"ListBucketResult"`
	Name                  string   `xml:"Name"`
	Prefix                string   `xml:"Prefix,omitempty"`
	KeyCount              int32    `xml:"KeyCount"`
	MaxKeys               int32    `xml:"MaxKeys"`
	IsTruncated           bool     `xml:"IsTruncated"`
	ContinuationToken     string   `xml:"ContinuationToken,omitempty"`
	NextContinuationToken string   `xml:"NextContinuationToken,omitempty"`
	Contents              []Object `xml:"Contents"`
}

type Object struct {
	Key          string    `xml:"Key"`
	LastModified time.Time `xml:"LastModified"`
	ETag         string    `xml:"ETag"`
	Size         int64     `xml:"Size"`
	StorageClass string    `xml:"StorageClass,omitempty"`
}

// ProxyContinuationToken представляет токен пагинации для нескольких бэкендов
type ProxyContinuationToken struct {
	BackendTokens map[string]string `json:"backend_tokens"`
}

type listResult struct {
	Backend *backend.Backend
	Result  *s3.ListObjectsV2Output
	Error   error
}

// ListObjects агрегирует листинг целевого бакета и всех источников.
// Дубликаты ключей схлопываются: метаданные берутся от бэкенда с высшим
// приоритетом - сначала целевой бакет, затем источники в порядке
// объявления в конфигурации.
func (m *Manager) ListObjects(ctx context.Context, req *apigw.S3Request) *apigw.S3Response {
	backends := m.listBackends()
	if len(backends) == 0 {
		return m.createErrorResponse(http.StatusBadGateway, "ServiceUnavailable",
			"Upstream backends are unavailable. Please try again.")
	}

	// 1. Декодирование токена пагинации
	backendTokens := make(map[string]string)
	if tokenStr := req.Query.Get("continuation-token"); tokenStr != "" {
		var proxyToken ProxyContinuationToken
		if data, err := base64.StdEncoding.DecodeString(tokenStr); err == nil {
			if json.Unmarshal(data, &proxyToken) == nil {
				backendTokens = proxyToken.BackendTokens
			} else {
				logger.Error("ListObjects: failed to unmarshal JSON from continuation token")
			}
		} else {
			logger.Error("ListObjects: failed to decode base64 continuation token: %v", err)
		}
	}

	// 2. Параллельные запросы ко всем бэкендам
	resultsChan := make(chan listResult, len(backends))
	var wg sync.WaitGroup
	for _, be := range backends {
		wg.Add(1)
		go func(b *backend.Backend) {
			defer wg.Done()
			start := time.Now()

			result, err := m.performListObjectsV2(ctx, req, b, backendTokens[b.ID])
			latency := time.Since(start)

			if err == nil {
				m.provider.ReportSuccess(&backend.BackendResult{
					BackendID: b.ID, Method: "LIST_OBJECTS", StatusCode: http.StatusOK, Duration: latency,
				})
			} else {
				var apiErr smithy.APIError
				statusCode := http.StatusInternalServerError
				if errors.As(err, &apiErr) {
					var httpErr interface{ HTTPStatusCode() int }
					if errors.As(apiErr, &httpErr) {
						statusCode = httpErr.HTTPStatusCode()
					}
				}
				logger.Error("ListObjects: failure from backend %s in %v. Status: %d, Error: %v",
					b.ID, latency, statusCode, err)
				m.provider.ReportFailure(&backend.BackendResult{
					BackendID: b.ID, Method: "LIST_OBJECTS", StatusCode: statusCode, Err: err, Duration: latency,
				})
			}
			resultsChan <- listResult{Backend: b, Result: result, Error: err}
		}(be)
	}

	// 3. Сбор результатов
	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	var allResults []listResult
	for res := range resultsChan {
		allResults = append(allResults, res)
	}

	return m.mergeListObjectsV2Results(req, allResults)
}

// listBackends возвращает бэкенды для листинга: целевой бакет первым,
// затем источники в порядке конфигурации. Бэкенды с открытым Circuit
// Breaker пропускаются.
func (m *Manager) listBackends() []*backend.Backend {
	var backends []*backend.Backend
	if target := m.provider.Target(); target.GetState() != backend.StateDown {
		backends = append(backends, target)
	}
	for _, source := range m.provider.Sources() {
		if source.GetState() != backend.StateDown {
			backends = append(backends, source)
		}
	}
	return backends
}

// precedence возвращает приоритет бэкенда при схлопывании дубликатов:
// чем меньше, тем авторитетнее
func (m *Manager) precedence(backendID string) int {
	if backendID == backend.TargetBackendID {
		return 0
	}
	for i, source := range m.provider.Sources() {
		if source.ID == backendID {
			return i + 1
		}
	}
	return len(m.provider.Sources()) + 1
}

// performListObjectsV2 выполняет листинг на одном бэкенде
func (m *Manager) performListObjectsV2(ctx context.Context, req *apigw.S3Request, b *backend.Backend, token string) (*s3.ListObjectsV2Output, error) {
	input := &s3.ListObjectsV2Input{
		Prefix: aws.String(req.Query.Get("prefix")),
	}
	if d := req.Query.Get("delimiter"); d != "" {
		input.Delimiter = aws.String(d)
	}
	if token != "" {
		input.ContinuationToken = aws.String(token)
	}
	if maxKeysStr := req.Query.Get("max-keys"); maxKeysStr != "" {
		if maxKeys, err := strconv.ParseInt(maxKeysStr, 10, 32); err == nil && maxKeys > 0 {
			input.MaxKeys = aws.Int32(int32(maxKeys))
		}
	}

	result, err := b.ListObjectsV2(ctx, input)
	if err != nil {
		logger.Error("performListObjectsV2: error from backend %s: %v", b.ID, err)
		return nil, err
	}

	logger.Debug("performListObjectsV2: response from backend %s: Keys=%d, IsTruncated=%v",
		b.ID, len(result.Contents), aws.ToBool(result.IsTruncated))
	return result, nil
}

// mergeListObjectsV2Results объединяет листинги в один отсортированный ответ.
// Частичный отказ бэкендов допустим, но если не ответил ни один, отдавать
// пустой листинг нельзя - клиент должен увидеть 502, а не пустой бакет.
func (m *Manager) mergeListObjectsV2Results(req *apigw.S3Request, results []listResult) *apigw.S3Response {
	succeeded := 0
	for _, res := range results {
		if res.Error == nil && res.Result != nil {
			succeeded++
		}
	}
	if succeeded == 0 {
		return m.createErrorResponse(http.StatusBadGateway, "ServiceUnavailable",
			"Upstream backends are unavailable. Please try again.")
	}

	type rankedObject struct {
		object Object
		rank   int
	}

	objectsMap := make(map[string]rankedObject)
	newBackendTokens := make(map[string]string)
	isTruncated := false

	for _, res := range results {
		if res.Error != nil || res.Result == nil {
			continue
		}
		rank := m.precedence(res.Backend.ID)
		for _, objSDK := range res.Result.Contents {
			key := aws.ToString(objSDK.Key)
			newObj := Object{
				Key:          key,
				LastModified: aws.ToTime(objSDK.LastModified),
				ETag:         aws.ToString(objSDK.ETag),
				Size:         aws.ToInt64(objSDK.Size),
				StorageClass: string(objSDK.StorageClass),
			}
			if existing, exists := objectsMap[key]; !exists || rank < existing.rank {
				objectsMap[key] = rankedObject{object: newObj, rank: rank}
			}
		}
		if aws.ToBool(res.Result.IsTruncated) {
			isTruncated = true
			if token := aws.ToString(res.Result.NextContinuationToken); token != "" {
				newBackendTokens[res.Backend.ID] = token
			}
		}
	}

	finalObjects := make([]Object, 0, len(objectsMap))
	for _, ranked := range objectsMap {
		finalObjects = append(finalObjects, ranked.object)
	}
	sort.Slice(finalObjects, func(i, j int) bool { return finalObjects[i].Key < finalObjects[j].Key })

	var nextTokenStr string
	if isTruncated && len(newBackendTokens) > 0 {
		proxyToken := ProxyContinuationToken{BackendTokens: newBackendTokens}
		if tokenBytes, err := json.Marshal(proxyToken); err == nil {
			nextTokenStr = base64.StdEncoding.EncodeToString(tokenBytes)
		}
	}

	maxKeys, _ := strconv.ParseInt(req.Query.Get("max-keys"), 10, 32)
	if maxKeys <= 0 {
		maxKeys = 1000
	}

	finalResult := ListObjectsV2Result{
		Name:                  req.Bucket,
		Prefix:                req.Query.Get("prefix"),
		MaxKeys:               int32(maxKeys),
		KeyCount:              int32(len(finalObjects)),
		IsTruncated:           nextTokenStr != "",
		ContinuationToken:     req.Query.Get("continuation-token"),
		NextContinuationToken: nextTokenStr,
		Contents:              finalObjects,
	}

	xmlData, err := xml.MarshalIndent(finalResult, "", "  ")
	if err != nil {
		return &apigw.S3Response{StatusCode: http.StatusInternalServerError, Error: err}
	}

	headers := make(http.Header)
	headers.Set("Content-Type", "application/xml")
	headers.Set("Content-Length", strconv.Itoa(len(xmlData)))

	return &apigw.S3Response{
		StatusCode: http.StatusOK,
		Headers:    headers,
		Body:       io.NopCloser(bytes.NewReader(xmlData)),
	}
}
