package cache

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arazmj/s3-proxy/apigw"
	"github.com/arazmj/s3-proxy/backend"
	"github.com/arazmj/s3-proxy/routing"
)

// flakyPutServer отвечает 500 на первые failures запросов PUT и
// запоминает тело каждой попытки
type flakyPutServer struct {
	mu       sync.Mutex
	failures int
	bodies   []string
}

func (f *flakyPutServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)

		f.mu.Lock()
		f.bodies = append(f.bodies, string(data))
		attempt := len(f.bodies)
		failures := f.failures
		f.mu.Unlock()

		if attempt <= failures {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("ETag", `"retry-etag"`)
		w.WriteHeader(http.StatusOK)
	}
}

func (f *flakyPutServer) recordedBodies() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.bodies...)
}

func newPutEnv(t *testing.T, endpoint string) *Manager {
	t.Helper()

	cfg := func(bucket string) backend.BackendConfig {
		return backend.BackendConfig{
			Endpoint:  endpoint,
			Region:    "us-east-1",
			Bucket:    bucket,
			AccessKey: "test",
			SecretKey: "test",
		}
	}

	provider, err := backend.NewManager(&backend.Config{
		Manager: backend.DefaultManagerConfig(),
		Target:  cfg("cache"),
		Sources: []backend.SourceConfig{
			{Name: "mirror", BackendConfig: cfg("src")},
		},
	}, nil)
	require.NoError(t, err)

	cacheCfg := DefaultConfig()
	cacheCfg.RetryAttempts = 2
	cacheCfg.RetryDelay = 10 * time.Millisecond

	manager, err := NewManager(provider, routing.NewRouter(provider, nil), cacheCfg, nil)
	require.NoError(t, err)
	return manager
}

func putRequest(key, payload string) *apigw.S3Request {
	headers := make(http.Header)
	headers.Set("Content-Type", "application/octet-stream")
	return &apigw.S3Request{
		Operation:     apigw.PutObject,
		Bucket:        "data",
		Key:           key,
		Headers:       headers,
		ContentLength: int64(len(payload)),
		Context:       context.Background(),
	}
}

func TestPerformPutToTarget_RetryResendsFullBody(t *testing.T) {
	srv := &flakyPutServer{failures: 1}
	server := httptest.NewServer(srv.handler())
	t.Cleanup(server.Close)

	manager := newPutEnv(t, server.URL)
	payload := "full payload that must survive a retry"

	req := putRequest("doc.txt", payload)
	result := manager.performPutToTarget(context.Background(), req, strings.NewReader(payload))

	require.NoError(t, result.Err)
	assert.Equal(t, int64(len(payload)), result.BytesWritten)

	// Первая попытка упала на 500, вторая должна уйти с полным телом
	bodies := srv.recordedBodies()
	require.GreaterOrEqual(t, len(bodies), 2)
	for i, body := range bodies {
		assert.Equalf(t, payload, body, "attempt %d sent a truncated body", i+1)
	}
}

func TestPerformPutToTarget_NonRewindableBodyIsNotRetried(t *testing.T) {
	srv := &flakyPutServer{failures: 100}
	server := httptest.NewServer(srv.handler())
	t.Cleanup(server.Close)

	manager := newPutEnv(t, server.URL)
	payload := "one-shot stream"

	// io.Reader без Seek: повтор переслал бы уже прочитанный поток
	req := putRequest("doc.txt", payload)
	result := manager.performPutToTarget(context.Background(), req, io.MultiReader(strings.NewReader(payload)))

	require.Error(t, result.Err)
	assert.Len(t, srv.recordedBodies(), 1)
}
