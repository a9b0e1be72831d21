package routing

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/arazmj/s3-proxy/apigw"
	"github.com/arazmj/s3-proxy/auth"
	"github.com/arazmj/s3-proxy/ratelimit"
)

// mockExecutor записывает, какая операция была вызвана, и отвечает 200
type mockExecutor struct {
	lastCall string
}

func (m *mockExecutor) respond(call string) *apigw.S3Response {
	m.lastCall = call
	return &apigw.S3Response{
		StatusCode: http.StatusOK,
		Headers:    make(http.Header),
		Body:       io.NopCloser(strings.NewReader("")),
	}
}

func (m *mockExecutor) GetObject(ctx context.Context, req *apigw.S3Request) *apigw.S3Response {
	return m.respond("GetObject")
}
func (m *mockExecutor) HeadObject(ctx context.Context, req *apigw.S3Request) *apigw.S3Response {
	return m.respond("HeadObject")
}
func (m *mockExecutor) PutObject(ctx context.Context, req *apigw.S3Request) *apigw.S3Response {
	return m.respond("PutObject")
}
func (m *mockExecutor) HeadBucket(ctx context.Context, req *apigw.S3Request) *apigw.S3Response {
	return m.respond("HeadBucket")
}
func (m *mockExecutor) ListObjects(ctx context.Context, req *apigw.S3Request) *apigw.S3Response {
	return m.respond("ListObjects")
}

func newTestEngine(t *testing.T) (*Engine, *mockExecutor) {
	t.Helper()

	principals := []*auth.Principal{
		{
			APIKey:      "admin-key",
			DisplayName: "admin",
			Role:        auth.RoleAdmin,
			RateLimit:   1000,
			RateWindow:  time.Minute,
		},
		{
			APIKey:         "rw-key",
			DisplayName:    "writer",
			Role:           auth.RoleReadWrite,
			AllowedBuckets: []string{"bucket1"},
			RateLimit:      1000,
			RateWindow:     time.Minute,
		},
		{
			APIKey:         "ro-key",
			DisplayName:    "reader",
			Role:           auth.RoleReadOnly,
			AllowedBuckets: []string{"bucket1"},
			RateLimit:      1000,
			RateWindow:     time.Minute,
		},
		{
			APIKey:         "tiny-key",
			DisplayName:    "throttled",
			Role:           auth.RoleReadOnly,
			AllowedBuckets: []string{"bucket1"},
			RateLimit:      2,
			RateWindow:     time.Minute,
		},
	}

	authorizer, err := auth.NewStaticAuthorizer(principals, nil)
	if err != nil {
		t.Fatalf("NewStaticAuthorizer failed: %v", err)
	}

	executor := &mockExecutor{}
	engine := NewEngine(authorizer, ratelimit.NewLimiter(nil), executor)
	return engine, executor
}

func newRequest(op apigw.S3Operation, bucket, key, apiKey string) *apigw.S3Request {
	headers := make(http.Header)
	if apiKey != "" {
		headers.Set("x-api-key", apiKey)
	}
	return &apigw.S3Request{
		Operation: op,
		Bucket:    bucket,
		Key:       key,
		Headers:   headers,
		Context:   context.Background(),
	}
}

func TestEngineAuthErrors(t *testing.T) {
	engine, _ := newTestEngine(t)

	tests := []struct {
		name       string
		req        *apigw.S3Request
		wantStatus int
		wantCode   string
	}{
		{
			name:       "MissingKey",
			req:        newRequest(apigw.GetObject, "bucket1", "a.txt", ""),
			wantStatus: http.StatusUnauthorized,
			wantCode:   "MissingSecurityHeader",
		},
		{
			name:       "UnknownKey",
			req:        newRequest(apigw.GetObject, "bucket1", "a.txt", "bogus"),
			wantStatus: http.StatusUnauthorized,
			wantCode:   "InvalidAccessKeyId",
		},
		{
			name:       "ForbiddenBucket",
			req:        newRequest(apigw.GetObject, "bucket2", "a.txt", "rw-key"),
			wantStatus: http.StatusForbidden,
			wantCode:   "AccessDenied",
		},
		{
			name:       "ReadOnlyCannotPut",
			req:        newRequest(apigw.PutObject, "bucket1", "a.txt", "ro-key"),
			wantStatus: http.StatusForbidden,
			wantCode:   "AccessDenied",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := engine.Handle(tt.req)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, resp.StatusCode)
			}

			body, _ := io.ReadAll(resp.Body)
			if !strings.Contains(string(body), "<Code>"+tt.wantCode+"</Code>") {
				t.Errorf("expected error code %s in body, got: %s", tt.wantCode, body)
			}
		})
	}
}

func TestEngineDispatch(t *testing.T) {
	engine, executor := newTestEngine(t)

	tests := []struct {
		op       apigw.S3Operation
		key      string
		wantCall string
	}{
		{apigw.GetObject, "a.txt", "GetObject"},
		{apigw.HeadObject, "a.txt", "HeadObject"},
		{apigw.PutObject, "a.txt", "PutObject"},
		{apigw.HeadBucket, "", "HeadBucket"},
		{apigw.ListObjectsV2, "", "ListObjects"},
	}

	for _, tt := range tests {
		t.Run(tt.wantCall, func(t *testing.T) {
			resp := engine.Handle(newRequest(tt.op, "bucket1", tt.key, "admin-key"))
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("expected 200, got %d", resp.StatusCode)
			}
			if executor.lastCall != tt.wantCall {
				t.Errorf("expected dispatch to %s, got %s", tt.wantCall, executor.lastCall)
			}
		})
	}
}

func TestEngineUnsupportedOperation(t *testing.T) {
	engine, _ := newTestEngine(t)

	resp := engine.Handle(newRequest(apigw.UnsupportedOperation, "bucket1", "", "admin-key"))
	if resp.StatusCode != http.StatusNotImplemented {
		t.Errorf("expected 501, got %d", resp.StatusCode)
	}
}

func TestEngineRateLimiting(t *testing.T) {
	engine, _ := newTestEngine(t)

	// Лимит throttled-пользователя - 2 запроса в минуту
	for i := 0; i < 2; i++ {
		resp := engine.Handle(newRequest(apigw.GetObject, "bucket1", "a.txt", "tiny-key"))
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, resp.StatusCode)
		}
	}

	resp := engine.Handle(newRequest(apigw.GetObject, "bucket1", "a.txt", "tiny-key"))
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.StatusCode)
	}
	if resp.Headers.Get("Retry-After") == "" {
		t.Error("429 response must carry a Retry-After header")
	}

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "<Code>SlowDown</Code>") {
		t.Errorf("expected SlowDown error code, got: %s", body)
	}

	// Лимит одного пользователя не должен задевать других
	resp = engine.Handle(newRequest(apigw.GetObject, "bucket1", "a.txt", "ro-key"))
	if resp.StatusCode != http.StatusOK {
		t.Errorf("other user should not be throttled, got %d", resp.StatusCode)
	}
}
