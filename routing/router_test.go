package routing

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/arazmj/s3-proxy/backend"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"
)

// newFakeManager поднимает in-memory S3 с целевым бакетом и двумя
// источниками и возвращает готовый менеджер бэкендов
func newFakeManager(t *testing.T) *backend.Manager {
	t.Helper()

	mem := s3mem.New()
	fs := gofakes3.New(mem)
	server := httptest.NewServer(fs.Server())
	t.Cleanup(server.Close)

	for _, bucket := range []string{"cache", "src-a", "src-b"} {
		if err := mem.CreateBucket(bucket); err != nil {
			t.Fatalf("create bucket %s: %v", bucket, err)
		}
	}

	cfg := &backend.Config{
		Manager: managerConfigForTest(),
		Target: backend.BackendConfig{
			Endpoint:  server.URL,
			Region:    "us-east-1",
			Bucket:    "cache",
			AccessKey: "test",
			SecretKey: "test",
		},
		Sources: []backend.SourceConfig{
			{
				Name: "alpha",
				BackendConfig: backend.BackendConfig{
					Endpoint:  server.URL,
					Region:    "us-east-1",
					Bucket:    "src-a",
					AccessKey: "test",
					SecretKey: "test",
				},
			},
			{
				Name: "beta",
				BackendConfig: backend.BackendConfig{
					Endpoint:  server.URL,
					Region:    "us-east-1",
					Bucket:    "src-b",
					AccessKey: "test",
					SecretKey: "test",
				},
			},
		},
	}

	manager, err := backend.NewManager(cfg, nil)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return manager
}

func managerConfigForTest() backend.ManagerConfig {
	cfg := backend.DefaultManagerConfig()
	cfg.InitialState = backend.StateUp
	return cfg
}

func putDirect(t *testing.T, b *backend.Backend, key, content string) {
	t.Helper()
	_, err := b.S3Client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(b.Config.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader([]byte(content)),
	})
	if err != nil {
		t.Fatalf("put %s: %v", key, err)
	}
}

func TestRouteRead(t *testing.T) {
	manager := newFakeManager(t)
	router := NewRouter(manager, nil)
	ctx := context.Background()

	t.Run("CacheHitWinsOverSources", func(t *testing.T) {
		putDirect(t, manager.Target(), "both.txt", "cached")
		putDirect(t, manager.Sources()[0], "both.txt", "origin")

		decision, err := router.RouteRead(ctx, "both.txt")
		if err != nil {
			t.Fatalf("RouteRead failed: %v", err)
		}
		if decision.Kind != CacheHit {
			t.Errorf("expected CacheHit, got %s", decision.Kind)
		}
		if decision.Backend.ID != backend.TargetBackendID {
			t.Errorf("expected target backend, got %s", decision.Backend.ID)
		}
		if decision.Head == nil {
			t.Error("decision must carry the HeadObject response")
		}
	})

	t.Run("FirstSourceWins", func(t *testing.T) {
		putDirect(t, manager.Sources()[0], "dup.txt", "from alpha")
		putDirect(t, manager.Sources()[1], "dup.txt", "from beta")

		decision, err := router.RouteRead(ctx, "dup.txt")
		if err != nil {
			t.Fatalf("RouteRead failed: %v", err)
		}
		if decision.Kind != SourceFetch {
			t.Errorf("expected SourceFetch, got %s", decision.Kind)
		}
		if decision.Backend.ID != "alpha" {
			t.Errorf("expected first-declared source to win, got %s", decision.Backend.ID)
		}
	})

	t.Run("SecondSourceFallback", func(t *testing.T) {
		putDirect(t, manager.Sources()[1], "only-beta.txt", "from beta")

		decision, err := router.RouteRead(ctx, "only-beta.txt")
		if err != nil {
			t.Fatalf("RouteRead failed: %v", err)
		}
		if decision.Kind != SourceFetch || decision.Backend.ID != "beta" {
			t.Errorf("expected SourceFetch from beta, got %s from %v", decision.Kind, decision.Backend)
		}
	})

	t.Run("MissWhenAbsentEverywhere", func(t *testing.T) {
		decision, err := router.RouteRead(ctx, "nowhere.txt")
		if err != nil {
			t.Fatalf("RouteRead failed: %v", err)
		}
		if decision.Kind != Miss {
			t.Errorf("expected Miss, got %s", decision.Kind)
		}
	})
}

func TestRouteReadUpstreamUnavailable(t *testing.T) {
	// Эндпоинт, который сразу закрыт: каждая проба падает с сетевой ошибкой
	dead := httptest.NewServer(nil)
	deadURL := dead.URL
	dead.Close()

	cfg := &backend.Config{
		Manager: managerConfigForTest(),
		Target: backend.BackendConfig{
			Endpoint:  deadURL,
			Region:    "us-east-1",
			Bucket:    "cache",
			AccessKey: "test",
			SecretKey: "test",
		},
		Sources: []backend.SourceConfig{
			{
				Name: "alpha",
				BackendConfig: backend.BackendConfig{
					Endpoint:  deadURL,
					Region:    "us-east-1",
					Bucket:    "src-a",
					AccessKey: "test",
					SecretKey: "test",
				},
			},
		},
	}

	manager, err := backend.NewManager(cfg, nil)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	router := NewRouter(manager, nil)

	_, err = router.RouteRead(context.Background(), "anything.txt")
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Errorf("expected ErrUpstreamUnavailable, got %v", err)
	}
}
