package backend

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"
)

// setupFakeS3 поднимает in-memory S3 и возвращает менеджер, у которого
// и target, и источник смотрят на него. Источник mirror видит только
// ключи под префиксом archive/.
func setupFakeS3(t *testing.T) (*httptest.Server, *Manager) {
	t.Helper()

	mem := s3mem.New()
	fs := gofakes3.New(mem)
	server := httptest.NewServer(fs.Server())
	t.Cleanup(server.Close)

	for _, bucket := range []string{"proxy-cache", "mirror-bucket"} {
		if err := mem.CreateBucket(bucket); err != nil {
			t.Fatalf("create bucket %s: %v", bucket, err)
		}
	}

	cfg := &Config{
		Manager: DefaultManagerConfig(),
		Target: BackendConfig{
			Endpoint:  server.URL,
			Region:    "us-east-1",
			Bucket:    "proxy-cache",
			AccessKey: "test",
			SecretKey: "test",
		},
		Sources: []SourceConfig{
			{
				Name: "mirror",
				BackendConfig: BackendConfig{
					Endpoint:  server.URL,
					Region:    "us-east-1",
					Bucket:    "mirror-bucket",
					AccessKey: "test",
					SecretKey: "test",
					Prefix:    "archive/",
				},
			},
		},
	}

	manager, err := NewManager(cfg, nil)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return server, manager
}

// seedObject кладет объект напрямую по физическому ключу, минуя префиксы
func seedObject(t *testing.T, backend *Backend, physicalKey, content string) {
	t.Helper()
	_, err := backend.S3Client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(backend.Config.Bucket),
		Key:    aws.String(physicalKey),
		Body:   bytes.NewReader([]byte(content)),
	})
	if err != nil {
		t.Fatalf("seed object %s: %v", physicalKey, err)
	}
}

func TestBackendOperations(t *testing.T) {
	_, manager := setupFakeS3(t)
	ctx := context.Background()
	target := manager.Target()
	mirror := manager.Sources()[0]

	t.Run("PutThenGetOnTarget", func(t *testing.T) {
		_, err := target.PutObject(ctx, &s3.PutObjectInput{
			Key:         aws.String("docs/readme.txt"),
			Body:        bytes.NewReader([]byte("hello")),
			ContentType: aws.String("text/plain"),
		})
		if err != nil {
			t.Fatalf("PutObject failed: %v", err)
		}

		out, err := target.GetObject(ctx, "docs/readme.txt")
		if err != nil {
			t.Fatalf("GetObject failed: %v", err)
		}
		defer out.Body.Close()

		body, _ := io.ReadAll(out.Body)
		if string(body) != "hello" {
			t.Errorf("expected 'hello', got %q", body)
		}
	})

	t.Run("HeadMissingObjectIsNotFound", func(t *testing.T) {
		_, err := target.HeadObject(ctx, "no-such-key")
		if err == nil {
			t.Fatal("expected error for missing object")
		}
		if !IsNotFound(err) {
			t.Errorf("expected 404 classification, got %v", err)
		}
	})

	t.Run("PrefixAppliedOnRead", func(t *testing.T) {
		// Физически объект лежит в archive/, логически виден без префикса
		seedObject(t, mirror, "archive/data.bin", "payload")

		out, err := mirror.GetObject(ctx, "data.bin")
		if err != nil {
			t.Fatalf("GetObject through prefix failed: %v", err)
		}
		defer out.Body.Close()

		body, _ := io.ReadAll(out.Body)
		if string(body) != "payload" {
			t.Errorf("expected 'payload', got %q", body)
		}
	})

	t.Run("ListStripsPrefixAndHidesForeignKeys", func(t *testing.T) {
		seedObject(t, mirror, "archive/list/a.txt", "a")
		seedObject(t, mirror, "archive/list/b.txt", "b")
		seedObject(t, mirror, "outside/c.txt", "c")

		out, err := mirror.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Prefix: aws.String("list/"),
		})
		if err != nil {
			t.Fatalf("ListObjectsV2 failed: %v", err)
		}

		keys := make(map[string]bool)
		for _, obj := range out.Contents {
			keys[aws.ToString(obj.Key)] = true
		}

		if !keys["list/a.txt"] || !keys["list/b.txt"] {
			t.Errorf("expected logical keys list/a.txt and list/b.txt, got %v", keys)
		}
		for key := range keys {
			if key == "outside/c.txt" || key == "archive/list/a.txt" {
				t.Errorf("physical or foreign key leaked into listing: %s", key)
			}
		}
	})
}

func TestBackendOperations_OperationTimeout(t *testing.T) {
	// Бэкенд, который никогда не отвечает
	stuck := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	t.Cleanup(stuck.Close)

	managerCfg := DefaultManagerConfig()
	managerCfg.OperationTimeout = 100 * time.Millisecond

	backendCfg := func(bucket string) BackendConfig {
		return BackendConfig{
			Endpoint:  stuck.URL,
			Region:    "us-east-1",
			Bucket:    bucket,
			AccessKey: "test",
			SecretKey: "test",
		}
	}

	manager, err := NewManager(&Config{
		Manager: managerCfg,
		Target:  backendCfg("proxy-cache"),
		Sources: []SourceConfig{
			{Name: "mirror", BackendConfig: backendCfg("mirror-bucket")},
		},
	}, nil)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	target := manager.Target()

	t.Run("HeadObject", func(t *testing.T) {
		start := time.Now()
		_, err := target.HeadObject(context.Background(), "any-key")
		elapsed := time.Since(start)

		if err == nil {
			t.Fatal("expected error from unresponsive backend")
		}
		if elapsed > 5*time.Second {
			t.Fatalf("call was not bounded by operation timeout, took %v", elapsed)
		}
	})

	t.Run("ListObjectsV2", func(t *testing.T) {
		start := time.Now()
		_, err := target.ListObjectsV2(context.Background(), &s3.ListObjectsV2Input{
			Prefix: aws.String(""),
		})
		elapsed := time.Since(start)

		if err == nil {
			t.Fatal("expected error from unresponsive backend")
		}
		if elapsed > 5*time.Second {
			t.Fatalf("call was not bounded by operation timeout, took %v", elapsed)
		}
	})

	t.Run("GetObject", func(t *testing.T) {
		start := time.Now()
		_, err := target.GetObject(context.Background(), "any-key")
		elapsed := time.Since(start)

		if err == nil {
			t.Fatal("expected error from unresponsive backend")
		}
		if elapsed > 5*time.Second {
			t.Fatalf("call was not bounded by operation timeout, took %v", elapsed)
		}
	})
}
