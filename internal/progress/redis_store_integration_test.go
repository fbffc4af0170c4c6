package progress

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"streamcove/internal/testsupport/redisstub"
)

func TestRedisStorePlain(t *testing.T) {
	runRedisStoreIntegration(t, false)
}

func TestRedisStoreTLS(t *testing.T) {
	runRedisStoreIntegration(t, true)
}

func runRedisStoreIntegration(t *testing.T, useTLS bool) {
	t.Helper()
	srv, err := redisstub.Start(redisstub.Options{Password: "secret", EnableTLS: useTLS})
	if err != nil {
		t.Fatalf("start redis stub: %v", err)
	}
	t.Cleanup(func() {
		_ = srv.Close()
	})

	cfg := RedisConfig{
		Addr:     srv.Addr(),
		Password: "secret",
		TTL:      time.Hour,
	}
	if useTLS {
		dir := t.TempDir()
		caPath := filepath.Join(dir, "ca.pem")
		if err := os.WriteFile(caPath, srv.CertPEM(), 0o600); err != nil {
			t.Fatalf("write ca: %v", err)
		}
		cfg.TLS = RedisTLSConfig{CAFile: caPath}
	}

	store, err := NewRedisStore(cfg)
	if err != nil {
		t.Fatalf("new redis store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	ctx := context.Background()

	record, err := store.Get(ctx, "42")
	if err != nil {
		t.Fatalf("get before set: %v", err)
	}
	if record.Percent != 0 || record.Status != StatusUnknown {
		t.Fatalf("expected unknown record, got %+v", record)
	}

	if err := store.Set(ctx, "42", 45, StatusProcessing); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	record, err = store.Get(ctx, "42")
	if err != nil {
		t.Fatalf("get after set: %v", err)
	}
	if record.Percent != 45 || record.Status != StatusProcessing {
		t.Fatalf("unexpected record: %+v", record)
	}

	if err := store.Set(ctx, "42", 100, StatusCompleted); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	record, err = store.Get(ctx, "42")
	if err != nil {
		t.Fatalf("get after overwrite: %v", err)
	}
	if record.Percent != 100 || record.Status != StatusCompleted {
		t.Fatalf("unexpected record after overwrite: %+v", record)
	}

	srv.Expire("video_progress:42")
	record, err = store.Get(ctx, "42")
	if err != nil {
		t.Fatalf("get after expiry: %v", err)
	}
	if record.Status != StatusUnknown {
		t.Fatalf("expected expired record to read as unknown, got %+v", record)
	}
}
