package catalog

import (
	"context"
	"testing"
	"time"
)

func clearCatalogEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"STREAMCOVE_CATALOG_DRIVER",
		"STREAMCOVE_CATALOG_API",
		"STREAMCOVE_CATALOG_TOKEN",
		"STREAMCOVE_CATALOG_POSTGRES_DSN",
		"STREAMCOVE_CATALOG_TABLE",
		"STREAMCOVE_CATALOG_TIMEOUT",
	} {
		t.Setenv(name, "")
	}
}

func TestLoadConfigFromEnvDefaultsToNoop(t *testing.T) {
	clearCatalogEnv(t)

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Driver != "noop" {
		t.Fatalf("expected noop driver, got %q", cfg.Driver)
	}
	if cfg.Enabled() {
		t.Fatal("expected noop config to be disabled")
	}

	notifier, err := cfg.NewNotifier(context.Background())
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}
	if _, ok := notifier.(NoopNotifier); !ok {
		t.Fatalf("expected NoopNotifier, got %T", notifier)
	}
}

func TestLoadConfigFromEnvInfersHTTPDriver(t *testing.T) {
	clearCatalogEnv(t)
	t.Setenv("STREAMCOVE_CATALOG_API", "http://backend:8000")
	t.Setenv("STREAMCOVE_CATALOG_TIMEOUT", "30s")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Driver != "http" {
		t.Fatalf("expected http driver, got %q", cfg.Driver)
	}
	if !cfg.Enabled() {
		t.Fatal("expected http config to be enabled")
	}
	if cfg.Timeout != 30*time.Second {
		t.Fatalf("expected 30s timeout, got %v", cfg.Timeout)
	}
}

func TestLoadConfigFromEnvInfersPostgresDriver(t *testing.T) {
	clearCatalogEnv(t)
	t.Setenv("STREAMCOVE_CATALOG_POSTGRES_DSN", "postgres://catalog")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Driver != "postgres" {
		t.Fatalf("expected postgres driver, got %q", cfg.Driver)
	}
}

func TestLoadConfigFromEnvRejectsIncompleteDriver(t *testing.T) {
	clearCatalogEnv(t)
	t.Setenv("STREAMCOVE_CATALOG_DRIVER", "http")

	if _, err := LoadConfigFromEnv(); err == nil {
		t.Fatal("expected error for http driver without base URL")
	}
}

func TestLoadConfigFromEnvRejectsUnknownDriver(t *testing.T) {
	clearCatalogEnv(t)
	t.Setenv("STREAMCOVE_CATALOG_DRIVER", "kafka")

	if _, err := LoadConfigFromEnv(); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestLoadConfigFromEnvRejectsBadTimeout(t *testing.T) {
	clearCatalogEnv(t)
	t.Setenv("STREAMCOVE_CATALOG_TIMEOUT", "soon")

	if _, err := LoadConfigFromEnv(); err == nil {
		t.Fatal("expected error for malformed timeout")
	}
}
