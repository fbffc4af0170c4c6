package catalog

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

// Config stores connectivity information for the catalog notifier.
type Config struct {
	Driver      string
	BaseURL     string
	Token       string
	PostgresDSN string
	Table       string
	Timeout     time.Duration
	HTTPClient  *http.Client
}

// LoadConfigFromEnv initialises a Config from environment variables.
func LoadConfigFromEnv() (Config, error) {
	cfg := Config{
		Driver:      strings.ToLower(strings.TrimSpace(os.Getenv("STREAMCOVE_CATALOG_DRIVER"))),
		BaseURL:     strings.TrimSpace(os.Getenv("STREAMCOVE_CATALOG_API")),
		Token:       strings.TrimSpace(os.Getenv("STREAMCOVE_CATALOG_TOKEN")),
		PostgresDSN: strings.TrimSpace(os.Getenv("STREAMCOVE_CATALOG_POSTGRES_DSN")),
		Table:       strings.TrimSpace(os.Getenv("STREAMCOVE_CATALOG_TABLE")),
		Timeout:     10 * time.Second,
	}
	if timeout := strings.TrimSpace(os.Getenv("STREAMCOVE_CATALOG_TIMEOUT")); timeout != "" {
		parsed, err := time.ParseDuration(timeout)
		if err != nil {
			return Config{}, fmt.Errorf("parse STREAMCOVE_CATALOG_TIMEOUT: %w", err)
		}
		if parsed > 0 {
			cfg.Timeout = parsed
		}
	}
	if cfg.Driver == "" {
		switch {
		case cfg.BaseURL != "":
			cfg.Driver = "http"
		case cfg.PostgresDSN != "":
			cfg.Driver = "postgres"
		default:
			cfg.Driver = "noop"
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Enabled reports whether the configuration names a real catalog endpoint.
func (c Config) Enabled() bool {
	return c.Driver == "http" || c.Driver == "postgres"
}

// Validate ensures the configuration is usable.
func (c Config) Validate() error {
	switch c.Driver {
	case "noop", "":
		return nil
	case "http":
		if c.BaseURL == "" {
			return fmt.Errorf("catalog driver http requires STREAMCOVE_CATALOG_API")
		}
		return nil
	case "postgres":
		if c.PostgresDSN == "" {
			return fmt.Errorf("catalog driver postgres requires STREAMCOVE_CATALOG_POSTGRES_DSN")
		}
		return nil
	default:
		return fmt.Errorf("unknown catalog driver %q", c.Driver)
	}
}

// NewNotifier constructs the Notifier selected by the configuration.
func (c Config) NewNotifier(ctx context.Context) (Notifier, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	switch c.Driver {
	case "http":
		client := c.HTTPClient
		if client == nil {
			client = &http.Client{Timeout: c.Timeout}
		}
		return NewHTTPNotifier(c.BaseURL, c.Token, client)
	case "postgres":
		return NewPostgresNotifier(ctx, PostgresConfig{DSN: c.PostgresDSN, Table: c.Table})
	default:
		return NoopNotifier{}, nil
	}
}
