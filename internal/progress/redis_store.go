package progress

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisTLSConfig controls TLS behaviour for Redis connections.
type RedisTLSConfig struct {
	CAFile             string
	CertFile           string
	KeyFile            string
	ServerName         string
	InsecureSkipVerify bool
}

// RedisConfig configures the Redis-backed progress store.
type RedisConfig struct {
	Addr         string
	Addrs        []string
	Username     string
	Password     string
	MasterName   string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	TTL          time.Duration
	TLS          RedisTLSConfig
}

// NewRedisStore initialises a progress store backed by Redis. The caller is
// responsible for ensuring the Redis instance is reachable.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	addrs := make([]string, 0, len(cfg.Addrs)+1)
	for _, addr := range cfg.Addrs {
		if trimmed := strings.TrimSpace(addr); trimmed != "" {
			addrs = append(addrs, trimmed)
		}
	}
	if addr := strings.TrimSpace(cfg.Addr); addr != "" {
		addrs = append(addrs, addr)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("redis addr is required")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	tlsConfig, err := buildTLSConfig(cfg.TLS)
	if err != nil {
		return nil, err
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        addrs,
		MasterName:   strings.TrimSpace(cfg.MasterName),
		Username:     strings.TrimSpace(cfg.Username),
		Password:     cfg.Password,
		TLSConfig:    tlsConfig,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
		MaxRetries:   2,
	})
	return &RedisStore{client: client, ttl: ttl}, nil
}

// RedisStore persists progress records as TTL'd JSON values in Redis so that
// pollers survive process restarts and records for abandoned jobs expire on
// their own.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func (s *RedisStore) Set(ctx context.Context, jobID string, percent int, status Status) error {
	payload, err := json.Marshal(Record{Percent: percent, Status: status})
	if err != nil {
		return fmt.Errorf("marshal progress record: %w", err)
	}
	if err := s.client.Set(ctx, recordKey(jobID), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("store progress record: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, jobID string) (Record, error) {
	payload, err := s.client.Get(ctx, recordKey(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return unknownRecord(), nil
		}
		return unknownRecord(), fmt.Errorf("read progress record: %w", err)
	}
	var record Record
	if err := json.Unmarshal(payload, &record); err != nil {
		return unknownRecord(), fmt.Errorf("decode progress record: %w", err)
	}
	return record, nil
}

// Close releases the underlying Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func buildTLSConfig(cfg RedisTLSConfig) (*tls.Config, error) {
	if cfg.CAFile == "" && cfg.CertFile == "" && cfg.KeyFile == "" && !cfg.InsecureSkipVerify {
		return nil, nil
	}
	tlsCfg := &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify}
	if cfg.ServerName != "" {
		tlsCfg.ServerName = cfg.ServerName
	}
	if cfg.CAFile != "" {
		caPath := filepath.Clean(cfg.CAFile)
		pemData, err := os.ReadFile(caPath)
		if err != nil {
			return nil, fmt.Errorf("read redis tls ca: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pemData) {
			return nil, fmt.Errorf("redis tls ca is invalid")
		}
		tlsCfg.RootCAs = pool
	}
	if cfg.CertFile != "" || cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(filepath.Clean(cfg.CertFile), filepath.Clean(cfg.KeyFile))
		if err != nil {
			return nil, fmt.Errorf("load redis tls certificate: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}
	return tlsCfg, nil
}
