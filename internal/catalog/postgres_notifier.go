package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresConfig describes how the notifier initialises its Postgres
// connection pool.
type PostgresConfig struct {
	DSN             string
	MaxConnections  int32
	MinConnections  int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	ApplicationName string
	Table           string
}

// PostgresNotifier applies metadata updates directly to the catalog's video
// table. It is used when the processor is colocated with the catalog
// database and no API hop is wanted.
type PostgresNotifier struct {
	pool  *pgxpool.Pool
	table string
}

// NewPostgresNotifier connects a pool using cfg and verifies reachability
// with a ping bounded by ctx.
func NewPostgresNotifier(ctx context.Context, cfg PostgresConfig) (*PostgresNotifier, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = cfg.MaxConnections
	}
	if cfg.MinConnections > 0 {
		poolCfg.MinConns = cfg.MinConnections
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if name := strings.TrimSpace(cfg.ApplicationName); name != "" {
		poolCfg.ConnConfig.RuntimeParams["application_name"] = name
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	table := strings.TrimSpace(cfg.Table)
	if table == "" {
		table = "videos"
	}
	return &PostgresNotifier{pool: pool, table: table}, nil
}

func (n *PostgresNotifier) PushUpdate(ctx context.Context, jobID string, update Update) error {
	if strings.TrimSpace(jobID) == "" {
		return fmt.Errorf("job id is required")
	}
	query := fmt.Sprintf(`UPDATE %s SET
	thumbnail_path = COALESCE($2, thumbnail_path),
	hls_path = COALESCE($3, hls_path),
	duration = COALESCE($4, duration),
	processing_status = COALESCE(NULLIF($5, ''), processing_status)
WHERE id = $1`, n.table)
	tag, err := n.pool.Exec(ctx, query, jobID, update.ThumbnailPath, update.ManifestPath, update.Duration, update.Status)
	if err != nil {
		return fmt.Errorf("update catalog row: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("catalog row %s not found", jobID)
	}
	return nil
}

// Close releases the underlying connection pool.
func (n *PostgresNotifier) Close() {
	n.pool.Close()
}
