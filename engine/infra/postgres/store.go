package postgres

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/compozy/repokit/engine/infra/sqldb"
	"github.com/compozy/repokit/pkg/logger"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultMaxConns           = 20
	defaultMinConns           = 0
	defaultHealthCheckPeriod  = 30 * time.Second
	defaultConnectTimeout     = 5 * time.Second
	defaultPingTimeout        = 3 * time.Second
	defaultHealthCheckTimeout = 1 * time.Second
)

// Store owns the pgx pool behind postgres sessions. pgx types stay inside
// this package; callers work with sqldb sessions.
type Store struct {
	pool               *pgxpool.Pool
	metrics            *poolMetrics
	healthCheckTimeout time.Duration
}

// NewStore builds the pool from cfg and pings it. Metrics failures are
// logged and do not abort startup.
func NewStore(ctx context.Context, cfg *Config) (*Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("postgres: config is required")
	}
	poolCfg, err := buildPoolConfig(cfg)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: new pool: %w", err)
	}
	if err := ping(ctx, pool, cfg.PingTimeout); err != nil {
		pool.Close()
		return nil, err
	}
	metrics, mErr := trackPool(cfg, pool)
	if mErr != nil {
		logger.FromContext(ctx).Warn("Postgres pool metrics unavailable", "error", mErr)
	}
	healthCheckTimeout := defaultHealthCheckTimeout
	if cfg.HealthCheckTimeout > 0 {
		healthCheckTimeout = cfg.HealthCheckTimeout
	}
	logger.FromContext(ctx).With(
		"store_driver", "postgres",
		"host", cfg.Host,
		"port", cfg.Port,
		"db_name", cfg.DBName,
		"max_conns", poolCfg.MaxConns,
		"min_conns", poolCfg.MinConns,
	).Info("Postgres store initialized")
	return &Store{pool: pool, metrics: metrics, healthCheckTimeout: healthCheckTimeout}, nil
}

// NewSession starts a unit of work over the pool.
func (s *Store) NewSession() *sqldb.Session { return NewSession(s.pool) }

// Pool exposes the pool for migrations and tooling inside the driver layer.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

func (s *Store) Close(ctx context.Context) error {
	s.metrics.unregister()
	s.pool.Close()
	logger.FromContext(ctx).Info("Postgres store closed")
	return nil
}

// HealthCheck pings the pool within the configured timeout.
func (s *Store) HealthCheck(ctx context.Context) error {
	hctx, cancel := context.WithTimeout(ctx, s.healthCheckTimeout)
	defer cancel()
	if err := s.pool.Ping(hctx); err != nil {
		return fmt.Errorf("postgres: health check failed: %w", err)
	}
	return nil
}

func buildPoolConfig(cfg *Config) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	poolCfg.MaxConns, poolCfg.MinConns = connectionBounds(cfg.MaxOpenConns, cfg.MaxIdleConns)
	poolCfg.HealthCheckPeriod = orDefault(cfg.HealthCheckPeriod, defaultHealthCheckPeriod)
	poolCfg.ConnConfig.ConnectTimeout = orDefault(cfg.ConnectTimeout, defaultConnectTimeout)
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	if cfg.ConnMaxIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.ConnMaxIdleTime
	}
	return poolCfg, nil
}

// connectionBounds maps database/sql style open/idle limits onto pgx max/min
// connections, clamped to int32 and to min <= max.
func connectionBounds(maxOpen, maxIdle int) (int32, int32) {
	maxConns := int32(defaultMaxConns)
	if maxOpen > 0 {
		maxConns = int32(min(maxOpen, math.MaxInt32))
	}
	minConns := int32(defaultMinConns)
	if maxIdle > 0 {
		minConns = int32(min(maxIdle, int(maxConns)))
	}
	return maxConns, minConns
}

func orDefault(v, def time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return def
}

func ping(ctx context.Context, pool *pgxpool.Pool, timeout time.Duration) error {
	pctx, cancel := context.WithTimeout(ctx, orDefault(timeout, defaultPingTimeout))
	defer cancel()
	if err := pool.Ping(pctx); err != nil {
		return fmt.Errorf("postgres: ping: %w", err)
	}
	return nil
}
