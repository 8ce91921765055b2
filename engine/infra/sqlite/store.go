package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	"github.com/compozy/repokit/engine/infra/sqldb"
	"github.com/compozy/repokit/pkg/logger"
	// Register modernc SQLite driver with database/sql.
	_ "modernc.org/sqlite"
)

const memoryPath = ":memory:"

// Store owns the database/sql pool of one SQLite database.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens the database and verifies the connection. A private
// in-memory database is pinned to a single connection so it survives for the
// life of the store.
func NewStore(ctx context.Context, cfg *Config) (*Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("sqlite: config is required")
	}
	dsn, inMemory, err := buildDSN(cfg)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open database: %w", err)
	}
	applyPoolSettings(db, cfg, inMemory)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping database: %w", err)
	}
	logger.FromContext(ctx).Info(
		"SQLite store initialized",
		"store_driver", "sqlite",
		"path", cfg.Path,
		"in_memory", inMemory,
	)
	return &Store{db: db, path: cfg.Path}, nil
}

func buildDSN(cfg *Config) (string, bool, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return "", false, fmt.Errorf("sqlite: path is required")
	}
	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = defaultBusyTimeout
	}
	params := url.Values{}
	params.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busy.Milliseconds()))
	params.Add("_pragma", "foreign_keys(ON)")
	if path == memoryPath {
		return "file::memory:?" + params.Encode(), true, nil
	}
	params.Add("_pragma", "journal_mode(WAL)")
	path = strings.TrimPrefix(path, "file:")
	return "file:" + path + "?" + params.Encode(), false, nil
}

func applyPoolSettings(db *sql.DB, cfg *Config, inMemory bool) {
	if inMemory {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		db.SetConnMaxIdleTime(0)
		return
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
}

// DB exposes the underlying pool for migrations and tooling.
func (s *Store) DB() *sql.DB { return s.db }

// Conn adapts the pool to the session driver contract.
func (s *Store) Conn() sqldb.Conn { return NewConn(s.db) }

// NewSession starts a unit of work over the store.
func (s *Store) NewSession() *sqldb.Session { return sqldb.NewSession(s.Conn(), sqldb.SQLite) }

// HealthCheck pings the database.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: health check: %w", err)
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("sqlite: close: %w", err)
	}
	logger.FromContext(ctx).Debug("SQLite store closed", "path", s.path)
	return nil
}
