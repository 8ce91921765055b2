package sqlite

import (
	"time"

	"github.com/compozy/repokit/pkg/config"
)

const defaultBusyTimeout = 5 * time.Second

// Config captures SQLite store configuration derived from application settings.
type Config struct {
	// Path is the database location or ":memory:" for a private in-memory database.
	Path string

	// MaxOpenConns controls the pool size exposed by database/sql.
	MaxOpenConns int

	// MaxIdleConns limits idle connections retained in the pool.
	MaxIdleConns int

	// ConnMaxLifetime bounds connection reuse duration.
	ConnMaxLifetime time.Duration

	// ConnMaxIdleTime bounds idle connection retention.
	ConnMaxIdleTime time.Duration

	// BusyTimeout configures sqlite busy timeout via PRAGMA busy_timeout.
	BusyTimeout time.Duration
}

// FromConfig maps the database section of the application config.
func FromConfig(cfg *config.DatabaseConfig) *Config {
	path := cfg.Path
	if cfg.ConnString != "" {
		path = cfg.ConnString
	}
	return &Config{
		Path:            path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
		BusyTimeout:     cfg.BusyTimeout,
	}
}
