package config

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

// Config represents the complete application configuration.
type Config struct {
	Database   DatabaseConfig   `koanf:"database"`
	Repository RepositoryConfig `koanf:"repository"`
	Logging    LoggingConfig    `koanf:"logging"`
	Metrics    MetricsConfig    `koanf:"metrics"`
}

// DatabaseConfig selects and parameterizes the session driver.
type DatabaseConfig struct {
	Driver          string          `koanf:"driver"             env:"REPOKIT_DB_DRIVER"             validate:"oneof=postgres sqlite"`
	ConnString      string          `koanf:"conn_string"        env:"REPOKIT_DB_CONN_STRING"`
	Host            string          `koanf:"host"               env:"REPOKIT_DB_HOST"`
	Port            string          `koanf:"port"               env:"REPOKIT_DB_PORT"`
	User            string          `koanf:"user"               env:"REPOKIT_DB_USER"`
	Password        SensitiveString `koanf:"password"           env:"REPOKIT_DB_PASSWORD"           sensitive:"true"`
	DBName          string          `koanf:"name"               env:"REPOKIT_DB_NAME"`
	SSLMode         string          `koanf:"ssl_mode"           env:"REPOKIT_DB_SSL_MODE"`
	Path            string          `koanf:"path"               env:"REPOKIT_DB_PATH"`
	MaxOpenConns    int             `koanf:"max_open_conns"     env:"REPOKIT_DB_MAX_OPEN_CONNS"     validate:"min=0"`
	MaxIdleConns    int             `koanf:"max_idle_conns"     env:"REPOKIT_DB_MAX_IDLE_CONNS"     validate:"min=0"`
	ConnMaxLifetime time.Duration   `koanf:"conn_max_lifetime"  env:"REPOKIT_DB_CONN_MAX_LIFETIME"`
	ConnMaxIdleTime time.Duration   `koanf:"conn_max_idle_time" env:"REPOKIT_DB_CONN_MAX_IDLE_TIME"`
	BusyTimeout     time.Duration   `koanf:"busy_timeout"       env:"REPOKIT_DB_BUSY_TIMEOUT"`
}

// RepositoryConfig tunes the optimistic-concurrency update loop.
type RepositoryConfig struct {
	// MaxConflictRetries bounds conflict resolution rounds per update. Zero means unbounded.
	MaxConflictRetries int           `koanf:"max_conflict_retries" env:"REPOKIT_MAX_CONFLICT_RETRIES" validate:"min=0"`
	ConflictBackoff    time.Duration `koanf:"conflict_backoff"     env:"REPOKIT_CONFLICT_BACKOFF"`
}

// LoggingConfig mirrors the logger flags.
type LoggingConfig struct {
	Level     string `koanf:"level"      env:"REPOKIT_LOG_LEVEL"  validate:"log_level"`
	JSON      bool   `koanf:"json"       env:"REPOKIT_LOG_JSON"`
	AddSource bool   `koanf:"add_source" env:"REPOKIT_LOG_SOURCE"`
}

// MetricsConfig toggles the Prometheus-backed meter provider.
type MetricsConfig struct {
	Enabled bool `koanf:"enabled" env:"REPOKIT_METRICS_ENABLED"`
}

// SensitiveString is a string that redacts itself when printed.
type SensitiveString string

func (s SensitiveString) String() string {
	if s == "" {
		return ""
	}
	return "********"
}

// Value returns the unredacted value.
func (s SensitiveString) Value() string {
	return string(s)
}

// MarshalJSON always redacts the value.
func (s SensitiveString) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// DSN returns ConnString when set, otherwise a postgres URL built from the
// individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnString != "" {
		return c.ConnString
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   c.Host,
		Path:   "/" + c.DBName,
	}
	if c.Port != "" {
		u.Host = fmt.Sprintf("%s:%s", c.Host, c.Port)
	}
	if c.User != "" {
		if c.Password != "" {
			u.User = url.UserPassword(c.User, c.Password.Value())
		} else {
			u.User = url.User(c.User)
		}
	}
	if c.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": []string{c.SSLMode}}.Encode()
	}
	return u.String()
}

// Service defines the configuration loading interface.
type Service interface {
	// Load loads configuration from the specified sources with precedence order.
	Load(ctx context.Context, sources ...Source) (*Config, error)
	// Validate checks the configuration against struct tags and cross-field rules.
	Validate(config *Config) error
	// GetSource returns which source last provided a configuration key.
	GetSource(key string) SourceType
}

// Source defines the interface for configuration sources.
type Source interface {
	// Load reads configuration from the source.
	Load() (map[string]any, error)
	// Type returns the source type identifier.
	Type() SourceType
}

// SourceType identifies the type of configuration source.
type SourceType string

const (
	SourceCLI     SourceType = "cli"
	SourceYAML    SourceType = "yaml"
	SourceEnv     SourceType = "env"
	SourceDefault SourceType = "default"
)

// Metadata contains metadata about configuration sources.
type Metadata struct {
	Sources  map[string]SourceType `json:"sources"`
	LoadedAt time.Time             `json:"loaded_at"`
}

// Load loads configuration from defaults and the environment.
func Load(ctx context.Context) (*Config, error) {
	return NewService().Load(ctx)
}

// Default returns a Config with default values for local development.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:          "sqlite",
			Host:            "localhost",
			Port:            "5432",
			User:            "postgres",
			DBName:          "repokit",
			SSLMode:         "disable",
			Path:            "repokit.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: time.Minute,
			BusyTimeout:     5 * time.Second,
		},
		Repository: RepositoryConfig{
			MaxConflictRetries: 10,
			ConflictBackoff:    10 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
