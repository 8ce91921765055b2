package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSource struct {
	data       map[string]any
	sourceType SourceType
	err        error
}

func (m *mockSource) Load() (map[string]any, error) {
	return m.data, m.err
}

func (m *mockSource) Type() SourceType {
	return m.sourceType
}

func TestLoader_Load(t *testing.T) {
	t.Run("Should load default configuration when no sources provided", func(t *testing.T) {
		cfg, err := NewService().Load(t.Context())

		require.NoError(t, err)
		require.NotNil(t, cfg)
		assert.Equal(t, "sqlite", cfg.Database.Driver)
		assert.Equal(t, "repokit.db", cfg.Database.Path)
		assert.Equal(t, 10, cfg.Repository.MaxConflictRetries)
		assert.Equal(t, 10*time.Millisecond, cfg.Repository.ConflictBackoff)
		assert.Equal(t, 5*time.Second, cfg.Database.BusyTimeout)
		assert.Equal(t, "info", cfg.Logging.Level)
	})

	t.Run("Should apply sources in precedence order", func(t *testing.T) {
		yamlSource := &mockSource{
			data: map[string]any{
				"database": map[string]any{
					"driver": "postgres",
					"host":   "db.internal",
				},
			},
			sourceType: SourceYAML,
		}
		cliSource := &mockSource{
			data: map[string]any{
				"database": map[string]any{
					"host": "cli.internal",
				},
			},
			sourceType: SourceCLI,
		}
		svc := NewService()

		cfg, err := svc.Load(t.Context(), yamlSource, cliSource)

		require.NoError(t, err)
		assert.Equal(t, "postgres", cfg.Database.Driver)
		assert.Equal(t, "cli.internal", cfg.Database.Host)
		assert.Equal(t, "5432", cfg.Database.Port)
		assert.Equal(t, SourceYAML, svc.GetSource("database.driver"))
		assert.Equal(t, SourceCLI, svc.GetSource("database.host"))
		assert.Equal(t, SourceDefault, svc.GetSource("database.port"))
	})

	t.Run("Should let environment override every other source", func(t *testing.T) {
		t.Setenv("REPOKIT_MAX_CONFLICT_RETRIES", "3")
		t.Setenv("REPOKIT_CONFLICT_BACKOFF", "250ms")
		t.Setenv("REPOKIT_DB_PASSWORD", "secret")
		t.Setenv("REPOKIT_UNKNOWN_SETTING", "ignored")
		source := &mockSource{
			data:       map[string]any{"repository": map[string]any{"max_conflict_retries": 7}},
			sourceType: SourceCLI,
		}
		svc := NewService()

		cfg, err := svc.Load(t.Context(), source)

		require.NoError(t, err)
		assert.Equal(t, 3, cfg.Repository.MaxConflictRetries)
		assert.Equal(t, 250*time.Millisecond, cfg.Repository.ConflictBackoff)
		assert.Equal(t, "secret", cfg.Database.Password.Value())
		assert.Equal(t, SourceEnv, svc.GetSource("repository.max_conflict_retries"))
	})

	t.Run("Should reject an unknown driver", func(t *testing.T) {
		source := &mockSource{
			data:       map[string]any{"database": map[string]any{"driver": "mysql"}},
			sourceType: SourceYAML,
		}

		_, err := NewService().Load(t.Context(), source)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "validation failed")
	})

	t.Run("Should reject a negative retry bound", func(t *testing.T) {
		source := &mockSource{
			data:       map[string]any{"repository": map[string]any{"max_conflict_retries": -1}},
			sourceType: SourceCLI,
		}

		_, err := NewService().Load(t.Context(), source)

		require.Error(t, err)
	})

	t.Run("Should reject an unknown log level", func(t *testing.T) {
		source := &mockSource{
			data:       map[string]any{"logging": map[string]any{"level": "verbose"}},
			sourceType: SourceCLI,
		}

		_, err := NewService().Load(t.Context(), source)

		require.Error(t, err)
	})

	t.Run("Should propagate source errors", func(t *testing.T) {
		source := &mockSource{err: os.ErrPermission, sourceType: SourceYAML}

		_, err := NewService().Load(t.Context(), source)

		require.ErrorIs(t, err, os.ErrPermission)
	})

	t.Run("Should load values from a YAML file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "repokit.yaml")
		content := "database:\n  driver: postgres\n  conn_string: postgres://u:p@localhost:5432/app\n" +
			"repository:\n  conflict_backoff: 1s\nlogging:\n  level: debug\n  json: true\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		cfg, err := NewService().Load(t.Context(), NewYAMLProvider(path))

		require.NoError(t, err)
		assert.Equal(t, "postgres", cfg.Database.Driver)
		assert.Equal(t, "postgres://u:p@localhost:5432/app", cfg.Database.DSN())
		assert.Equal(t, time.Second, cfg.Repository.ConflictBackoff)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.True(t, cfg.Logging.JSON)
	})
}

func TestLoader_Validate(t *testing.T) {
	svc := NewService()

	t.Run("Should reject nil configuration", func(t *testing.T) {
		require.Error(t, svc.Validate(nil))
	})

	t.Run("Should require postgres connection details", func(t *testing.T) {
		cfg := Default()
		cfg.Database.Driver = "postgres"
		cfg.Database.Host = ""

		err := svc.Validate(cfg)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "database configuration incomplete")
	})

	t.Run("Should accept postgres with only a connection string", func(t *testing.T) {
		cfg := Default()
		cfg.Database.Driver = "postgres"
		cfg.Database.Host = ""
		cfg.Database.ConnString = "postgres://localhost/app"

		require.NoError(t, svc.Validate(cfg))
	})

	t.Run("Should require a sqlite path", func(t *testing.T) {
		cfg := Default()
		cfg.Database.Path = ""

		require.Error(t, svc.Validate(cfg))
	})

	t.Run("Should reject more idle than open connections", func(t *testing.T) {
		cfg := Default()
		cfg.Database.MaxOpenConns = 2
		cfg.Database.MaxIdleConns = 3

		require.Error(t, svc.Validate(cfg))
	})

	t.Run("Should reject negative durations", func(t *testing.T) {
		cfg := Default()
		cfg.Repository.ConflictBackoff = -time.Second

		err := svc.Validate(cfg)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "repository.conflict_backoff")
	})
}
