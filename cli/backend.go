package cli

import (
	"context"
	"fmt"

	"github.com/compozy/repokit/engine/infra/postgres"
	"github.com/compozy/repokit/engine/infra/sqldb"
	"github.com/compozy/repokit/engine/infra/sqlite"
	"github.com/compozy/repokit/engine/repository"
	"github.com/compozy/repokit/engine/uow"
	"github.com/compozy/repokit/internal/accounts"
	"github.com/compozy/repokit/pkg/config"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/georgysavva/scany/v2/sqlscan"
)

// backend is an opened store for the configured driver.
type backend interface {
	NewSession() *sqldb.Session
	Migrate(ctx context.Context) error
	Query(ctx context.Context, stmt string, args ...any) ([]map[string]any, error)
	Close(ctx context.Context) error
}

func openBackend(ctx context.Context, cfg *config.DatabaseConfig) (backend, error) {
	switch cfg.Driver {
	case "postgres":
		store, err := postgres.NewStore(ctx, postgres.FromConfig(cfg))
		if err != nil {
			return nil, err
		}
		return &postgresBackend{store: store}, nil
	case "sqlite":
		store, err := sqlite.NewStore(ctx, sqlite.FromConfig(cfg))
		if err != nil {
			return nil, err
		}
		return &sqliteBackend{store: store}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

type postgresBackend struct {
	store *postgres.Store
}

func (b *postgresBackend) NewSession() *sqldb.Session { return b.store.NewSession() }

func (b *postgresBackend) Migrate(ctx context.Context) error {
	fsys, dir, err := accounts.Migrations("postgres")
	if err != nil {
		return err
	}
	return b.store.ApplyMigrations(ctx, fsys, dir)
}

func (b *postgresBackend) Query(ctx context.Context, stmt string, args ...any) ([]map[string]any, error) {
	rows := []map[string]any{}
	if err := pgxscan.Select(ctx, b.store.Pool(), &rows, stmt, args...); err != nil {
		return nil, fmt.Errorf("postgres: query: %w", err)
	}
	return rows, nil
}

func (b *postgresBackend) Close(ctx context.Context) error { return b.store.Close(ctx) }

type sqliteBackend struct {
	store *sqlite.Store
}

func (b *sqliteBackend) NewSession() *sqldb.Session { return b.store.NewSession() }

func (b *sqliteBackend) Migrate(ctx context.Context) error {
	fsys, dir, err := accounts.Migrations("sqlite")
	if err != nil {
		return err
	}
	return sqlite.ApplyMigrations(ctx, b.store.DB(), fsys, dir)
}

func (b *sqliteBackend) Query(ctx context.Context, stmt string, args ...any) ([]map[string]any, error) {
	rows := []map[string]any{}
	if err := sqlscan.Select(ctx, b.store.DB(), &rows, stmt, args...); err != nil {
		return nil, fmt.Errorf("sqlite: query: %w", err)
	}
	return rows, nil
}

func (b *sqliteBackend) Close(ctx context.Context) error { return b.store.Close(ctx) }

// accountRepository opens a fresh session on b and binds an account
// repository to it.
func accountRepository(
	b backend,
	cfg *config.RepositoryConfig,
	extra ...repository.Option,
) (*repository.Repository[accounts.Account], error) {
	sess := b.NewSession()
	opts := append(repository.OptionsFromConfig(cfg), extra...)
	return repository.New(uow.New(sess, accounts.NewValidator()), sqldb.SetFor(sess, accounts.Schema), opts...)
}

// withBackend opens the configured store, runs fn and closes the store.
func withBackend(ctx context.Context, cfg *config.Config, fn func(backend) error) (err error) {
	b, err := openBackend(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := b.Close(context.WithoutCancel(ctx)); closeErr != nil && err == nil {
			err = fmt.Errorf("close store: %w", closeErr)
		}
	}()
	return fn(b)
}
