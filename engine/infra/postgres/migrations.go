package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"github.com/compozy/repokit/pkg/logger"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

const migrationLockTimeout = 45 * time.Second

var gooseMu sync.Mutex

// ApplyMigrations runs the goose migrations under dir in fsys against the
// store's pool, holding an advisory lock so concurrent runners do not race.
func (s *Store) ApplyMigrations(ctx context.Context, fsys fs.FS, dir string) error {
	db := stdlib.OpenDBFromPool(s.pool)
	defer db.Close()
	return ApplyMigrationsWithLock(ctx, db, fsys, dir)
}

// ApplyMigrationsWithLock acquires a session advisory lock on a dedicated
// connection before migrating. The lock is released when migrations end.
func ApplyMigrationsWithLock(ctx context.Context, db *sql.DB, fsys fs.FS, dir string) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire dedicated connection: %w", err)
	}
	defer conn.Close()
	lockCtx, cancel := context.WithTimeout(ctx, migrationLockTimeout)
	defer cancel()
	const lock = "select pg_advisory_lock(hashtext($1), hashtext($2))"
	if _, err := conn.ExecContext(lockCtx, lock, "repokit", "migrations"); err != nil {
		return fmt.Errorf("acquire migration advisory lock: %w", err)
	}
	defer func() {
		const unlock = "select pg_advisory_unlock(hashtext($1), hashtext($2))"
		if _, err := conn.ExecContext(context.WithoutCancel(ctx), unlock, "repokit", "migrations"); err != nil {
			logger.FromContext(ctx).Warn("Failed to release migration advisory lock", "error", err)
		}
	}()
	return RunMigrations(ctx, db, fsys, dir)
}

// RunMigrations applies migrations on db without locking.
func RunMigrations(ctx context.Context, db *sql.DB, fsys fs.FS, dir string) error {
	gooseMu.Lock()
	defer func() {
		goose.SetBaseFS(nil)
		gooseMu.Unlock()
	}()
	goose.SetBaseFS(fsys)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, dir); err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}
