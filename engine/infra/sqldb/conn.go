// Package sqldb implements the persistence session contract over a SQL
// connection. Drivers adapt their native connection to Conn and pick a Dialect.
package sqldb

import (
	"context"

	"github.com/compozy/repokit/engine/session"
)

// Rows is a forward-only result cursor.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Columns() ([]string, error)
	Err() error
	Close()
}

// Queryer executes statements.
type Queryer interface {
	Exec(ctx context.Context, query string, args ...any) (int64, error)
	Query(ctx context.Context, query string, args ...any) (Rows, error)
}

// Tx is a driver transaction.
type Tx interface {
	Queryer
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Conn is a driver connection or pool.
type Conn interface {
	Queryer
	Begin(ctx context.Context, level session.IsolationLevel) (Tx, error)
}
