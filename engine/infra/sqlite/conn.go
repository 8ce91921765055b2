package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/compozy/repokit/engine/infra/sqldb"
	"github.com/compozy/repokit/engine/session"
)

type execQueryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Conn adapts a database/sql pool to sqldb.Conn.
type Conn struct {
	db *sql.DB
}

var _ sqldb.Conn = (*Conn)(nil)

func NewConn(db *sql.DB) *Conn { return &Conn{db: db} }

func (c *Conn) Exec(ctx context.Context, q string, args ...any) (int64, error) {
	return execRows(ctx, c.db, q, args)
}

func (c *Conn) Query(ctx context.Context, q string, args ...any) (sqldb.Rows, error) {
	return query(ctx, c.db, q, args)
}

// Begin starts a transaction. SQLite transactions are serializable, so the
// requested level is satisfied by the default.
func (c *Conn) Begin(ctx context.Context, _ session.IsolationLevel) (sqldb.Tx, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: begin: %w", err)
	}
	return &connTx{tx: tx}, nil
}

type connTx struct {
	tx *sql.Tx
}

func (t *connTx) Exec(ctx context.Context, q string, args ...any) (int64, error) {
	return execRows(ctx, t.tx, q, args)
}

func (t *connTx) Query(ctx context.Context, q string, args ...any) (sqldb.Rows, error) {
	return query(ctx, t.tx, q, args)
}

func (t *connTx) Commit(context.Context) error { return t.tx.Commit() }

func (t *connTx) Rollback(context.Context) error { return t.tx.Rollback() }

func execRows(ctx context.Context, q execQueryer, stmt string, args []any) (int64, error) {
	res, err := q.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: rows affected: %w", err)
	}
	return n, nil
}

func query(ctx context.Context, q execQueryer, stmt string, args []any) (sqldb.Rows, error) {
	rows, err := q.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	return sqlRows{rows}, nil
}

type sqlRows struct{ *sql.Rows }

func (r sqlRows) Close() { _ = r.Rows.Close() }
