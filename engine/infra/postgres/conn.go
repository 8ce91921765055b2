package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/compozy/repokit/engine/infra/sqldb"
	"github.com/compozy/repokit/engine/session"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool used by the session driver. pgxmock pools
// satisfy it in tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// Conn adapts a pgx pool to sqldb.Conn.
type Conn struct {
	db DB
}

var _ sqldb.Conn = (*Conn)(nil)

func NewConn(db DB) *Conn { return &Conn{db: db} }

// NewSession starts a unit of work over db.
func NewSession(db DB) *sqldb.Session { return sqldb.NewSession(NewConn(db), sqldb.Postgres) }

func (c *Conn) Exec(ctx context.Context, q string, args ...any) (int64, error) {
	tag, err := c.db.Exec(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (c *Conn) Query(ctx context.Context, q string, args ...any) (sqldb.Rows, error) {
	rows, err := c.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return pgxRows{rows}, nil
}

func (c *Conn) Begin(ctx context.Context, level session.IsolationLevel) (sqldb.Tx, error) {
	tx, err := c.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: isoLevel(level)})
	if err != nil {
		return nil, fmt.Errorf("postgres: begin: %w", err)
	}
	return &connTx{tx: tx}, nil
}

func isoLevel(level session.IsolationLevel) pgx.TxIsoLevel {
	switch level {
	case session.Serializable:
		return pgx.Serializable
	case session.RepeatableRead:
		return pgx.RepeatableRead
	default:
		return pgx.ReadCommitted
	}
}

type connTx struct {
	tx pgx.Tx
}

func (t *connTx) Exec(ctx context.Context, q string, args ...any) (int64, error) {
	tag, err := t.tx.Exec(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *connTx) Query(ctx context.Context, q string, args ...any) (sqldb.Rows, error) {
	rows, err := t.tx.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return pgxRows{rows}, nil
}

func (t *connTx) Commit(ctx context.Context) error { return t.tx.Commit(ctx) }

// Rollback ignores pgx.ErrTxClosed so a deferred rollback after commit is silent.
func (t *connTx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}

type pgxRows struct{ pgx.Rows }

func (r pgxRows) Columns() ([]string, error) {
	fields := r.FieldDescriptions()
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.Name
	}
	return cols, nil
}
