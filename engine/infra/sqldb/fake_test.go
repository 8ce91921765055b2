package sqldb

import (
	"context"
	"fmt"
	"reflect"

	"github.com/compozy/repokit/engine/schema"
	"github.com/compozy/repokit/engine/session"
)

type note struct {
	ID      int64
	Title   string
	Version int64
}

var noteSchema = schema.MustNew("notes",
	schema.Key("id", func(n *note) *int64 { return &n.ID }).AsGenerated(),
	schema.Col("title", func(n *note) *string { return &n.Title }),
	schema.Version("version", func(n *note) *int64 { return &n.Version }),
)

type call struct {
	sql  string
	args []any
}

type result struct {
	cols []string
	rows [][]any
}

// fakeConn records statements and replays scripted results.
type fakeConn struct {
	calls     []call
	affected  []int64
	results   []result
	execErr   error
	levels    []session.IsolationLevel
	commits   int
	rollbacks int
}

func (c *fakeConn) Exec(_ context.Context, q string, args ...any) (int64, error) {
	c.calls = append(c.calls, call{q, args})
	if c.execErr != nil {
		return 0, c.execErr
	}
	if len(c.affected) == 0 {
		return 1, nil
	}
	n := c.affected[0]
	c.affected = c.affected[1:]
	return n, nil
}

func (c *fakeConn) Query(_ context.Context, q string, args ...any) (Rows, error) {
	c.calls = append(c.calls, call{q, args})
	if len(c.results) == 0 {
		return &fakeRows{}, nil
	}
	r := c.results[0]
	c.results = c.results[1:]
	return &fakeRows{cols: r.cols, rows: r.rows, pos: -1}, nil
}

func (c *fakeConn) Begin(_ context.Context, level session.IsolationLevel) (Tx, error) {
	c.levels = append(c.levels, level)
	return &fakeTx{conn: c}, nil
}

func (c *fakeConn) last() call { return c.calls[len(c.calls)-1] }

type fakeTx struct{ conn *fakeConn }

func (t *fakeTx) Exec(ctx context.Context, q string, args ...any) (int64, error) {
	return t.conn.Exec(ctx, q, args...)
}

func (t *fakeTx) Query(ctx context.Context, q string, args ...any) (Rows, error) {
	return t.conn.Query(ctx, q, args...)
}

func (t *fakeTx) Commit(context.Context) error {
	t.conn.commits++
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	t.conn.rollbacks++
	return nil
}

type fakeRows struct {
	cols []string
	rows [][]any
	pos  int
}

func (r *fakeRows) Next() bool {
	if r.rows == nil {
		return false
	}
	r.pos++
	return r.pos < len(r.rows)
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.rows[r.pos]
	if len(dest) != len(row) {
		return fmt.Errorf("scan: %d targets for %d columns", len(dest), len(row))
	}
	for i, d := range dest {
		reflect.ValueOf(d).Elem().Set(reflect.ValueOf(row[i]))
	}
	return nil
}

func (r *fakeRows) Columns() ([]string, error) {
	return r.cols, nil
}

func (r *fakeRows) Err() error {
	return nil
}

func (r *fakeRows) Close() {}
