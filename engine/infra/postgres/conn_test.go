package postgres

import (
	"errors"
	"regexp"
	"testing"

	"github.com/compozy/repokit/engine/infra/sqldb"
	"github.com/compozy/repokit/engine/schema"
	"github.com/compozy/repokit/engine/session"
	"github.com/compozy/repokit/pkg/logger"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	ID      int64
	Name    string
	Version int64
}

var itemSchema = schema.MustNew("items",
	schema.Key("id", func(i *item) *int64 { return &i.ID }).AsGenerated(),
	schema.Col("name", func(i *item) *string { return &i.Name }),
	schema.Version("version", func(i *item) *int64 { return &i.Version }),
)

func TestConn_Session(t *testing.T) {
	t.Run("Should insert with RETURNING inside a read-committed transaction", func(t *testing.T) {
		ctx := logger.ContextWithLogger(t.Context(), logger.NewForTests())
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()
		mockPool.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
		mockPool.ExpectQuery(regexp.QuoteMeta("INSERT INTO items (name,version) VALUES ($1,$2) RETURNING id")).
			WithArgs("widget", int64(1)).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(42)))
		mockPool.ExpectCommit()

		sess := NewSession(mockPool)
		it := &item{Name: "widget"}
		_, err = sqldb.SetFor(sess, itemSchema).Add(it)
		require.NoError(t, err)
		n, err := sess.SaveChanges(ctx)

		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Equal(t, int64(42), it.ID)
		assert.Equal(t, int64(1), it.Version)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("Should raise a conflict and roll back when the version moved", func(t *testing.T) {
		ctx := logger.ContextWithLogger(t.Context(), logger.NewForTests())
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()
		mockPool.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
		mockPool.ExpectExec(regexp.QuoteMeta("UPDATE items SET name = $1, version = $2 WHERE id = $3 AND version = $4")).
			WithArgs("renamed", int64(4), int64(7), int64(3)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mockPool.ExpectRollback()

		sess := NewSession(mockPool)
		_, err = sqldb.SetFor(sess, itemSchema).Update(&item{ID: 7, Name: "renamed", Version: 3})
		require.NoError(t, err)
		_, err = sess.SaveChanges(ctx)

		require.ErrorIs(t, err, session.ErrConflict)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("Should select ordered by key with dollar placeholders", func(t *testing.T) {
		ctx := logger.ContextWithLogger(t.Context(), logger.NewForTests())
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()
		mockPool.ExpectQuery(regexp.QuoteMeta("SELECT id, name, version FROM items WHERE name LIKE $1 ORDER BY id LIMIT 2 OFFSET 1")).
			WithArgs("w%").
			WillReturnRows(pgxmock.NewRows([]string{"id", "name", "version"}).
				AddRow(int64(2), "w2", int64(1)).
				AddRow(int64(3), "w3", int64(5)))

		rows, err := sqldb.SetFor(NewSession(mockPool), itemSchema).
			List(ctx, schema.Like[item]("name", "w%"), session.Window{Offset: 1, Limit: 2})

		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, item{ID: 3, Name: "w3", Version: 5}, *rows[1])
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("Should run raw statements in a serializable transaction", func(t *testing.T) {
		ctx := logger.ContextWithLogger(t.Context(), logger.NewForTests())
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()
		mockPool.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.Serializable})
		mockPool.ExpectExec(regexp.QuoteMeta("DELETE FROM items WHERE version > $1")).
			WithArgs(3).
			WillReturnResult(pgxmock.NewResult("DELETE", 2))
		mockPool.ExpectCommit()

		sess := NewSession(mockPool)
		tx, err := sess.Begin(ctx, session.Serializable)
		require.NoError(t, err)
		n, err := sess.Exec(ctx, "DELETE FROM items WHERE version > $1", 3)
		require.NoError(t, err)
		require.NoError(t, tx.Commit(ctx))
		require.NoError(t, tx.Rollback(ctx))

		assert.Equal(t, int64(2), n)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("Should surface begin failures", func(t *testing.T) {
		ctx := logger.ContextWithLogger(t.Context(), logger.NewForTests())
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()
		mockPool.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.Serializable}).WillReturnError(errors.New("too many clients"))

		_, err = NewSession(mockPool).Begin(ctx, session.Serializable)

		require.ErrorContains(t, err, "too many clients")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestIsoLevel(t *testing.T) {
	t.Run("Should map session levels to pgx levels", func(t *testing.T) {
		assert.Equal(t, pgx.ReadCommitted, isoLevel(session.ReadCommitted))
		assert.Equal(t, pgx.RepeatableRead, isoLevel(session.RepeatableRead))
		assert.Equal(t, pgx.Serializable, isoLevel(session.Serializable))
	})
}
