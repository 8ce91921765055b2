package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/compozy/repokit/engine/schema"
	"github.com/compozy/repokit/engine/session"
	"github.com/compozy/repokit/engine/uow"
	"github.com/compozy/repokit/engine/validation"
	"github.com/compozy/repokit/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	return logger.ContextWithLogger(t.Context(), logger.NewForTests())
}

func intPtr(v int) *int { return &v }

var rejectAll = validation.Func[widget](func(context.Context, *widget) validation.Result {
	return validation.Fail(validation.FieldError{Field: "Name", Rule: "never", Message: "rejected"})
})

type fixture struct {
	set  *fakeSet
	sess *fakeSession
	repo *Repository[widget]
}

func newFixture(t *testing.T, v validation.Validator[widget], opts ...Option) *fixture {
	t.Helper()
	set := &fakeSet{}
	sess := &fakeSession{set: set}
	repo, err := New(uow.New(sess, v), set, opts...)
	require.NoError(t, err)
	return &fixture{set: set, sess: sess, repo: repo}
}

func (f *fixture) seed(names ...string) {
	for _, n := range names {
		f.set.nextID++
		f.set.rows = append(f.set.rows, &widget{ID: f.set.nextID, Name: n, Version: 1})
	}
}

func TestNew(t *testing.T) {
	t.Run("Should require a coordinator and a set", func(t *testing.T) {
		_, err := New[widget](nil, &fakeSet{})
		require.Error(t, err)
		_, err = New(uow.New[widget](&fakeSession{}, nil), nil)
		require.Error(t, err)
	})

	t.Run("Should reject a resolver for another shape", func(t *testing.T) {
		other := ResolverFunc[struct{}](func(context.Context, *Snapshot[struct{}]) error { return nil })

		_, err := New(uow.New[widget](&fakeSession{}, nil), &fakeSet{}, WithResolver[struct{}](other))

		require.Error(t, err)
	})
}

func TestRepository_Reads(t *testing.T) {
	t.Run("Should count and list with predicates", func(t *testing.T) {
		ctx := testContext(t)
		f := newFixture(t, nil)
		f.seed("a", "b", "ab")

		n, err := f.repo.Count(ctx, schema.Like[widget]("name", "a%"))
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		rows, err := f.repo.ListWhere(ctx, schema.Eq[widget]("name", "b"))
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, int64(2), rows[0].ID)
	})

	t.Run("Should never return nil slices", func(t *testing.T) {
		ctx := testContext(t)
		f := newFixture(t, nil)

		rows, err := f.repo.List(ctx)
		require.NoError(t, err)
		assert.NotNil(t, rows)
		assert.Empty(t, rows)

		raw, err := f.repo.QueryRaw(ctx, "SELECT * FROM widgets WHERE 1=0")
		require.NoError(t, err)
		assert.NotNil(t, raw)

		names, err := Select(ctx, f.repo, func(w *widget) string { return w.Name })
		require.NoError(t, err)
		assert.NotNil(t, names)
		assert.Empty(t, names)
	})

	t.Run("Should project entities", func(t *testing.T) {
		ctx := testContext(t)
		f := newFixture(t, nil)
		f.seed("a", "b", "c")

		names, err := SelectWhere(ctx, f.repo, schema.NotEq[widget]("name", "b"), func(w *widget) string { return w.Name })

		require.NoError(t, err)
		assert.Equal(t, []string{"a", "c"}, names)
	})

	t.Run("Should report not found without an error", func(t *testing.T) {
		ctx := testContext(t)
		f := newFixture(t, nil)
		f.seed("a")

		got, found, err := f.repo.Read(ctx, schema.Eq[widget]("name", "zzz"))
		require.NoError(t, err)
		assert.False(t, found)
		assert.Nil(t, got)

		got, found, err = f.repo.Read(ctx, schema.Eq[widget]("name", "a"))
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "a", got.Name)
	})

	t.Run("Should propagate store errors", func(t *testing.T) {
		ctx := testContext(t)
		f := newFixture(t, nil)
		f.set.listErr = errDisk

		_, err := f.repo.List(ctx)

		require.ErrorIs(t, err, errDisk)
	})
}

func TestRepository_Page(t *testing.T) {
	names := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}

	t.Run("Should take pageSize rows when more remain", func(t *testing.T) {
		ctx := testContext(t)
		f := newFixture(t, nil)
		f.seed(names...)

		rows, err := f.repo.Page(ctx, nil, 2, 3)

		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.Equal(t, "c", rows[0].Name)
		assert.Equal(t, []session.Window{{Offset: 2, Limit: 3}}, f.set.windows)
	})

	t.Run("Should return everything when the result fits in one page", func(t *testing.T) {
		ctx := testContext(t)
		f := newFixture(t, nil)
		f.seed(names...)

		rows, err := f.repo.Page(ctx, nil, 4, 10)

		require.NoError(t, err)
		assert.Len(t, rows, 10)
	})

	t.Run("Should return everything for pageSize -1", func(t *testing.T) {
		ctx := testContext(t)
		f := newFixture(t, nil)
		f.seed(names...)

		rows, err := f.repo.Page(ctx, nil, 3, -1)

		require.NoError(t, err)
		assert.Len(t, rows, 10)
	})

	t.Run("Should return the tail when fewer than pageSize remain", func(t *testing.T) {
		ctx := testContext(t)
		f := newFixture(t, nil)
		f.seed(names...)

		rows, err := f.repo.Page(ctx, nil, 8, 5)

		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, "i", rows[0].Name)
		assert.Equal(t, "j", rows[1].Name)
	})

	t.Run("Should page the filtered result", func(t *testing.T) {
		ctx := testContext(t)
		f := newFixture(t, nil)
		f.seed(names...)

		rows, err := f.repo.Page(ctx, schema.In[widget]("name", "b", "d", "f", "h"), 1, 2)

		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, "d", rows[0].Name)
		assert.Equal(t, "f", rows[1].Name)
	})

	t.Run("Should return an empty page for an empty result", func(t *testing.T) {
		ctx := testContext(t)
		f := newFixture(t, nil)

		rows, err := f.repo.Page(ctx, nil, 0, 5)

		require.NoError(t, err)
		assert.NotNil(t, rows)
		assert.Empty(t, rows)
	})

	t.Run("Should count and read inside one repeatable-read transaction", func(t *testing.T) {
		ctx := testContext(t)
		f := newFixture(t, nil)
		f.seed(names...)

		_, err := f.repo.Page(ctx, nil, 2, 3)

		require.NoError(t, err)
		require.NotNil(t, f.sess.tx)
		assert.Equal(t, session.RepeatableRead, f.sess.level)
		assert.True(t, f.sess.tx.rolledBack)
	})

	t.Run("Should join a transaction the caller already opened", func(t *testing.T) {
		ctx := testContext(t)
		f := newFixture(t, nil)
		f.seed(names...)
		f.sess.beginErr = session.ErrTxOpen

		rows, err := f.repo.Page(ctx, nil, 2, 3)

		require.NoError(t, err)
		assert.Len(t, rows, 3)
	})

	t.Run("Should fail when the read transaction cannot start", func(t *testing.T) {
		ctx := testContext(t)
		f := newFixture(t, nil)
		f.seed(names...)
		f.sess.beginErr = errDisk

		_, err := f.repo.Page(ctx, nil, 2, 3)

		require.ErrorIs(t, err, errDisk)
		assert.Empty(t, f.set.windows)
	})

	t.Run("Should reject out-of-range requests", func(t *testing.T) {
		ctx := testContext(t)
		f := newFixture(t, nil)
		f.seed(names...)

		for _, tc := range [][2]int{{-1, 2}, {0, -2}, {11, 1}} {
			_, err := f.repo.Page(ctx, nil, tc[0], tc[1])
			require.ErrorIs(t, err, ErrInvalidPage, "start=%d size=%d", tc[0], tc[1])
		}
		assert.Empty(t, f.set.windows)
	})
}

func TestRepository_Create(t *testing.T) {
	t.Run("Should commit and return the entity with its generated key", func(t *testing.T) {
		ctx := testContext(t)
		f := newFixture(t, nil)

		got, err := f.repo.Create(ctx, &widget{Name: "new"})

		require.NoError(t, err)
		assert.Equal(t, int64(1), got.ID)
		assert.Equal(t, int64(1), got.Version)
		assert.Equal(t, 1, f.sess.saves)
	})

	t.Run("Should not stage an entity the validator rejects", func(t *testing.T) {
		ctx := testContext(t)
		f := newFixture(t, rejectAll)

		got, err := f.repo.Create(ctx, &widget{Name: "new"})

		assert.Nil(t, got)
		require.ErrorIs(t, err, ErrValidationRejected)
		var verr *ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, "never", verr.Result.Errors[0].Rule)
		assert.Equal(t, OutcomeValidationRejected, OutcomeOf(err))
		assert.Zero(t, f.set.staged)
		assert.Zero(t, f.sess.saves)
	})

	t.Run("Should reject a nil entity", func(t *testing.T) {
		ctx := testContext(t)
		f := newFixture(t, nil)

		_, err := f.repo.Create(ctx, nil)

		require.ErrorIs(t, err, ErrValidationRejected)
		require.ErrorIs(t, err, validation.ErrNilEntity)
		assert.Zero(t, f.set.staged)
	})

	t.Run("Should report staging failures without committing", func(t *testing.T) {
		ctx := testContext(t)
		f := newFixture(t, nil)
		f.set.stageErr = errors.New("duplicate key")

		_, err := f.repo.Create(ctx, &widget{Name: "dup"})

		require.ErrorIs(t, err, ErrStagingFailed)
		assert.Equal(t, OutcomeStagingFailed, OutcomeOf(err))
		assert.Zero(t, f.sess.saves)
	})

	t.Run("Should abandon the staged entry when the commit fails", func(t *testing.T) {
		ctx := testContext(t)
		f := newFixture(t, nil)
		f.sess.saveErr = errDisk
		w := &widget{Name: "lost"}

		_, err := f.repo.Create(ctx, w)

		require.ErrorIs(t, err, ErrFault)
		require.ErrorIs(t, err, errDisk)
		assert.Equal(t, session.Detached, f.set.find(w).State())
	})
}

func TestRepository_Delete(t *testing.T) {
	t.Run("Should commit the removal and return a detached entity", func(t *testing.T) {
		ctx := testContext(t)
		f := newFixture(t, nil)
		w := &widget{ID: 4, Name: "old", Version: 1}

		got, err := f.repo.Delete(ctx, w)

		require.NoError(t, err)
		assert.Same(t, w, got)
		assert.Equal(t, session.Detached, f.set.find(w).State())
	})

	t.Run("Should not stage a removal the validator rejects", func(t *testing.T) {
		ctx := testContext(t)
		f := newFixture(t, rejectAll)

		_, err := f.repo.Delete(ctx, &widget{ID: 4})

		require.ErrorIs(t, err, ErrValidationRejected)
		assert.Zero(t, f.set.staged)
	})

	t.Run("Should restore the entry when the commit fails", func(t *testing.T) {
		ctx := testContext(t)
		f := newFixture(t, nil)
		f.sess.saveErr = errDisk
		w := &widget{ID: 4, Version: 1}

		_, err := f.repo.Delete(ctx, w)

		require.ErrorIs(t, err, ErrFault)
		assert.Equal(t, session.Unchanged, f.set.find(w).State())
	})
}

func TestRepository_ExecuteRaw(t *testing.T) {
	t.Run("Should run in a serializable transaction", func(t *testing.T) {
		ctx := testContext(t)
		f := newFixture(t, nil)

		n, err := f.repo.ExecuteRaw(ctx, "UPDATE widgets SET qty = 0")

		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
		assert.Equal(t, session.Serializable, f.sess.level)
		assert.True(t, f.sess.tx.committed)
	})

	t.Run("Should return zero and roll back on failure", func(t *testing.T) {
		ctx := testContext(t)
		f := newFixture(t, nil)
		f.sess.execErr = errDisk

		n, err := f.repo.ExecuteRaw(ctx, "UPDATE widgets SET qty = 0")

		require.ErrorIs(t, err, errDisk)
		assert.Zero(t, n)
		assert.True(t, f.sess.tx.rolledBack)
		assert.False(t, f.sess.tx.committed)
	})
}

func TestRepository_DetachLocal(t *testing.T) {
	t.Run("Should detach the single matching entry", func(t *testing.T) {
		f := newFixture(t, nil)
		a, b := &widget{ID: 1, Name: "a"}, &widget{ID: 2, Name: "b"}
		f.set.Entry(a).SetState(session.Unchanged)
		f.set.Entry(b).SetState(session.Unchanged)

		ok, err := f.repo.DetachLocal(schema.Eq[widget]("name", "b"))

		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, session.Detached, f.set.find(b).State())
		assert.Equal(t, session.Unchanged, f.set.find(a).State())
	})

	t.Run("Should report no match", func(t *testing.T) {
		f := newFixture(t, nil)

		ok, err := f.repo.DetachLocal(schema.Eq[widget]("name", "b"))

		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Should refuse ambiguous matches", func(t *testing.T) {
		f := newFixture(t, nil)
		f.set.Entry(&widget{ID: 1, Name: "x"}).SetState(session.Unchanged)
		f.set.Entry(&widget{ID: 2, Name: "x"}).SetState(session.Modified)

		_, err := f.repo.DetachLocal(schema.Eq[widget]("name", "x"))

		require.ErrorIs(t, err, ErrMultipleMatches)
		assert.Len(t, f.set.Local(), 2)
	})

	t.Run("Should ignore detached entries", func(t *testing.T) {
		f := newFixture(t, nil)
		f.set.Entry(&widget{ID: 1, Name: "x"})
		f.set.Entry(&widget{ID: 2, Name: "x"}).SetState(session.Added)

		ok, err := f.repo.DetachLocal(nil)

		require.NoError(t, err)
		assert.True(t, ok)
		assert.Empty(t, f.set.Local())
	})

	t.Run("Should fail for predicates that need the store", func(t *testing.T) {
		f := newFixture(t, nil)
		f.set.Entry(&widget{ID: 1}).SetState(session.Unchanged)

		_, err := f.repo.DetachLocal(schema.Raw[widget]("id = ?", 1))

		require.ErrorIs(t, err, schema.ErrNotEvaluable)
	})
}

func TestOutcomeOf(t *testing.T) {
	t.Run("Should classify wrapped errors", func(t *testing.T) {
		assert.Equal(t, OutcomeSuccess, OutcomeOf(nil))
		assert.Equal(t, OutcomeConflictExhausted, OutcomeOf(errors.Join(ErrConflictExhausted)))
		assert.Equal(t, OutcomeConflictDataMissing, OutcomeOf(ErrConflictDataMissing))
		assert.Equal(t, OutcomeFault, OutcomeOf(context.Canceled))
	})
}
