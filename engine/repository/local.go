package repository

import (
	"context"
	"fmt"

	"github.com/compozy/repokit/engine/schema"
	"github.com/compozy/repokit/engine/session"
)

// ExecuteRaw runs stmt in a serializable transaction and returns the rows
// affected. On failure it returns 0 and the error; the transaction is rolled back.
func (r *Repository[T]) ExecuteRaw(ctx context.Context, stmt string, args ...any) (int64, error) {
	return r.coord.ExecRaw(ctx, stmt, args...)
}

// DetachLocal looks among tracked entries only, without querying the store,
// for the one entry matching pred and detaches it. It reports false when
// nothing matches and fails with ErrMultipleMatches when more than one does.
func (r *Repository[T]) DetachLocal(pred schema.Predicate[T]) (bool, error) {
	s := r.set.Schema()
	var match session.Entry[T]
	for _, entry := range r.set.Local() {
		ok, err := schema.MatchAll(s, pred, entry.Entity())
		if err != nil {
			return false, fmt.Errorf("repository: detach %s: %w", s.Table(), err)
		}
		if !ok {
			continue
		}
		if match != nil {
			return false, fmt.Errorf("%w: %s", ErrMultipleMatches, s.Table())
		}
		match = entry
	}
	if match == nil {
		return false, nil
	}
	match.SetState(session.Detached)
	return true, nil
}
