// Package repository provides a generic repository over one entity shape:
// counting, listing, paging, projection, single reads, validated mutations
// and an optimistic-concurrency update protocol.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/compozy/repokit/engine/schema"
	"github.com/compozy/repokit/engine/session"
	"github.com/compozy/repokit/engine/uow"
	"github.com/compozy/repokit/pkg/logger"
)

// Repository exposes CRUD and query operations for entities of shape T.
// Like the session it wraps, it is not safe for concurrent use.
type Repository[T any] struct {
	coord      *uow.Coordinator[T]
	set        session.Set[T]
	resolver   Resolver[T]
	maxRetries int
	backoff    time.Duration
}

// New builds a repository over the coordinator's session and the tracked set of T.
func New[T any](coord *uow.Coordinator[T], set session.Set[T], opts ...Option) (*Repository[T], error) {
	if coord == nil {
		return nil, errors.New("repository: coordinator is required")
	}
	if set == nil {
		return nil, errors.New("repository: set is required")
	}
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}
	r := &Repository[T]{coord: coord, set: set, maxRetries: s.maxRetries, backoff: s.backoff}
	switch res := s.resolver.(type) {
	case nil:
		r.resolver = DefaultResolver[T]{Sink: s.sink}
	case Resolver[T]:
		r.resolver = res
	default:
		return nil, fmt.Errorf("repository: resolver %T does not resolve %s", s.resolver, set.Schema().Table())
	}
	return r, nil
}

func (r *Repository[T]) Schema() *schema.Schema[T] { return r.set.Schema() }

func (r *Repository[T]) Coordinator() *uow.Coordinator[T] { return r.coord }

func (r *Repository[T]) log(ctx context.Context) logger.Logger {
	return logger.FromContext(ctx).With("component", "repository", "entity", r.set.Schema().Table())
}

// Count returns the number of entities matching pred.
func (r *Repository[T]) Count(ctx context.Context, pred schema.Predicate[T]) (int, error) {
	n, err := r.set.Count(ctx, pred)
	if err != nil {
		return 0, fmt.Errorf("repository: count %s: %w", r.set.Schema().Table(), err)
	}
	return n, nil
}

// QueryRaw runs a store-native query and maps the rows onto T. The statement
// is passed through unchanged; callers own its safety.
func (r *Repository[T]) QueryRaw(ctx context.Context, stmt string, args ...any) ([]*T, error) {
	rows, err := r.set.QueryRaw(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("repository: raw query %s: %w", r.set.Schema().Table(), err)
	}
	return nonNil(rows), nil
}

// List returns every entity. The result is never nil.
func (r *Repository[T]) List(ctx context.Context) ([]*T, error) {
	return r.ListWhere(ctx, nil)
}

// ListWhere returns every entity matching pred. The result is never nil.
func (r *Repository[T]) ListWhere(ctx context.Context, pred schema.Predicate[T]) ([]*T, error) {
	rows, err := r.set.List(ctx, pred, session.All)
	if err != nil {
		return nil, fmt.Errorf("repository: list %s: %w", r.set.Schema().Table(), err)
	}
	return nonNil(rows), nil
}

// Page returns one page of the entities matching pred. pageSize -1 means no
// limit. See paginate for the selection rules. The count and the read share
// one repeatable-read transaction, or the caller's when one is already open.
func (r *Repository[T]) Page(ctx context.Context, pred schema.Predicate[T], pageStart, pageSize int) (_ []*T, err error) {
	if err := checkPageArgs(pageStart, pageSize); err != nil {
		return nil, err
	}
	tx, err := r.coord.Session().Begin(ctx, session.RepeatableRead)
	switch {
	case errors.Is(err, session.ErrTxOpen):
	case err != nil:
		return nil, fmt.Errorf("repository: page %s: begin: %w", r.set.Schema().Table(), err)
	default:
		defer func() {
			if rbErr := tx.Rollback(ctx); rbErr != nil && err == nil {
				err = fmt.Errorf("repository: page %s: end read: %w", r.set.Schema().Table(), rbErr)
			}
		}()
	}
	n, err := r.Count(ctx, pred)
	if err != nil {
		return nil, err
	}
	w, err := paginate(n, pageStart, pageSize)
	if err != nil {
		return nil, err
	}
	rows, err := r.set.List(ctx, pred, w)
	if err != nil {
		return nil, fmt.Errorf("repository: page %s: %w", r.set.Schema().Table(), err)
	}
	return nonNil(rows), nil
}

// Read returns the first entity matching pred. found is false when none matches.
func (r *Repository[T]) Read(ctx context.Context, pred schema.Predicate[T]) (*T, bool, error) {
	e, err := r.set.First(ctx, pred)
	if err != nil {
		return nil, false, fmt.Errorf("repository: read %s: %w", r.set.Schema().Table(), err)
	}
	return e, e != nil, nil
}

// Select projects every entity through conv. The result is never nil.
func Select[T, R any](ctx context.Context, r *Repository[T], conv func(*T) R) ([]R, error) {
	return SelectWhere(ctx, r, nil, conv)
}

// SelectWhere projects every entity matching pred through conv. The result is never nil.
func SelectWhere[T, R any](
	ctx context.Context,
	r *Repository[T],
	pred schema.Predicate[T],
	conv func(*T) R,
) ([]R, error) {
	rows, err := r.ListWhere(ctx, pred)
	if err != nil {
		return nil, err
	}
	out := make([]R, 0, len(rows))
	for _, e := range rows {
		out = append(out, conv(e))
	}
	return out, nil
}

func nonNil[T any](rows []*T) []*T {
	if rows == nil {
		return []*T{}
	}
	return rows
}
