package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/compozy/repokit/engine/session"
	"github.com/compozy/repokit/pkg/logger"
	"github.com/sethvargo/go-retry"
)

const (
	opCreate = "create"
	opUpdate = "update"
	opDelete = "delete"
)

type stageFunc[T any] func(e *T) (session.Entry[T], error)

// Create validates e, stages it for insertion and commits. The returned
// entity carries store-assigned values such as a generated key.
func (r *Repository[T]) Create(ctx context.Context, e *T) (*T, error) {
	return r.mutate(ctx, opCreate, e, r.set.Add)
}

// Delete validates e, stages its removal and commits. The returned entity is
// detached from the session.
func (r *Repository[T]) Delete(ctx context.Context, e *T) (*T, error) {
	return r.mutate(ctx, opDelete, e, r.set.Remove)
}

func (r *Repository[T]) mutate(ctx context.Context, op string, e *T, stage stageFunc[T]) (_ *T, err error) {
	start := time.Now()
	log := r.log(ctx).With("operation", op)
	defer func() { recordMutation(ctx, r.set.Schema().Table(), op, OutcomeOf(err), time.Since(start)) }()
	if err := r.validate(ctx, log, e); err != nil {
		return nil, err
	}
	entry, err := stage(e)
	if err != nil {
		log.Error("Failed to stage change", "error", err)
		return nil, fmt.Errorf("%w: %s: %w", ErrStagingFailed, op, err)
	}
	if err := r.coord.Commit(ctx); err != nil {
		abandon(entry)
		log.Error("Failed to commit change", "error", err)
		return nil, fmt.Errorf("%w: %s: %w", ErrFault, op, err)
	}
	log.Debug("Change committed")
	return entry.Entity(), nil
}

// Update validates e and writes it with optimistic concurrency. When the row
// changed since it was read, the resolver merges the submitted values onto
// the current row and the write is retried. Retries stop at the configured
// bound, when the row has been deleted, or on any non-conflict error.
func (r *Repository[T]) Update(ctx context.Context, e *T) (_ *T, err error) {
	start := time.Now()
	log := r.log(ctx).With("operation", opUpdate)
	defer func() { recordMutation(ctx, r.set.Schema().Table(), opUpdate, OutcomeOf(err), time.Since(start)) }()
	if err := r.validate(ctx, log, e); err != nil {
		return nil, err
	}
	var entry session.Entry[T]
	attempts := 0
	err = retry.Do(ctx, r.conflictBackoff(), func(ctx context.Context) error {
		attempts++
		var stageErr error
		entry, stageErr = r.set.Update(e)
		if stageErr != nil {
			log.Error("Failed to stage update", "error", stageErr, "attempt", attempts)
			return fmt.Errorf("%w: %s: %w", ErrStagingFailed, opUpdate, stageErr)
		}
		commitErr := r.coord.Commit(ctx)
		if commitErr == nil {
			return nil
		}
		var cerr *session.ConflictError
		if !errors.As(commitErr, &cerr) {
			log.Error("Failed to commit update", "error", commitErr, "attempt", attempts)
			return fmt.Errorf("%w: %s: %w", ErrFault, opUpdate, commitErr)
		}
		if resolveErr := r.resolve(ctx, e, cerr); resolveErr != nil {
			return resolveErr
		}
		log.Debug("Update conflicted; retrying with resolved values", "attempt", attempts)
		return retry.RetryableError(commitErr)
	})
	if err != nil {
		abandon(entry)
		return nil, r.classifyUpdateError(log, err, attempts)
	}
	log.Debug("Update committed", "attempts", attempts)
	return entry.Entity(), nil
}

func (r *Repository[T]) classifyUpdateError(log logger.Logger, err error, attempts int) error {
	switch {
	case errors.Is(err, ErrStagingFailed), errors.Is(err, ErrFault):
		return err
	case errors.Is(err, ErrConflictDataMissing):
		log.Error("Update abandoned; conflicting row was deleted", "error", err, "attempts", attempts)
		return err
	case errors.Is(err, session.ErrConflict):
		log.Warn("Update abandoned; conflicts persisted", "attempts", attempts)
		return fmt.Errorf("%w after %d attempts: %w", ErrConflictExhausted, attempts, err)
	default:
		log.Error("Update aborted", "error", err, "attempts", attempts)
		return fmt.Errorf("%w: %s: %w", ErrFault, opUpdate, err)
	}
}

// conflictBackoff waits a constant delay between attempts, bounded by
// maxRetries unless it is zero.
func (r *Repository[T]) conflictBackoff() retry.Backoff {
	delay := r.backoff
	var b retry.Backoff = retry.BackoffFunc(func() (time.Duration, bool) {
		return delay, false
	})
	if r.maxRetries > 0 {
		b = retry.WithMaxRetries(uint64(r.maxRetries), b)
	}
	return b
}

// resolve reloads the conflicting row, merges it with e through the resolver
// and resets the entry so the next attempt checks against the fresh row.
func (r *Repository[T]) resolve(ctx context.Context, e *T, cerr *session.ConflictError) error {
	s := r.set.Schema()
	entries := session.ConflictEntries[T](cerr)
	if len(entries) == 0 {
		return fmt.Errorf("%w: conflict carried no %s entries: %w", ErrFault, s.Table(), cerr)
	}
	entry := entries[0]
	for _, c := range entries {
		if c.Entity() == e {
			entry = c
			break
		}
	}
	db, err := entry.DatabaseValues(ctx)
	if err != nil {
		return fmt.Errorf("%w: reload conflicting row: %w", ErrFault, err)
	}
	if db == nil {
		return fmt.Errorf("%w: %s key %v", ErrConflictDataMissing, s.Table(), s.KeyOf(entry.Entity()))
	}
	recordConflict(ctx, s.Table())
	snap := &Snapshot[T]{
		Schema:   s,
		Current:  s.Clone(entry.Entity()),
		Database: db,
		Resolved: s.Clone(db),
	}
	if err := r.resolver.Resolve(ctx, snap); err != nil {
		return fmt.Errorf("%w: resolve conflict: %w", ErrFault, err)
	}
	entry.SetOriginalValues(db)
	entry.SetCurrentValues(snap.Resolved)
	return nil
}

func (r *Repository[T]) validate(ctx context.Context, log logger.Logger, e *T) error {
	res, err := r.coord.Gate().Validate(ctx, e)
	if err != nil {
		return &ValidationError{Result: res, Err: err}
	}
	if !res.Valid {
		log.Warn("Validation rejected entity", "errors", res.String())
		return &ValidationError{Result: res}
	}
	return nil
}

// abandon reverts a failed staging so later commits do not replay it.
func abandon[T any](entry session.Entry[T]) {
	if entry == nil {
		return
	}
	switch entry.State() {
	case session.Added:
		entry.SetState(session.Detached)
	case session.Modified, session.Deleted:
		entry.SetState(session.Unchanged)
	}
}
