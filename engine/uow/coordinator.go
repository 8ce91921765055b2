// Package uow coordinates a persistence session with a validation gate for
// one entity shape.
package uow

import (
	"context"
	"fmt"

	"github.com/compozy/repokit/engine/session"
	"github.com/compozy/repokit/engine/validation"
	"github.com/compozy/repokit/pkg/logger"
)

// Coordinator owns the session and gate used by a repository. It holds no
// retry policy of its own.
type Coordinator[T any] struct {
	session session.Session
	gate    *validation.Gate[T]
}

// New binds a session and an optional validator.
func New[T any](s session.Session, v validation.Validator[T]) *Coordinator[T] {
	return &Coordinator[T]{session: s, gate: validation.NewGate(v)}
}

func (c *Coordinator[T]) Session() session.Session { return c.session }

func (c *Coordinator[T]) Gate() *validation.Gate[T] { return c.gate }

// Commit flushes pending changes. Errors, including *session.ConflictError,
// are returned wrapped.
func (c *Coordinator[T]) Commit(ctx context.Context) error {
	n, err := c.session.SaveChanges(ctx)
	if err != nil {
		return fmt.Errorf("uow: commit: %w", err)
	}
	logger.FromContext(ctx).Debug("Changes committed", "rows", n)
	return nil
}

// ExecRaw runs stmt inside a serializable transaction. On any failure the
// transaction is rolled back and 0 is returned with the error.
func (c *Coordinator[T]) ExecRaw(ctx context.Context, stmt string, args ...any) (int64, error) {
	log := logger.FromContext(ctx)
	tx, err := c.session.Begin(ctx, session.Serializable)
	if err != nil {
		log.Error("Failed to begin raw statement transaction", "error", err)
		return 0, fmt.Errorf("uow: begin: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			log.Warn("Failed to roll back raw statement transaction", "error", rbErr)
		}
	}()
	n, err := c.session.Exec(ctx, stmt, args...)
	if err != nil {
		log.Error("Raw statement failed", "error", err)
		return 0, fmt.Errorf("uow: exec: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		log.Error("Failed to commit raw statement transaction", "error", err)
		return 0, fmt.Errorf("uow: commit raw statement: %w", err)
	}
	return n, nil
}
