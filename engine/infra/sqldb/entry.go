package sqldb

import (
	"context"
	"fmt"

	"github.com/compozy/repokit/engine/session"
)

type entry[T any] struct {
	set      *Set[T]
	entity   *T
	original *T
	st       session.State
}

var _ session.Entry[struct{}] = (*entry[struct{}])(nil)

func (e *entry[T]) Entity() *T { return e.entity }

func (e *entry[T]) State() session.State { return e.st }

func (e *entry[T]) state() session.State { return e.st }

func (e *entry[T]) public() any { return session.Entry[T](e) }

func (e *entry[T]) describe() string {
	return fmt.Sprintf("%s %s key %v", e.st, e.set.schema.Table(), e.set.schema.KeyOf(e.entity))
}

// SetState moves the entry to st. Detaching drops it from the identity map;
// any tracked state without an original snapshot takes the current values.
func (e *entry[T]) SetState(st session.State) {
	if st == e.st {
		return
	}
	e.st = st
	if st == session.Detached {
		e.set.unindex(e)
		return
	}
	if e.original == nil && st != session.Added {
		e.original = e.set.schema.Clone(e.entity)
	}
	e.set.index(e)
}

func (e *entry[T]) OriginalValues() *T { return e.set.schema.Clone(e.original) }

func (e *entry[T]) SetOriginalValues(v *T) { e.original = e.set.schema.Clone(v) }

// SetCurrentValues copies v into the entity. An unchanged entry whose values
// now differ from the original becomes modified.
func (e *entry[T]) SetCurrentValues(v *T) {
	if v == nil {
		return
	}
	e.set.schema.CopyValues(e.entity, v)
	if e.st == session.Unchanged && e.original != nil && len(e.set.schema.Diff(e.entity, e.original)) > 0 {
		e.st = session.Modified
	}
}

// DatabaseValues reads the row by its original key without tracking it.
func (e *entry[T]) DatabaseValues(ctx context.Context) (*T, error) {
	ref := e.original
	if ref == nil {
		ref = e.entity
	}
	return e.set.fetch(ctx, e.set.schema.KeyOf(ref))
}

func (e *entry[T]) write(ctx context.Context, q Queryer) (bool, func(), error) {
	switch e.st {
	case session.Added:
		return e.set.insert(ctx, q, e)
	case session.Modified:
		return e.set.update(ctx, q, e)
	case session.Deleted:
		return e.set.delete(ctx, q, e)
	default:
		return true, nil, nil
	}
}
