// Package session defines the persistence contract consumed by the
// repository: tracked sets, tracked entries and the unit of work that flushes
// them. Drivers under engine/infra implement it.
package session

import (
	"context"

	"github.com/compozy/repokit/engine/schema"
)

// State is the change-tracking state of an entry.
type State int

const (
	Detached State = iota
	Unchanged
	Added
	Modified
	Deleted
)

func (s State) String() string {
	switch s {
	case Detached:
		return "detached"
	case Unchanged:
		return "unchanged"
	case Added:
		return "added"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Pending reports whether SaveChanges would write the entry.
func (s State) Pending() bool {
	return s == Added || s == Modified || s == Deleted
}

// IsolationLevel selects the transaction isolation for Begin.
type IsolationLevel int

const (
	ReadCommitted IsolationLevel = iota
	RepeatableRead
	Serializable
)

func (l IsolationLevel) String() string {
	switch l {
	case ReadCommitted:
		return "read committed"
	case RepeatableRead:
		return "repeatable read"
	case Serializable:
		return "serializable"
	default:
		return "unknown"
	}
}

// Window restricts a query to Limit rows after skipping Offset rows. A
// negative Limit means no limit.
type Window struct {
	Offset int
	Limit  int
}

// All is the window covering every row.
var All = Window{Limit: -1}

// Session is a unit of work over one store connection. A Session is not safe
// for concurrent use.
type Session interface {
	// SaveChanges writes every pending entry in one transaction. It returns
	// the number of rows written, or a *ConflictError when an update or
	// delete matched no row.
	SaveChanges(ctx context.Context) (int, error)
	// Begin opens a transaction that subsequent Exec and SaveChanges calls join
	// until it is committed or rolled back.
	Begin(ctx context.Context, level IsolationLevel) (Tx, error)
	// Exec runs a store-native statement and returns the rows affected.
	Exec(ctx context.Context, stmt string, args ...any) (int64, error)
}

// Tx is an open session transaction.
type Tx interface {
	Commit(ctx context.Context) error
	// Rollback aborts the transaction. It is a no-op once Commit succeeded.
	Rollback(ctx context.Context) error
}

// Set is the tracked collection of one entity shape within a Session.
type Set[T any] interface {
	Schema() *schema.Schema[T]
	Count(ctx context.Context, pred schema.Predicate[T]) (int, error)
	// List returns the matching rows ordered by key, restricted to w. Rows
	// already tracked are returned as their tracked instances.
	List(ctx context.Context, pred schema.Predicate[T], w Window) ([]*T, error)
	// First returns the first match by key order, or nil when none matches.
	First(ctx context.Context, pred schema.Predicate[T]) (*T, error)
	// QueryRaw runs a store-native query and maps result columns to fields by name.
	QueryRaw(ctx context.Context, stmt string, args ...any) ([]*T, error)
	// Local returns the tracked entries that are not detached, in tracking order.
	Local() []Entry[T]
	Add(e *T) (Entry[T], error)
	Update(e *T) (Entry[T], error)
	Remove(e *T) (Entry[T], error)
	// Entry returns the tracking entry of e, attaching it as Detached if untracked.
	Entry(e *T) Entry[T]
}

// Entry is the change-tracking record of one entity instance.
type Entry[T any] interface {
	Entity() *T
	State() State
	SetState(s State)
	// OriginalValues returns a copy of the values last read from or written to the store.
	OriginalValues() *T
	SetOriginalValues(v *T)
	// SetCurrentValues copies v into the tracked entity.
	SetCurrentValues(v *T)
	// DatabaseValues re-reads the row by key. It returns nil, nil when the row is gone.
	DatabaseValues(ctx context.Context) (*T, error)
}
