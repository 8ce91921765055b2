package session

import (
	"errors"
	"fmt"
)

var (
	// ErrConflict marks an optimistic-concurrency failure during SaveChanges.
	ErrConflict = errors.New("session: concurrency conflict")
	// ErrTxOpen is returned by Begin while another session transaction is open.
	ErrTxOpen = errors.New("session: transaction already open")
)

// ConflictError carries the entries whose update or delete matched no row.
// Entries holds Entry[T] values of the sets involved.
type ConflictError struct {
	Entries []any
	Err     error
}

func (e *ConflictError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %d entries: %v", ErrConflict, len(e.Entries), e.Err)
	}
	return fmt.Sprintf("%s: %d entries", ErrConflict, len(e.Entries))
}

// Is matches ErrConflict.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

func (e *ConflictError) Unwrap() error {
	return e.Err
}

// ConflictEntries returns the entries of cerr that belong to shape T.
func ConflictEntries[T any](cerr *ConflictError) []Entry[T] {
	if cerr == nil {
		return nil
	}
	var out []Entry[T]
	for _, raw := range cerr.Entries {
		if entry, ok := raw.(Entry[T]); ok {
			out = append(out, entry)
		}
	}
	return out
}
