package repository

import (
	"errors"

	"github.com/compozy/repokit/engine/validation"
)

var (
	// ErrValidationRejected reports that the validator refused the entity; nothing was staged.
	ErrValidationRejected = errors.New("repository: validation rejected")
	// ErrStagingFailed reports that the session refused to track the change.
	ErrStagingFailed = errors.New("repository: staging failed")
	// ErrConflictExhausted reports that conflicts persisted past the retry bound.
	ErrConflictExhausted = errors.New("repository: conflict retries exhausted")
	// ErrConflictDataMissing reports that the conflicting row no longer exists.
	ErrConflictDataMissing = errors.New("repository: conflicting row no longer exists")
	// ErrFault wraps any other failure during a mutation.
	ErrFault = errors.New("repository: fault")
	// ErrInvalidPage reports a page request outside the accepted range.
	ErrInvalidPage = errors.New("repository: invalid page request")
	// ErrMultipleMatches reports that a local lookup matched more than one entry.
	ErrMultipleMatches = errors.New("repository: predicate matched more than one tracked entry")
)

// ValidationError carries the rejected validation result.
type ValidationError struct {
	Result validation.Result
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return ErrValidationRejected.Error() + ": " + e.Err.Error()
	}
	return ErrValidationRejected.Error() + ": " + e.Result.String()
}

// Is matches ErrValidationRejected.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationRejected
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Outcome classifies the result of a mutation.
type Outcome string

const (
	OutcomeSuccess             Outcome = "success"
	OutcomeValidationRejected  Outcome = "validation_rejected"
	OutcomeStagingFailed       Outcome = "staging_failed"
	OutcomeConflictExhausted   Outcome = "conflict_exhausted"
	OutcomeConflictDataMissing Outcome = "conflict_data_missing"
	OutcomeFault               Outcome = "fault"
)

// OutcomeOf maps a mutation error to its Outcome. A nil error is OutcomeSuccess.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrValidationRejected):
		return OutcomeValidationRejected
	case errors.Is(err, ErrStagingFailed):
		return OutcomeStagingFailed
	case errors.Is(err, ErrConflictExhausted):
		return OutcomeConflictExhausted
	case errors.Is(err, ErrConflictDataMissing):
		return OutcomeConflictDataMissing
	default:
		return OutcomeFault
	}
}
