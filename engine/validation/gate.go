// Package validation decides whether an entity may be persisted.
package validation

import (
	"context"
	"errors"

	"github.com/compozy/repokit/pkg/logger"
)

// ErrNilEntity is returned when a nil entity is submitted for validation.
var ErrNilEntity = errors.New("validation: entity is nil")

// Gate applies an optional Validator. Without one, every non-nil entity is valid.
type Gate[T any] struct {
	validator Validator[T]
}

func NewGate[T any](v Validator[T]) *Gate[T] {
	return &Gate[T]{validator: v}
}

// Bound reports whether a validator is attached.
func (g *Gate[T]) Bound() bool {
	return g != nil && g.validator != nil
}

// Validate returns the validation result for e. A nil e is never valid and
// yields ErrNilEntity.
func (g *Gate[T]) Validate(ctx context.Context, e *T) (Result, error) {
	if e == nil {
		logger.FromContext(ctx).Error("Validation requested for nil entity")
		return Fail(FieldError{Rule: "required", Message: "entity is nil"}), ErrNilEntity
	}
	if !g.Bound() {
		return Ok(), nil
	}
	return g.validator.Validate(ctx, e), nil
}

// Valid is Validate reduced to a boolean.
func (g *Gate[T]) Valid(ctx context.Context, e *T) bool {
	res, err := g.Validate(ctx, e)
	return err == nil && res.Valid
}
