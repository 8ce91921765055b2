package validation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FieldError describes one failed rule.
type FieldError struct {
	Field   string
	Rule    string
	Message string
}

func (e FieldError) String() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Result is the outcome of validating one entity.
type Result struct {
	Valid  bool
	Errors []FieldError
}

// Ok is the valid result.
func Ok() Result {
	return Result{Valid: true}
}

// Fail builds an invalid result from the given failures.
func Fail(errs ...FieldError) Result {
	return Result{Valid: false, Errors: errs}
}

func (r Result) String() string {
	if r.Valid {
		return "valid"
	}
	parts := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		parts[i] = e.String()
	}
	return strings.Join(parts, "; ")
}

// Validator checks one entity shape.
type Validator[T any] interface {
	Validate(ctx context.Context, e *T) Result
}

// Func adapts a function to Validator.
type Func[T any] func(ctx context.Context, e *T) Result

func (f Func[T]) Validate(ctx context.Context, e *T) Result {
	return f(ctx, e)
}

// -----------------------------------------------------------------------------
// StructValidator
// -----------------------------------------------------------------------------

// StructValidator validates `validate` struct tags with go-playground/validator.
type StructValidator[T any] struct {
	validate *validator.Validate
}

func NewStructValidator[T any]() *StructValidator[T] {
	return &StructValidator[T]{validate: validator.New()}
}

func (v *StructValidator[T]) RegisterValidation(tag string, fn validator.Func) error {
	return v.validate.RegisterValidation(tag, fn)
}

func (v *StructValidator[T]) Validate(ctx context.Context, e *T) Result {
	err := v.validate.StructCtx(ctx, e)
	if err == nil {
		return Ok()
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return Fail(FieldError{Rule: "struct", Message: err.Error()})
	}
	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{
			Field:   fe.Field(),
			Rule:    fe.Tag(),
			Message: fmt.Sprintf("failed on the '%s' rule", fe.Tag()),
		})
	}
	return Fail(out...)
}

// -----------------------------------------------------------------------------
// CompositeValidator
// -----------------------------------------------------------------------------

// CompositeValidator runs every validator and merges their failures.
type CompositeValidator[T any] struct {
	validators []Validator[T]
}

func NewCompositeValidator[T any](validators ...Validator[T]) *CompositeValidator[T] {
	return &CompositeValidator[T]{validators: validators}
}

func (c *CompositeValidator[T]) AddValidator(v Validator[T]) {
	c.validators = append(c.validators, v)
}

func (c *CompositeValidator[T]) Validate(ctx context.Context, e *T) Result {
	res := Ok()
	for _, v := range c.validators {
		r := v.Validate(ctx, e)
		if !r.Valid {
			res.Valid = false
			res.Errors = append(res.Errors, r.Errors...)
		}
	}
	return res
}
