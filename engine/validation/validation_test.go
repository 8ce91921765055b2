package validation

import (
	"context"
	"strings"
	"testing"

	"github.com/compozy/repokit/pkg/logger"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type member struct {
	Name  string `validate:"required"`
	Email string `validate:"required,email"`
}

type coded struct {
	Code string `validate:"upper_code"`
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	return logger.ContextWithLogger(t.Context(), logger.NewForTests())
}

func TestGate(t *testing.T) {
	t.Run("Should reject nil entities even without a validator", func(t *testing.T) {
		g := NewGate[member](nil)

		res, err := g.Validate(testContext(t), nil)

		require.ErrorIs(t, err, ErrNilEntity)
		assert.False(t, res.Valid)
		assert.False(t, g.Valid(testContext(t), nil))
	})

	t.Run("Should accept anything when no validator is bound", func(t *testing.T) {
		g := NewGate[member](nil)

		res, err := g.Validate(testContext(t), &member{})

		require.NoError(t, err)
		assert.True(t, res.Valid)
		assert.False(t, g.Bound())
	})

	t.Run("Should delegate to the bound validator", func(t *testing.T) {
		calls := 0
		g := NewGate[member](Func[member](func(_ context.Context, m *member) Result {
			calls++
			if m.Name == "" {
				return Fail(FieldError{Field: "Name", Rule: "required", Message: "name is required"})
			}
			return Ok()
		}))

		assert.False(t, g.Valid(testContext(t), &member{}))
		assert.True(t, g.Valid(testContext(t), &member{Name: "ada"}))
		assert.Equal(t, 2, calls)
		assert.True(t, g.Bound())
	})
}

func TestStructValidator(t *testing.T) {
	t.Run("Should pass a valid struct", func(t *testing.T) {
		v := NewStructValidator[member]()

		res := v.Validate(t.Context(), &member{Name: "ada", Email: "ada@example.com"})

		assert.True(t, res.Valid)
		assert.Empty(t, res.Errors)
		assert.Equal(t, "valid", res.String())
	})

	t.Run("Should report every failed rule", func(t *testing.T) {
		v := NewStructValidator[member]()

		res := v.Validate(t.Context(), &member{Email: "not-an-email"})

		require.False(t, res.Valid)
		require.Len(t, res.Errors, 2)
		assert.Equal(t, FieldError{Field: "Name", Rule: "required", Message: "failed on the 'required' rule"}, res.Errors[0])
		assert.Equal(t, "Email", res.Errors[1].Field)
		assert.Equal(t, "email", res.Errors[1].Rule)
		assert.Contains(t, res.String(), "Name: failed on the 'required' rule")
	})

	t.Run("Should apply custom rules", func(t *testing.T) {
		v := NewStructValidator[coded]()
		require.NoError(t, v.RegisterValidation("upper_code", func(fl validator.FieldLevel) bool {
			s := fl.Field().String()
			return s == strings.ToUpper(s)
		}))

		res := v.Validate(t.Context(), &coded{Code: "abc"})

		require.False(t, res.Valid)
		assert.Equal(t, "upper_code", res.Errors[0].Rule)
	})
}

func TestCompositeValidator(t *testing.T) {
	t.Run("Should merge failures from every validator", func(t *testing.T) {
		c := NewCompositeValidator[member](NewStructValidator[member]())
		c.AddValidator(Func[member](func(context.Context, *member) Result {
			return Fail(FieldError{Message: "always fails"})
		}))

		res := c.Validate(t.Context(), &member{Name: "ada", Email: "ada@example.com"})

		require.False(t, res.Valid)
		require.Len(t, res.Errors, 1)
		assert.Equal(t, "always fails", res.Errors[0].String())
	})

	t.Run("Should be valid when all validators pass", func(t *testing.T) {
		c := NewCompositeValidator[member](Func[member](func(context.Context, *member) Result { return Ok() }))

		assert.True(t, c.Validate(t.Context(), &member{}).Valid)
	})
}
