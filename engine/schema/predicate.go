package schema

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/squirrel"
)

// Predicate filters entities of shape T. Match evaluates it against an
// in-memory entity; SQL renders it as a squirrel condition. A nil Predicate
// selects everything.
type Predicate[T any] interface {
	Match(s *Schema[T], e *T) (bool, error)
	SQL(s *Schema[T]) (squirrel.Sqlizer, error)
}

// MatchAll evaluates p against e, treating a nil predicate as true.
func MatchAll[T any](s *Schema[T], p Predicate[T], e *T) (bool, error) {
	if p == nil {
		return true, nil
	}
	return p.Match(s, e)
}

// -----------------------------------------------------------------------------
// Comparisons
// -----------------------------------------------------------------------------

type op int

const (
	opEq op = iota
	opNotEq
	opGt
	opLt
)

type comparison[T any] struct {
	field string
	op    op
	value any
}

// Eq matches entities whose field equals value. A nil value matches NULL.
func Eq[T any](field string, value any) Predicate[T] {
	return comparison[T]{field: field, op: opEq, value: value}
}

// NotEq matches entities whose field differs from value.
func NotEq[T any](field string, value any) Predicate[T] {
	return comparison[T]{field: field, op: opNotEq, value: value}
}

// Gt matches entities whose field is greater than value.
func Gt[T any](field string, value any) Predicate[T] {
	return comparison[T]{field: field, op: opGt, value: value}
}

// Lt matches entities whose field is less than value.
func Lt[T any](field string, value any) Predicate[T] {
	return comparison[T]{field: field, op: opLt, value: value}
}

func (c comparison[T]) Match(s *Schema[T], e *T) (bool, error) {
	f, err := s.Field(c.field)
	if err != nil {
		return false, err
	}
	switch c.op {
	case opEq, opNotEq:
		eq := false
		if c.value == nil {
			eq = !f.Present(e)
		} else if v, ok := f.acc.coerce(c.value); ok {
			eq = f.Equal(f.Get(e), v)
		}
		return eq == (c.op == opEq), nil
	default:
		cmp, err := f.Compare(f.Get(e), c.value)
		if err != nil {
			return false, err
		}
		if c.op == opGt {
			return cmp > 0, nil
		}
		return cmp < 0, nil
	}
}

func (c comparison[T]) SQL(s *Schema[T]) (squirrel.Sqlizer, error) {
	if _, err := s.Field(c.field); err != nil {
		return nil, err
	}
	switch c.op {
	case opEq:
		return squirrel.Eq{c.field: c.value}, nil
	case opNotEq:
		return squirrel.NotEq{c.field: c.value}, nil
	case opGt:
		return squirrel.Gt{c.field: c.value}, nil
	default:
		return squirrel.Lt{c.field: c.value}, nil
	}
}

type in[T any] struct {
	field  string
	values []any
}

// In matches entities whose field equals any of values. An empty list matches nothing.
func In[T any](field string, values ...any) Predicate[T] {
	return in[T]{field: field, values: values}
}

func (p in[T]) Match(s *Schema[T], e *T) (bool, error) {
	for _, v := range p.values {
		ok, err := Eq[T](p.field, v).Match(s, e)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

func (p in[T]) SQL(s *Schema[T]) (squirrel.Sqlizer, error) {
	if _, err := s.Field(p.field); err != nil {
		return nil, err
	}
	if len(p.values) == 0 {
		return squirrel.Expr("1=0"), nil
	}
	return squirrel.Eq{p.field: p.values}, nil
}

type like[T any] struct {
	field   string
	pattern string
}

// Like matches string fields against a SQL LIKE pattern, where % matches any
// run of characters and _ matches exactly one.
func Like[T any](field, pattern string) Predicate[T] {
	return like[T]{field: field, pattern: pattern}
}

func (p like[T]) Match(s *Schema[T], e *T) (bool, error) {
	f, err := s.Field(p.field)
	if err != nil {
		return false, err
	}
	str, ok := f.Get(e).(string)
	if !ok {
		return false, fmt.Errorf("%w: LIKE on non-string field %s", ErrFieldType, p.field)
	}
	re, err := likePattern(p.pattern)
	if err != nil {
		return false, err
	}
	return re.MatchString(str), nil
}

func (p like[T]) SQL(s *Schema[T]) (squirrel.Sqlizer, error) {
	if _, err := s.Field(p.field); err != nil {
		return nil, err
	}
	return squirrel.Like{p.field: p.pattern}, nil
}

func likePattern(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("(?s)^")
	for _, r := range pattern {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("schema: invalid LIKE pattern %q: %w", pattern, err)
	}
	return re, nil
}

// -----------------------------------------------------------------------------
// Combinators
// -----------------------------------------------------------------------------

type and[T any] []Predicate[T]

// And matches when every predicate matches. An empty And matches everything.
func And[T any](preds ...Predicate[T]) Predicate[T] { return and[T](preds) }

func (p and[T]) Match(s *Schema[T], e *T) (bool, error) {
	for _, c := range p {
		ok, err := MatchAll(s, c, e)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func (p and[T]) SQL(s *Schema[T]) (squirrel.Sqlizer, error) {
	parts, err := sqlParts(s, p)
	if err != nil {
		return nil, err
	}
	if len(parts) == 0 {
		return squirrel.Expr("1=1"), nil
	}
	return squirrel.And(parts), nil
}

type or[T any] []Predicate[T]

// Or matches when at least one predicate matches. An empty Or matches nothing.
func Or[T any](preds ...Predicate[T]) Predicate[T] { return or[T](preds) }

func (p or[T]) Match(s *Schema[T], e *T) (bool, error) {
	for _, c := range p {
		ok, err := MatchAll(s, c, e)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

func (p or[T]) SQL(s *Schema[T]) (squirrel.Sqlizer, error) {
	parts, err := sqlParts(s, p)
	if err != nil {
		return nil, err
	}
	if len(parts) == 0 {
		return squirrel.Expr("1=0"), nil
	}
	return squirrel.Or(parts), nil
}

func sqlParts[T any](s *Schema[T], preds []Predicate[T]) ([]squirrel.Sqlizer, error) {
	parts := make([]squirrel.Sqlizer, 0, len(preds))
	for _, c := range preds {
		if c == nil {
			continue
		}
		sq, err := c.SQL(s)
		if err != nil {
			return nil, err
		}
		parts = append(parts, sq)
	}
	return parts, nil
}

type not[T any] struct{ inner Predicate[T] }

// Not negates p.
func Not[T any](p Predicate[T]) Predicate[T] { return not[T]{inner: p} }

func (p not[T]) Match(s *Schema[T], e *T) (bool, error) {
	ok, err := MatchAll(s, p.inner, e)
	return !ok && err == nil, err
}

func (p not[T]) SQL(s *Schema[T]) (squirrel.Sqlizer, error) {
	if p.inner == nil {
		return squirrel.Expr("1=0"), nil
	}
	inner, err := p.inner.SQL(s)
	if err != nil {
		return nil, err
	}
	return notSqlizer{inner: inner}, nil
}

type notSqlizer struct{ inner squirrel.Sqlizer }

func (n notSqlizer) ToSql() (string, []any, error) {
	sql, args, err := n.inner.ToSql()
	if err != nil {
		return "", nil, err
	}
	return "NOT (" + sql + ")", args, nil
}

// -----------------------------------------------------------------------------
// Escape hatches
// -----------------------------------------------------------------------------

type fn[T any] func(*T) bool

// Func wraps an arbitrary Go predicate. It is evaluated in memory only; store
// queries built from it fail with ErrNotTranslatable.
func Func[T any](f func(*T) bool) Predicate[T] { return fn[T](f) }

func (f fn[T]) Match(_ *Schema[T], e *T) (bool, error) { return f(e), nil }

func (f fn[T]) SQL(_ *Schema[T]) (squirrel.Sqlizer, error) { return nil, ErrNotTranslatable }

type raw[T any] struct {
	sql  string
	args []any
}

// Raw embeds a store-native condition with ? placeholders. It cannot be
// evaluated against tracked entries.
func Raw[T any](sql string, args ...any) Predicate[T] { return raw[T]{sql: sql, args: args} }

func (r raw[T]) Match(_ *Schema[T], _ *T) (bool, error) {
	return false, ErrNotEvaluable
}

func (r raw[T]) SQL(_ *Schema[T]) (squirrel.Sqlizer, error) {
	return squirrel.Expr(r.sql, r.args...), nil
}
