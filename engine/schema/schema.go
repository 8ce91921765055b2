package schema

import (
	"fmt"
	"strings"
)

// Schema is the ordered field list of one entity shape mapped to one table.
type Schema[T any] struct {
	table   string
	fields  []Field[T]
	byName  map[string]int
	key     int
	version int
}

// New validates the field list and builds a Schema. Exactly one key field
// and at most one version field are allowed; names must be unique.
func New[T any](table string, fields ...Field[T]) (*Schema[T], error) {
	if strings.TrimSpace(table) == "" {
		return nil, fmt.Errorf("%w: table name is required", ErrInvalidSchema)
	}
	s := &Schema[T]{
		table:   table,
		fields:  make([]Field[T], 0, len(fields)),
		byName:  make(map[string]int, len(fields)),
		key:     -1,
		version: -1,
	}
	for _, f := range fields {
		if f.acc == nil || f.name == "" {
			return nil, fmt.Errorf("%w: %s: field without name or accessor", ErrInvalidSchema, table)
		}
		if _, dup := s.byName[f.name]; dup {
			return nil, fmt.Errorf("%w: %s: duplicate field %q", ErrInvalidSchema, table, f.name)
		}
		idx := len(s.fields)
		if f.IsKey() {
			if s.key >= 0 {
				return nil, fmt.Errorf("%w: %s: more than one key field", ErrInvalidSchema, table)
			}
			s.key = idx
		}
		if f.IsVersion() {
			if s.version >= 0 {
				return nil, fmt.Errorf("%w: %s: more than one version field", ErrInvalidSchema, table)
			}
			s.version = idx
		}
		s.byName[f.name] = idx
		s.fields = append(s.fields, f)
	}
	if s.key < 0 {
		return nil, fmt.Errorf("%w: %s: a key field is required", ErrInvalidSchema, table)
	}
	return s, nil
}

// MustNew is like New but panics on an invalid definition. It is meant for
// package-level schema variables.
func MustNew[T any](table string, fields ...Field[T]) *Schema[T] {
	s, err := New(table, fields...)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Schema[T]) Table() string { return s.table }

// Fields returns the fields in declaration order.
func (s *Schema[T]) Fields() []Field[T] {
	out := make([]Field[T], len(s.fields))
	copy(out, s.fields)
	return out
}

// Field looks a field up by column name.
func (s *Schema[T]) Field(name string) (Field[T], error) {
	idx, ok := s.byName[name]
	if !ok {
		return Field[T]{}, fmt.Errorf("%w: %s.%s", ErrUnknownField, s.table, name)
	}
	return s.fields[idx], nil
}

func (s *Schema[T]) Key() Field[T] { return s.fields[s.key] }

// Version returns the row-version field, if the shape declares one.
func (s *Schema[T]) Version() (Field[T], bool) {
	if s.version < 0 {
		return Field[T]{}, false
	}
	return s.fields[s.version], true
}

// Columns returns every column name in declaration order.
func (s *Schema[T]) Columns() []string {
	cols := make([]string, len(s.fields))
	for i, f := range s.fields {
		cols[i] = f.name
	}
	return cols
}

// Tokens returns the non-key fields checked by original value on update and delete.
func (s *Schema[T]) Tokens() []Field[T] {
	var out []Field[T]
	for _, f := range s.fields {
		if f.IsToken() && !f.IsKey() {
			out = append(out, f)
		}
	}
	return out
}

// KeyOf returns the identity value of e.
func (s *Schema[T]) KeyOf(e *T) any { return s.Key().Get(e) }

// HasKey reports whether e carries a non-zero identity.
func (s *Schema[T]) HasKey(e *T) bool { return !s.Key().IsZero(e) }

// Clone returns an independent copy of e. Fields declared with ColDeep are
// deep-copied; the rest are assigned.
func (s *Schema[T]) Clone(e *T) *T {
	if e == nil {
		return nil
	}
	c := new(T)
	*c = *e
	for _, f := range s.fields {
		f.CopyValue(c, e)
	}
	return c
}

// CopyValues overwrites every declared field of dst with the value in src.
func (s *Schema[T]) CopyValues(dst, src *T) {
	for _, f := range s.fields {
		f.CopyValue(dst, src)
	}
}

// Diff returns the fields whose values differ between a and b.
func (s *Schema[T]) Diff(a, b *T) []Field[T] {
	var out []Field[T]
	for _, f := range s.fields {
		if !f.Equal(f.Get(a), f.Get(b)) {
			out = append(out, f)
		}
	}
	return out
}
