package schema

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/mohae/deepcopy"
)

var (
	ErrUnknownField    = errors.New("schema: unknown field")
	ErrFieldType       = errors.New("schema: value type does not match field")
	ErrNotComparable   = errors.New("schema: field values are not ordered")
	ErrInvalidSchema   = errors.New("schema: invalid definition")
	ErrNotTranslatable = errors.New("schema: predicate cannot be translated to SQL")
	ErrNotEvaluable    = errors.New("schema: predicate cannot be evaluated in memory")
)

type fieldFlag uint8

const (
	flagKey fieldFlag = 1 << iota
	flagGenerated
	flagToken
	flagVersion
)

// accessor is the typed half of a Field, closed over the value type V.
type accessor[T any] interface {
	get(e *T) any
	ptr(e *T) any
	set(e *T, v any) error
	copy(dst, src *T)
	equal(a, b any) bool
	compare(a, b any) (int, error)
	coerce(v any) (any, bool)
	present(e *T) bool
	zero(e *T) bool
}

// Field describes one persisted member of T: its column name, how to read
// and write it, and its role in change tracking.
type Field[T any] struct {
	name  string
	flags fieldFlag
	acc   accessor[T]
}

// Col declares a column stored in the member returned by ptr. Values are
// compared with reflect.DeepEqual and copied by assignment.
func Col[T, V any](name string, ptr func(*T) *V) Field[T] {
	return Field[T]{name: name, acc: &column[T, V]{at: ptr}}
}

// ColEq declares a column with a typed equality, for values that can be
// equal in meaning while differing in representation (decimal.Decimal, time.Time).
func ColEq[T, V any](name string, ptr func(*T) *V, eq func(a, b V) bool) Field[T] {
	return Field[T]{name: name, acc: &column[T, V]{at: ptr, eq: eq}}
}

// ColDeep declares a column whose values are deep-copied on snapshot, for
// maps, slices and pointers that must not alias between entity copies.
func ColDeep[T, V any](name string, ptr func(*T) *V) Field[T] {
	return Field[T]{name: name, acc: &column[T, V]{at: ptr, deep: true}}
}

// Key declares the identity column.
func Key[T any, K comparable](name string, ptr func(*T) *K) Field[T] {
	return Field[T]{name: name, flags: flagKey, acc: &column[T, K]{at: ptr}}
}

// Version declares a row-version column. It takes part in the concurrency
// check and is set to 1 on insert and incremented on every update.
func Version[T any](name string, ptr func(*T) *int64) Field[T] {
	return Field[T]{name: name, flags: flagToken | flagVersion, acc: &column[T, int64]{at: ptr}}
}

// AsGenerated marks the column as assigned by the store on insert.
func (f Field[T]) AsGenerated() Field[T] {
	f.flags |= flagGenerated
	return f
}

// AsToken makes the column part of the optimistic-concurrency check.
func (f Field[T]) AsToken() Field[T] {
	f.flags |= flagToken
	return f
}

func (f Field[T]) Name() string      { return f.name }
func (f Field[T]) IsKey() bool       { return f.flags&flagKey != 0 }
func (f Field[T]) IsGenerated() bool { return f.flags&flagGenerated != 0 }
func (f Field[T]) IsToken() bool     { return f.flags&flagToken != 0 }
func (f Field[T]) IsVersion() bool   { return f.flags&flagVersion != 0 }

// Settable reports whether callers may write the field: the key and
// store-generated columns are owned by the store.
func (f Field[T]) Settable() bool {
	return !f.IsKey() && !f.IsGenerated()
}

// Get returns the field value of e.
func (f Field[T]) Get(e *T) any { return f.acc.get(e) }

// Ptr returns a pointer to the field member of e, suitable as a scan target.
func (f Field[T]) Ptr(e *T) any { return f.acc.ptr(e) }

// Set writes v into e. A nil v stores the zero value.
func (f Field[T]) Set(e *T, v any) error {
	if err := f.acc.set(e, v); err != nil {
		return fmt.Errorf("%w: %s", err, f.name)
	}
	return nil
}

// CopyValue copies the field from src into dst.
func (f Field[T]) CopyValue(dst, src *T) { f.acc.copy(dst, src) }

// Equal compares two values of this field.
func (f Field[T]) Equal(a, b any) bool { return f.acc.equal(a, b) }

// Present reports whether the field of e holds a non-nil value.
func (f Field[T]) Present(e *T) bool { return f.acc.present(e) }

// IsZero reports whether the field of e holds its zero value.
func (f Field[T]) IsZero(e *T) bool { return f.acc.zero(e) }

// Compare orders two values of this field.
func (f Field[T]) Compare(a, b any) (int, error) {
	c, err := f.acc.compare(a, b)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", err, f.name)
	}
	return c, nil
}

type column[T, V any] struct {
	at   func(*T) *V
	eq   func(a, b V) bool
	deep bool
}

func (c *column[T, V]) get(e *T) any { return *c.at(e) }

func (c *column[T, V]) ptr(e *T) any { return c.at(e) }

func (c *column[T, V]) set(e *T, v any) error {
	tv, ok := c.coerce(v)
	if !ok {
		return ErrFieldType
	}
	*c.at(e), _ = tv.(V)
	return nil
}

func (c *column[T, V]) copy(dst, src *T) {
	v := *c.at(src)
	if c.deep {
		if cp, ok := deepcopy.Copy(v).(V); ok {
			v = cp
		}
	}
	*c.at(dst) = v
}

func (c *column[T, V]) equal(a, b any) bool {
	av, aok := a.(V)
	bv, bok := b.(V)
	if aok && bok && c.eq != nil {
		return c.eq(av, bv)
	}
	return reflect.DeepEqual(a, b)
}

// coerce converts v to V, accepting untyped numeric literals such as 5 for
// an int64 column. A nil v yields the zero value.
func (c *column[T, V]) coerce(v any) (any, bool) {
	if v == nil {
		var zero V
		return zero, true
	}
	if tv, ok := v.(V); ok {
		return tv, true
	}
	target := reflect.TypeOf((*V)(nil)).Elem()
	rv := reflect.ValueOf(v)
	if sameFamily(rv.Kind(), target.Kind()) && rv.CanConvert(target) {
		conv := rv.Convert(target)
		if !lossless(rv, conv) {
			return nil, false
		}
		cv, ok := conv.Interface().(V)
		return cv, ok
	}
	return nil, false
}

// lossless reports whether conv holds exactly the value of src: the sign is
// kept and converting back yields src.
func lossless(src, conv reflect.Value) bool {
	switch familyOf(src.Kind()) {
	case familyInt:
		if src.Int() < 0 && familyOf(conv.Kind()) == familyUint {
			return false
		}
	case familyUint:
		if familyOf(conv.Kind()) == familyInt && conv.Int() < 0 {
			return false
		}
	case familyFloat:
		if src.Float() < 0 && familyOf(conv.Kind()) == familyUint {
			return false
		}
	case familyString:
		return true
	}
	if !conv.CanConvert(src.Type()) {
		return false
	}
	return conv.Convert(src.Type()).Equal(src)
}

func (c *column[T, V]) compare(a, b any) (int, error) {
	ac, aok := c.coerce(a)
	bc, bok := c.coerce(b)
	if !aok || !bok {
		return 0, ErrFieldType
	}
	av, _ := ac.(V)
	bv, _ := bc.(V)
	switch x := any(av).(type) {
	case interface{ Cmp(V) int }:
		return x.Cmp(bv), nil
	case interface{ Compare(V) int }:
		return x.Compare(bv), nil
	}
	return compareKinds(reflect.ValueOf(av), reflect.ValueOf(bv))
}

func (c *column[T, V]) present(e *T) bool {
	return !isNil(*c.at(e))
}

func (c *column[T, V]) zero(e *T) bool {
	v := reflect.ValueOf(*c.at(e))
	return !v.IsValid() || v.IsZero()
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}

type kindFamily int

const (
	familyOther kindFamily = iota
	familyInt
	familyUint
	familyFloat
	familyString
)

func familyOf(k reflect.Kind) kindFamily {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return familyInt
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return familyUint
	case reflect.Float32, reflect.Float64:
		return familyFloat
	case reflect.String:
		return familyString
	default:
		return familyOther
	}
}

func sameFamily(a, b reflect.Kind) bool {
	fa, fb := familyOf(a), familyOf(b)
	if fa == familyOther || fb == familyOther {
		return false
	}
	numeric := func(f kindFamily) bool { return f != familyString }
	return fa == fb || (numeric(fa) && numeric(fb))
}

func compareKinds(a, b reflect.Value) (int, error) {
	switch familyOf(a.Kind()) {
	case familyInt:
		return ordered(a.Int(), b.Int()), nil
	case familyUint:
		return ordered(a.Uint(), b.Uint()), nil
	case familyFloat:
		return ordered(a.Float(), b.Float()), nil
	case familyString:
		return ordered(a.String(), b.String()), nil
	default:
		return 0, ErrNotComparable
	}
}

func ordered[O int64 | uint64 | float64 | string](a, b O) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
