package sqldb

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/compozy/repokit/engine/schema"
	"github.com/compozy/repokit/engine/session"
)

var (
	ErrNilEntity    = errors.New("sqldb: nil entity")
	ErrMissingKey   = errors.New("sqldb: entity has no key")
	ErrIdentity     = errors.New("sqldb: another instance with the same key is tracked")
	ErrInvalidState = errors.New("sqldb: invalid state transition")
)

// Set is the tracked collection of one schema within a Session.
type Set[T any] struct {
	sess    *Session
	schema  *schema.Schema[T]
	byPtr   map[*T]*entry[T]
	byKey   map[any]*entry[T]
	entries []*entry[T]
}

var _ session.Set[struct{}] = (*Set[struct{}])(nil)

// SetFor returns the session's set for sc, creating it on first use.
func SetFor[T any](sess *Session, sc *schema.Schema[T]) *Set[T] {
	if existing, ok := sess.sets[sc]; ok {
		return existing.(*Set[T])
	}
	s := &Set[T]{
		sess:   sess,
		schema: sc,
		byPtr:  make(map[*T]*entry[T]),
		byKey:  make(map[any]*entry[T]),
	}
	sess.sets[sc] = s
	return s
}

func (s *Set[T]) Schema() *schema.Schema[T] { return s.schema }

// -----------------------------------------------------------------------------
// Tracking
// -----------------------------------------------------------------------------

func (s *Set[T]) Entry(e *T) session.Entry[T] {
	if e == nil {
		return nil
	}
	return s.attach(e, session.Detached)
}

func (s *Set[T]) attach(e *T, st session.State) *entry[T] {
	if en, ok := s.byPtr[e]; ok {
		return en
	}
	en := &entry[T]{set: s, entity: e, st: st}
	if st != session.Detached && st != session.Added {
		en.original = s.schema.Clone(e)
	}
	s.byPtr[e] = en
	s.entries = append(s.entries, en)
	s.sess.track(en)
	if st != session.Detached {
		s.index(en)
	}
	return en
}

func (s *Set[T]) index(en *entry[T]) {
	if s.schema.HasKey(en.entity) {
		s.byKey[s.schema.KeyOf(en.entity)] = en
	}
}

func (s *Set[T]) unindex(en *entry[T]) {
	key := s.schema.KeyOf(en.entity)
	if cur, ok := s.byKey[key]; ok && cur == en {
		delete(s.byKey, key)
	}
}

func (s *Set[T]) forget(en *entry[T]) {
	s.unindex(en)
	delete(s.byPtr, en.entity)
	for i, cur := range s.entries {
		if cur == en {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			break
		}
	}
	s.sess.forget(en)
}

// claims reports whether a different live instance is tracked under e's key.
func (s *Set[T]) claims(e *T) bool {
	if !s.schema.HasKey(e) {
		return false
	}
	cur, ok := s.byKey[s.schema.KeyOf(e)]
	return ok && cur.entity != e && cur.st != session.Detached
}

// Local returns the entries that are not detached, in tracking order.
func (s *Set[T]) Local() []session.Entry[T] {
	out := make([]session.Entry[T], 0, len(s.entries))
	for _, en := range s.entries {
		if en.st != session.Detached {
			out = append(out, en)
		}
	}
	return out
}

// Add stages e for insertion.
func (s *Set[T]) Add(e *T) (session.Entry[T], error) {
	if e == nil {
		return nil, ErrNilEntity
	}
	if s.claims(e) {
		return nil, fmt.Errorf("%w: %s key %v", ErrIdentity, s.schema.Table(), s.schema.KeyOf(e))
	}
	en := s.attach(e, session.Added)
	switch en.st {
	case session.Added:
	case session.Detached:
		en.original = nil
		en.SetState(session.Added)
	default:
		return nil, fmt.Errorf("%w: add %s entry", ErrInvalidState, en.st)
	}
	return en, nil
}

// Update stages e for an update guarded by its concurrency tokens. An
// untracked instance is attached with its current values as the original.
func (s *Set[T]) Update(e *T) (session.Entry[T], error) {
	if e == nil {
		return nil, ErrNilEntity
	}
	en, ok := s.byPtr[e]
	if !ok || en.st == session.Detached {
		if !s.schema.HasKey(e) {
			return nil, fmt.Errorf("%w: update %s", ErrMissingKey, s.schema.Table())
		}
		if s.claims(e) {
			return nil, fmt.Errorf("%w: %s key %v", ErrIdentity, s.schema.Table(), s.schema.KeyOf(e))
		}
	}
	if !ok {
		return s.attach(e, session.Modified), nil
	}
	switch en.st {
	case session.Added, session.Modified:
	case session.Detached:
		en.original = s.schema.Clone(e)
		en.SetState(session.Modified)
	case session.Unchanged:
		en.st = session.Modified
	default:
		return nil, fmt.Errorf("%w: update %s entry", ErrInvalidState, en.st)
	}
	return en, nil
}

// Remove stages e for deletion. Removing an entity that was only added
// detaches it without writing.
func (s *Set[T]) Remove(e *T) (session.Entry[T], error) {
	if e == nil {
		return nil, ErrNilEntity
	}
	en, ok := s.byPtr[e]
	if !ok || en.st == session.Detached {
		if !s.schema.HasKey(e) {
			return nil, fmt.Errorf("%w: remove %s", ErrMissingKey, s.schema.Table())
		}
		if s.claims(e) {
			return nil, fmt.Errorf("%w: %s key %v", ErrIdentity, s.schema.Table(), s.schema.KeyOf(e))
		}
	}
	if !ok {
		return s.attach(e, session.Deleted), nil
	}
	switch en.st {
	case session.Added:
		en.SetState(session.Detached)
	case session.Detached:
		en.original = s.schema.Clone(e)
		en.SetState(session.Deleted)
	default:
		en.st = session.Deleted
	}
	return en, nil
}

// -----------------------------------------------------------------------------
// Reads
// -----------------------------------------------------------------------------

func (s *Set[T]) where(q squirrel.SelectBuilder, pred schema.Predicate[T]) (squirrel.SelectBuilder, error) {
	if pred == nil {
		return q, nil
	}
	cond, err := pred.SQL(s.schema)
	if err != nil {
		return q, err
	}
	return q.Where(cond), nil
}

// Count returns the number of rows matching pred.
func (s *Set[T]) Count(ctx context.Context, pred schema.Predicate[T]) (int, error) {
	q, err := s.where(s.sess.dialect.builder().Select("COUNT(*)").From(s.schema.Table()), pred)
	if err != nil {
		return 0, err
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}
	rows, err := s.sess.queryer().Query(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", s.schema.Table(), err)
	}
	defer rows.Close()
	var n int64
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, fmt.Errorf("scan count: %w", err)
		}
	}
	return int(n), rows.Err()
}

// List returns the rows matching pred ordered by key within w. Rows already
// tracked resolve to their tracked instances; new rows are tracked unchanged.
func (s *Set[T]) List(ctx context.Context, pred schema.Predicate[T], w session.Window) ([]*T, error) {
	q := s.sess.dialect.builder().
		Select(s.schema.Columns()...).
		From(s.schema.Table()).
		OrderBy(s.schema.Key().Name())
	q, err := s.where(q, pred)
	if err != nil {
		return nil, err
	}
	q = s.sess.dialect.window(q, w)
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	rows, err := s.scanAll(ctx, sql, args)
	if err != nil {
		return nil, err
	}
	return s.materialize(rows), nil
}

// First returns the first row by key order matching pred, or nil.
func (s *Set[T]) First(ctx context.Context, pred schema.Predicate[T]) (*T, error) {
	rows, err := s.List(ctx, pred, session.Window{Limit: 1})
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

// QueryRaw runs stmt and maps result columns to fields by case-insensitive
// name. Unknown columns are discarded. Rows are tracked only when the key
// column is selected.
func (s *Set[T]) QueryRaw(ctx context.Context, stmt string, args ...any) ([]*T, error) {
	rows, err := s.sess.queryer().Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("raw query %s: %w", s.schema.Table(), err)
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("raw query columns: %w", err)
	}
	fields := make([]*schema.Field[T], len(cols))
	byLower := make(map[string]schema.Field[T], len(s.schema.Fields()))
	for _, f := range s.schema.Fields() {
		byLower[strings.ToLower(f.Name())] = f
	}
	hasKey := false
	for i, c := range cols {
		if f, ok := byLower[strings.ToLower(c)]; ok {
			fields[i] = &f
			hasKey = hasKey || f.IsKey()
		}
	}
	var out []*T
	for rows.Next() {
		e := new(T)
		dest := make([]any, len(cols))
		for i, f := range fields {
			if f == nil {
				dest[i] = new(any)
				continue
			}
			dest[i] = f.Ptr(e)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", s.schema.Table(), err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("raw query %s: %w", s.schema.Table(), err)
	}
	if !hasKey {
		return out, nil
	}
	return s.materialize(out), nil
}

func (s *Set[T]) scanAll(ctx context.Context, sql string, args []any) ([]*T, error) {
	rows, err := s.sess.queryer().Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", s.schema.Table(), err)
	}
	defer rows.Close()
	fields := s.schema.Fields()
	var out []*T
	for rows.Next() {
		e := new(T)
		dest := make([]any, len(fields))
		for i, f := range fields {
			dest[i] = f.Ptr(e)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", s.schema.Table(), err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select %s: %w", s.schema.Table(), err)
	}
	return out, nil
}

func (s *Set[T]) materialize(rows []*T) []*T {
	for i, row := range rows {
		if cur, ok := s.byKey[s.schema.KeyOf(row)]; ok && cur.st != session.Detached {
			rows[i] = cur.entity
			continue
		}
		s.attach(row, session.Unchanged)
	}
	return rows
}

func (s *Set[T]) fetch(ctx context.Context, key any) (*T, error) {
	q := s.sess.dialect.builder().
		Select(s.schema.Columns()...).
		From(s.schema.Table()).
		Where(squirrel.Eq{s.schema.Key().Name(): key})
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	rows, err := s.scanAll(ctx, sql, args)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

// -----------------------------------------------------------------------------
// Writes
// -----------------------------------------------------------------------------

// original matches the row as last read: its key plus every concurrency token.
func (s *Set[T]) original(en *entry[T]) squirrel.Eq {
	ref := en.original
	if ref == nil {
		ref = en.entity
	}
	cond := squirrel.Eq{s.schema.Key().Name(): s.schema.KeyOf(ref)}
	for _, tok := range s.schema.Tokens() {
		cond[tok.Name()] = tok.Get(ref)
	}
	return cond
}

func (s *Set[T]) insert(ctx context.Context, q Queryer, en *entry[T]) (bool, func(), error) {
	next := s.schema.Clone(en.entity)
	version, hasVersion := s.schema.Version()
	if hasVersion {
		if err := version.Set(next, int64(1)); err != nil {
			return false, nil, err
		}
	}
	var (
		cols      []string
		vals      []any
		generated []schema.Field[T]
	)
	for _, f := range s.schema.Fields() {
		if f.IsGenerated() {
			generated = append(generated, f)
			continue
		}
		cols = append(cols, f.Name())
		vals = append(vals, f.Get(next))
	}
	b := s.sess.dialect.builder().Insert(s.schema.Table()).Columns(cols...).Values(vals...)
	if len(generated) == 0 {
		sql, args, err := b.ToSql()
		if err != nil {
			return false, nil, fmt.Errorf("build insert: %w", err)
		}
		if _, err := q.Exec(ctx, sql, args...); err != nil {
			return false, nil, err
		}
	} else {
		names := make([]string, len(generated))
		for i, f := range generated {
			names[i] = f.Name()
		}
		sql, args, err := b.Suffix("RETURNING " + strings.Join(names, ", ")).ToSql()
		if err != nil {
			return false, nil, fmt.Errorf("build insert: %w", err)
		}
		if err := scanReturning(ctx, q, sql, args, next, generated); err != nil {
			return false, nil, err
		}
	}
	accept := func() {
		for _, f := range generated {
			f.CopyValue(en.entity, next)
		}
		if hasVersion {
			version.CopyValue(en.entity, next)
		}
		en.original = s.schema.Clone(en.entity)
		en.st = session.Unchanged
		s.index(en)
	}
	return true, accept, nil
}

func scanReturning[T any](ctx context.Context, q Queryer, sql string, args []any, e *T, fields []schema.Field[T]) error {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return err
		}
		return errors.New("insert returned no row")
	}
	dest := make([]any, len(fields))
	for i, f := range fields {
		dest[i] = f.Ptr(e)
	}
	if err := rows.Scan(dest...); err != nil {
		return fmt.Errorf("scan generated columns: %w", err)
	}
	return rows.Err()
}

func (s *Set[T]) update(ctx context.Context, q Queryer, en *entry[T]) (bool, func(), error) {
	next := s.schema.Clone(en.entity)
	version, hasVersion := s.schema.Version()
	if hasVersion {
		prev := int64(0)
		if en.original != nil {
			prev, _ = version.Get(en.original).(int64)
		}
		if err := version.Set(next, prev+1); err != nil {
			return false, nil, err
		}
	}
	b := s.sess.dialect.builder().Update(s.schema.Table())
	for _, f := range s.schema.Fields() {
		if f.IsKey() || f.IsGenerated() {
			continue
		}
		b = b.Set(f.Name(), f.Get(next))
	}
	sql, args, err := b.Where(s.original(en)).ToSql()
	if err != nil {
		return false, nil, fmt.Errorf("build update: %w", err)
	}
	n, err := q.Exec(ctx, sql, args...)
	if err != nil {
		return false, nil, err
	}
	if n == 0 {
		return false, nil, nil
	}
	accept := func() {
		if hasVersion {
			version.CopyValue(en.entity, next)
		}
		en.original = s.schema.Clone(en.entity)
		en.st = session.Unchanged
	}
	return true, accept, nil
}

func (s *Set[T]) delete(ctx context.Context, q Queryer, en *entry[T]) (bool, func(), error) {
	sql, args, err := s.sess.dialect.builder().Delete(s.schema.Table()).Where(s.original(en)).ToSql()
	if err != nil {
		return false, nil, fmt.Errorf("build delete: %w", err)
	}
	n, err := q.Exec(ctx, sql, args...)
	if err != nil {
		return false, nil, err
	}
	if n == 0 {
		return false, nil, nil
	}
	accept := func() {
		en.st = session.Detached
		s.forget(en)
	}
	return true, accept, nil
}
