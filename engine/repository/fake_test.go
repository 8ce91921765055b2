package repository

import (
	"context"
	"errors"

	"github.com/compozy/repokit/engine/schema"
	"github.com/compozy/repokit/engine/session"
)

type widget struct {
	ID      int64
	Name    string
	Qty     *int
	Version int64
}

var widgetSchema = schema.MustNew("widgets",
	schema.Key("id", func(w *widget) *int64 { return &w.ID }).AsGenerated(),
	schema.Col("name", func(w *widget) *string { return &w.Name }),
	schema.Col("qty", func(w *widget) **int { return &w.Qty }),
	schema.Version("version", func(w *widget) *int64 { return &w.Version }),
)

type fakeEntry struct {
	set      *fakeSet
	entity   *widget
	state    session.State
	original *widget
}

func (e *fakeEntry) Entity() *widget {
	return e.entity
}

func (e *fakeEntry) State() session.State {
	return e.state
}

func (e *fakeEntry) SetState(s session.State) {
	e.state = s
}

func (e *fakeEntry) OriginalValues() *widget {
	return widgetSchema.Clone(e.original)
}

func (e *fakeEntry) SetOriginalValues(v *widget) {
	e.original = widgetSchema.Clone(v)
}

func (e *fakeEntry) SetCurrentValues(v *widget) { widgetSchema.CopyValues(e.entity, v) }

func (e *fakeEntry) DatabaseValues(context.Context) (*widget, error) {
	if e.set.dbErr != nil {
		return nil, e.set.dbErr
	}
	for _, row := range e.set.rows {
		if row.ID == e.entity.ID {
			return widgetSchema.Clone(row), nil
		}
	}
	return nil, nil
}

// fakeSet keeps rows in memory and records every staging call.
type fakeSet struct {
	rows     []*widget
	entries  []*fakeEntry
	stageErr error
	listErr  error
	dbErr    error
	raw      []*widget
	windows  []session.Window
	staged   int
	nextID   int64
}

var _ session.Set[widget] = (*fakeSet)(nil)

func (s *fakeSet) Schema() *schema.Schema[widget] { return widgetSchema }

func (s *fakeSet) match(pred schema.Predicate[widget]) ([]*widget, error) {
	var out []*widget
	for _, row := range s.rows {
		ok, err := schema.MatchAll(widgetSchema, pred, row)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, row)
		}
	}
	return out, nil
}

func (s *fakeSet) Count(_ context.Context, pred schema.Predicate[widget]) (int, error) {
	rows, err := s.match(pred)
	return len(rows), err
}

func (s *fakeSet) List(_ context.Context, pred schema.Predicate[widget], w session.Window) ([]*widget, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	s.windows = append(s.windows, w)
	rows, err := s.match(pred)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	start := min(w.Offset, len(rows))
	end := len(rows)
	if w.Limit >= 0 {
		end = min(start+w.Limit, len(rows))
	}
	return rows[start:end], nil
}

func (s *fakeSet) First(ctx context.Context, pred schema.Predicate[widget]) (*widget, error) {
	rows, err := s.List(ctx, pred, session.Window{Limit: 1})
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

func (s *fakeSet) QueryRaw(context.Context, string, ...any) ([]*widget, error) {
	return s.raw, nil
}

func (s *fakeSet) Local() []session.Entry[widget] {
	var out []session.Entry[widget]
	for _, e := range s.entries {
		if e.state != session.Detached {
			out = append(out, e)
		}
	}
	return out
}

func (s *fakeSet) find(w *widget) *fakeEntry {
	for _, e := range s.entries {
		if e.entity == w {
			return e
		}
	}
	return nil
}

func (s *fakeSet) stage(w *widget, st session.State) (session.Entry[widget], error) {
	s.staged++
	if s.stageErr != nil {
		return nil, s.stageErr
	}
	e := s.find(w)
	if e == nil {
		e = &fakeEntry{set: s, entity: w, original: widgetSchema.Clone(w)}
		s.entries = append(s.entries, e)
	}
	if e.state != session.Added {
		e.state = st
	}
	return e, nil
}

func (s *fakeSet) Add(w *widget) (session.Entry[widget], error) {
	return s.stage(w, session.Added)
}

func (s *fakeSet) Update(w *widget) (session.Entry[widget], error) {
	return s.stage(w, session.Modified)
}

func (s *fakeSet) Remove(w *widget) (session.Entry[widget], error) {
	return s.stage(w, session.Deleted)
}

func (s *fakeSet) Entry(w *widget) session.Entry[widget] {
	if e := s.find(w); e != nil {
		return e
	}
	e := &fakeEntry{set: s, entity: w, state: session.Detached}
	s.entries = append(s.entries, e)
	return e
}

// accept applies a successful save to the tracked entries.
func (s *fakeSet) accept() int {
	n := 0
	for _, e := range s.entries {
		switch e.state {
		case session.Added:
			s.nextID++
			e.entity.ID = s.nextID
			e.entity.Version = 1
			s.rows = append(s.rows, widgetSchema.Clone(e.entity))
			e.state = session.Unchanged
		case session.Modified:
			e.entity.Version++
			e.state = session.Unchanged
		case session.Deleted:
			e.state = session.Detached
		default:
			continue
		}
		e.original = widgetSchema.Clone(e.entity)
		n++
	}
	return n
}

type fakeTx struct {
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Commit(context.Context) error {
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

// fakeSession fails with saveErr, or raises conflicts on the entry of
// conflictOn while conflicts is non-zero (negative means forever), and
// otherwise accepts the set's pending entries.
type fakeSession struct {
	set        *fakeSet
	saveErr    error
	conflictOn *widget
	conflicts  int
	saves      int
	execErr    error
	beginErr   error
	tx         *fakeTx
	level      session.IsolationLevel
}

var _ session.Session = (*fakeSession)(nil)

func (s *fakeSession) SaveChanges(context.Context) (int, error) {
	s.saves++
	if s.saveErr != nil {
		return 0, s.saveErr
	}
	if s.conflictOn != nil && s.conflicts != 0 {
		if s.conflicts > 0 {
			s.conflicts--
		}
		return 0, &session.ConflictError{Entries: []any{session.Entry[widget](s.set.find(s.conflictOn))}}
	}
	return s.set.accept(), nil
}

func (s *fakeSession) Begin(_ context.Context, level session.IsolationLevel) (session.Tx, error) {
	if s.beginErr != nil {
		return nil, s.beginErr
	}
	s.level = level
	s.tx = &fakeTx{}
	return s.tx, nil
}

func (s *fakeSession) Exec(context.Context, string, ...any) (int64, error) {
	if s.execErr != nil {
		return 0, s.execErr
	}
	return 3, nil
}

var errDisk = errors.New("disk failure")
