package sqldb

import (
	"context"
	"errors"
	"fmt"

	"github.com/compozy/repokit/engine/session"
	"github.com/compozy/repokit/pkg/logger"
)

// ErrTxOpen is returned by Begin while another session transaction is open.
var ErrTxOpen = session.ErrTxOpen

// tracked is the shape-independent view of an entry used by SaveChanges.
type tracked interface {
	state() session.State
	// write issues the entry's statement. ok is false when an update or
	// delete matched no row. accept applies store-assigned values after commit.
	write(ctx context.Context, q Queryer) (ok bool, accept func(), err error)
	public() any
	describe() string
}

// Session tracks entities of any number of schemas over one Conn. It is not
// safe for concurrent use.
type Session struct {
	conn    Conn
	dialect Dialect
	tx      *sessionTx
	sets    map[any]any
	entries []tracked
}

var _ session.Session = (*Session)(nil)

func NewSession(conn Conn, dialect Dialect) *Session {
	return &Session{conn: conn, dialect: dialect, sets: make(map[any]any)}
}

func (s *Session) Dialect() Dialect { return s.dialect }

func (s *Session) queryer() Queryer {
	if s.tx != nil {
		return s.tx.tx
	}
	return s.conn
}

// Exec runs stmt on the open transaction, or directly on the connection.
func (s *Session) Exec(ctx context.Context, stmt string, args ...any) (int64, error) {
	n, err := s.queryer().Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("sqldb: exec: %w", err)
	}
	return n, nil
}

// Begin opens a session transaction. Exec, reads and SaveChanges join it
// until it ends; entries saved inside it are accepted on Commit.
func (s *Session) Begin(ctx context.Context, level session.IsolationLevel) (session.Tx, error) {
	if s.tx != nil {
		return nil, ErrTxOpen
	}
	tx, err := s.conn.Begin(ctx, level)
	if err != nil {
		return nil, fmt.Errorf("sqldb: begin %s: %w", level, err)
	}
	s.tx = &sessionTx{sess: s, tx: tx}
	return s.tx, nil
}

// SaveChanges writes every pending entry in tracking order. Without an open
// transaction it runs in its own read-committed one. The first update or
// delete that matches no row aborts the flush with a *session.ConflictError.
func (s *Session) SaveChanges(ctx context.Context) (int, error) {
	pending := s.pending()
	if len(pending) == 0 {
		return 0, nil
	}
	if s.tx != nil {
		n, accepts, err := flush(ctx, s.tx.tx, pending)
		if err != nil {
			return 0, err
		}
		s.tx.accepts = append(s.tx.accepts, accepts...)
		return n, nil
	}
	tx, err := s.conn.Begin(ctx, session.ReadCommitted)
	if err != nil {
		return 0, fmt.Errorf("sqldb: begin: %w", err)
	}
	n, accepts, err := withTransaction(ctx, tx, pending)
	if err != nil {
		return 0, err
	}
	for _, accept := range accepts {
		accept()
	}
	logger.FromContext(ctx).Debug("Saved changes", "component", "sqldb", "rows", n)
	return n, nil
}

func withTransaction(ctx context.Context, tx Tx, pending []tracked) (n int, accepts []func(), err error) {
	log := logger.FromContext(ctx)
	defer func() {
		if p := recover(); p != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error("Failed to rollback transaction", "error", rbErr)
			}
			panic(p)
		} else if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error("Failed to rollback transaction", "error", rbErr)
			}
		} else if cErr := tx.Commit(ctx); cErr != nil {
			log.Error("Failed to commit transaction", "error", cErr)
			n, accepts, err = 0, nil, fmt.Errorf("commit transaction: %w", cErr)
		}
	}()
	return flush(ctx, tx, pending)
}

func flush(ctx context.Context, q Queryer, pending []tracked) (int, []func(), error) {
	accepts := make([]func(), 0, len(pending))
	n := 0
	for _, t := range pending {
		ok, accept, err := t.write(ctx, q)
		if err != nil {
			return 0, nil, fmt.Errorf("sqldb: save %s: %w", t.describe(), err)
		}
		if !ok {
			return 0, nil, &session.ConflictError{
				Entries: []any{t.public()},
				Err:     fmt.Errorf("%s matched no row", t.describe()),
			}
		}
		if accept != nil {
			accepts = append(accepts, accept)
		}
		n++
	}
	return n, accepts, nil
}

func (s *Session) pending() []tracked {
	var out []tracked
	for _, t := range s.entries {
		if t.state().Pending() {
			out = append(out, t)
		}
	}
	return out
}

func (s *Session) track(t tracked) { s.entries = append(s.entries, t) }

func (s *Session) forget(t tracked) {
	for i, cur := range s.entries {
		if cur == t {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return
		}
	}
}

type sessionTx struct {
	sess    *Session
	tx      Tx
	done    bool
	accepts []func()
}

func (t *sessionTx) Commit(ctx context.Context) error {
	if t.done {
		return errors.New("sqldb: transaction already finished")
	}
	t.done = true
	t.sess.tx = nil
	if err := t.tx.Commit(ctx); err != nil {
		return fmt.Errorf("sqldb: commit: %w", err)
	}
	for _, accept := range t.accepts {
		accept()
	}
	return nil
}

func (t *sessionTx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.sess.tx = nil
	if err := t.tx.Rollback(ctx); err != nil {
		return fmt.Errorf("sqldb: rollback: %w", err)
	}
	return nil
}
