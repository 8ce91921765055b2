package sqldb

import (
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/compozy/repokit/engine/session"
)

// Dialect captures the SQL differences between supported stores.
type Dialect struct {
	Name        string
	Placeholder squirrel.PlaceholderFormat
	// OffsetNeedsLimit is set for stores that reject OFFSET without LIMIT.
	OffsetNeedsLimit bool
}

var (
	Postgres = Dialect{Name: "postgres", Placeholder: squirrel.Dollar}
	SQLite   = Dialect{Name: "sqlite", Placeholder: squirrel.Question, OffsetNeedsLimit: true}
)

func (d Dialect) builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(d.Placeholder)
}

// window applies w to q. A negative limit means unlimited.
func (d Dialect) window(q squirrel.SelectBuilder, w session.Window) squirrel.SelectBuilder {
	if w.Limit >= 0 {
		q = q.Limit(uint64(w.Limit))
	}
	if w.Offset <= 0 {
		return q
	}
	if w.Limit < 0 && d.OffsetNeedsLimit {
		return q.Suffix(fmt.Sprintf("LIMIT -1 OFFSET %d", w.Offset))
	}
	return q.Offset(uint64(w.Offset))
}
