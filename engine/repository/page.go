package repository

import (
	"fmt"

	"github.com/compozy/repokit/engine/session"
)

func checkPageArgs(pageStart, pageSize int) error {
	if pageStart < 0 {
		return fmt.Errorf("%w: page start %d is negative", ErrInvalidPage, pageStart)
	}
	if pageSize < -1 {
		return fmt.Errorf("%w: page size %d is below -1", ErrInvalidPage, pageSize)
	}
	return nil
}

// paginate chooses the window for a result of n rows, in priority order:
//
//  1. n > pageStart+pageSize: pageSize rows from pageStart;
//  2. n <= pageSize or pageSize == -1: every row;
//  3. otherwise: the rows from pageStart to the end.
//
// pageSize -1 always selects every row. pageStart must lie in [0, n].
func paginate(n, pageStart, pageSize int) (session.Window, error) {
	if err := checkPageArgs(pageStart, pageSize); err != nil {
		return session.Window{}, err
	}
	if pageStart > n {
		return session.Window{}, fmt.Errorf("%w: page start %d beyond %d results", ErrInvalidPage, pageStart, n)
	}
	switch {
	case pageSize == -1 || n <= pageSize:
		return session.All, nil
	case n > pageStart+pageSize:
		return session.Window{Offset: pageStart, Limit: pageSize}, nil
	default:
		return session.Window{Offset: pageStart, Limit: -1}, nil
	}
}
