package repository

import (
	"testing"

	"github.com/compozy/repokit/engine/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaginate(t *testing.T) {
	cases := []struct {
		name        string
		n, start    int
		size        int
		want        session.Window
		wantInvalid bool
	}{
		{name: "more rows than the page", n: 10, start: 2, size: 3, want: session.Window{Offset: 2, Limit: 3}},
		{name: "page exactly at the end", n: 10, start: 7, size: 3, want: session.Window{Offset: 7, Limit: -1}},
		{name: "result fits in one page", n: 3, start: 1, size: 5, want: session.All},
		{name: "result equals the page size", n: 5, start: 2, size: 5, want: session.All},
		{name: "unlimited page size", n: 10, start: 4, size: -1, want: session.All},
		{name: "tail of the result", n: 10, start: 8, size: 5, want: session.Window{Offset: 8, Limit: -1}},
		{name: "start at the end", n: 10, start: 10, size: 5, want: session.Window{Offset: 10, Limit: -1}},
		{name: "zero page size", n: 10, start: 0, size: 0, want: session.Window{Offset: 0, Limit: 0}},
		{name: "empty result", n: 0, start: 0, size: 5, want: session.All},
		{name: "negative start", n: 10, start: -1, size: 5, wantInvalid: true},
		{name: "start beyond the result", n: 10, start: 11, size: 5, wantInvalid: true},
		{name: "page size below -1", n: 10, start: 0, size: -2, wantInvalid: true},
	}
	for _, tc := range cases {
		t.Run("Should handle "+tc.name, func(t *testing.T) {
			w, err := paginate(tc.n, tc.start, tc.size)
			if tc.wantInvalid {
				require.ErrorIs(t, err, ErrInvalidPage)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, w)
		})
	}
}
