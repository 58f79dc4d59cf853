// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package paging

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func TestPaginate_Properties(t *testing.T) {
	for _, n := range []int{0, 1, 7, 20} {
		for _, limit := range []int{1, 3, 5, 20} {
			for _, offset := range []int{0, 2, 6, 19} {
				if offset > n {
					continue
				}
				t.Run(fmt.Sprintf("n=%d/l=%d/o=%d", n, limit, offset), func(t *testing.T) {
					p := Paginate(seq(n), limit, offset)

					want := limit
					if n-offset < want {
						want = n - offset
					}
					assert.Len(t, p.Data, want)
					assert.Equal(t, n, p.Total)
					assert.Equal(t, offset+limit < n, p.HasMore)
					if p.HasMore {
						require.NotNil(t, p.NextOffset)
						assert.Equal(t, offset+limit, *p.NextOffset)
					} else {
						assert.Nil(t, p.NextOffset)
					}
					if want > 0 {
						assert.Equal(t, offset, p.Data[0])
					}
				})
			}
		}
	}
}

func TestPaginate_NoLimitReturnsRest(t *testing.T) {
	p := Paginate(seq(10), 0, 4)
	assert.Equal(t, []int{4, 5, 6, 7, 8, 9}, p.Data)
	assert.False(t, p.HasMore)
}

func TestPaginate_OffsetPastEnd(t *testing.T) {
	p := Paginate(seq(3), 5, 10)
	assert.Empty(t, p.Data)
	assert.Equal(t, 3, p.Total)
	assert.False(t, p.HasMore)
}

func TestPaginate_HugeWindowDoesNotOverflow(t *testing.T) {
	tests := []struct {
		name   string
		limit  int
		offset int
		want   []int
	}{
		{"max limit", math.MaxInt, 1, []int{1, 2}},
		{"max offset", 2, math.MaxInt, []int{}},
		{"both max", math.MaxInt, math.MaxInt, []int{}},
		{"max limit from start", math.MaxInt, 0, []int{0, 1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p Page[int]
			require.NotPanics(t, func() { p = Paginate(seq(3), tt.limit, tt.offset) })
			assert.Equal(t, tt.want, p.Data)
			assert.Equal(t, 3, p.Total)
			assert.False(t, p.HasMore)
			assert.Nil(t, p.NextOffset)
		})
	}
}

func TestMap(t *testing.T) {
	p := Paginate([]int{1, 2, 3}, 2, 0)
	s := Map(p, func(v int) string { return fmt.Sprint(v * 10) })
	assert.Equal(t, []string{"10", "20"}, s.Data)
	assert.True(t, s.HasMore)
	assert.Equal(t, 2, *s.NextOffset)
}

func TestParseDirection(t *testing.T) {
	assert.Equal(t, Desc, ParseDirection("DESC"))
	assert.Equal(t, Asc, ParseDirection("asc"))
	assert.Equal(t, Asc, ParseDirection(""))
}
