package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

func TestPaginateSliceLength(t *testing.T) {
	for _, total := range []int{0, 1, 9, 10, 11, 25, 100} {
		for _, size := range PageSizeOptions {
			pages := TotalPages(total, size)
			for page := 1; page <= max(pages, 1); page++ {
				p := Paginate(seq(total), page, size)
				assert.Equal(t, SliceLen(total, page, size), len(p.Items), "total=%d size=%d page=%d", total, size, page)
				assert.Equal(t, page, p.Page)
			}
		}
	}
}

func TestPaginateWindow(t *testing.T) {
	p := Paginate(seq(25), 3, 10)
	assert.Equal(t, []int{21, 22, 23, 24, 25}, p.Items)
	assert.Equal(t, 3, p.TotalPages)
	assert.Equal(t, 25, p.TotalItems)
}

func TestPaginateClamps(t *testing.T) {
	tests := []struct {
		name                      string
		total, page, size, wantPg int
	}{
		{"past last page", 25, 9, 10, 3},
		{"empty result", 0, 4, 10, 1},
		{"below one", 25, 0, 10, 1},
		{"negative", 25, -2, 10, 1},
		{"exact last", 20, 2, 10, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Paginate(seq(tt.total), tt.page, tt.size)
			assert.Equal(t, tt.wantPg, p.Page)
			assert.Equal(t, tt.wantPg, ClampPage(tt.page, tt.total, tt.size))
		})
	}
}

func TestPaginateShrinkingResultReclamps(t *testing.T) {
	page := 5
	p := Paginate(seq(50), page, 10)
	assert.Equal(t, 5, p.Page)

	// Filters narrowed the result below the current page's start index.
	p = Paginate(seq(12), p.Page, 10)
	assert.Equal(t, 2, p.Page)
	assert.Equal(t, []int{11, 12}, p.Items)
}

func TestPaginateDefaultsAndCopies(t *testing.T) {
	items := seq(15)
	p := Paginate(items, 1, 0)
	assert.Equal(t, DefaultPageSize, p.PageSize)
	p.Items[0] = 99
	assert.Equal(t, 1, items[0])

	empty := Paginate([]int(nil), 1, 10)
	assert.NotNil(t, empty.Items)
	assert.Equal(t, 0, empty.TotalPages)
}

func TestIsValidPageSize(t *testing.T) {
	assert.True(t, IsValidPageSize(20))
	assert.False(t, IsValidPageSize(15))
}
