package uistate

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expenses/internal/core"
	"expenses/internal/query"
)

func ptr[T any](v T) *T { return &v }

func TestInitial(t *testing.T) {
	s := Initial(0)
	assert.True(t, s.SidebarOpen)
	assert.Equal(t, query.DefaultSort(), s.Sort)
	assert.Equal(t, 1, s.Page)
	assert.Equal(t, query.DefaultPageSize, s.PageSize)
	assert.Equal(t, 50, Initial(50).PageSize)
}

func TestSetSortToggles(t *testing.T) {
	tests := []struct {
		name string
		cur  query.Sort
		act  Action
		want query.Sort
	}{
		{"new field sorts ascending", query.DefaultSort(),
			Action{Type: SetSort, Field: query.SortByAmount},
			query.Sort{Field: query.SortByAmount, Direction: query.SortAsc}},
		{"same ascending field flips", query.Sort{Field: query.SortByAmount, Direction: query.SortAsc},
			Action{Type: SetSort, Field: query.SortByAmount},
			query.Sort{Field: query.SortByAmount, Direction: query.SortDesc}},
		{"same descending field goes ascending", query.DefaultSort(),
			Action{Type: SetSort, Field: query.SortByDate},
			query.Sort{Field: query.SortByDate, Direction: query.SortAsc}},
		{"explicit direction wins", query.Sort{Field: query.SortByAmount, Direction: query.SortAsc},
			Action{Type: SetSort, Field: query.SortByAmount, Direction: query.SortAsc},
			query.Sort{Field: query.SortByAmount, Direction: query.SortAsc}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Initial(10)
			s.Sort = tt.cur
			s.Page = 3
			got, err := Reduce(s, tt.act)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Sort)
			assert.Equal(t, 1, got.Page)
			assert.Equal(t, 3, s.Page, "input state must not change")
		})
	}

	_, err := Reduce(Initial(10), Action{Type: SetSort, Field: "colour"})
	assert.ErrorIs(t, err, ErrInvalidAction)
}

func TestFilters(t *testing.T) {
	s := Initial(10)
	s, err := Reduce(s, Action{Type: SetFilters, Filters: query.Filters{Category: ptr(core.Food)}})
	require.NoError(t, err)
	s, err = Reduce(s, Action{Type: SetFilters, Filters: query.Filters{MinAmount: ptr(5.0)}})
	require.NoError(t, err)
	require.NotNil(t, s.Filters.Category)
	assert.Equal(t, core.Food, *s.Filters.Category)
	assert.Equal(t, 5.0, *s.Filters.MinAmount)

	s, err = Reduce(s, Action{Type: ClearFilters, Fields: []string{query.FieldCategory}})
	require.NoError(t, err)
	assert.Nil(t, s.Filters.Category)
	assert.NotNil(t, s.Filters.MinAmount)

	s, err = Reduce(s, Action{Type: ResetFilters})
	require.NoError(t, err)
	assert.True(t, s.Filters.IsEmpty())
}

func TestPagination(t *testing.T) {
	s := Initial(10)
	s, err := Reduce(s, Action{Type: SetPage, Page: 4})
	require.NoError(t, err)
	assert.Equal(t, 4, s.Page)

	_, err = Reduce(s, Action{Type: SetPage, Page: 0})
	assert.ErrorIs(t, err, ErrInvalidAction)

	_, err = Reduce(s, Action{Type: SetPageSize, PageSize: 25})
	assert.ErrorIs(t, err, ErrInvalidAction)

	s2, err := Reduce(s, Action{Type: SetPageSize, PageSize: 20})
	require.NoError(t, err)
	assert.Equal(t, 20, s2.PageSize)
	assert.Equal(t, 1, s2.Page)

	clamped, err := Reduce(s, Action{Type: ResultsChanged, TotalItems: 25})
	require.NoError(t, err)
	assert.Equal(t, 3, clamped.Page)

	empty, err := Reduce(s, Action{Type: ResultsChanged, TotalItems: 0})
	require.NoError(t, err)
	assert.Equal(t, 1, empty.Page)
}

func TestModalAndSidebar(t *testing.T) {
	s := Initial(10)
	s, err := Reduce(s, Action{Type: OpenDeleteModal, ExpenseID: "e-1"})
	require.NoError(t, err)
	assert.True(t, s.DeleteModalOpen)
	require.NotNil(t, s.ExpenseToDelete)
	assert.Equal(t, "e-1", *s.ExpenseToDelete)

	s, err = Reduce(s, Action{Type: CloseDeleteModal})
	require.NoError(t, err)
	assert.False(t, s.DeleteModalOpen)
	assert.Nil(t, s.ExpenseToDelete)

	_, err = Reduce(s, Action{Type: OpenDeleteModal})
	assert.ErrorIs(t, err, ErrInvalidAction)

	s, _ = Reduce(s, Action{Type: ToggleSidebar})
	assert.False(t, s.SidebarOpen)
	s, _ = Reduce(s, Action{Type: SetSidebar, Open: true})
	assert.True(t, s.SidebarOpen)

	_, err = Reduce(s, Action{Type: "explode"})
	assert.ErrorIs(t, err, ErrInvalidAction)
}

func TestStateJSON(t *testing.T) {
	s := Initial(10)
	s.Filters.StartDate = ptr(core.NewDate(2024, 1, 1))
	body, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"start_date":"2024-01-01"`)
	assert.Contains(t, string(body), `"sort":{"field":"date","direction":"desc"}`)

	var back State
	require.NoError(t, json.Unmarshal(body, &back))
	assert.Equal(t, s.Filters.Key(), back.Filters.Key())
	assert.Equal(t, s.Sort, back.Sort)
}
