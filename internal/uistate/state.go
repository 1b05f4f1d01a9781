// Package uistate holds the serializable view state of the expenses screen
// and the pure reducer that transitions it.
package uistate

import (
	"errors"
	"fmt"

	"expenses/internal/query"
)

type ActionType string

const (
	SetFilters       ActionType = "set_filters"
	ClearFilters     ActionType = "clear_filters"
	ResetFilters     ActionType = "reset_filters"
	SetSort          ActionType = "set_sort"
	SetPage          ActionType = "set_page"
	SetPageSize      ActionType = "set_page_size"
	OpenDeleteModal  ActionType = "open_delete_modal"
	CloseDeleteModal ActionType = "close_delete_modal"
	ToggleSidebar    ActionType = "toggle_sidebar"
	SetSidebar       ActionType = "set_sidebar"
	ResultsChanged   ActionType = "results_changed"
)

var ErrInvalidAction = errors.New("invalid action")

type State struct {
	SidebarOpen     bool          `json:"sidebar_open"`
	Filters         query.Filters `json:"filters"`
	Sort            query.Sort    `json:"sort"`
	Page            int           `json:"page"`
	PageSize        int           `json:"page_size"`
	DeleteModalOpen bool          `json:"delete_modal_open"`
	ExpenseToDelete *string       `json:"expense_to_delete"`
}

// Action is a tagged union; Type selects which of the other fields are read.
type Action struct {
	Type       ActionType          `json:"type"`
	Filters    query.Filters       `json:"filters"`
	Fields     []string            `json:"fields,omitempty"`
	Field      query.SortField     `json:"field,omitempty"`
	Direction  query.SortDirection `json:"direction,omitempty"`
	Page       int                 `json:"page,omitempty"`
	PageSize   int                 `json:"page_size,omitempty"`
	ExpenseID  string              `json:"expense_id,omitempty"`
	Open       bool                `json:"open,omitempty"`
	TotalItems int                 `json:"total_items,omitempty"`
}

// Initial is the state of a fresh screen.
func Initial(pageSize int) State {
	if !query.IsValidPageSize(pageSize) {
		pageSize = query.DefaultPageSize
	}
	return State{
		SidebarOpen: true,
		Sort:        query.DefaultSort(),
		Page:        1,
		PageSize:    pageSize,
	}
}

// Reduce returns the state after a. s is not modified. Any change to the
// result set (filters, sort or page size) goes back to page 1.
func Reduce(s State, a Action) (State, error) {
	switch a.Type {
	case SetFilters:
		s.Filters = s.Filters.Merge(a.Filters)
		s.Page = 1
	case ClearFilters:
		s.Filters = s.Filters.Clear(a.Fields...)
		s.Page = 1
	case ResetFilters:
		s.Filters = query.Filters{}
		s.Page = 1
	case SetSort:
		next, err := nextSort(s.Sort, a.Field, a.Direction)
		if err != nil {
			return s, err
		}
		s.Sort = next
		s.Page = 1
	case SetPage:
		if a.Page < 1 {
			return s, fmt.Errorf("%w: page must be at least 1", ErrInvalidAction)
		}
		s.Page = a.Page
	case SetPageSize:
		if !query.IsValidPageSize(a.PageSize) {
			return s, fmt.Errorf("%w: page size %d is not one of %v", ErrInvalidAction, a.PageSize, query.PageSizeOptions)
		}
		s.PageSize = a.PageSize
		s.Page = 1
	case OpenDeleteModal:
		if a.ExpenseID == "" {
			return s, fmt.Errorf("%w: expense_id is required", ErrInvalidAction)
		}
		id := a.ExpenseID
		s.DeleteModalOpen = true
		s.ExpenseToDelete = &id
	case CloseDeleteModal:
		s.DeleteModalOpen = false
		s.ExpenseToDelete = nil
	case ToggleSidebar:
		s.SidebarOpen = !s.SidebarOpen
	case SetSidebar:
		s.SidebarOpen = a.Open
	case ResultsChanged:
		s.Page = query.ClampPage(s.Page, a.TotalItems, s.PageSize)
	default:
		return s, fmt.Errorf("%w: unknown type %q", ErrInvalidAction, a.Type)
	}
	return s, nil
}

// nextSort picks the explicit direction when given. Otherwise clicking the
// active ascending field flips it to descending and anything else sorts
// ascending.
func nextSort(cur query.Sort, field query.SortField, dir query.SortDirection) (query.Sort, error) {
	if !field.IsValid() {
		return cur, fmt.Errorf("%w: sort field %q", ErrInvalidAction, field)
	}
	if dir != "" {
		if !dir.IsValid() {
			return cur, fmt.Errorf("%w: sort direction %q", ErrInvalidAction, dir)
		}
		return query.Sort{Field: field, Direction: dir}, nil
	}
	cur = cur.Normalize()
	if cur.Field == field && cur.Direction == query.SortAsc {
		return query.Sort{Field: field, Direction: query.SortDesc}, nil
	}
	return query.Sort{Field: field, Direction: query.SortAsc}, nil
}
