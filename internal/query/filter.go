// Package query filters, sorts and paginates expense snapshots.
//
// Every function here is pure: the input slice is read, never reordered or
// modified, and results are freshly allocated.
package query

import (
	"fmt"
	"strconv"
	"strings"

	"expenses/internal/core"
)

// Filters holds optional predicates for expense queries.
// Pointer fields distinguish "not set" from zero values; an empty Search
// means no text constraint.
type Filters struct {
	Category  *core.Category `json:"category,omitempty"`
	StartDate *core.Date     `json:"start_date,omitempty"` // inclusive
	EndDate   *core.Date     `json:"end_date,omitempty"`   // inclusive
	MinAmount *float64       `json:"min_amount,omitempty"` // inclusive
	MaxAmount *float64       `json:"max_amount,omitempty"` // inclusive
	Search    string         `json:"search,omitempty"`     // case-insensitive substring of description
}

// Filter field names, shared by Clear and the HTTP parameter names.
const (
	FieldCategory  = "category"
	FieldStartDate = "start_date"
	FieldEndDate   = "end_date"
	FieldMinAmount = "min_amount"
	FieldMaxAmount = "max_amount"
	FieldSearch    = "search"
)

// IsEmpty reports whether no predicate is active.
func (f Filters) IsEmpty() bool {
	return f.Category == nil && f.StartDate == nil && f.EndDate == nil &&
		f.MinAmount == nil && f.MaxAmount == nil && f.Search == ""
}

// Match reports whether e satisfies every active predicate.
func (f Filters) Match(e core.Expense) bool {
	if f.Category != nil && e.Category != *f.Category {
		return false
	}
	if f.StartDate != nil && e.Date.Compare(*f.StartDate) < 0 {
		return false
	}
	if f.EndDate != nil && e.Date.Compare(*f.EndDate) > 0 {
		return false
	}
	if f.MinAmount != nil && e.Amount < *f.MinAmount {
		return false
	}
	if f.MaxAmount != nil && e.Amount > *f.MaxAmount {
		return false
	}
	if f.Search != "" && !strings.Contains(strings.ToLower(e.Description), strings.ToLower(f.Search)) {
		return false
	}
	return true
}

// Merge returns f with every field set in o taking precedence.
func (f Filters) Merge(o Filters) Filters {
	if o.Category != nil {
		f.Category = o.Category
	}
	if o.StartDate != nil {
		f.StartDate = o.StartDate
	}
	if o.EndDate != nil {
		f.EndDate = o.EndDate
	}
	if o.MinAmount != nil {
		f.MinAmount = o.MinAmount
	}
	if o.MaxAmount != nil {
		f.MaxAmount = o.MaxAmount
	}
	if o.Search != "" {
		f.Search = o.Search
	}
	return f
}

// Clear unsets the named fields. Unknown names are ignored.
func (f Filters) Clear(fields ...string) Filters {
	for _, name := range fields {
		switch name {
		case FieldCategory:
			f.Category = nil
		case FieldStartDate:
			f.StartDate = nil
		case FieldEndDate:
			f.EndDate = nil
		case FieldMinAmount:
			f.MinAmount = nil
		case FieldMaxAmount:
			f.MaxAmount = nil
		case FieldSearch:
			f.Search = ""
		}
	}
	return f
}

// Key is a stable textual form of the active predicates, used as a cache key.
func (f Filters) Key() string {
	var b strings.Builder
	if f.Category != nil {
		fmt.Fprintf(&b, "c=%s;", *f.Category)
	}
	if f.StartDate != nil {
		fmt.Fprintf(&b, "s=%s;", f.StartDate)
	}
	if f.EndDate != nil {
		fmt.Fprintf(&b, "e=%s;", f.EndDate)
	}
	if f.MinAmount != nil {
		b.WriteString("min=" + strconv.FormatFloat(*f.MinAmount, 'g', -1, 64) + ";")
	}
	if f.MaxAmount != nil {
		b.WriteString("max=" + strconv.FormatFloat(*f.MaxAmount, 'g', -1, 64) + ";")
	}
	if f.Search != "" {
		b.WriteString("q=" + strconv.Quote(f.Search) + ";")
	}
	return b.String()
}

// Filter returns the records of all that satisfy f, in their original order.
func Filter(all []core.Expense, f Filters) []core.Expense {
	out := make([]core.Expense, 0, len(all))
	for _, e := range all {
		if f.Match(e) {
			out = append(out, e)
		}
	}
	return out
}
