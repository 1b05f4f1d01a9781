package query

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"expenses/internal/core"
)

// SortField represents a field that can be sorted on.
type SortField string

const (
	SortByDate        SortField = "date"
	SortByAmount      SortField = "amount"
	SortByCategory    SortField = "category"
	SortByDescription SortField = "description"
)

// SortDirection represents sort order.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// Sort selects a single sort key. The zero value means DefaultSort.
type Sort struct {
	Field     SortField     `json:"field"`
	Direction SortDirection `json:"direction"`
}

// DefaultSort returns the default sort (date descending, newest first).
func DefaultSort() Sort {
	return Sort{Field: SortByDate, Direction: SortDesc}
}

// ParseSort validates a field and direction pair. Empty strings yield the
// default field and ascending order respectively; both empty yield DefaultSort.
func ParseSort(field, direction string) (Sort, error) {
	field = strings.ToLower(strings.TrimSpace(field))
	direction = strings.ToLower(strings.TrimSpace(direction))
	if field == "" && direction == "" {
		return DefaultSort(), nil
	}
	s := Sort{Field: SortField(field), Direction: SortDirection(direction)}
	if s.Field == "" {
		s.Field = SortByDate
	}
	if s.Direction == "" {
		s.Direction = SortAsc
	}
	if !s.Field.IsValid() {
		return Sort{}, fmt.Errorf("invalid sort field %q", field)
	}
	if !s.Direction.IsValid() {
		return Sort{}, fmt.Errorf("invalid sort direction %q", direction)
	}
	return s, nil
}

func (f SortField) IsValid() bool {
	switch f {
	case SortByDate, SortByAmount, SortByCategory, SortByDescription:
		return true
	}
	return false
}

func (d SortDirection) IsValid() bool {
	return d == SortAsc || d == SortDesc
}

// Reverse flips the direction.
func (d SortDirection) Reverse() SortDirection {
	if d == SortDesc {
		return SortAsc
	}
	return SortDesc
}

// Normalize fills in defaults for unset or unknown parts.
func (s Sort) Normalize() Sort {
	if s.Field == "" && s.Direction == "" {
		return DefaultSort()
	}
	if !s.Field.IsValid() {
		s.Field = SortByDate
	}
	if !s.Direction.IsValid() {
		s.Direction = SortAsc
	}
	return s
}

// String returns the sort options as a string (e.g., "date:desc").
func (s Sort) String() string {
	s = s.Normalize()
	return string(s.Field) + ":" + string(s.Direction)
}

// compareFunc returns the comparator for s. Descending negates it.
func (s Sort) compareFunc(locale string) func(a, b core.Expense) int {
	s = s.Normalize()
	var by func(a, b core.Expense) int
	switch s.Field {
	case SortByAmount:
		by = func(a, b core.Expense) int { return cmp.Compare(a.Amount, b.Amount) }
	case SortByCategory:
		by = func(a, b core.Expense) int { return strings.Compare(string(a.Category), string(b.Category)) }
	case SortByDescription:
		tag, err := language.Parse(locale)
		if err != nil {
			tag = language.AmericanEnglish
		}
		// Collators keep internal buffers; one per sort call.
		c := collate.New(tag)
		by = func(a, b core.Expense) int { return c.CompareString(a.Description, b.Description) }
	default:
		by = func(a, b core.Expense) int { return a.Date.Compare(b.Date) }
	}
	if s.Direction == SortDesc {
		return func(a, b core.Expense) int { return -by(a, b) }
	}
	return by
}

// SortExpenses returns a sorted copy of all. Equal keys keep their input order.
func SortExpenses(all []core.Expense, s Sort, opts ...Option) []core.Expense {
	o := newOptions(opts)
	out := slices.Clone(all)
	sortInPlace(out, s, o.locale)
	return out
}

func sortInPlace(items []core.Expense, s Sort, locale string) {
	slices.SortStableFunc(items, s.compareFunc(locale))
}
