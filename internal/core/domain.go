package core

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// MaxAmount is the largest accepted expense amount, inclusive.
	MaxAmount = 1_000_000
	// MaxDescriptionLength is counted in runes.
	MaxDescriptionLength = 200

	DateLayout  = "2006-01-02"
	MonthLayout = "2006-01"
)

const (
	Food          Category = "food"
	Transport     Category = "transport"
	Entertainment Category = "entertainment"
	Utilities     Category = "utilities"
	Health        Category = "health"
	Shopping      Category = "shopping"
	Other         Category = "other"
)

type (
	Category string

	// CategoryInfo is the display metadata attached to a category tag.
	CategoryInfo struct {
		Category Category `json:"value"`
		Label    string   `json:"label"`
		Color    string   `json:"color"`
	}

	// Date is a calendar date with no time-of-day significance.
	// The wrapped time is always midnight UTC.
	Date struct {
		time.Time
	}

	Expense struct {
		ID          string    `json:"id"`
		Amount      float64   `json:"amount"`
		Description string    `json:"description"`
		Category    Category  `json:"category"`
		Date        Date      `json:"date"`
		CreatedAt   time.Time `json:"created_at"`
		UpdatedAt   time.Time `json:"updated_at"`
	}

	// ExpenseInput is the payload of a create submission.
	ExpenseInput struct {
		Amount      float64  `json:"amount"`
		Description string   `json:"description"`
		Category    Category `json:"category"`
		Date        Date     `json:"date"`
	}

	// ExpensePatch carries a partial update; nil fields are left untouched.
	ExpensePatch struct {
		Amount      *float64  `json:"amount,omitempty"`
		Description *string   `json:"description,omitempty"`
		Category    *Category `json:"category,omitempty"`
		Date        *Date     `json:"date,omitempty"`
	}
)

// Categories lists every category in display order.
var Categories = []CategoryInfo{
	{Food, "Comida", "#f97316"},
	{Transport, "Transporte", "#3b82f6"},
	{Entertainment, "Entretenimiento", "#a855f7"},
	{Utilities, "Servicios", "#eab308"},
	{Health, "Salud", "#ef4444"},
	{Shopping, "Compras", "#22c55e"},
	{Other, "Otros", "#6b7280"},
}

var categoryIndex = func() map[Category]CategoryInfo {
	m := make(map[Category]CategoryInfo, len(Categories))
	for _, c := range Categories {
		m[c.Category] = c
	}
	return m
}()

// ParseCategory accepts a tag in any case with surrounding spaces.
func ParseCategory(s string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	return c, c.IsValid()
}

func (c Category) IsValid() bool {
	_, ok := categoryIndex[c]
	return ok
}

func (c Category) Label() string {
	if info, ok := categoryIndex[c]; ok {
		return info.Label
	}
	return string(c)
}

func (c Category) Color() string {
	if info, ok := categoryIndex[c]; ok {
		return info.Color
	}
	return categoryIndex[Other].Color
}

func (c Category) String() string {
	return string(c)
}

// NewDate creates a new Date from year, month, day
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, m, d)
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return DateOf(t), nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// MonthKey returns the YYYY-MM bucket key of the date.
func (d Date) MonthKey() string {
	return d.Format(MonthLayout)
}

// Compare returns -1, 0 or +1 ordering d against o by calendar date.
func (d Date) Compare(o Date) int {
	return d.Time.Compare(o.Time)
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	// Full timestamps are accepted and truncated to their calendar date.
	if len(s) > len(DateLayout) {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return fmt.Errorf("parse date %q: %w", s, err)
		}
		*d = DateOf(t)
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Validate checks a create payload and reports every failing field.
func (in ExpenseInput) Validate() error {
	var errs ValidationErrors
	errs.add("amount", validateAmount(in.Amount))
	errs.add("description", validateDescription(in.Description))
	errs.add("category", validateCategory(in.Category))
	errs.add("date", validateDate(in.Date))
	return errs.err()
}

// Normalize trims the description and lower-cases the category tag.
func (in ExpenseInput) Normalize() ExpenseInput {
	in.Description = strings.TrimSpace(in.Description)
	in.Category = Category(strings.ToLower(strings.TrimSpace(string(in.Category))))
	return in
}

// Validate checks only the fields present in the patch.
func (p ExpensePatch) Validate() error {
	var errs ValidationErrors
	if p.Amount != nil {
		errs.add("amount", validateAmount(*p.Amount))
	}
	if p.Description != nil {
		errs.add("description", validateDescription(*p.Description))
	}
	if p.Category != nil {
		errs.add("category", validateCategory(*p.Category))
	}
	if p.Date != nil {
		errs.add("date", validateDate(*p.Date))
	}
	return errs.err()
}

func (p ExpensePatch) Normalize() ExpensePatch {
	if p.Description != nil {
		d := strings.TrimSpace(*p.Description)
		p.Description = &d
	}
	if p.Category != nil {
		c := Category(strings.ToLower(strings.TrimSpace(string(*p.Category))))
		p.Category = &c
	}
	return p
}

// IsEmpty reports whether the patch changes nothing.
func (p ExpensePatch) IsEmpty() bool {
	return p.Amount == nil && p.Description == nil && p.Category == nil && p.Date == nil
}

// Apply merges the patch into e. Timestamps are left to the store.
func (p ExpensePatch) Apply(e Expense) Expense {
	if p.Amount != nil {
		e.Amount = *p.Amount
	}
	if p.Description != nil {
		e.Description = *p.Description
	}
	if p.Category != nil {
		e.Category = *p.Category
	}
	if p.Date != nil {
		e.Date = *p.Date
	}
	return e
}

// Input returns the user-editable fields of e.
func (e Expense) Input() ExpenseInput {
	return ExpenseInput{
		Amount:      e.Amount,
		Description: e.Description,
		Category:    e.Category,
		Date:        e.Date,
	}
}

func validateAmount(a float64) string {
	switch {
	case !(a > 0):
		return "Amount must be positive"
	case a > MaxAmount:
		return "Amount cannot exceed 1,000,000"
	}
	return ""
}

func validateDescription(s string) string {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return "Description is required"
	case utf8.RuneCountInString(s) > MaxDescriptionLength:
		return fmt.Sprintf("Description cannot exceed %d characters", MaxDescriptionLength)
	}
	return ""
}

func validateCategory(c Category) string {
	if _, ok := ParseCategory(string(c)); !ok {
		return "Please select a category"
	}
	return ""
}

func validateDate(d Date) string {
	if d.IsZero() {
		return "Date is required"
	}
	return ""
}
