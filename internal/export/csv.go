// Package export writes expense lists as CSV or XLSX and reads them back
// from CSV.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"expenses/internal/core"
)

// Header is the CSV header written by WriteCSV.
const Header = "id,date,category,description,amount,created_at,updated_at"

var columns = strings.Split(Header, ",")

// WriteCSV writes es (including header).
func WriteCSV(w io.Writer, es []core.Expense) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(columns); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for i, e := range es {
		if err := cw.Write(MarshalRow(e)); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// MarshalRow converts an expense to CSV fields in Header order.
func MarshalRow(e core.Expense) []string {
	return []string{
		e.ID,
		e.Date.String(),
		string(e.Category),
		e.Description,
		decimal.NewFromFloat(e.Amount).String(),
		formatTime(e.CreatedAt),
		formatTime(e.UpdatedAt),
	}
}

// ReadCSV reads expenses from r. The first row names the columns; they may
// appear in any order and only date, category, description and amount are
// required per row. Every row is validated.
func ReadCSV(r io.Reader) ([]core.Expense, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}

	var out []core.Expense
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		e, err := unmarshalRow(rec, index)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		out = append(out, e)
	}
	return out, nil
}

func unmarshalRow(rec []string, index map[string]int) (core.Expense, error) {
	get := func(name string) string {
		i, ok := index[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var e core.Expense
	e.ID = get("id")
	e.Description = get("description")
	e.Category = core.Category(get("category"))

	if v := get("date"); v != "" {
		d, err := core.ParseDate(v)
		if err != nil {
			return e, err
		}
		e.Date = d
	}
	if v := get("amount"); v != "" {
		a, err := core.ParseAmount(v)
		if err != nil {
			return e, err
		}
		e.Amount = a
	}
	var err error
	if e.CreatedAt, err = parseTime(get("created_at")); err != nil {
		return e, fmt.Errorf("created_at: %w", err)
	}
	if e.UpdatedAt, err = parseTime(get("updated_at")); err != nil {
		return e, fmt.Errorf("updated_at: %w", err)
	}

	in := e.Input().Normalize()
	if err := in.Validate(); err != nil {
		return e, err
	}
	e.Description, e.Category = in.Description, in.Category
	return e, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
