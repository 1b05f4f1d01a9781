// Package http provides HTTP server and handler implementations.
//
// This file implements parsing of query parameters and request bodies into
// domain values. Problems are reported per field as core.ValidationErrors.

package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"expenses/internal/core"
	"expenses/internal/query"
)

const (
	maxBodyBytes    = 1 << 20
	maxRecentLimit  = 100
	maxMonthsWindow = 120
)

var errEmptyBody = errors.New("request body is empty")

// MonthParams holds parsed year/month values from request parameters.
type MonthParams struct {
	Year  int
	Month time.Month
}

// ParseMonthParams extracts year and month, defaulting to now's. Values
// outside 1..9999 and 1..12 are reported.
func ParseMonthParams(q url.Values, now time.Time) (MonthParams, core.ValidationErrors) {
	var errs core.ValidationErrors
	params := MonthParams{Year: now.Year(), Month: now.Month()}

	if v := strings.TrimSpace(q.Get("year")); v != "" {
		if y, err := strconv.Atoi(v); err == nil && y >= 1 && y <= 9999 {
			params.Year = y
		} else {
			errs.Add("year", "Year must be a number between 1 and 9999")
		}
	}
	if v := strings.TrimSpace(q.Get("month")); v != "" {
		if m, err := strconv.Atoi(v); err == nil && m >= 1 && m <= 12 {
			params.Month = time.Month(m)
		} else {
			errs.Add("month", "Month must be a number between 1 and 12")
		}
	}
	return params, errs
}

// ParseFilters reads the filter parameters. Empty values are unset.
func ParseFilters(q url.Values) (query.Filters, core.ValidationErrors) {
	var (
		f    query.Filters
		errs core.ValidationErrors
	)

	if v := strings.TrimSpace(q.Get(query.FieldCategory)); v != "" {
		if c, ok := core.ParseCategory(v); ok {
			f.Category = &c
		} else {
			errs.Add(query.FieldCategory, "Please select a category")
		}
	}
	for _, field := range []string{query.FieldStartDate, query.FieldEndDate} {
		v := strings.TrimSpace(q.Get(field))
		if v == "" {
			continue
		}
		d, err := core.ParseDate(v)
		if err != nil {
			errs.Add(field, "Date must be YYYY-MM-DD")
			continue
		}
		if field == query.FieldStartDate {
			f.StartDate = &d
		} else {
			f.EndDate = &d
		}
	}
	for _, field := range []string{query.FieldMinAmount, query.FieldMaxAmount} {
		v := strings.TrimSpace(q.Get(field))
		if v == "" {
			continue
		}
		a, err := core.ParseAmount(v)
		if err != nil {
			errs.Add(field, "Amount must be a number")
			continue
		}
		if field == query.FieldMinAmount {
			f.MinAmount = &a
		} else {
			f.MaxAmount = &a
		}
	}
	// The term is matched as typed: " bill" and "bill" differ.
	f.Search = q.Get(query.FieldSearch)

	return f, errs
}

// ParseSortParams reads sort and dir.
func ParseSortParams(q url.Values) (query.Sort, core.ValidationErrors) {
	var errs core.ValidationErrors
	s, err := query.ParseSort(q.Get("sort"), q.Get("dir"))
	if err != nil {
		errs.Add("sort", err.Error())
		return query.DefaultSort(), errs
	}
	return s, errs
}

// ParsePageParams reads page and page_size. A missing page_size is 0, which
// the service replaces with its default.
func ParsePageParams(q url.Values) (page, pageSize int, errs core.ValidationErrors) {
	page = 1
	if v := strings.TrimSpace(q.Get("page")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			errs.Add("page", "Page must be a positive number")
		} else {
			page = n
		}
	}
	if v := strings.TrimSpace(q.Get("page_size")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || !query.IsValidPageSize(n) {
			errs.Add("page_size", fmt.Sprintf("Page size must be one of %v", query.PageSizeOptions))
		} else {
			pageSize = n
		}
	}
	return page, pageSize, errs
}

// ParseBoundedInt reads a positive integer capped at max; def when absent.
func ParseBoundedInt(q url.Values, key string, def, max int) (int, core.ValidationErrors) {
	var errs core.ValidationErrors
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 || n > max {
		errs.Add(key, fmt.Sprintf("Must be a number between 1 and %d", max))
		return def, errs
	}
	return n, nil
}

// ParseAsOf reads as_of as a calendar date. The zero time means absent.
func ParseAsOf(q url.Values) (time.Time, core.ValidationErrors) {
	var errs core.ValidationErrors
	v := strings.TrimSpace(q.Get("as_of"))
	if v == "" {
		return time.Time{}, nil
	}
	d, err := core.ParseDate(v)
	if err != nil {
		errs.Add("as_of", "Date must be YYYY-MM-DD")
		return time.Time{}, errs
	}
	return d.Time, nil
}

// amountValue accepts a JSON number or a decimal string such as "12,50".
// Decode problems are kept rather than returned so that every field of a
// body is reported at once.
type amountValue struct {
	set   bool
	value float64
	err   error
}

func (a *amountValue) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	a.set = true

	var d decimal.Decimal
	var err error
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err = json.Unmarshal(b, &s); err == nil {
			if strings.TrimSpace(s) == "" {
				a.set = false
				return nil
			}
			d, err = core.ParseDecimal(s)
		}
	} else {
		d, err = decimal.NewFromString(string(b))
	}
	if err != nil {
		a.err = err
		return nil
	}
	a.value = d.InexactFloat64()
	return nil
}

// dateValue keeps a date decode failure for field-level reporting.
type dateValue struct {
	set   bool
	value core.Date
	err   error
}

func (d *dateValue) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		d.set, d.err = true, err
		return nil
	}
	if strings.TrimSpace(s) == "" {
		return nil
	}
	d.set = true
	d.err = d.value.UnmarshalJSON(b)
	return nil
}

// expenseRequest is the body of create, replace and patch requests.
type expenseRequest struct {
	Amount      amountValue `json:"amount"`
	Description *string     `json:"description"`
	Category    *string     `json:"category"`
	Date        dateValue   `json:"date"`
}

// decodeExpenseRequest reads a JSON body of at most maxBodyBytes.
func decodeExpenseRequest(w http.ResponseWriter, r *http.Request) (expenseRequest, error) {
	var req expenseRequest
	err := decodeJSONBody(w, r, &req)
	return req, err
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return errEmptyBody
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

// Input validates a full payload. Decode failures take precedence over the
// domain rule for the same field.
func (req expenseRequest) Input() (core.ExpenseInput, error) {
	var errs core.ValidationErrors
	in := core.ExpenseInput{}

	switch {
	case !req.Amount.set:
		errs.Add("amount", "Amount is required")
	case req.Amount.err != nil:
		errs.Add("amount", "Amount must be a number")
	default:
		in.Amount = req.Amount.value
	}
	if req.Description != nil {
		in.Description = *req.Description
	}
	if req.Category != nil {
		in.Category = core.Category(*req.Category)
	}
	if req.Date.set && req.Date.err != nil {
		errs.Add("date", "Date must be YYYY-MM-DD")
	} else {
		in.Date = req.Date.value
	}

	in = in.Normalize()
	errs = mergeFieldErrors(errs, in.Validate())
	return in, errs.Err()
}

// Patch validates only the fields present in the body.
func (req expenseRequest) Patch() (core.ExpensePatch, error) {
	var errs core.ValidationErrors
	var p core.ExpensePatch

	if req.Amount.set {
		if req.Amount.err != nil {
			errs.Add("amount", "Amount must be a number")
		} else {
			a := req.Amount.value
			p.Amount = &a
		}
	}
	p.Description = req.Description
	if req.Category != nil {
		c := core.Category(*req.Category)
		p.Category = &c
	}
	if req.Date.set {
		if req.Date.err != nil {
			errs.Add("date", "Date must be YYYY-MM-DD")
		} else {
			d := req.Date.value
			p.Date = &d
		}
	}

	p = p.Normalize()
	errs = mergeFieldErrors(errs, p.Validate())
	return p, errs.Err()
}

func mergeFieldErrors(errs core.ValidationErrors, err error) core.ValidationErrors {
	var more core.ValidationErrors
	if !errors.As(err, &more) {
		return errs
	}
	have := errs.Fields()
	for _, fe := range more {
		if _, ok := have[fe.Field]; !ok {
			errs.Add(fe.Field, fe.Message)
		}
	}
	return errs
}
