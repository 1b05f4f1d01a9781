// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing monetary amounts from strings
// and formatting them for display in the configured currency.
package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var ErrInvalidAmount = errors.New("invalid amount")

// Currency describes how amounts are displayed. Amounts themselves are
// currency-agnostic. An empty Symbol is derived from Code for the Locale.
type Currency struct {
	Code   string
	Symbol string
	Locale string
}

var DefaultCurrency = Currency{Code: "USD", Symbol: "$", Locale: "en-US"}

// ParseAmount converts a decimal string to a float amount.
//
// It accepts a dot decimal separator, a lone comma as decimal separator
// (12,34) and comma grouping when a dot is also present (1,234.50).
// A leading currency symbol is ignored. Range checks are left to Validate.
//
// Examples:
//
//	ParseAmount("12.34")     -> 12.34, nil
//	ParseAmount("12,34")     -> 12.34, nil
//	ParseAmount("$1,234.50") -> 1234.5, nil
func ParseAmount(s string) (float64, error) {
	d, err := ParseDecimal(s)
	if err != nil {
		return 0, err
	}
	return d.InexactFloat64(), nil
}

// ParseDecimal is ParseAmount without the float conversion.
func ParseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "$€£ ")
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	if strings.Contains(s, ".") {
		s = strings.ReplaceAll(s, ",", "")
	} else {
		s = strings.ReplaceAll(s, ",", ".")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return d, nil
}

// RoundAmount rounds half away from zero to cents. Use only for display.
func RoundAmount(a float64) float64 {
	return decimal.NewFromFloat(a).Round(2).InexactFloat64()
}

// FormatAmount renders a in the currency's locale with two decimals,
// e.g. "$1,234.50".
func FormatAmount(a float64, cur Currency) string {
	d := decimal.NewFromFloat(a).Round(2)
	tag, err := language.Parse(cur.Locale)
	if err != nil {
		tag = language.AmericanEnglish
	}
	p := message.NewPrinter(tag)
	digits := p.Sprintf("%v", number.Decimal(d.Abs().InexactFloat64(),
		number.MinFractionDigits(2), number.MaxFractionDigits(2)))
	sign := ""
	if d.IsNegative() {
		sign = "-"
	}
	symbol := cur.Symbol
	if symbol == "" {
		symbol = codeSymbol(p, cur.Code)
	}
	return sign + symbol + digits
}

// codeSymbol is the printer locale's symbol for an ISO 4217 code, or the
// code itself when x/text does not know it.
func codeSymbol(p *message.Printer, code string) string {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return code
	}
	return p.Sprint(currency.Symbol(unit))
}

// FormatChange renders a month-over-month percentage. A nil change means
// there was no spending last month to compare against.
func FormatChange(change *float64) string {
	if change == nil {
		return "new spending"
	}
	v := decimal.NewFromFloat(*change).Round(1)
	if v.IsZero() {
		return "no change"
	}
	if v.IsPositive() {
		return "+" + v.StringFixed(1) + "%"
	}
	return v.StringFixed(1) + "%"
}
