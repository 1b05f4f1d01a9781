package core

import (
	"errors"
	"testing"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out float64
		ok  bool
	}{
		{"1", 1, true},
		{"1.0", 1, true},
		{"1.23", 1.23, true},
		{"1,23", 1.23, true},
		{"1,234.50", 1234.5, true},
		{"$12.00", 12, true},
		{" 2.50 ", 2.5, true},
		{"-1", -1, true}, // sign is a Validate concern
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %v, got %v (err=%v)", tc.in, tc.out, got, err)
			}
		} else if !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("%q expected ErrInvalidAmount, got %v", tc.in, err)
		}
	}
}

func TestFormatAmount(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{1234.5, "$1,234.50"},
		{0.005, "$0.01"},
		{0, "$0.00"},
		{-12.3, "-$12.30"},
	}
	for _, tc := range cases {
		if got := FormatAmount(tc.in, DefaultCurrency); got != tc.want {
			t.Fatalf("FormatAmount(%v) = %q want %q", tc.in, got, tc.want)
		}
	}
}

func TestFormatAmountDerivesSymbolFromCode(t *testing.T) {
	cases := []struct {
		cur  Currency
		want string
	}{
		{Currency{Code: "USD", Locale: "en-US"}, "$1,234.50"},
		{Currency{Code: "EUR", Locale: "en-US"}, "€1,234.50"},
		{Currency{Code: "EUR", Symbol: "EUR ", Locale: "en-US"}, "EUR 1,234.50"},
	}
	for _, tc := range cases {
		if got := FormatAmount(1234.5, tc.cur); got != tc.want {
			t.Fatalf("FormatAmount(%+v) = %q want %q", tc.cur, got, tc.want)
		}
	}
}

func TestFormatChange(t *testing.T) {
	up, down, flat := 12.345, -50.0, 0.0
	cases := []struct {
		in   *float64
		want string
	}{
		{nil, "new spending"},
		{&up, "+12.3%"},
		{&down, "-50.0%"},
		{&flat, "no change"},
	}
	for _, tc := range cases {
		if got := FormatChange(tc.in); got != tc.want {
			t.Fatalf("got %q want %q", got, tc.want)
		}
	}
}

func TestRoundAmount(t *testing.T) {
	if got := RoundAmount(10.125); got != 10.13 {
		t.Fatalf("got %v", got)
	}
}
