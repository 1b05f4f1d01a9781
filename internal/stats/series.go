package stats

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"expenses/internal/core"
)

// DefaultMonthlyWindow is how many months trend charts show by default.
const DefaultMonthlyWindow = 6

type DailyPoint struct {
	Date   string  `json:"date"`
	Day    int     `json:"day"`
	Amount float64 `json:"amount"`
}

type MonthlyPoint struct {
	Month  string  `json:"month"`
	Amount float64 `json:"amount"`
}

type CategorySlice struct {
	Category core.Category `json:"category"`
	Label    string        `json:"label"`
	Color    string        `json:"color"`
	Amount   float64       `json:"amount"`
	Percent  float64       `json:"percent"`
}

// DailySeries returns one point per day of the month, filling days without
// records with 0.
func DailySeries(daily map[string]float64, year int, month time.Month) []DailyPoint {
	days := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	out := make([]DailyPoint, 0, days)
	for d := 1; d <= days; d++ {
		key := core.NewDate(year, month, d).String()
		out = append(out, DailyPoint{Date: key, Day: d, Amount: daily[key]})
	}
	return out
}

// MonthlySeries returns the last months months ending with asOf's month,
// oldest first, with missing months as 0.
func MonthlySeries(monthly map[string]float64, asOf time.Time, months int) []MonthlyPoint {
	if months < 1 {
		months = DefaultMonthlyWindow
	}
	y, m := asOf.Year(), asOf.Month()
	out := make([]MonthlyPoint, months)
	for i := months - 1; i >= 0; i-- {
		key := fmt.Sprintf("%04d-%02d", y, int(m))
		out[i] = MonthlyPoint{Month: key, Amount: monthly[key]}
		y, m = PreviousMonth(y, m)
	}
	return out
}

// CategoryBreakdown orders categories by amount, largest first, with ties
// broken by tag.
func CategoryBreakdown(totals map[core.Category]float64) []CategorySlice {
	var sum float64
	out := make([]CategorySlice, 0, len(totals))
	for c, amount := range totals {
		sum += amount
		out = append(out, CategorySlice{Category: c, Label: c.Label(), Color: c.Color(), Amount: amount})
	}
	for i := range out {
		if sum > 0 {
			out[i].Percent = out[i].Amount / sum * 100
		}
	}
	slices.SortFunc(out, func(a, b CategorySlice) int {
		if c := cmp.Compare(b.Amount, a.Amount); c != 0 {
			return c
		}
		return strings.Compare(string(a.Category), string(b.Category))
	})
	return out
}

// AvailableYears lists years that have daily totals, newest first. With no
// data it offers the year of now.
func AvailableYears(daily map[string]float64, now time.Time) []int {
	set := map[int]struct{}{}
	for key := range daily {
		if y, err := strconv.Atoi(strings.SplitN(key, "-", 2)[0]); err == nil {
			set[y] = struct{}{}
		}
	}
	if len(set) == 0 {
		return []int{now.Year()}
	}
	years := make([]int, 0, len(set))
	for y := range set {
		years = append(years, y)
	}
	slices.Sort(years)
	slices.Reverse(years)
	return years
}

// AvailableMonths lists months of year that have daily totals, ascending.
// With no data at all it offers the month of now.
func AvailableMonths(daily map[string]float64, year int, now time.Time) []time.Month {
	if len(daily) == 0 {
		return []time.Month{now.Month()}
	}
	prefix := fmt.Sprintf("%04d-", year)
	set := map[time.Month]struct{}{}
	for key := range daily {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		parts := strings.Split(key, "-")
		if len(parts) < 2 {
			continue
		}
		if m, err := strconv.Atoi(parts[1]); err == nil && m >= 1 && m <= 12 {
			set[time.Month(m)] = struct{}{}
		}
	}
	months := make([]time.Month, 0, len(set))
	for m := range set {
		months = append(months, m)
	}
	slices.Sort(months)
	return months
}
