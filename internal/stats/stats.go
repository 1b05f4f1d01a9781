// Package stats derives dashboard statistics from an expense snapshot.
package stats

import (
	"time"

	"expenses/internal/core"
)

// Stats is computed from a snapshot and a reference date; it is never
// persisted except as a worker snapshot.
type Stats struct {
	AsOf           core.Date `json:"as_of"`
	TotalThisMonth float64   `json:"total_this_month"`
	TotalLastMonth float64   `json:"total_last_month"`
	// MonthlyChange is nil when last month's total is zero: there is no base
	// to compare against, which reads as "new spending this month".
	MonthlyChange            *float64                  `json:"monthly_change"`
	CategoryTotals           map[core.Category]float64 `json:"category_totals"`
	MonthlyTotals            map[string]float64        `json:"monthly_totals"` // YYYY-MM, all history
	DailyTotals              map[string]float64        `json:"daily_totals"`   // YYYY-MM-DD, days with records only
	TopSpendingCategory      *core.Category            `json:"top_spending_category"`
	CurrentMonthExpenseCount int                       `json:"current_month_expense_count"`
	TodayExpenseCount        int                       `json:"today_expense_count"`
	// AverageTodayExpense is 0, not nil, when nothing was spent today.
	AverageTodayExpense float64 `json:"average_today_expense"`
	TotalExpenses       int     `json:"total_expenses"`
}

// ComputeStats aggregates all relative to the calendar date of asOf, taken in
// asOf's own location. all is only read.
func ComputeStats(all []core.Expense, asOf time.Time) Stats {
	today := core.DateOf(asOf)
	thisYear, thisMonth := today.Year(), today.Month()
	lastYear, lastMonth := PreviousMonth(thisYear, thisMonth)

	s := Stats{
		AsOf:           today,
		CategoryTotals: make(map[core.Category]float64),
		MonthlyTotals:  make(map[string]float64),
		DailyTotals:    make(map[string]float64),
		TotalExpenses:  len(all),
	}

	// Map iteration order is random; remember first appearance for ties.
	var seen []core.Category
	var todaySum float64

	for _, e := range all {
		y, m, _ := e.Date.Date()
		switch {
		case y == thisYear && m == thisMonth:
			s.TotalThisMonth += e.Amount
			s.CurrentMonthExpenseCount++
		case y == lastYear && m == lastMonth:
			s.TotalLastMonth += e.Amount
		}

		if _, ok := s.CategoryTotals[e.Category]; !ok {
			seen = append(seen, e.Category)
		}
		s.CategoryTotals[e.Category] += e.Amount
		s.MonthlyTotals[e.Date.MonthKey()] += e.Amount
		s.DailyTotals[e.Date.String()] += e.Amount

		if e.Date.Compare(today) == 0 {
			todaySum += e.Amount
			s.TodayExpenseCount++
		}
	}

	if s.TotalLastMonth > 0 {
		change := (s.TotalThisMonth - s.TotalLastMonth) / s.TotalLastMonth * 100
		s.MonthlyChange = &change
	}
	if s.TodayExpenseCount > 0 {
		s.AverageTodayExpense = todaySum / float64(s.TodayExpenseCount)
	}
	s.TopSpendingCategory = topCategory(seen, s.CategoryTotals)
	return s
}

// topCategory scans in first-seen order and only replaces the leader on a
// strictly greater total, so the earliest category wins ties.
func topCategory(order []core.Category, totals map[core.Category]float64) *core.Category {
	if len(order) == 0 {
		return nil
	}
	top := order[0]
	for _, c := range order[1:] {
		if totals[c] > totals[top] {
			top = c
		}
	}
	return &top
}

// PreviousMonth handles the January to December rollover.
func PreviousMonth(year int, month time.Month) (int, time.Month) {
	if month == time.January {
		return year - 1, time.December
	}
	return year, month - 1
}
