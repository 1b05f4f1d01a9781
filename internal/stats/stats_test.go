package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expenses/internal/core"
)

func exp(amount float64, y int, m time.Month, d int, c core.Category) core.Expense {
	return core.Expense{Amount: amount, Description: "x", Category: c, Date: core.NewDate(y, m, d)}
}

func at(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}

func TestComputeStatsScenario(t *testing.T) {
	all := []core.Expense{
		exp(100, 2024, time.January, 15, core.Food),
		exp(50, 2024, time.February, 10, core.Food),
	}
	s := ComputeStats(all, at(2024, time.February, 20))

	assert.Equal(t, 50.0, s.TotalThisMonth)
	assert.Equal(t, 100.0, s.TotalLastMonth)
	require.NotNil(t, s.MonthlyChange)
	assert.Equal(t, -50.0, *s.MonthlyChange)
	assert.Equal(t, map[core.Category]float64{core.Food: 150}, s.CategoryTotals)
	require.NotNil(t, s.TopSpendingCategory)
	assert.Equal(t, core.Food, *s.TopSpendingCategory)
	assert.Equal(t, map[string]float64{"2024-01": 100, "2024-02": 50}, s.MonthlyTotals)
	assert.Equal(t, map[string]float64{"2024-01-15": 100, "2024-02-10": 50}, s.DailyTotals)
	assert.Equal(t, 1, s.CurrentMonthExpenseCount)
	assert.Equal(t, 2, s.TotalExpenses)
	assert.Equal(t, "2024-02-20", s.AsOf.String())
}

func TestMonthlyChangeNilWhenLastMonthZero(t *testing.T) {
	tests := []struct {
		name string
		all  []core.Expense
	}{
		{"empty", nil},
		{"only this month", []core.Expense{exp(10, 2024, time.March, 1, core.Food)}},
		{"older history only", []core.Expense{exp(10, 2023, time.March, 1, core.Food)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := ComputeStats(tt.all, at(2024, time.March, 5))
			assert.Nil(t, s.MonthlyChange)
		})
	}
}

func TestYearRollover(t *testing.T) {
	all := []core.Expense{
		exp(200, 2023, time.December, 31, core.Health),
		exp(300, 2024, time.January, 2, core.Health),
		exp(999, 2024, time.December, 2, core.Health),
	}
	s := ComputeStats(all, at(2024, time.January, 10))
	assert.Equal(t, 300.0, s.TotalThisMonth)
	assert.Equal(t, 200.0, s.TotalLastMonth)
	require.NotNil(t, s.MonthlyChange)
	assert.Equal(t, 50.0, *s.MonthlyChange)

	y, m := PreviousMonth(2024, time.January)
	assert.Equal(t, 2023, y)
	assert.Equal(t, time.December, m)
}

func TestAverageToday(t *testing.T) {
	asOf := at(2024, time.May, 7)

	s := ComputeStats([]core.Expense{exp(10, 2024, time.May, 6, core.Food)}, asOf)
	assert.Equal(t, 0.0, s.AverageTodayExpense)
	assert.Equal(t, 0, s.TodayExpenseCount)

	s = ComputeStats([]core.Expense{
		exp(10, 2024, time.May, 7, core.Food),
		exp(25, 2024, time.May, 7, core.Transport),
		exp(99, 2023, time.May, 7, core.Transport),
	}, asOf)
	assert.Equal(t, 17.5, s.AverageTodayExpense)
	assert.Equal(t, 2, s.TodayExpenseCount)
}

func TestAsOfUsesItsOwnLocation(t *testing.T) {
	// 23:30 on Jan 31 in UTC-5 is already Feb 1 in UTC.
	loc := time.FixedZone("UTC-5", -5*3600)
	asOf := time.Date(2024, time.January, 31, 23, 30, 0, 0, loc)
	s := ComputeStats([]core.Expense{exp(40, 2024, time.January, 31, core.Food)}, asOf)
	assert.Equal(t, 40.0, s.TotalThisMonth)
	assert.Equal(t, 1, s.TodayExpenseCount)
}

func TestTopCategoryFirstSeenWinsTies(t *testing.T) {
	all := []core.Expense{
		exp(30, 2024, time.April, 1, core.Transport),
		exp(10, 2024, time.April, 2, core.Food),
		exp(20, 2024, time.April, 3, core.Food),
		exp(5, 2024, time.April, 4, core.Other),
	}
	// transport and food tie at 30; transport appeared first.
	for range 20 {
		s := ComputeStats(all, at(2024, time.April, 30))
		require.NotNil(t, s.TopSpendingCategory)
		assert.Equal(t, core.Transport, *s.TopSpendingCategory)
	}

	s := ComputeStats(append(all, exp(0.5, 2024, time.April, 5, core.Food)), at(2024, time.April, 30))
	assert.Equal(t, core.Food, *s.TopSpendingCategory)

	assert.Nil(t, ComputeStats(nil, at(2024, time.April, 30)).TopSpendingCategory)
}

func TestComputeStatsEmpty(t *testing.T) {
	s := ComputeStats(nil, at(2024, time.April, 30))
	assert.Equal(t, 0, s.TotalExpenses)
	assert.Empty(t, s.CategoryTotals)
	assert.NotNil(t, s.MonthlyTotals)
	assert.NotNil(t, s.DailyTotals)
	assert.Equal(t, 0.0, s.AverageTodayExpense)
}

func TestComputeStatsDoesNotMutateInput(t *testing.T) {
	all := []core.Expense{
		exp(1, 2024, time.April, 3, core.Food),
		exp(2, 2024, time.April, 1, core.Other),
	}
	snapshot := append([]core.Expense(nil), all...)
	_ = ComputeStats(all, at(2024, time.April, 30))
	assert.Equal(t, snapshot, all)
}
