package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expenses/internal/core"
)

func TestDailySeriesFillsGaps(t *testing.T) {
	daily := map[string]float64{"2024-02-03": 12, "2024-02-29": 4, "2024-03-01": 100}
	series := DailySeries(daily, 2024, time.February)
	require.Len(t, series, 29)
	assert.Equal(t, DailyPoint{Date: "2024-02-01", Day: 1, Amount: 0}, series[0])
	assert.Equal(t, 12.0, series[2].Amount)
	assert.Equal(t, 4.0, series[28].Amount)

	var sum float64
	for _, p := range series {
		sum += p.Amount
	}
	assert.Equal(t, 16.0, sum)
}

func TestMonthlySeriesWindow(t *testing.T) {
	monthly := map[string]float64{"2023-11": 5, "2024-02": 7, "2024-06": 1}
	series := MonthlySeries(monthly, at(2024, time.February, 14), 4)
	assert.Equal(t, []MonthlyPoint{
		{"2023-11", 5}, {"2023-12", 0}, {"2024-01", 0}, {"2024-02", 7},
	}, series)

	assert.Len(t, MonthlySeries(monthly, at(2024, time.February, 14), 0), DefaultMonthlyWindow)
}

func TestCategoryBreakdown(t *testing.T) {
	out := CategoryBreakdown(map[core.Category]float64{
		core.Food:      25,
		core.Transport: 50,
		core.Health:    25,
	})
	require.Len(t, out, 3)
	assert.Equal(t, core.Transport, out[0].Category)
	assert.Equal(t, 50.0, out[0].Percent)
	assert.Equal(t, core.Food, out[1].Category)
	assert.Equal(t, core.Health, out[2].Category)
	assert.Equal(t, "Transporte", out[0].Label)
	assert.Equal(t, "#3b82f6", out[0].Color)

	assert.Empty(t, CategoryBreakdown(nil))
}

func TestAvailablePeriods(t *testing.T) {
	now := at(2025, time.July, 1)
	assert.Equal(t, []int{2025}, AvailableYears(nil, now))
	assert.Equal(t, []time.Month{time.July}, AvailableMonths(nil, 2025, now))

	daily := map[string]float64{"2023-05-01": 1, "2024-11-02": 1, "2024-02-10": 1, "2024-11-20": 1}
	assert.Equal(t, []int{2024, 2023}, AvailableYears(daily, now))
	assert.Equal(t, []time.Month{time.February, time.November}, AvailableMonths(daily, 2024, now))
	assert.Empty(t, AvailableMonths(daily, 2022, now))
}
