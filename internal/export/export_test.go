package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"expenses/internal/core"
)

func fixture() []core.Expense {
	ts := time.Date(2024, 2, 1, 9, 30, 0, 0, time.UTC)
	return []core.Expense{
		{ID: "e1", Amount: 12.5, Description: "Lunch, with \"friends\"", Category: core.Food, Date: core.NewDate(2024, 1, 31), CreatedAt: ts, UpdatedAt: ts},
		{ID: "e2", Amount: 1200, Description: "Laptop", Category: core.Shopping, Date: core.NewDate(2024, 2, 1), CreatedAt: ts, UpdatedAt: ts.Add(time.Hour)},
	}
}

func TestCSVRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, fixture()))
	assert.True(t, strings.HasPrefix(buf.String(), Header+"\n"))

	got, err := ReadCSV(&buf)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for i, want := range fixture() {
		assert.Equal(t, want.ID, got[i].ID)
		assert.Equal(t, want.Amount, got[i].Amount)
		assert.Equal(t, want.Description, got[i].Description)
		assert.Equal(t, want.Category, got[i].Category)
		assert.Equal(t, want.Date.String(), got[i].Date.String())
		assert.True(t, want.UpdatedAt.Equal(got[i].UpdatedAt))
	}
}

func TestReadCSVColumnOrderAndValidation(t *testing.T) {
	in := "amount,description,category,date\n" +
		"\"1,234.50\",Rent deposit,OTHER,2024-03-01\n"
	got, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1234.5, got[0].Amount)
	assert.Equal(t, core.Other, got[0].Category)
	assert.Empty(t, got[0].ID)

	_, err = ReadCSV(strings.NewReader("amount,description,category,date\n0,x,food,2024-03-01\n"))
	assert.ErrorIs(t, err, core.ErrValidation)
	assert.Contains(t, err.Error(), "row 2")

	_, err = ReadCSV(strings.NewReader("amount,description,category,date\nabc,x,food,2024-03-01\n"))
	assert.ErrorIs(t, err, core.ErrInvalidAmount)

	got, err = ReadCSV(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, fixture(), core.DefaultCurrency))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, XLSXHeaders, rows[0])
	assert.Equal(t, "2024-01-31", rows[1][0])
	assert.Equal(t, "Comida", rows[1][1])
	assert.Equal(t, "$1,200.00", rows[2][4])
}
