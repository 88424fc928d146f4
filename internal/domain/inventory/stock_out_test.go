package inventory

import (
	"math"
	"testing"
	"time"

	"github.com/erp/inventoryreport/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjectStockOut(t *testing.T) {
	asOf := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		onHand string
		usage  string
		want   string
	}{
		{"exact division", "10", "2", "2024-01-06"},
		{"partial day rounds up", "10", "3", "2024-01-05"},
		{"less than one day", "0.5", "2", "2024-01-02"},
		{"fractional usage", "1", "0.3", "2024-01-05"},
		{"crosses month", "62", "2", "2024-02-01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ProjectStockOut(decimal.RequireFromString(tt.onHand), decimal.RequireFromString(tt.usage), asOf)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestProjectStockOut_NoDepletion(t *testing.T) {
	asOf := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	got, err := ProjectStockOut(decimal.NewFromInt(10), decimal.Zero, asOf)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = ProjectStockOut(decimal.Zero, decimal.NewFromInt(2), asOf)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = ProjectStockOut(decimal.NewFromInt(-3), decimal.NewFromInt(2), asOf)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestProjectStockOut_UsesUTCDayOfAsOf(t *testing.T) {
	lateEvening := time.Date(2024, 1, 1, 23, 30, 0, 0, time.UTC)
	got, err := ProjectStockOut(decimal.NewFromInt(1), decimal.NewFromInt(1), lateEvening)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-02", got.String())

	// 2024-01-02 01:00 in UTC+3 is still 2024-01-01 in UTC
	eastern := time.Date(2024, 1, 2, 1, 0, 0, 0, time.FixedZone("UTC+3", 3*60*60))
	got, err = ProjectStockOut(decimal.NewFromInt(1), decimal.NewFromInt(1), eastern)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-02", got.String())
}

func TestProjectStockOut_Errors(t *testing.T) {
	_, err := ProjectStockOut(decimal.NewFromInt(1), decimal.NewFromInt(1), time.Time{})
	require.Error(t, err)
	assert.Equal(t, "asOfDate must be a valid date", err.Error())

	_, err = ProjectStockOut(decimal.RequireFromString("1e12"), decimal.RequireFromString("0.001"), time.Now())
	require.Error(t, err)
	assert.Equal(t, "projected stock-out date is out of range", err.Error())

	tests := []struct {
		name       string
		onHand     decimal.Decimal
		dailyUsage decimal.Decimal
	}{
		{"huge on hand", decimal.New(1, 20_000_000), decimal.NewFromInt(1)},
		{"tiny usage", decimal.NewFromInt(1), decimal.New(1, -20_000_000)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ProjectStockOut(tt.onHand, tt.dailyUsage, time.Now())
			require.Error(t, err)
			assert.ErrorIs(t, err, shared.ErrInvalidInput)
			assert.Equal(t, "onHand and averageDailyUsage must be finite numbers", err.Error())
		})
	}
}

func TestProjectStockOutFloat(t *testing.T) {
	asOf := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	got, err := ProjectStockOutFloat(10, 2, asOf)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-06", got.String())

	for _, pair := range [][2]float64{{math.NaN(), 1}, {1, math.Inf(1)}} {
		_, err := ProjectStockOutFloat(pair[0], pair[1], asOf)
		require.Error(t, err)
		assert.Equal(t, "onHand and averageDailyUsage must be finite numbers", err.Error())
	}
}
