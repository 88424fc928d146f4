package inventory

import (
	"math"
	"time"

	"github.com/erp/inventoryreport/internal/domain/shared"
	"github.com/erp/inventoryreport/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// maxProjectionDays keeps projected dates within four-digit years
const maxProjectionDays = 2_900_000

// ProjectStockOut returns the calendar day on which onHand reaches zero when
// depleted at averageDailyUsage units per day, counted from asOfDate's UTC day.
// Partial days round up. Stock that is empty or not depleting has no
// stock-out date and yields nil without error.
func ProjectStockOut(onHand, averageDailyUsage decimal.Decimal, asOfDate time.Time) (*valueobject.Date, error) {
	if asOfDate.IsZero() {
		return nil, shared.NewValidationError("asOfDate", "asOfDate must be a valid date")
	}

	if !inFloatRange(onHand) || !inFloatRange(averageDailyUsage) {
		return nil, shared.NewValidationError("", "onHand and averageDailyUsage must be finite numbers")
	}

	if !averageDailyUsage.IsPositive() || !onHand.IsPositive() {
		return nil, nil
	}

	// Exact integer quotient; any remainder is a partial day.
	days, remainder := onHand.QuoRem(averageDailyUsage, 0)
	if !remainder.IsZero() {
		days = days.Add(decimal.NewFromInt(1))
	}
	if days.GreaterThan(decimal.NewFromInt(maxProjectionDays)) {
		return nil, shared.NewValidationError("averageDailyUsage", "projected stock-out date is out of range")
	}

	stockOut := valueobject.NewDate(asOfDate).AddDays(int(days.IntPart()))
	if stockOut.Time().Year() > 9999 {
		return nil, shared.NewValidationError("averageDailyUsage", "projected stock-out date is out of range")
	}
	return &stockOut, nil
}

// ProjectStockOutFloat is ProjectStockOut for callers holding float64 values;
// NaN and ±Inf are rejected.
func ProjectStockOutFloat(onHand, averageDailyUsage float64, asOfDate time.Time) (*valueobject.Date, error) {
	if !isFinite(onHand) || !isFinite(averageDailyUsage) {
		return nil, shared.NewValidationError("", "onHand and averageDailyUsage must be finite numbers")
	}
	return ProjectStockOut(decimal.NewFromFloat(onHand), decimal.NewFromFloat(averageDailyUsage), asOfDate)
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
