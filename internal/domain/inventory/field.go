package inventory

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/erp/inventoryreport/internal/domain/shared"
	"github.com/erp/inventoryreport/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// MaxImageURLLength is the longest image URL accepted, in characters
const MaxImageURLLength = 1000

// maxEpochMillis bounds numeric dates to ±100,000,000 days around the epoch
var maxEpochMillis = decimal.NewFromInt(8_640_000_000_000_000)

// Decimal inputs must fit a float64: at most maxIntegerDigits digits before
// the point. Text finer than minExponent is read at float64 precision.
const (
	maxIntegerDigits = 309
	minExponent      = -400
)

// dateLayouts are tried in order; layouts without a zone are read as UTC
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	valueobject.DateLayout,
	"2006/01/02",
	"2006/01/02 15:04:05",
	"Jan 2, 2006",
	"January 2, 2006",
	"Mon Jan 02 2006 15:04:05 GMT-0700",
	time.RFC1123Z,
	time.RFC1123,
}

// CoerceText converts a scalar input value to its text form.
// Nil and composite values (maps, slices, structs) yield an empty string.
func CoerceText(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case *string:
		if v == nil {
			return ""
		}
		return *v
	case json.Number:
		return v.String()
	case decimal.Decimal:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(v)
	case bool:
		return strconv.FormatBool(v)
	case fmt.Stringer:
		return v.String()
	default:
		return ""
	}
}

// ParseFiniteNonNegative converts a loosely-typed numeric input into a decimal.
// Numeric strings are accepted; nil, blank, non-numeric, non-finite and
// negative inputs are rejected with a ValidationError.
func ParseFiniteNonNegative(value any) (decimal.Decimal, error) {
	return parseNonNegative("", "value", value)
}

func parseNonNegative(field, label string, value any) (decimal.Decimal, error) {
	d, ok := toDecimal(value)
	if !ok || d.IsNegative() {
		return decimal.Zero, shared.NewValidationError(field, label+" must be a non-negative number")
	}
	return d, nil
}

// toDecimal reports false for anything that is not a finite number
func toDecimal(value any) (decimal.Decimal, bool) {
	switch v := value.(type) {
	case decimal.Decimal:
		return v, inFloatRange(v)
	case *decimal.Decimal:
		if v == nil {
			return decimal.Zero, false
		}
		return *v, inFloatRange(*v)
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(v), true
	case float32:
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat32(v), true
	case int:
		return decimal.NewFromInt(int64(v)), true
	case int8:
		return decimal.NewFromInt(int64(v)), true
	case int16:
		return decimal.NewFromInt(int64(v)), true
	case int32:
		return decimal.NewFromInt32(v), true
	case int64:
		return decimal.NewFromInt(v), true
	case uint:
		return decimal.NewFromBigInt(new(big.Int).SetUint64(uint64(v)), 0), true
	case uint8:
		return decimal.NewFromInt(int64(v)), true
	case uint16:
		return decimal.NewFromInt(int64(v)), true
	case uint32:
		return decimal.NewFromInt(int64(v)), true
	case uint64:
		return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0), true
	case json.Number:
		return parseDecimalText(v.String())
	case string:
		return parseDecimalText(v)
	case *string:
		if v == nil {
			return decimal.Zero, false
		}
		return parseDecimalText(*v)
	default:
		return decimal.Zero, false
	}
}

func parseDecimalText(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}
	// Text that overflows a float64 is not a finite number
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	if d.Exponent() < minExponent {
		d = decimal.NewFromFloat(f)
	}
	return d, true
}

// inFloatRange reports whether d is within float64 magnitude and keeps a
// bounded number of fractional digits
func inFloatRange(d decimal.Decimal) bool {
	exp := int(d.Exponent())
	return exp >= minExponent && d.NumDigits()+exp <= maxIntegerDigits
}

// NormalizeURL validates an optional http(s) URL.
// Absent input (nil, empty string) yields nil without error.
func NormalizeURL(value any) (*string, error) {
	return normalizeURL("", "URL", value)
}

func normalizeURL(field, label string, value any) (*string, error) {
	raw := CoerceText(value)
	if raw == "" {
		return nil, nil
	}

	trimmed := strings.TrimSpace(raw)
	if utf8.RuneCountInString(trimmed) > MaxImageURLLength {
		return nil, shared.NewValidationError(field, label+" is too long")
	}

	lower := strings.ToLower(trimmed)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return nil, shared.NewValidationError(field, label+" must be http or https")
	}

	return &trimmed, nil
}

// NormalizeDate interprets an optional date input and truncates it to its
// UTC calendar day. Absent input (nil, empty string, zero time) yields nil.
// Integers are read as Unix epoch milliseconds. Accepted text forms:
//
//	2024-01-15T10:30:00Z         RFC 3339, optional fraction and offset
//	2024-01-15T10:30:00          also without seconds, or with a space
//	2024-01-15, 2024/01/15       optionally "2024/01/15 10:30:00"
//	Jan 15, 2024                 also "January 15, 2024"
//	Mon Jan 15 2024 10:30:00 GMT+0000 (Coordinated Universal Time)
//	Mon, 15 Jan 2024 10:30:00 GMT  RFC 1123, also with a numeric zone
//
// Text without a zone is read as UTC.
func NormalizeDate(value any) (*valueobject.Date, error) {
	return normalizeDate("", "value", value)
}

func normalizeDate(field, label string, value any) (*valueobject.Date, error) {
	invalid := func() (*valueobject.Date, error) {
		return nil, shared.NewValidationError(field, label+" is not a valid date")
	}

	var t time.Time
	switch v := value.(type) {
	case nil:
		return nil, nil
	case valueobject.Date:
		if v.IsZero() {
			return nil, nil
		}
		return &v, nil
	case *valueobject.Date:
		if v == nil || v.IsZero() {
			return nil, nil
		}
		d := *v
		return &d, nil
	case time.Time:
		if v.IsZero() {
			return nil, nil
		}
		t = v
	case *time.Time:
		if v == nil || v.IsZero() {
			return nil, nil
		}
		t = *v
	case string, *string:
		s := CoerceText(v)
		if s == "" {
			return nil, nil
		}
		parsed, ok := parseDateText(strings.TrimSpace(s))
		if !ok {
			return invalid()
		}
		t = parsed
	default:
		ms, ok := toDecimal(v)
		if !ok || !ms.Equal(ms.Truncate(0)) || ms.Abs().GreaterThan(maxEpochMillis) {
			return invalid()
		}
		t = time.UnixMilli(ms.IntPart())
	}

	d := valueobject.NewDate(t)
	if d.Time().Year() < 1 || d.Time().Year() > 9999 {
		return invalid()
	}
	return &d, nil
}

func parseDateText(s string) (time.Time, bool) {
	// Drop the zone name suffix of "... GMT+0000 (Coordinated Universal Time)"
	if i := strings.Index(s, " ("); i > 0 && strings.HasSuffix(s, ")") {
		s = s[:i]
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
