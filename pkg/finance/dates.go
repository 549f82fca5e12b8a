package finance

import (
	"time"

	"github.com/shopspring/decimal"
)

const isoDate = "2006-01-02"

// ParseDate parses an ISO calendar date (YYYY-MM-DD). A full RFC3339
// timestamp is tolerated and truncated to its date. The second return is
// false when the value is unparseable.
func ParseDate(value string) (time.Time, bool) {
	if t, err := time.Parse(isoDate, value); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
	}
	return time.Time{}, false
}

// CurrentDate returns today's date in ISO form.
func CurrentDate() string {
	return time.Now().Format(isoDate)
}

// clampNonNegative substitutes zero for negative values. Malformed numeric
// input never aborts a calculation; it degrades to a safe default.
func clampNonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
