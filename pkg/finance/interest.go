package finance

import (
	"time"

	"github.com/shopspring/decimal"
)

// Basis selects how a loan's percentage rate is read. A deployment picks one
// basis and sticks with it; mixing them would silently change every balance.
type Basis string

const (
	// BasisAnnual treats the rate as percent per 365-day year.
	BasisAnnual Basis = "annual"
	// BasisMonthly treats the rate as percent per 30-day month, every month
	// exactly 30 days regardless of the calendar.
	BasisMonthly Basis = "monthly"
)

var (
	hundred     = decimal.NewFromInt(100)
	daysInYear  = decimal.NewFromInt(365)
	daysInMonth = decimal.NewFromInt(30)
)

func (b Basis) periodDays() decimal.Decimal {
	if b == BasisMonthly {
		return daysInMonth
	}
	return daysInYear
}

// Valid reports whether b is one of the two supported bases.
func (b Basis) Valid() bool {
	return b == BasisAnnual || b == BasisMonthly
}

// Interest computes simple interest on principal at ratePct between two ISO
// dates: principal * rate/100 * days/basisDays, where days is the whole-day
// count between start and end, truncated (partial days never accrue). Returns
// zero when end <= start or either date fails to parse.
func Interest(principal, ratePct decimal.Decimal, basis Basis, startISO, endISO string) decimal.Decimal {
	start, okStart := ParseDate(startISO)
	end, okEnd := ParseDate(endISO)
	if !okStart || !okEnd || !end.After(start) {
		return decimal.Zero
	}
	days := int64(end.Sub(start) / (24 * time.Hour))
	p := clampNonNegative(principal)
	r := clampNonNegative(ratePct)
	// Single division at the end keeps intermediate precision.
	return p.Mul(r).Mul(decimal.NewFromInt(days)).Div(hundred.Mul(basis.periodDays()))
}
