package finance

import (
	"github.com/shopspring/decimal"
)

// EffectivePrincipal is the durable pair persisted back onto a loan record.
type EffectivePrincipal struct {
	NetPrincipal decimal.Decimal `json:"net_principal"`
	AsOfDate     string          `json:"as_of_date"`
}

// ComputeEffectivePrincipal derives the persisted summary from a schedule:
// NetPrincipal is the Today entry's principal (last entry's when no Today
// projection exists), and AsOfDate is the most recent date the running
// principal actually changed, which can be earlier than the last transaction
// date. A nonzero principal on the very first entry counts as a change point.
// When the principal never moved, AsOfDate falls back to the last entry's
// date, then to the current date.
func ComputeEffectivePrincipal(s Schedule) EffectivePrincipal {
	lastChange := ""
	prev := decimal.Zero
	for i, e := range s.Entries {
		if i == 0 {
			if !e.PrincipalDue.IsZero() {
				lastChange = e.Date
			}
		} else if !e.PrincipalDue.Equal(prev) {
			lastChange = e.Date
		}
		prev = e.PrincipalDue
	}

	final := s.Today.PrincipalDue
	if s.Today.Date == "" && len(s.Entries) > 0 {
		final = s.Entries[len(s.Entries)-1].PrincipalDue
	}

	asOf := lastChange
	if asOf == "" {
		if len(s.Entries) > 0 {
			asOf = s.Entries[len(s.Entries)-1].Date
		} else {
			asOf = CurrentDate()
		}
	}

	return EffectivePrincipal{NetPrincipal: final.Round(2), AsOfDate: asOf}
}
