// Package finance is the loan amortization core: a pure function library that
// turns a loan's transaction history into running principal/interest balances.
// It holds no state between calls, touches no storage, and never fails on bad
// data; malformed amounts and dates degrade to zero contributions.
package finance

import (
	"github.com/shopspring/decimal"

	"ledgerbook/pkg/models"
)

// Dues is the collapsed balance summary for one loan.
type Dues struct {
	PrincipalDisbursed decimal.Decimal `json:"principal_disbursed"`
	PaymentsReceived   decimal.Decimal `json:"payments_received"`
	PrincipalDue       decimal.Decimal `json:"principal_due"`
	InterestDue        decimal.Decimal `json:"interest_due"`
	TotalDue           decimal.Decimal `json:"total_due"`
}

// ScheduleEntry is the balance snapshot immediately after one transaction.
type ScheduleEntry struct {
	Date         string          `json:"date"`
	PrincipalDue decimal.Decimal `json:"principal_due"`
	InterestDue  decimal.Decimal `json:"interest_due"`
}

// Schedule is the per-transaction ledger plus a projection to the as-of date.
type Schedule struct {
	Entries []ScheduleEntry `json:"entries"`
	Today   ScheduleEntry   `json:"today"`
}

// walker carries the accrual state across one pass over a transaction stream.
// Balances accumulate at full precision; rounding happens only when a snapshot
// or summary is emitted.
type walker struct {
	basis           Basis
	rate            decimal.Decimal
	principal       decimal.Decimal
	interestAccrued decimal.Decimal
	lastDate        string
}

func newWalker(loan *models.Loan, basis Basis) *walker {
	return &walker{basis: basis, rate: clampNonNegative(loan.InterestRate)}
}

func (w *walker) step(t *models.Transaction) {
	if w.lastDate != "" {
		w.interestAccrued = w.interestAccrued.Add(Interest(w.principal, w.rate, w.basis, w.lastDate, t.Date))
	}
	// Every transaction moves the accrual boundary, even zero-effect ones.
	w.lastDate = t.Date

	switch t.Type {
	case models.TransactionTypeDebit:
		w.principal = w.principal.Add(clampNonNegative(t.Amount))
	case models.TransactionTypeCredit:
		payment := clampNonNegative(t.Amount)
		// Interest first, remainder to principal, floored at zero. Excess
		// beyond the outstanding total is dropped, never carried as credit.
		interestPayment := decimal.Min(payment, w.interestAccrued)
		w.interestAccrued = w.interestAccrued.Sub(interestPayment)
		payment = payment.Sub(interestPayment)
		w.principal = decimal.Max(decimal.Zero, w.principal.Sub(payment))
	}
}

func (w *walker) snapshot(date string) ScheduleEntry {
	return ScheduleEntry{
		Date:         date,
		PrincipalDue: w.principal.Round(2),
		InterestDue:  decimal.Max(decimal.Zero, w.interestAccrued).Round(2),
	}
}

// CalculateLoanDues walks the loan's transactions in chronological order and
// returns the balance summary as of asOfISO (today when empty). All five
// fields are rounded to 2 decimals, half away from zero.
func CalculateLoanDues(loan *models.Loan, txs []*models.Transaction, basis Basis, asOfISO string) Dues {
	asOf := asOfISO
	if asOf == "" {
		asOf = CurrentDate()
	}

	totalDebit := decimal.Zero
	totalCredit := decimal.Zero
	w := newWalker(loan, basis)
	for _, t := range SortTransactions(txs) {
		switch t.Type {
		case models.TransactionTypeDebit:
			totalDebit = totalDebit.Add(clampNonNegative(t.Amount))
		case models.TransactionTypeCredit:
			totalCredit = totalCredit.Add(clampNonNegative(t.Amount))
		}
		w.step(t)
	}

	if w.lastDate != "" {
		w.interestAccrued = w.interestAccrued.Add(Interest(w.principal, w.rate, w.basis, w.lastDate, asOf))
	}

	interestDue := decimal.Max(decimal.Zero, w.interestAccrued)
	return Dues{
		PrincipalDisbursed: totalDebit.Round(2),
		PaymentsReceived:   totalCredit.Round(2),
		PrincipalDue:       w.principal.Round(2),
		InterestDue:        interestDue.Round(2),
		TotalDue:           w.principal.Add(interestDue).Round(2),
	}
}

// CalculateLoanSchedule returns one snapshot per transaction, in chronological
// order, plus a Today entry projecting accrual forward to asOfISO (today when
// empty) with no further payment applied. The Today entry is always present;
// with no transactions it is simply zero balances at the as-of date.
func CalculateLoanSchedule(loan *models.Loan, txs []*models.Transaction, basis Basis, asOfISO string) Schedule {
	asOf := asOfISO
	if asOf == "" {
		asOf = CurrentDate()
	}

	w := newWalker(loan, basis)
	entries := make([]ScheduleEntry, 0, len(txs))
	for _, t := range SortTransactions(txs) {
		w.step(t)
		entries = append(entries, w.snapshot(t.Date))
	}

	today := w.snapshot(asOf)
	if w.lastDate != "" {
		addl := Interest(w.principal, w.rate, w.basis, w.lastDate, asOf)
		today.InterestDue = decimal.Max(decimal.Zero, w.interestAccrued.Add(addl)).Round(2)
	}

	return Schedule{Entries: entries, Today: today}
}
