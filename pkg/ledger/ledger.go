// Package ledger holds the business logic for customers, loans and
// transactions. It orchestrates the storage layer and the finance engine: any
// mutation that touches a loan's transaction set ends with a dues refresh so
// the loan's persisted NetPrincipal/AsOfDate always match the engine's view
// of the latest balances.
package ledger

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"ledgerbook/pkg/finance"
	"ledgerbook/pkg/models"
	"ledgerbook/pkg/store"
)

// Ledger handles the business logic for customers, loans and transactions.
type Ledger struct {
	storage store.Storage
	basis   finance.Basis // rate basis for the whole deployment, never mixed
}

// NewLedger creates a new Ledger with a given Storage implementation and
// interest-rate basis.
func NewLedger(s store.Storage, basis finance.Basis) *Ledger {
	if !basis.Valid() {
		basis = finance.BasisAnnual
	}
	return &Ledger{storage: s, basis: basis}
}

// Basis returns the configured interest-rate basis.
func (l *Ledger) Basis() finance.Basis {
	return l.basis
}

// Storage exposes the underlying store for bulk operations (CSV import,
// backup restore) that write rows with preset ids.
func (l *Ledger) Storage() store.Storage {
	return l.storage
}

// CreateCustomer registers a new customer.
func (l *Ledger) CreateCustomer(name, fatherName, address string) (*models.Customer, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("customer name is required")
	}
	customer := &models.Customer{Name: name, FatherName: fatherName, Address: address}
	if err := l.storage.CreateCustomer(customer); err != nil {
		return nil, fmt.Errorf("failed to store customer: %w", err)
	}
	return customer, nil
}

// GetCustomer retrieves a customer by its ID.
func (l *Ledger) GetCustomer(id int64) (*models.Customer, error) {
	return l.storage.GetCustomer(id)
}

// GetAllCustomers retrieves all customers.
func (l *Ledger) GetAllCustomers() ([]*models.Customer, error) {
	return l.storage.GetAllCustomers()
}

// UpdateCustomer updates an existing customer.
func (l *Ledger) UpdateCustomer(customer *models.Customer) error {
	return l.storage.UpdateCustomer(customer)
}

// DeleteCustomer deletes a customer along with their loans and transactions.
func (l *Ledger) DeleteCustomer(id int64) error {
	return l.storage.DeleteCustomer(id)
}

// CreateLoan opens a new loan against pledged collateral and records the
// collateral transaction dated the loan date. A zero or negative rate falls
// back to the shop's default interest rate.
func (l *Ledger) CreateLoan(customerID int64, interestRate decimal.Decimal, items []models.CollateralItem, loanDate string) (*models.Loan, error) {
	if _, err := l.storage.GetCustomer(customerID); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("at least one collateral item is required")
	}
	if _, ok := finance.ParseDate(loanDate); !ok {
		return nil, fmt.Errorf("invalid loan date %q", loanDate)
	}
	if !interestRate.IsPositive() {
		rates, err := l.storage.GetRates()
		if err != nil {
			return nil, fmt.Errorf("failed to load default rate: %w", err)
		}
		interestRate = rates.DefaultInterestRate
	}

	loan := &models.Loan{
		CustomerID:      customerID,
		InterestRate:    interestRate,
		CollateralItems: normalizeCollateral(items),
		LoanDate:        loanDate,
		NetPrincipal:    decimal.Zero,
		AsOfDate:        loanDate,
	}
	if err := l.storage.CreateLoan(loan); err != nil {
		return nil, fmt.Errorf("failed to store loan: %w", err)
	}

	// The collateral record is a zero-amount transaction so the pledged
	// items show up in the loan's history and exports.
	transaction := models.Transaction{
		LoanID:      loan.ID,
		Type:        models.TransactionTypeCollateral,
		Amount:      decimal.Zero,
		Description: FormatCollateralItems(loan.CollateralItems),
		Date:        loanDate,
	}
	if err := l.storage.CreateTransaction(&transaction); err != nil {
		return nil, fmt.Errorf("failed to store collateral transaction: %w", err)
	}

	return loan, nil
}

// GetLoan retrieves a loan by its ID.
func (l *Ledger) GetLoan(id int64) (*models.Loan, error) {
	return l.storage.GetLoan(id)
}

// GetAllLoans retrieves all loans.
func (l *Ledger) GetAllLoans() ([]*models.Loan, error) {
	return l.storage.GetAllLoans()
}

// GetLoansForCustomer retrieves a customer's loans.
func (l *Ledger) GetLoansForCustomer(customerID int64) ([]*models.Loan, error) {
	return l.storage.GetLoansForCustomer(customerID)
}

// UpdateLoan updates an existing loan, keeps its collateral transaction's
// description in sync, and refreshes the derived dues fields.
func (l *Ledger) UpdateLoan(loan *models.Loan) error {
	loan.CollateralItems = normalizeCollateral(loan.CollateralItems)
	if err := l.storage.UpdateLoan(loan); err != nil {
		return err
	}

	txs, err := l.storage.GetTransactionsForLoan(loan.ID)
	if err != nil {
		return err
	}
	for _, t := range txs {
		if t.Type == models.TransactionTypeCollateral {
			t.Description = FormatCollateralItems(loan.CollateralItems)
			if loan.LoanDate != "" {
				t.Date = loan.LoanDate
			}
			if err := l.storage.UpdateTransaction(t); err != nil {
				return fmt.Errorf("failed to update collateral transaction: %w", err)
			}
			break
		}
	}

	return l.RefreshLoanDues(loan.ID)
}

// DeleteLoan deletes a loan and its transactions.
func (l *Ledger) DeleteLoan(id int64) error {
	return l.storage.DeleteLoan(id)
}

// RecordTransaction appends a transaction to a loan's history and refreshes
// the loan's derived dues. For return_items the amount is forced to zero, the
// description lists the returned item labels, and the returned items are
// removed from the loan's collateral.
func (l *Ledger) RecordTransaction(loanID int64, typ models.TransactionType, amount decimal.Decimal, note, date string, returnedLabels []string) (*models.Transaction, error) {
	loan, err := l.storage.GetLoan(loanID)
	if err != nil {
		return nil, err
	}
	if _, ok := finance.ParseDate(date); !ok {
		return nil, fmt.Errorf("invalid transaction date %q", date)
	}

	transaction := &models.Transaction{
		LoanID: loanID,
		Type:   typ,
		Amount: amount,
		Note:   strings.TrimSpace(note),
		Date:   date,
	}

	if typ == models.TransactionTypeReturnItems {
		transaction.Amount = decimal.Zero
		transaction.Description = "Returned:"
		if len(returnedLabels) > 0 {
			transaction.Description = "Returned: " + strings.Join(returnedLabels, ", ")
			loan.CollateralItems = removeByLabel(loan.CollateralItems, returnedLabels)
			if err := l.storage.UpdateLoan(loan); err != nil {
				return nil, fmt.Errorf("failed to update loan collateral: %w", err)
			}
		}
	}

	if err := l.storage.CreateTransaction(transaction); err != nil {
		return nil, fmt.Errorf("failed to store transaction: %w", err)
	}
	if err := l.RefreshLoanDues(loanID); err != nil {
		return nil, err
	}
	return transaction, nil
}

// GetTransaction retrieves a transaction by its ID.
func (l *Ledger) GetTransaction(id int64) (*models.Transaction, error) {
	return l.storage.GetTransaction(id)
}

// GetAllTransactions retrieves all transactions.
func (l *Ledger) GetAllTransactions() ([]*models.Transaction, error) {
	return l.storage.GetAllTransactions()
}

// GetLoanTransactions retrieves a loan's transactions.
func (l *Ledger) GetLoanTransactions(loanID int64) ([]*models.Transaction, error) {
	return l.storage.GetTransactionsForLoan(loanID)
}

// UpdateTransaction updates an existing transaction and refreshes the dues of
// the loan it belongs to.
func (l *Ledger) UpdateTransaction(transaction *models.Transaction) error {
	if err := l.storage.UpdateTransaction(transaction); err != nil {
		return err
	}
	return l.RefreshLoanDues(transaction.LoanID)
}

// DeleteTransaction removes a transaction and refreshes the affected loan.
func (l *Ledger) DeleteTransaction(id int64) error {
	transaction, err := l.storage.GetTransaction(id)
	if err != nil {
		return err
	}
	if err := l.storage.DeleteTransaction(id); err != nil {
		return err
	}
	return l.RefreshLoanDues(transaction.LoanID)
}

// LoanDues computes the balance summary for a loan as of asOfDate (today when
// empty).
func (l *Ledger) LoanDues(loanID int64, asOfDate string) (finance.Dues, error) {
	loan, err := l.storage.GetLoan(loanID)
	if err != nil {
		return finance.Dues{}, err
	}
	txs, err := l.storage.GetTransactionsForLoan(loanID)
	if err != nil {
		return finance.Dues{}, err
	}
	return finance.CalculateLoanDues(loan, txs, l.basis, asOfDate), nil
}

// LoanSchedule computes the per-transaction schedule for a loan.
func (l *Ledger) LoanSchedule(loanID int64, asOfDate string) (finance.Schedule, error) {
	loan, err := l.storage.GetLoan(loanID)
	if err != nil {
		return finance.Schedule{}, err
	}
	txs, err := l.storage.GetTransactionsForLoan(loanID)
	if err != nil {
		return finance.Schedule{}, err
	}
	return finance.CalculateLoanSchedule(loan, txs, l.basis, asOfDate), nil
}

// RefreshLoanDues recomputes and persists a loan's NetPrincipal and AsOfDate
// from its full transaction history, and reconciles collateral against any
// return_items transactions (imports and restores can bring returns the
// record-time removal never saw).
func (l *Ledger) RefreshLoanDues(loanID int64) error {
	loan, err := l.storage.GetLoan(loanID)
	if err != nil {
		return err
	}
	txs, err := l.storage.GetTransactionsForLoan(loanID)
	if err != nil {
		return err
	}

	schedule := finance.CalculateLoanSchedule(loan, txs, l.basis, "")
	ep := finance.ComputeEffectivePrincipal(schedule)
	loan.NetPrincipal = ep.NetPrincipal
	loan.AsOfDate = ep.AsOfDate

	if returned := returnedLabelsFromTransactions(txs); len(returned) > 0 {
		loan.CollateralItems = removeByLabel(loan.CollateralItems, returned)
	}

	if err := l.storage.UpdateLoan(loan); err != nil {
		return fmt.Errorf("failed to persist loan dues: %w", err)
	}
	return nil
}

// DashboardSummary aggregates the whole book for the overview screen.
type DashboardSummary struct {
	TotalCustomers    int             `json:"total_customers"`
	TotalLoans        int             `json:"total_loans"`
	TotalTransactions int             `json:"total_transactions"`
	TotalDisbursed    decimal.Decimal `json:"total_disbursed"`
	TotalReceived     decimal.Decimal `json:"total_received"`
	NetOutstanding    decimal.Decimal `json:"net_outstanding"`
}

// Dashboard computes the overview counters and money totals. NetOutstanding
// sums the loans' persisted NetPrincipal, so it reflects the same figures the
// loan list shows.
func (l *Ledger) Dashboard() (*DashboardSummary, error) {
	customers, err := l.storage.GetAllCustomers()
	if err != nil {
		return nil, err
	}
	loans, err := l.storage.GetAllLoans()
	if err != nil {
		return nil, err
	}
	txs, err := l.storage.GetAllTransactions()
	if err != nil {
		return nil, err
	}

	summary := &DashboardSummary{
		TotalCustomers:    len(customers),
		TotalLoans:        len(loans),
		TotalTransactions: len(txs),
		TotalDisbursed:    decimal.Zero,
		TotalReceived:     decimal.Zero,
		NetOutstanding:    decimal.Zero,
	}
	for _, t := range txs {
		switch t.Type {
		case models.TransactionTypeDebit:
			summary.TotalDisbursed = summary.TotalDisbursed.Add(t.Amount)
		case models.TransactionTypeCredit:
			summary.TotalReceived = summary.TotalReceived.Add(t.Amount)
		}
	}
	for _, loan := range loans {
		summary.NetOutstanding = summary.NetOutstanding.Add(loan.NetPrincipal)
	}
	return summary, nil
}

// GetRates returns the shop rates.
func (l *Ledger) GetRates() (*models.Rates, error) {
	return l.storage.GetRates()
}

// UpdateRates overwrites the shop rates.
func (l *Ledger) UpdateRates(rates *models.Rates) error {
	return l.storage.UpdateRates(rates)
}

func normalizeCollateral(items []models.CollateralItem) []models.CollateralItem {
	out := make([]models.CollateralItem, 0, len(items))
	for _, item := range items {
		item.NetWeight = item.Weight.Mul(item.Purity).Div(decimal.NewFromInt(100))
		out = append(out, item)
	}
	return out
}

func removeByLabel(items []models.CollateralItem, labels []string) []models.CollateralItem {
	returned := make(map[string]bool, len(labels))
	for _, label := range labels {
		if label = strings.TrimSpace(label); label != "" {
			returned[label] = true
		}
	}
	remaining := make([]models.CollateralItem, 0, len(items))
	for _, item := range items {
		if !returned[CollateralItemLabel(item)] {
			remaining = append(remaining, item)
		}
	}
	return remaining
}

func returnedLabelsFromTransactions(txs []*models.Transaction) []string {
	var labels []string
	for _, t := range txs {
		if t.Type != models.TransactionTypeReturnItems {
			continue
		}
		labels = append(labels, ParseReturnedLabels(t.Description)...)
	}
	return labels
}

// ParseReturnedLabels extracts item labels from a return_items description of
// the form "Returned: <label>, <label>".
func ParseReturnedLabels(description string) []string {
	payload := description
	if idx := strings.Index(description, ":"); idx >= 0 {
		payload = description[idx+1:]
	}
	var labels []string
	for _, part := range strings.Split(payload, ",") {
		if part = strings.TrimSpace(part); part != "" {
			labels = append(labels, part)
		}
	}
	return labels
}

// CollateralItemLabel builds the display label a collateral item is matched
// by in return_items descriptions, e.g. "Gold Chain 10.5g [P91.6]". The label
// is rebuilt from item fields on demand and never stored.
func CollateralItemLabel(item models.CollateralItem) string {
	var parts []string
	if item.MetalType != "" {
		metal := string(item.MetalType)
		parts = append(parts, strings.ToUpper(metal[:1])+metal[1:])
	}
	if item.Name != "" {
		parts = append(parts, item.Name)
	}
	if item.Weight.IsPositive() {
		parts = append(parts, trimZeros(item.Weight)+"g")
	}
	if item.Purity.IsPositive() {
		parts = append(parts, "[P"+trimZeros(item.Purity)+"]")
	}
	return strings.Join(parts, " ")
}

// FormatCollateralItems renders a loan's collateral as a comma-joined label
// list for transaction descriptions and CSV exports.
func FormatCollateralItems(items []models.CollateralItem) string {
	if len(items) == 0 {
		return "No collateral"
	}
	labels := make([]string, 0, len(items))
	for _, item := range items {
		labels = append(labels, CollateralItemLabel(item))
	}
	return strings.Join(labels, ", ")
}

func trimZeros(d decimal.Decimal) string {
	s := d.String()
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimRight(s, ".")
	}
	return s
}
