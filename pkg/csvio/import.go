package csvio

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ledgerbook/pkg/finance"
	"ledgerbook/pkg/ledger"
	"ledgerbook/pkg/models"
)

// ImportResult reports what one import batch brought in.
type ImportResult struct {
	BatchID          uuid.UUID `json:"batch_id"`
	Imported         int       `json:"imported"`
	LoansCreated     int       `json:"loans_created"`
	CustomersCreated int       `json:"customers_created"`
	SkippedRows      int       `json:"skipped_rows"`
}

// ImportCustomers reads a customers CSV and appends its rows. A row's preset
// id is kept; a missing id draws the next from the store's counter.
func ImportCustomers(l *ledger.Ledger, r io.Reader) (*ImportResult, error) {
	records, _, err := readRecords(r)
	if err != nil {
		return nil, err
	}
	result := &ImportResult{BatchID: uuid.New()}
	for _, values := range records {
		if len(values) < 4 {
			result.SkippedRows++
			continue
		}
		id, _ := strconv.ParseInt(strings.TrimSpace(values[0]), 10, 64)
		customer := &models.Customer{ID: id, Name: values[1], FatherName: values[2], Address: values[3]}
		if err := l.Storage().CreateCustomer(customer); err != nil {
			return nil, fmt.Errorf("failed to import customer: %w", err)
		}
		result.Imported++
		result.CustomersCreated++
	}
	return result, nil
}

// ImportLoans reads a loans CSV and appends its rows. Collateral details are
// not representable in the loans CSV, so each imported loan gets a single
// placeholder item to be edited afterwards.
func ImportLoans(l *ledger.Ledger, r io.Reader) (*ImportResult, error) {
	records, _, err := readRecords(r)
	if err != nil {
		return nil, err
	}
	result := &ImportResult{BatchID: uuid.New()}
	today := finance.CurrentDate()
	for _, values := range records {
		if len(values) < 6 {
			result.SkippedRows++
			continue
		}
		id, _ := strconv.ParseInt(strings.TrimSpace(values[0]), 10, 64)
		customerID, err := strconv.ParseInt(strings.TrimSpace(values[1]), 10, 64)
		if err != nil {
			result.SkippedRows++
			continue
		}
		weight := lenientDecimal(values[5])
		loan := &models.Loan{
			ID:           id,
			CustomerID:   customerID,
			InterestRate: lenientDecimal(values[3]),
			CollateralItems: []models.CollateralItem{{
				Name:      "Imported Item",
				MetalType: models.MetalGold,
				Weight:    weight,
				Purity:    decimal.NewFromFloat(91.6),
				NetWeight: weight,
			}},
			LoanDate:     today,
			NetPrincipal: decimal.Zero,
			AsOfDate:     today,
		}
		if err := l.Storage().CreateLoan(loan); err != nil {
			return nil, fmt.Errorf("failed to import loan: %w", err)
		}
		result.Imported++
		result.LoansCreated++
	}
	return result, nil
}

// ImportTransactions reads a transactions CSV and appends its rows, creating
// any loan or customer a row references that does not exist yet. Missing loans
// get the shop's default interest rate; missing customers are matched by name
// first and otherwise created as "Customer-<loanID>" placeholders. Every
// affected loan's dues are refreshed at the end.
func ImportTransactions(l *ledger.Ledger, r io.Reader) (*ImportResult, error) {
	records, headers, err := readRecords(r)
	if err != nil {
		return nil, err
	}

	col := make(map[string]int, len(headers))
	for i, h := range headers {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	idxID, okID := col["transaction id"]
	idxLoanID, okLoanID := col["loan id"]
	idxName, okName := col["customer name"]
	idxType, okType := col["type"]
	idxAmount, okAmount := col["amount"]
	idxDescription, okDescription := col["description"]
	idxDate, okDate := col["date"]
	if !okLoanID || !okType || !okAmount || !okDate {
		return nil, fmt.Errorf("transactions CSV must have Loan ID, Type, Amount and Date columns")
	}

	result := &ImportResult{BatchID: uuid.New()}
	affected := make(map[int64]bool)
	field := func(values []string, idx int) string {
		if idx < 0 || idx >= len(values) {
			return ""
		}
		return values[idx]
	}

	for _, values := range records {
		loanID, err := strconv.ParseInt(strings.TrimSpace(field(values, idxLoanID)), 10, 64)
		if err != nil || loanID <= 0 {
			result.SkippedRows++
			continue
		}
		typ := models.TransactionType(strings.ToLower(strings.TrimSpace(field(values, idxType))))
		description := ""
		if okDescription {
			description = field(values, idxDescription)
		}
		date := strings.TrimSpace(field(values, idxDate))

		loan, err := l.GetLoan(loanID)
		if err != nil {
			name := ""
			if okName {
				name = strings.TrimSpace(field(values, idxName))
			}
			customerID, created, err := resolveCustomer(l, name, loanID)
			if err != nil {
				return nil, err
			}
			if created {
				result.CustomersCreated++
			}
			rates, err := l.GetRates()
			if err != nil {
				return nil, fmt.Errorf("failed to load default rate: %w", err)
			}
			loan = &models.Loan{
				ID:           loanID,
				CustomerID:   customerID,
				InterestRate: rates.DefaultInterestRate,
				LoanDate:     date,
				NetPrincipal: decimal.Zero,
				AsOfDate:     date,
			}
			if err := l.Storage().CreateLoan(loan); err != nil {
				return nil, fmt.Errorf("failed to create loan %d: %w", loanID, err)
			}
			result.LoansCreated++
		}

		var txID int64
		if okID {
			txID, _ = strconv.ParseInt(strings.TrimSpace(field(values, idxID)), 10, 64)
		}
		transaction := &models.Transaction{
			ID:          txID,
			LoanID:      loanID,
			Type:        typ,
			Amount:      lenientDecimal(field(values, idxAmount)),
			Description: sanitizeDescription(description),
			Date:        date,
		}
		if err := l.Storage().CreateTransaction(transaction); err != nil {
			return nil, fmt.Errorf("failed to import transaction: %w", err)
		}
		result.Imported++
		affected[loanID] = true

		// A collateral row's description is the only record of the pledged
		// items, so map it onto the loan as name-only placeholders.
		if typ == models.TransactionTypeCollateral && description != "" {
			var items []models.CollateralItem
			for _, part := range strings.Split(description, ",") {
				if part = strings.TrimSpace(part); part != "" {
					items = append(items, models.CollateralItem{Name: part, MetalType: models.MetalGold})
				}
			}
			if len(items) > 0 {
				loan.CollateralItems = items
				if err := l.Storage().UpdateLoan(loan); err != nil {
					return nil, fmt.Errorf("failed to update loan %d collateral: %w", loanID, err)
				}
			}
		}
	}

	for loanID := range affected {
		if err := l.RefreshLoanDues(loanID); err != nil {
			return nil, fmt.Errorf("failed to refresh loan %d after import: %w", loanID, err)
		}
	}
	return result, nil
}

// readRecords parses a CSV (BOM tolerated) and returns its data rows and
// header row.
func readRecords(r io.Reader) ([][]string, []string, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	text := strings.TrimPrefix(string(content), bom)

	cr := csv.NewReader(strings.NewReader(text))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	all, err := cr.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse CSV: %w", err)
	}
	if len(all) == 0 {
		return nil, nil, fmt.Errorf("CSV has no header row")
	}
	return all[1:], all[0], nil
}

func resolveCustomer(l *ledger.Ledger, name string, loanID int64) (int64, bool, error) {
	if name != "" {
		if customer, err := l.Storage().FindCustomerByName(name); err == nil {
			return customer.ID, false, nil
		}
	} else {
		name = fmt.Sprintf("Customer-%d", loanID)
	}
	customer := &models.Customer{Name: name}
	if err := l.Storage().CreateCustomer(customer); err != nil {
		return 0, false, fmt.Errorf("failed to create customer %q: %w", name, err)
	}
	return customer.ID, true, nil
}

// lenientDecimal parses a money or rate field, treating anything unparseable
// as zero so one bad cell does not abort the batch.
func lenientDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}

var (
	zeroItemRe    = regexp.MustCompile(`(?i)\b0g\s*\(0%\)`)
	doubleCommaRe = regexp.MustCompile(`\s*,\s*,`)
	multiSpaceRe  = regexp.MustCompile(`\s{2,}`)
	edgeJunkRe    = regexp.MustCompile(`^[,\s]+|[,\s]+$`)
)

// sanitizeDescription strips empty "0g (0%)" item fragments and the comma
// debris they leave behind in exported descriptions.
func sanitizeDescription(text string) string {
	if text == "" {
		return ""
	}
	out := zeroItemRe.ReplaceAllString(text, "")
	out = doubleCommaRe.ReplaceAllString(out, ", ")
	out = multiSpaceRe.ReplaceAllString(out, " ")
	out = edgeJunkRe.ReplaceAllString(out, "")
	return strings.TrimSpace(out)
}
