// Package csvio reads and writes the ledger's CSV interchange format. Exports
// carry a UTF-8 BOM so spreadsheet tools detect the encoding; imports are
// lenient about column order and malformed numbers so hand-edited sheets load.
package csvio

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"ledgerbook/pkg/ledger"
	"ledgerbook/pkg/models"
)

const bom = "\ufeff"

// CustomerHeaders is the column layout of the customers CSV.
var CustomerHeaders = []string{"ID", "Name", "Father Name", "Address"}

// LoanHeaders is the column layout of the loans CSV.
var LoanHeaders = []string{"Loan ID", "Customer ID", "Customer Name", "Interest Rate", "Collateral Items", "Net Due"}

// TransactionHeaders is the column layout of the transactions CSV.
var TransactionHeaders = []string{"Transaction ID", "Loan ID", "Customer Name", "Type", "Amount", "Description", "Date"}

func writeCSV(w io.Writer, headers []string, rows [][]string) error {
	if _, err := io.WriteString(w, bom); err != nil {
		return fmt.Errorf("failed to write BOM: %w", err)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(headers); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}
	for _, row := range rows {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportCustomers writes all customers as CSV.
func ExportCustomers(l *ledger.Ledger, w io.Writer) error {
	customers, err := l.GetAllCustomers()
	if err != nil {
		return err
	}
	rows := make([][]string, 0, len(customers))
	for _, c := range customers {
		rows = append(rows, []string{
			strconv.FormatInt(c.ID, 10), c.Name, c.FatherName, c.Address,
		})
	}
	return writeCSV(w, CustomerHeaders, rows)
}

// ExportLoans writes all loans as CSV. Net Due is the loan's total due as of
// today, principal plus accrued interest.
func ExportLoans(l *ledger.Ledger, w io.Writer) error {
	loans, err := l.GetAllLoans()
	if err != nil {
		return err
	}
	rows := make([][]string, 0, len(loans))
	for _, loan := range loans {
		dues, err := l.LoanDues(loan.ID, "")
		if err != nil {
			return fmt.Errorf("failed to compute dues for loan %d: %w", loan.ID, err)
		}
		rows = append(rows, []string{
			strconv.FormatInt(loan.ID, 10),
			strconv.FormatInt(loan.CustomerID, 10),
			customerName(l, loan.CustomerID),
			loan.InterestRate.String(),
			ledger.FormatCollateralItems(loan.CollateralItems),
			dues.TotalDue.StringFixed(2),
		})
	}
	return writeCSV(w, LoanHeaders, rows)
}

// ExportTransactions writes all transactions as CSV, with an extra synthesized
// COLLATERAL row for any loan whose pledged items never got a collateral
// transaction (data that predates collateral records).
func ExportTransactions(l *ledger.Ledger, w io.Writer) error {
	loans, err := l.GetAllLoans()
	if err != nil {
		return err
	}
	txs, err := l.GetAllTransactions()
	if err != nil {
		return err
	}

	loansByID := make(map[int64]*models.Loan, len(loans))
	hasCollateralTx := make(map[int64]bool)
	for _, loan := range loans {
		loansByID[loan.ID] = loan
	}

	rows := make([][]string, 0, len(txs))
	for _, t := range txs {
		if t.Type == models.TransactionTypeCollateral {
			hasCollateralTx[t.LoanID] = true
		}
		name := "Unknown"
		if loan, ok := loansByID[t.LoanID]; ok {
			name = customerName(l, loan.CustomerID)
		}
		rows = append(rows, []string{
			strconv.FormatInt(t.ID, 10),
			strconv.FormatInt(t.LoanID, 10),
			name,
			strings.ToUpper(string(t.Type)),
			t.Amount.String(),
			t.Description,
			t.Date,
		})
	}
	for _, loan := range loans {
		description := ledger.FormatCollateralItems(loan.CollateralItems)
		if hasCollateralTx[loan.ID] || description == "No collateral" {
			continue
		}
		rows = append(rows, []string{
			"", strconv.FormatInt(loan.ID, 10), customerName(l, loan.CustomerID), "COLLATERAL", "", description, "",
		})
	}
	return writeCSV(w, TransactionHeaders, rows)
}

func customerName(l *ledger.Ledger, customerID int64) string {
	customer, err := l.GetCustomer(customerID)
	if err != nil {
		return "Unknown"
	}
	return customer.Name
}
