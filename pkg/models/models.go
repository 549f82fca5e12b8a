package models

import (
	"github.com/shopspring/decimal"
)

// Customer is a borrower. IDs are small monotonically assigned integers,
// caller-owned (the ledger hands them out from a persisted counter).
type Customer struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	FatherName string `json:"father_name"`
	Address    string `json:"address"`
}

type MetalType string

const (
	MetalGold   MetalType = "gold"
	MetalSilver MetalType = "silver"
)

// CollateralItem describes one pledged item held against a loan.
type CollateralItem struct {
	Name      string          `json:"name"`
	MetalType MetalType       `json:"metal_type"`
	Weight    decimal.Decimal `json:"weight"` // grams
	Purity    decimal.Decimal `json:"purity"` // percent
	NetWeight decimal.Decimal `json:"net_weight"`
}

type Loan struct {
	ID              int64            `json:"id"`
	CustomerID      int64            `json:"customer_id"`
	InterestRate    decimal.Decimal  `json:"interest_rate"` // percent; basis (annual/monthly) is a deployment setting
	CollateralItems []CollateralItem `json:"collateral_items"`
	LoanDate        string           `json:"loan_date"` // ISO date (YYYY-MM-DD)

	// Derived by the finance engine after every transaction change.
	NetPrincipal decimal.Decimal `json:"net_principal"`
	AsOfDate     string          `json:"as_of_date"` // last date the principal balance moved
}

type TransactionType string

const (
	// TransactionTypeDebit is a disbursement: it increases principal owed.
	TransactionTypeDebit TransactionType = "debit"
	// TransactionTypeCredit is a repayment: interest first, then principal.
	TransactionTypeCredit TransactionType = "credit"
	// TransactionTypeCollateral records the pledged items at loan creation.
	// Zero amount, no ledger effect.
	TransactionTypeCollateral TransactionType = "collateral"
	// TransactionTypeReturnItems records collateral handed back to the
	// customer. Zero amount; the description lists the returned item labels.
	TransactionTypeReturnItems TransactionType = "return_items"
)

type Transaction struct {
	ID          int64           `json:"id"`
	LoanID      int64           `json:"loan_id"`
	Type        TransactionType `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Note        string          `json:"note"`
	Date        string          `json:"date"` // ISO date (YYYY-MM-DD), no time component
}

// Rates holds the shop-wide metal rates and the fallback interest rate used
// when a loan is created without one.
type Rates struct {
	GoldRate            decimal.Decimal `json:"gold_rate"`
	SilverRate          decimal.Decimal `json:"silver_rate"`
	DefaultInterestRate decimal.Decimal `json:"default_interest_rate"`
}
