package store

import (
	"ledgerbook/pkg/models"
)

// Storage defines the persistence operations for customers, loans,
// transactions and shop rates. Create calls assign the next id from a
// persisted counter when the entity's ID is zero; a nonzero ID is kept as-is
// (imports and restores carry their own ids) and the counter is bumped past it.
type Storage interface {
	CreateCustomer(customer *models.Customer) error
	GetCustomer(id int64) (*models.Customer, error)
	UpdateCustomer(customer *models.Customer) error
	DeleteCustomer(id int64) error
	GetAllCustomers() ([]*models.Customer, error)
	FindCustomerByName(name string) (*models.Customer, error)

	CreateLoan(loan *models.Loan) error
	GetLoan(id int64) (*models.Loan, error)
	UpdateLoan(loan *models.Loan) error
	DeleteLoan(id int64) error
	GetAllLoans() ([]*models.Loan, error)
	GetLoansForCustomer(customerID int64) ([]*models.Loan, error)

	CreateTransaction(transaction *models.Transaction) error
	GetTransaction(id int64) (*models.Transaction, error)
	UpdateTransaction(transaction *models.Transaction) error
	DeleteTransaction(id int64) error
	GetAllTransactions() ([]*models.Transaction, error)
	GetTransactionsForLoan(loanID int64) ([]*models.Transaction, error)

	GetRates() (*models.Rates, error)
	UpdateRates(rates *models.Rates) error

	// ReplaceAll swaps the entire dataset, used by backup restore.
	ReplaceAll(customers []*models.Customer, loans []*models.Loan, transactions []*models.Transaction, rates *models.Rates) error

	Close() error
}
