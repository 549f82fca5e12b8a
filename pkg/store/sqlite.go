package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"

	"ledgerbook/pkg/models"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore manages the database connection and operations for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLiteStore and initializes the database.
func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	// Manually enable foreign keys and WAL mode
	_, err = db.Exec("PRAGMA foreign_keys = ON;")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	_, err = db.Exec("PRAGMA journal_mode = WAL;")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	log.Println("Database connection established and schema initialized.")
	return s, nil
}

// initSchema creates the database tables if they don't already exist.
// Decimal fields use TEXT in SQLite to ensure no precision is lost; dates are
// ISO strings because the finance engine works on calendar dates, not
// timestamps.
func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS customers (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		father_name TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT ''
	);
	CREATE TABLE IF NOT EXISTS loans (
		id INTEGER PRIMARY KEY,
		customer_id INTEGER NOT NULL,
		interest_rate TEXT NOT NULL DEFAULT '0',
		collateral_items TEXT NOT NULL DEFAULT '[]',
		loan_date TEXT NOT NULL DEFAULT '',
		net_principal TEXT NOT NULL DEFAULT '0',
		as_of_date TEXT NOT NULL DEFAULT '',
		FOREIGN KEY(customer_id) REFERENCES customers(id)
	);
	CREATE TABLE IF NOT EXISTS transactions (
		id INTEGER PRIMARY KEY,
		loan_id INTEGER NOT NULL,
		type TEXT NOT NULL,
		amount TEXT NOT NULL DEFAULT '0',
		description TEXT NOT NULL DEFAULT '',
		note TEXT NOT NULL DEFAULT '',
		date TEXT NOT NULL,
		FOREIGN KEY(loan_id) REFERENCES loans(id)
	);
	CREATE TABLE IF NOT EXISTS rates (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		gold_rate TEXT NOT NULL DEFAULT '0',
		silver_rate TEXT NOT NULL DEFAULT '0',
		default_interest_rate TEXT NOT NULL DEFAULT '12'
	);
	INSERT OR IGNORE INTO rates (id) VALUES (1);
	CREATE TABLE IF NOT EXISTS counters (
		key TEXT PRIMARY KEY,
		value INTEGER NOT NULL DEFAULT 0
	);
	INSERT OR IGNORE INTO counters (key, value) VALUES ('customers', 0), ('loans', 0), ('transactions', 0);
	`
	_, err := s.db.Exec(schema)
	return err
}

// assignID fills in entity ids: a zero id draws the next value from the
// persisted counter, a preset id bumps the counter past itself so later
// assignments never collide with imported rows.
func (s *SQLiteStore) assignID(key string, id *int64) error {
	if *id == 0 {
		row := s.db.QueryRow(`UPDATE counters SET value = value + 1 WHERE key = ? RETURNING value`, key)
		if err := row.Scan(id); err != nil {
			return fmt.Errorf("failed to assign %s id: %w", key, err)
		}
		return nil
	}
	_, err := s.db.Exec(`UPDATE counters SET value = MAX(value, ?) WHERE key = ?`, *id, key)
	if err != nil {
		return fmt.Errorf("failed to bump %s counter: %w", key, err)
	}
	return nil
}

// CreateCustomer inserts a new customer into the database.
func (s *SQLiteStore) CreateCustomer(customer *models.Customer) error {
	if err := s.assignID("customers", &customer.ID); err != nil {
		return err
	}
	_, err := s.db.Exec(
		`INSERT INTO customers (id, name, father_name, address) VALUES (?, ?, ?, ?)`,
		customer.ID, customer.Name, customer.FatherName, customer.Address,
	)
	if err != nil {
		return fmt.Errorf("failed to create customer: %w", err)
	}
	return nil
}

// GetCustomer retrieves a customer by its ID.
func (s *SQLiteStore) GetCustomer(id int64) (*models.Customer, error) {
	var customer models.Customer
	row := s.db.QueryRow(`SELECT id, name, father_name, address FROM customers WHERE id = ?`, id)
	err := row.Scan(&customer.ID, &customer.Name, &customer.FatherName, &customer.Address)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("customer not found")
		}
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return &customer, nil
}

// UpdateCustomer updates an existing customer in the database.
func (s *SQLiteStore) UpdateCustomer(customer *models.Customer) error {
	result, err := s.db.Exec(
		`UPDATE customers SET name = ?, father_name = ?, address = ? WHERE id = ?`,
		customer.Name, customer.FatherName, customer.Address, customer.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update customer: %w", err)
	}
	return checkFound(result, "customer not found")
}

// DeleteCustomer removes a customer along with their loans and loan
// transactions within a transaction.
func (s *SQLiteStore) DeleteCustomer(id int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`DELETE FROM transactions WHERE loan_id IN (SELECT id FROM loans WHERE customer_id = ?)`, id)
	if err != nil {
		return fmt.Errorf("failed to delete customer loan transactions: %w", err)
	}
	_, err = tx.Exec(`DELETE FROM loans WHERE customer_id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete customer loans: %w", err)
	}
	result, err := tx.Exec(`DELETE FROM customers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete customer: %w", err)
	}
	if err := checkFound(result, "customer not found"); err != nil {
		return err
	}
	return tx.Commit()
}

// GetAllCustomers retrieves all customers.
func (s *SQLiteStore) GetAllCustomers() ([]*models.Customer, error) {
	rows, err := s.db.Query(`SELECT id, name, father_name, address FROM customers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all customers: %w", err)
	}
	defer rows.Close()

	var customers []*models.Customer
	for rows.Next() {
		var customer models.Customer
		if err := rows.Scan(&customer.ID, &customer.Name, &customer.FatherName, &customer.Address); err != nil {
			return nil, fmt.Errorf("failed to scan customer row: %w", err)
		}
		customers = append(customers, &customer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return customers, nil
}

// FindCustomerByName retrieves the first customer with a case-insensitive
// name match, used by CSV import to link transactions to existing customers.
func (s *SQLiteStore) FindCustomerByName(name string) (*models.Customer, error) {
	var customer models.Customer
	row := s.db.QueryRow(
		`SELECT id, name, father_name, address FROM customers WHERE LOWER(TRIM(name)) = LOWER(TRIM(?)) ORDER BY id LIMIT 1`,
		name,
	)
	err := row.Scan(&customer.ID, &customer.Name, &customer.FatherName, &customer.Address)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("customer not found")
		}
		return nil, fmt.Errorf("failed to find customer by name: %w", err)
	}
	return &customer, nil
}

// CreateLoan inserts a new loan into the database.
func (s *SQLiteStore) CreateLoan(loan *models.Loan) error {
	if err := s.assignID("loans", &loan.ID); err != nil {
		return err
	}
	items, err := marshalCollateral(loan.CollateralItems)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO loans (id, customer_id, interest_rate, collateral_items, loan_date, net_principal, as_of_date)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		loan.ID, loan.CustomerID, loan.InterestRate, items, loan.LoanDate, loan.NetPrincipal, loan.AsOfDate,
	)
	if err != nil {
		return fmt.Errorf("failed to create loan: %w", err)
	}
	return nil
}

// GetLoan retrieves a loan by its ID.
func (s *SQLiteStore) GetLoan(id int64) (*models.Loan, error) {
	row := s.db.QueryRow(
		`SELECT id, customer_id, interest_rate, collateral_items, loan_date, net_principal, as_of_date FROM loans WHERE id = ?`,
		id,
	)
	loan, err := scanLoan(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("loan not found")
		}
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}
	return loan, nil
}

// UpdateLoan updates an existing loan in the database.
func (s *SQLiteStore) UpdateLoan(loan *models.Loan) error {
	items, err := marshalCollateral(loan.CollateralItems)
	if err != nil {
		return err
	}
	result, err := s.db.Exec(
		`UPDATE loans SET customer_id = ?, interest_rate = ?, collateral_items = ?, loan_date = ?, net_principal = ?, as_of_date = ? WHERE id = ?`,
		loan.CustomerID, loan.InterestRate, items, loan.LoanDate, loan.NetPrincipal, loan.AsOfDate, loan.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update loan: %w", err)
	}
	return checkFound(result, "loan not found")
}

// DeleteLoan removes a loan and its transactions from the database within a transaction.
func (s *SQLiteStore) DeleteLoan(id int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`DELETE FROM transactions WHERE loan_id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete associated transactions: %w", err)
	}
	result, err := tx.Exec(`DELETE FROM loans WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete loan: %w", err)
	}
	if err := checkFound(result, "loan not found"); err != nil {
		return err
	}
	return tx.Commit()
}

// GetAllLoans retrieves all loans.
func (s *SQLiteStore) GetAllLoans() ([]*models.Loan, error) {
	rows, err := s.db.Query(`SELECT id, customer_id, interest_rate, collateral_items, loan_date, net_principal, as_of_date FROM loans ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all loans: %w", err)
	}
	defer rows.Close()
	return scanLoans(rows)
}

// GetLoansForCustomer retrieves all loans belonging to one customer.
func (s *SQLiteStore) GetLoansForCustomer(customerID int64) ([]*models.Loan, error) {
	rows, err := s.db.Query(
		`SELECT id, customer_id, interest_rate, collateral_items, loan_date, net_principal, as_of_date FROM loans WHERE customer_id = ? ORDER BY id`,
		customerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get loans for customer %d: %w", customerID, err)
	}
	defer rows.Close()
	return scanLoans(rows)
}

func scanLoan(scan func(dest ...any) error) (*models.Loan, error) {
	var loan models.Loan
	var items string
	if err := scan(&loan.ID, &loan.CustomerID, &loan.InterestRate, &items, &loan.LoanDate, &loan.NetPrincipal, &loan.AsOfDate); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(items), &loan.CollateralItems); err != nil {
		return nil, fmt.Errorf("failed to decode collateral items: %w", err)
	}
	return &loan, nil
}

func scanLoans(rows *sql.Rows) ([]*models.Loan, error) {
	var loans []*models.Loan
	for rows.Next() {
		loan, err := scanLoan(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan loan row: %w", err)
		}
		loans = append(loans, loan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return loans, nil
}

func marshalCollateral(items []models.CollateralItem) (string, error) {
	if items == nil {
		items = []models.CollateralItem{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("failed to encode collateral items: %w", err)
	}
	return string(b), nil
}

// CreateTransaction inserts a new transaction into the database.
func (s *SQLiteStore) CreateTransaction(transaction *models.Transaction) error {
	if err := s.assignID("transactions", &transaction.ID); err != nil {
		return err
	}
	_, err := s.db.Exec(
		`INSERT INTO transactions (id, loan_id, type, amount, description, note, date)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		transaction.ID, transaction.LoanID, transaction.Type, transaction.Amount, transaction.Description, transaction.Note, transaction.Date,
	)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

// GetTransaction retrieves a transaction by its ID.
func (s *SQLiteStore) GetTransaction(id int64) (*models.Transaction, error) {
	var transaction models.Transaction
	row := s.db.QueryRow(
		`SELECT id, loan_id, type, amount, description, note, date FROM transactions WHERE id = ?`, id,
	)
	err := row.Scan(&transaction.ID, &transaction.LoanID, &transaction.Type, &transaction.Amount, &transaction.Description, &transaction.Note, &transaction.Date)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("transaction not found")
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return &transaction, nil
}

// UpdateTransaction updates an existing transaction in the database.
func (s *SQLiteStore) UpdateTransaction(transaction *models.Transaction) error {
	result, err := s.db.Exec(
		`UPDATE transactions SET loan_id = ?, type = ?, amount = ?, description = ?, note = ?, date = ? WHERE id = ?`,
		transaction.LoanID, transaction.Type, transaction.Amount, transaction.Description, transaction.Note, transaction.Date, transaction.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	return checkFound(result, "transaction not found")
}

// DeleteTransaction removes a transaction from the database.
func (s *SQLiteStore) DeleteTransaction(id int64) error {
	result, err := s.db.Exec(`DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	return checkFound(result, "transaction not found")
}

// GetAllTransactions retrieves all transactions.
func (s *SQLiteStore) GetAllTransactions() ([]*models.Transaction, error) {
	rows, err := s.db.Query(`SELECT id, loan_id, type, amount, description, note, date FROM transactions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all transactions: %w", err)
	}
	defer rows.Close()
	return scanTransactions(rows)
}

// GetTransactionsForLoan retrieves all transactions for a given loan ID.
func (s *SQLiteStore) GetTransactionsForLoan(loanID int64) ([]*models.Transaction, error) {
	rows, err := s.db.Query(
		`SELECT id, loan_id, type, amount, description, note, date FROM transactions WHERE loan_id = ? ORDER BY date ASC, id ASC`,
		loanID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions for loan %d: %w", loanID, err)
	}
	defer rows.Close()
	return scanTransactions(rows)
}

func scanTransactions(rows *sql.Rows) ([]*models.Transaction, error) {
	var transactions []*models.Transaction
	for rows.Next() {
		var transaction models.Transaction
		if err := rows.Scan(&transaction.ID, &transaction.LoanID, &transaction.Type, &transaction.Amount, &transaction.Description, &transaction.Note, &transaction.Date); err != nil {
			return nil, fmt.Errorf("failed to scan transaction row: %w", err)
		}
		transactions = append(transactions, &transaction)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for loan transactions: %w", err)
	}
	return transactions, nil
}

// GetRates retrieves the single shop rates row.
func (s *SQLiteStore) GetRates() (*models.Rates, error) {
	var rates models.Rates
	row := s.db.QueryRow(`SELECT gold_rate, silver_rate, default_interest_rate FROM rates WHERE id = 1`)
	if err := row.Scan(&rates.GoldRate, &rates.SilverRate, &rates.DefaultInterestRate); err != nil {
		return nil, fmt.Errorf("failed to get rates: %w", err)
	}
	return &rates, nil
}

// UpdateRates overwrites the shop rates row.
func (s *SQLiteStore) UpdateRates(rates *models.Rates) error {
	_, err := s.db.Exec(
		`UPDATE rates SET gold_rate = ?, silver_rate = ?, default_interest_rate = ? WHERE id = 1`,
		rates.GoldRate, rates.SilverRate, rates.DefaultInterestRate,
	)
	if err != nil {
		return fmt.Errorf("failed to update rates: %w", err)
	}
	return nil
}

// ReplaceAll swaps the full dataset in one transaction, used by backup restore.
func (s *SQLiteStore) ReplaceAll(customers []*models.Customer, loans []*models.Loan, transactions []*models.Transaction, rates *models.Rates) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"transactions", "loans", "customers"} {
		if _, err := tx.Exec(`DELETE FROM ` + table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	maxCustomer, maxLoan, maxTransaction := int64(0), int64(0), int64(0)
	for _, c := range customers {
		if _, err := tx.Exec(
			`INSERT INTO customers (id, name, father_name, address) VALUES (?, ?, ?, ?)`,
			c.ID, c.Name, c.FatherName, c.Address,
		); err != nil {
			return fmt.Errorf("failed to restore customer %d: %w", c.ID, err)
		}
		if c.ID > maxCustomer {
			maxCustomer = c.ID
		}
	}
	for _, l := range loans {
		items, err := marshalCollateral(l.CollateralItems)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(
			`INSERT INTO loans (id, customer_id, interest_rate, collateral_items, loan_date, net_principal, as_of_date)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			l.ID, l.CustomerID, l.InterestRate, items, l.LoanDate, l.NetPrincipal, l.AsOfDate,
		); err != nil {
			return fmt.Errorf("failed to restore loan %d: %w", l.ID, err)
		}
		if l.ID > maxLoan {
			maxLoan = l.ID
		}
	}
	for _, t := range transactions {
		if _, err := tx.Exec(
			`INSERT INTO transactions (id, loan_id, type, amount, description, note, date)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.LoanID, t.Type, t.Amount, t.Description, t.Note, t.Date,
		); err != nil {
			return fmt.Errorf("failed to restore transaction %d: %w", t.ID, err)
		}
		if t.ID > maxTransaction {
			maxTransaction = t.ID
		}
	}
	if rates != nil {
		if _, err := tx.Exec(
			`UPDATE rates SET gold_rate = ?, silver_rate = ?, default_interest_rate = ? WHERE id = 1`,
			rates.GoldRate, rates.SilverRate, rates.DefaultInterestRate,
		); err != nil {
			return fmt.Errorf("failed to restore rates: %w", err)
		}
	}

	for key, max := range map[string]int64{"customers": maxCustomer, "loans": maxLoan, "transactions": maxTransaction} {
		if _, err := tx.Exec(`UPDATE counters SET value = ? WHERE key = ?`, max, key); err != nil {
			return fmt.Errorf("failed to reset %s counter: %w", key, err)
		}
	}

	return tx.Commit()
}

func checkFound(result sql.Result, notFound string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s", notFound)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
