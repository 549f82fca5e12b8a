package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"ledgerbook/pkg/backup"
	"ledgerbook/pkg/csvio"
	"ledgerbook/pkg/finance"
	"ledgerbook/pkg/ledger"
	"ledgerbook/pkg/models"
	"ledgerbook/pkg/store"
)

// Server holds the ledger instance.
type Server struct {
	ledger    *ledger.Ledger
	storage   store.Storage // Keep a reference to the storage to close it
	backupDir string
}

func NewServer(s store.Storage, basis finance.Basis, backupDir string) *Server {
	return &Server{
		ledger:    ledger.NewLedger(s, basis),
		storage:   s,
		backupDir: backupDir,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// pathID pulls the numeric {id} route variable. A second return of false
// means the response has already been written.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func respondError(w http.ResponseWriter, err error, notFound string) {
	if err.Error() == notFound {
		http.Error(w, err.Error(), http.StatusNotFound)
	} else {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// --- Customers ---

func (s *Server) createCustomerHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name       string `json:"name"`
		FatherName string `json:"father_name"`
		Address    string `json:"address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	customer, err := s.ledger.CreateCustomer(req.Name, req.FatherName, req.Address)
	if err != nil {
		log.Printf("Error creating customer: %v\n", err)
		http.Error(w, fmt.Sprintf("Failed to create customer: %v", err), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, customer)
}

func (s *Server) getCustomerHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	customer, err := s.ledger.GetCustomer(id)
	if err != nil {
		respondError(w, err, "customer not found")
		return
	}
	writeJSON(w, http.StatusOK, customer)
}

func (s *Server) listCustomersHandler(w http.ResponseWriter, r *http.Request) {
	customers, err := s.ledger.GetAllCustomers()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, customers)
}

func (s *Server) updateCustomerHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var customer models.Customer
	if err := json.NewDecoder(r.Body).Decode(&customer); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	customer.ID = id // Ensure ID from URL is used

	if err := s.ledger.UpdateCustomer(&customer); err != nil {
		respondError(w, err, "customer not found")
		return
	}
	writeJSON(w, http.StatusOK, customer)
}

func (s *Server) deleteCustomerHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.ledger.DeleteCustomer(id); err != nil {
		respondError(w, err, "customer not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) customerLoansHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	loans, err := s.ledger.GetLoansForCustomer(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, loans)
}

// --- Loans ---

func (s *Server) createLoanHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CustomerID      int64                   `json:"customer_id"`
		InterestRate    decimal.Decimal         `json:"interest_rate"`
		CollateralItems []models.CollateralItem `json:"collateral_items"`
		LoanDate        string                  `json:"loan_date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	loan, err := s.ledger.CreateLoan(req.CustomerID, req.InterestRate, req.CollateralItems, req.LoanDate)
	if err != nil {
		log.Printf("Error creating loan: %v\n", err)
		http.Error(w, fmt.Sprintf("Failed to create loan: %v", err), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, loan)
}

func (s *Server) getLoanHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	loan, err := s.ledger.GetLoan(id)
	if err != nil {
		respondError(w, err, "loan not found")
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (s *Server) listLoansHandler(w http.ResponseWriter, r *http.Request) {
	loans, err := s.ledger.GetAllLoans()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, loans)
}

func (s *Server) updateLoanHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var loan models.Loan
	if err := json.NewDecoder(r.Body).Decode(&loan); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	loan.ID = id // Ensure ID from URL is used

	if err := s.ledger.UpdateLoan(&loan); err != nil {
		respondError(w, err, "loan not found")
		return
	}

	updated, err := s.ledger.GetLoan(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) deleteLoanHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.ledger.DeleteLoan(id); err != nil {
		respondError(w, err, "loan not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) loanDuesHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	dues, err := s.ledger.LoanDues(id, r.URL.Query().Get("as_of"))
	if err != nil {
		respondError(w, err, "loan not found")
		return
	}
	writeJSON(w, http.StatusOK, dues)
}

func (s *Server) loanScheduleHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	schedule, err := s.ledger.LoanSchedule(id, r.URL.Query().Get("as_of"))
	if err != nil {
		respondError(w, err, "loan not found")
		return
	}
	writeJSON(w, http.StatusOK, schedule)
}

// --- Transactions ---

func (s *Server) recordTransactionHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Type          models.TransactionType `json:"type"`
		Amount        decimal.Decimal        `json:"amount"`
		Note          string                 `json:"note"`
		Date          string                 `json:"date"`
		ReturnedItems []string               `json:"returned_items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	tx, err := s.ledger.RecordTransaction(id, req.Type, req.Amount, req.Note, req.Date, req.ReturnedItems)
	if err != nil {
		if err.Error() == "loan not found" {
			http.Error(w, err.Error(), http.StatusNotFound)
		} else {
			http.Error(w, fmt.Sprintf("Failed to record transaction: %v", err), http.StatusBadRequest)
		}
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (s *Server) loanTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	txs, err := s.ledger.GetLoanTransactions(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

func (s *Server) listTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	txs, err := s.ledger.GetAllTransactions()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

func (s *Server) getTransactionHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	tx, err := s.ledger.GetTransaction(id)
	if err != nil {
		respondError(w, err, "transaction not found")
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) updateTransactionHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var tx models.Transaction
	if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	tx.ID = id // Ensure ID from URL is used

	if err := s.ledger.UpdateTransaction(&tx); err != nil {
		respondError(w, err, "transaction not found")
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) deleteTransactionHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.ledger.DeleteTransaction(id); err != nil {
		respondError(w, err, "transaction not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Dashboard and rates ---

func (s *Server) dashboardHandler(w http.ResponseWriter, r *http.Request) {
	summary, err := s.ledger.Dashboard()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) getRatesHandler(w http.ResponseWriter, r *http.Request) {
	rates, err := s.ledger.GetRates()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rates)
}

func (s *Server) updateRatesHandler(w http.ResponseWriter, r *http.Request) {
	var rates models.Rates
	if err := json.NewDecoder(r.Body).Decode(&rates); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.ledger.UpdateRates(&rates); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rates)
}

// --- CSV export/import ---

func (s *Server) exportHandler(w http.ResponseWriter, r *http.Request) {
	dataType := mux.Vars(r)["type"]

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s_%s.csv", dataType, finance.CurrentDate()))

	var err error
	switch dataType {
	case "customers":
		err = csvio.ExportCustomers(s.ledger, w)
	case "loans":
		err = csvio.ExportLoans(s.ledger, w)
	case "transactions":
		err = csvio.ExportTransactions(s.ledger, w)
	default:
		http.Error(w, "Unknown export type", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("Error exporting %s: %v\n", dataType, err)
	}
}

func (s *Server) importHandler(w http.ResponseWriter, r *http.Request) {
	dataType := mux.Vars(r)["type"]

	var result *csvio.ImportResult
	var err error
	switch dataType {
	case "customers":
		result, err = csvio.ImportCustomers(s.ledger, r.Body)
	case "loans":
		result, err = csvio.ImportLoans(s.ledger, r.Body)
	case "transactions":
		result, err = csvio.ImportTransactions(s.ledger, r.Body)
	default:
		http.Error(w, "Unknown import type", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to import %s: %v", dataType, err), http.StatusBadRequest)
		return
	}

	log.Printf("Import batch %s: %d %s imported, %d loans and %d customers created\n",
		result.BatchID, result.Imported, dataType, result.LoansCreated, result.CustomersCreated)
	writeJSON(w, http.StatusOK, result)
}

// --- Backup and restore ---

func (s *Server) backupHandler(w http.ResponseWriter, r *http.Request) {
	snapshot, err := backup.Take(s.ledger)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	path := backup.SnapshotPath(s.backupDir, time.Now())
	if err := backup.WriteFile(snapshot, path); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	log.Printf("Backup %s written to %s\n", snapshot.BackupID, path)
	writeJSON(w, http.StatusCreated, map[string]any{
		"backup_id":   snapshot.BackupID,
		"export_date": snapshot.ExportDate,
		"path":        path,
	})
}

func (s *Server) restoreHandler(w http.ResponseWriter, r *http.Request) {
	snapshot, err := backup.Read(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := backup.Restore(s.ledger, snapshot); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	log.Printf("Restored backup %s (%d customers, %d loans, %d transactions)\n",
		snapshot.BackupID, len(snapshot.Customers), len(snapshot.Loans), len(snapshot.Transactions))
	writeJSON(w, http.StatusOK, map[string]any{
		"backup_id":    snapshot.BackupID,
		"customers":    len(snapshot.Customers),
		"loans":        len(snapshot.Loans),
		"transactions": len(snapshot.Transactions),
	})
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/customers", s.listCustomersHandler).Methods("GET")
	router.HandleFunc("/customers", s.createCustomerHandler).Methods("POST")
	router.HandleFunc("/customers/{id}", s.getCustomerHandler).Methods("GET")
	router.HandleFunc("/customers/{id}", s.updateCustomerHandler).Methods("PUT")
	router.HandleFunc("/customers/{id}", s.deleteCustomerHandler).Methods("DELETE")
	router.HandleFunc("/customers/{id}/loans", s.customerLoansHandler).Methods("GET")

	router.HandleFunc("/loans", s.listLoansHandler).Methods("GET")
	router.HandleFunc("/loans", s.createLoanHandler).Methods("POST")
	router.HandleFunc("/loans/{id}", s.getLoanHandler).Methods("GET")
	router.HandleFunc("/loans/{id}", s.updateLoanHandler).Methods("PUT")
	router.HandleFunc("/loans/{id}", s.deleteLoanHandler).Methods("DELETE")
	router.HandleFunc("/loans/{id}/dues", s.loanDuesHandler).Methods("GET")
	router.HandleFunc("/loans/{id}/schedule", s.loanScheduleHandler).Methods("GET")
	router.HandleFunc("/loans/{id}/transactions", s.loanTransactionsHandler).Methods("GET")
	router.HandleFunc("/loans/{id}/transactions", s.recordTransactionHandler).Methods("POST")

	router.HandleFunc("/transactions", s.listTransactionsHandler).Methods("GET")
	router.HandleFunc("/transactions/{id}", s.getTransactionHandler).Methods("GET")
	router.HandleFunc("/transactions/{id}", s.updateTransactionHandler).Methods("PUT")
	router.HandleFunc("/transactions/{id}", s.deleteTransactionHandler).Methods("DELETE")

	router.HandleFunc("/dashboard", s.dashboardHandler).Methods("GET")
	router.HandleFunc("/rates", s.getRatesHandler).Methods("GET")
	router.HandleFunc("/rates", s.updateRatesHandler).Methods("PUT")

	router.HandleFunc("/export/{type}.csv", s.exportHandler).Methods("GET")
	router.HandleFunc("/import/{type}.csv", s.importHandler).Methods("POST")

	router.HandleFunc("/backup", s.backupHandler).Methods("POST")
	router.HandleFunc("/restore", s.restoreHandler).Methods("POST")

	return router
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	// .env is optional; flags override env values.
	godotenv.Load()

	addr := flag.String("addr", envOr("LEDGERBOOK_ADDR", ":8080"), "listen address")
	dbPath := flag.String("db", envOr("LEDGERBOOK_DB", "ledgerbook.db"), "SQLite database path")
	basisFlag := flag.String("basis", envOr("LEDGERBOOK_INTEREST_BASIS", "annual"), "interest rate basis: annual or monthly")
	backupDir := flag.String("backup-dir", envOr("LEDGERBOOK_BACKUP_DIR", "backups"), "directory for JSON snapshots")
	backupInterval := flag.Duration("backup-interval", 24*time.Hour, "automatic snapshot interval, 0 disables")
	flag.Parse()

	if v := os.Getenv("LEDGERBOOK_BACKUP_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			log.Fatalf("Invalid LEDGERBOOK_BACKUP_INTERVAL: %v", err)
		}
		*backupInterval = d
	}

	basis := finance.Basis(*basisFlag)
	if !basis.Valid() {
		log.Fatalf("Invalid interest basis %q: must be annual or monthly", *basisFlag)
	}

	sqliteStore, err := store.NewSQLiteStore(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize SQLite store: %v", err)
	}
	defer sqliteStore.Close()

	server := NewServer(sqliteStore, basis, *backupDir)
	router := server.routes()

	// Periodic snapshots of the whole ledger.
	if *backupInterval > 0 {
		go func() {
			ticker := time.NewTicker(*backupInterval)
			defer ticker.Stop()

			for range ticker.C {
				snapshot, err := backup.Take(server.ledger)
				if err != nil {
					log.Printf("Automatic backup failed: %v\n", err)
					continue
				}
				path := backup.SnapshotPath(*backupDir, time.Now())
				if err := backup.WriteFile(snapshot, path); err != nil {
					log.Printf("Automatic backup write failed: %v\n", err)
					continue
				}
				log.Printf("Automatic backup %s written to %s\n", snapshot.BackupID, path)
			}
		}()
	}

	log.Printf("Server starting on %s (interest basis: %s)\n", *addr, basis)
	log.Fatal(http.ListenAndServe(*addr, router))
}
