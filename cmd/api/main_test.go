package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"ledgerbook/pkg/finance"
	"ledgerbook/pkg/models"
	"ledgerbook/pkg/store"
)

func setupTestServer(t *testing.T, dbFile string) (*Server, *mux.Router) {
	t.Helper()
	os.Remove(dbFile)
	t.Cleanup(func() { os.Remove(dbFile) })

	s, err := store.NewSQLiteStore(dbFile)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	server := NewServer(s, finance.BasisAnnual, t.TempDir())
	return server, server.routes()
}

func doJSON(t *testing.T, router *mux.Router, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Buffer
	if payload != nil {
		b, _ := json.Marshal(payload)
		body = bytes.NewBuffer(b)
	} else {
		body = bytes.NewBuffer(nil)
	}
	req := httptest.NewRequest(method, path, body)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func createTestCustomer(t *testing.T, router *mux.Router) models.Customer {
	t.Helper()
	rr := doJSON(t, router, "POST", "/customers", map[string]any{
		"name": "Ramesh", "father_name": "Suresh", "address": "12 Bazaar Road",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201 creating customer, got %d. Body: %s", rr.Code, rr.Body.String())
	}
	var customer models.Customer
	json.Unmarshal(rr.Body.Bytes(), &customer)
	return customer
}

func createTestLoan(t *testing.T, router *mux.Router, customerID int64) models.Loan {
	t.Helper()
	rr := doJSON(t, router, "POST", "/loans", map[string]any{
		"customer_id":   customerID,
		"interest_rate": 12.0,
		"loan_date":     "2024-01-01",
		"collateral_items": []map[string]any{
			{"name": "Chain", "metal_type": "gold", "weight": 10.5, "purity": 91.6},
		},
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201 creating loan, got %d. Body: %s", rr.Code, rr.Body.String())
	}
	var loan models.Loan
	json.Unmarshal(rr.Body.Bytes(), &loan)
	return loan
}

func TestAPI_CreateAndGetLoan(t *testing.T) {
	_, router := setupTestServer(t, "test_api_loan.db")
	customer := createTestCustomer(t, router)
	loan := createTestLoan(t, router, customer.ID)

	rr := doJSON(t, router, "GET", fmt.Sprintf("/loans/%d", loan.ID), nil)
	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}
	var fetched models.Loan
	json.Unmarshal(rr.Body.Bytes(), &fetched)
	if fetched.ID != loan.ID {
		t.Errorf("Expected ID %d, got %d", loan.ID, fetched.ID)
	}
	if !fetched.InterestRate.Equal(decimal.NewFromFloat(12.0)) {
		t.Errorf("Expected interest rate 12, got %s", fetched.InterestRate)
	}
}

func TestAPI_LoanNotFound(t *testing.T) {
	_, router := setupTestServer(t, "test_api_notfound.db")

	rr := doJSON(t, router, "GET", "/loans/99", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rr.Code)
	}
	rr = doJSON(t, router, "GET", "/loans/abc", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for non-numeric id, got %d", rr.Code)
	}
}

func TestAPI_RecordTransactionAndDues(t *testing.T) {
	_, router := setupTestServer(t, "test_api_dues.db")
	customer := createTestCustomer(t, router)
	loan := createTestLoan(t, router, customer.ID)

	rr := doJSON(t, router, "POST", fmt.Sprintf("/loans/%d/transactions", loan.ID), map[string]any{
		"type": "debit", "amount": 10000, "date": "2024-01-01",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d. Body: %s", rr.Code, rr.Body.String())
	}
	rr = doJSON(t, router, "POST", fmt.Sprintf("/loans/%d/transactions", loan.ID), map[string]any{
		"type": "credit", "amount": 1500, "date": "2024-07-01",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d. Body: %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, router, "GET", fmt.Sprintf("/loans/%d/dues?as_of=2025-01-01", loan.ID), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d. Body: %s", rr.Code, rr.Body.String())
	}
	var dues finance.Dues
	json.Unmarshal(rr.Body.Bytes(), &dues)
	if !dues.PrincipalDue.Equal(decimal.RequireFromString("9098.36")) {
		t.Errorf("Expected principal due 9098.36, got %s", dues.PrincipalDue)
	}
	if !dues.InterestDue.Equal(decimal.RequireFromString("550.39")) {
		t.Errorf("Expected interest due 550.39, got %s", dues.InterestDue)
	}

	// The loan list reflects the refreshed net principal.
	rr = doJSON(t, router, "GET", fmt.Sprintf("/loans/%d", loan.ID), nil)
	var updated models.Loan
	json.Unmarshal(rr.Body.Bytes(), &updated)
	if !updated.NetPrincipal.Equal(decimal.RequireFromString("9098.36")) {
		t.Errorf("Expected net principal 9098.36, got %s", updated.NetPrincipal)
	}
}

func TestAPI_Schedule(t *testing.T) {
	_, router := setupTestServer(t, "test_api_schedule.db")
	customer := createTestCustomer(t, router)
	loan := createTestLoan(t, router, customer.ID)

	doJSON(t, router, "POST", fmt.Sprintf("/loans/%d/transactions", loan.ID), map[string]any{
		"type": "debit", "amount": 10000, "date": "2024-01-01",
	})

	rr := doJSON(t, router, "GET", fmt.Sprintf("/loans/%d/schedule?as_of=2024-02-01", loan.ID), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	var schedule finance.Schedule
	json.Unmarshal(rr.Body.Bytes(), &schedule)
	// Collateral entry, debit entry, plus the projection row.
	if len(schedule.Entries) != 2 {
		t.Errorf("Expected 2 schedule entries, got %d", len(schedule.Entries))
	}
	if schedule.Today.Date != "2024-02-01" {
		t.Errorf("Expected projection date 2024-02-01, got %s", schedule.Today.Date)
	}
}

func TestAPI_ReturnItems(t *testing.T) {
	_, router := setupTestServer(t, "test_api_return.db")
	customer := createTestCustomer(t, router)
	loan := createTestLoan(t, router, customer.ID)

	rr := doJSON(t, router, "POST", fmt.Sprintf("/loans/%d/transactions", loan.ID), map[string]any{
		"type":           "return_items",
		"date":           "2024-03-01",
		"returned_items": []string{"Gold Chain 10.5g [P91.6]"},
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d. Body: %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, router, "GET", fmt.Sprintf("/loans/%d", loan.ID), nil)
	var updated models.Loan
	json.Unmarshal(rr.Body.Bytes(), &updated)
	if len(updated.CollateralItems) != 0 {
		t.Errorf("Expected collateral to be returned, %d items remain", len(updated.CollateralItems))
	}
}

func TestAPI_DashboardAndRates(t *testing.T) {
	_, router := setupTestServer(t, "test_api_dash.db")
	customer := createTestCustomer(t, router)
	loan := createTestLoan(t, router, customer.ID)
	doJSON(t, router, "POST", fmt.Sprintf("/loans/%d/transactions", loan.ID), map[string]any{
		"type": "debit", "amount": 5000, "date": "2024-01-01",
	})

	rr := doJSON(t, router, "GET", "/dashboard", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	var summary struct {
		TotalCustomers int             `json:"total_customers"`
		NetOutstanding decimal.Decimal `json:"net_outstanding"`
	}
	json.Unmarshal(rr.Body.Bytes(), &summary)
	if summary.TotalCustomers != 1 {
		t.Errorf("Expected 1 customer, got %d", summary.TotalCustomers)
	}
	if !summary.NetOutstanding.Equal(decimal.NewFromInt(5000)) {
		t.Errorf("Expected outstanding 5000, got %s", summary.NetOutstanding)
	}

	rr = doJSON(t, router, "PUT", "/rates", map[string]any{
		"gold_rate": 7250, "silver_rate": 92, "default_interest_rate": 15,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	rr = doJSON(t, router, "GET", "/rates", nil)
	var rates models.Rates
	json.Unmarshal(rr.Body.Bytes(), &rates)
	if !rates.GoldRate.Equal(decimal.NewFromInt(7250)) {
		t.Errorf("Expected gold rate 7250, got %s", rates.GoldRate)
	}
}

func TestAPI_ExportAndImportCSV(t *testing.T) {
	_, router := setupTestServer(t, "test_api_csv.db")
	customer := createTestCustomer(t, router)
	loan := createTestLoan(t, router, customer.ID)
	doJSON(t, router, "POST", fmt.Sprintf("/loans/%d/transactions", loan.ID), map[string]any{
		"type": "debit", "amount": 10000, "date": "2024-01-01",
	})

	rr := doJSON(t, router, "GET", "/export/transactions.csv", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	exported := rr.Body.String()
	if !strings.Contains(exported, "Transaction ID,Loan ID,Customer Name,Type,Amount,Description,Date") {
		t.Errorf("Unexpected export header:\n%s", exported)
	}
	if !strings.Contains(exported, "DEBIT") {
		t.Error("Expected DEBIT row in export")
	}

	// Importing rows for a new loan creates it along with its customer.
	csvBody := strings.Join([]string{
		"Transaction ID,Loan ID,Customer Name,Type,Amount,Description,Date",
		",50,Mahesh,debit,2000,,2024-02-01",
	}, "\n")
	req := httptest.NewRequest("POST", "/import/transactions.csv", strings.NewReader(csvBody))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d. Body: %s", rec.Code, rec.Body.String())
	}

	rr = doJSON(t, router, "GET", "/loans/50", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected imported loan 50 to exist, got %d", rr.Code)
	}
	var imported models.Loan
	json.Unmarshal(rr.Body.Bytes(), &imported)
	if !imported.NetPrincipal.Equal(decimal.NewFromInt(2000)) {
		t.Errorf("Expected imported net principal 2000, got %s", imported.NetPrincipal)
	}
}

func TestAPI_BackupAndRestore(t *testing.T) {
	server, router := setupTestServer(t, "test_api_backup.db")
	customer := createTestCustomer(t, router)
	loan := createTestLoan(t, router, customer.ID)
	doJSON(t, router, "POST", fmt.Sprintf("/loans/%d/transactions", loan.ID), map[string]any{
		"type": "debit", "amount": 3000, "date": "2024-01-01",
	})

	rr := doJSON(t, router, "POST", "/backup", nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d. Body: %s", rr.Code, rr.Body.String())
	}
	var created struct {
		Path string `json:"path"`
	}
	json.Unmarshal(rr.Body.Bytes(), &created)
	data, err := os.ReadFile(created.Path)
	if err != nil {
		t.Fatalf("Failed to read backup file: %v", err)
	}

	// Wipe and restore.
	if rr := doJSON(t, router, "DELETE", fmt.Sprintf("/customers/%d", customer.ID), nil); rr.Code != http.StatusNoContent {
		t.Fatalf("Expected status 204, got %d", rr.Code)
	}
	req := httptest.NewRequest("POST", "/restore", bytes.NewReader(data))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d. Body: %s", rec.Code, rec.Body.String())
	}

	restored, err := server.ledger.GetLoan(loan.ID)
	if err != nil {
		t.Fatalf("Expected loan restored: %v", err)
	}
	if !restored.NetPrincipal.Equal(decimal.NewFromInt(3000)) {
		t.Errorf("Expected restored net principal 3000, got %s", restored.NetPrincipal)
	}
}
