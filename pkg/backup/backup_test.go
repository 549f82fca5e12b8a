package backup

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"ledgerbook/pkg/finance"
	"ledgerbook/pkg/ledger"
	"ledgerbook/pkg/models"
	"ledgerbook/pkg/store"
)

func newTestLedger(t *testing.T, dbFile string) *ledger.Ledger {
	t.Helper()
	os.Remove(dbFile)
	t.Cleanup(func() { os.Remove(dbFile) })

	s, err := store.NewSQLiteStore(dbFile)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return ledger.NewLedger(s, finance.BasisAnnual)
}

func seedLedger(t *testing.T, l *ledger.Ledger) *models.Loan {
	t.Helper()
	customer, err := l.CreateCustomer("Ramesh", "Suresh", "12 Bazaar Road")
	if err != nil {
		t.Fatalf("Failed to create customer: %v", err)
	}
	items := []models.CollateralItem{{
		Name: "Chain", MetalType: models.MetalGold,
		Weight: decimal.NewFromFloat(10.5), Purity: decimal.NewFromFloat(91.6),
	}}
	loan, err := l.CreateLoan(customer.ID, decimal.NewFromFloat(12.0), items, "2024-01-01")
	if err != nil {
		t.Fatalf("Failed to create loan: %v", err)
	}
	if _, err := l.RecordTransaction(loan.ID, models.TransactionTypeDebit, decimal.NewFromInt(10000), "", "2024-01-01", nil); err != nil {
		t.Fatalf("Failed to record debit: %v", err)
	}
	return loan
}

func TestSnapshotRoundTrip(t *testing.T) {
	source := newTestLedger(t, "test_backup_src.db")
	loan := seedLedger(t, source)

	snapshot, err := Take(source)
	if err != nil {
		t.Fatalf("Failed to take snapshot: %v", err)
	}
	if snapshot.Version != "1.0" {
		t.Errorf("Expected version 1.0, got %s", snapshot.Version)
	}
	if snapshot.BackupID.String() == "00000000-0000-0000-0000-000000000000" {
		t.Error("Expected a nonzero backup id")
	}
	if len(snapshot.Customers) != 1 || len(snapshot.Loans) != 1 || len(snapshot.Transactions) != 2 {
		t.Fatalf("Unexpected snapshot contents: %d customers, %d loans, %d transactions",
			len(snapshot.Customers), len(snapshot.Loans), len(snapshot.Transactions))
	}

	var buf bytes.Buffer
	if err := Write(snapshot, &buf); err != nil {
		t.Fatalf("Failed to write snapshot: %v", err)
	}
	parsed, err := Read(&buf)
	if err != nil {
		t.Fatalf("Failed to read snapshot back: %v", err)
	}

	target := newTestLedger(t, "test_backup_dst.db")
	if err := Restore(target, parsed); err != nil {
		t.Fatalf("Failed to restore snapshot: %v", err)
	}

	restored, err := target.GetLoan(loan.ID)
	if err != nil {
		t.Fatalf("Failed to get restored loan: %v", err)
	}
	if !restored.NetPrincipal.Equal(decimal.NewFromInt(10000)) {
		t.Errorf("Expected restored net principal 10000, got %s", restored.NetPrincipal)
	}
	if len(restored.CollateralItems) != 1 {
		t.Errorf("Expected 1 restored collateral item, got %d", len(restored.CollateralItems))
	}
}

func TestRestoreReplacesExistingData(t *testing.T) {
	source := newTestLedger(t, "test_backup_replace_src.db")
	seedLedger(t, source)
	snapshot, err := Take(source)
	if err != nil {
		t.Fatalf("Failed to take snapshot: %v", err)
	}

	target := newTestLedger(t, "test_backup_replace_dst.db")
	target.CreateCustomer("Doomed", "", "")
	if err := Restore(target, snapshot); err != nil {
		t.Fatalf("Failed to restore: %v", err)
	}

	customers, _ := target.GetAllCustomers()
	if len(customers) != 1 || customers[0].Name != "Ramesh" {
		t.Errorf("Expected restore to replace existing customers, got %v", customers)
	}
}

func TestWriteFileIsAtomic(t *testing.T) {
	source := newTestLedger(t, "test_backup_file.db")
	seedLedger(t, source)
	snapshot, err := Take(source)
	if err != nil {
		t.Fatalf("Failed to take snapshot: %v", err)
	}

	dir := t.TempDir()
	path := SnapshotPath(dir, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	if filepath.Base(path) != "lending_ledger_backup_2024-06-01.json" {
		t.Errorf("Unexpected snapshot filename: %s", filepath.Base(path))
	}

	if err := WriteFile(snapshot, path); err != nil {
		t.Fatalf("Failed to write snapshot file: %v", err)
	}

	// Only the final file remains; no temp debris.
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("Expected exactly 1 file in backup dir, got %d", len(entries))
	}

	target := newTestLedger(t, "test_backup_file_dst.db")
	if err := RestoreFile(target, path); err != nil {
		t.Fatalf("Failed to restore from file: %v", err)
	}
	loans, _ := target.GetAllLoans()
	if len(loans) != 1 {
		t.Errorf("Expected 1 restored loan, got %d", len(loans))
	}
}
