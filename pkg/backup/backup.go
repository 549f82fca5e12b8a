// Package backup writes and restores full-ledger JSON snapshots.
package backup

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"ledgerbook/pkg/ledger"
	"ledgerbook/pkg/models"
)

// Version identifies the snapshot format.
const Version = "1.0"

// Snapshot is a full copy of the ledger's data at one point in time.
type Snapshot struct {
	BackupID     uuid.UUID             `json:"backup_id"`
	Version      string                `json:"version"`
	ExportDate   string                `json:"export_date"`
	Customers    []*models.Customer    `json:"customers"`
	Loans        []*models.Loan        `json:"loans"`
	Transactions []*models.Transaction `json:"transactions"`
	Rates        *models.Rates         `json:"rates"`
}

// Take captures the current ledger contents as a snapshot.
func Take(l *ledger.Ledger) (*Snapshot, error) {
	customers, err := l.GetAllCustomers()
	if err != nil {
		return nil, fmt.Errorf("failed to read customers: %w", err)
	}
	loans, err := l.GetAllLoans()
	if err != nil {
		return nil, fmt.Errorf("failed to read loans: %w", err)
	}
	transactions, err := l.GetAllTransactions()
	if err != nil {
		return nil, fmt.Errorf("failed to read transactions: %w", err)
	}
	rates, err := l.GetRates()
	if err != nil {
		return nil, fmt.Errorf("failed to read rates: %w", err)
	}
	return &Snapshot{
		BackupID:     uuid.New(),
		Version:      Version,
		ExportDate:   time.Now().UTC().Format(time.RFC3339),
		Customers:    customers,
		Loans:        loans,
		Transactions: transactions,
		Rates:        rates,
	}, nil
}

// Write serializes a snapshot as indented JSON.
func Write(snapshot *Snapshot, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snapshot); err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return nil
}

// WriteFile writes a snapshot to path atomically: the JSON goes to a temp
// file in the same directory first and is renamed into place, so a crash
// mid-write never leaves a truncated snapshot behind.
func WriteFile(snapshot *Snapshot, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".backup-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := Write(snapshot, tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move snapshot into place: %w", err)
	}
	return nil
}

// SnapshotPath builds the timestamped filename for an automatic backup.
func SnapshotPath(dir string, now time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("lending_ledger_backup_%s.json", now.Format("2006-01-02")))
}

// Read parses a snapshot from JSON.
func Read(r io.Reader) (*Snapshot, error) {
	var snapshot Snapshot
	dec := json.NewDecoder(r)
	if err := dec.Decode(&snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snapshot, nil
}

// Restore replaces all ledger data with a snapshot's contents and refreshes
// every loan's derived dues, since the snapshot may come from a ledger with
// different interest settings.
func Restore(l *ledger.Ledger, snapshot *Snapshot) error {
	if err := l.Storage().ReplaceAll(snapshot.Customers, snapshot.Loans, snapshot.Transactions, snapshot.Rates); err != nil {
		return fmt.Errorf("failed to replace ledger data: %w", err)
	}
	for _, loan := range snapshot.Loans {
		if err := l.RefreshLoanDues(loan.ID); err != nil {
			return fmt.Errorf("failed to refresh loan %d after restore: %w", loan.ID, err)
		}
	}
	return nil
}

// RestoreFile restores the ledger from a snapshot file.
func RestoreFile(l *ledger.Ledger, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	snapshot, err := Read(f)
	if err != nil {
		return err
	}
	return Restore(l, snapshot)
}
