package finance

import (
	"testing"

	"ledgerbook/pkg/models"
)

func TestSortTransactionsByDateThenID(t *testing.T) {
	txs := []*models.Transaction{
		tx(7, models.TransactionTypeCredit, 100, "2024-03-01"),
		tx(2, models.TransactionTypeDebit, 500, "2024-01-15"),
		tx(5, models.TransactionTypeDebit, 200, "2024-03-01"),
		tx(9, models.TransactionTypeCredit, 50, "2024-02-01"),
	}

	sorted := SortTransactions(txs)
	wantIDs := []int64{2, 9, 5, 7}
	for i, want := range wantIDs {
		if sorted[i].ID != want {
			t.Errorf("Position %d: expected id %d, got %d", i, want, sorted[i].ID)
		}
	}
}

func TestSortTransactionsDeterministicAcrossPermutations(t *testing.T) {
	a := tx(1, models.TransactionTypeDebit, 100, "2024-01-01")
	b := tx(2, models.TransactionTypeCredit, 100, "2024-01-01")
	c := tx(3, models.TransactionTypeDebit, 100, "2024-01-02")

	permutations := [][]*models.Transaction{
		{a, b, c}, {a, c, b}, {b, a, c}, {b, c, a}, {c, a, b}, {c, b, a},
	}
	for _, p := range permutations {
		sorted := SortTransactions(p)
		if sorted[0].ID != 1 || sorted[1].ID != 2 || sorted[2].ID != 3 {
			t.Errorf("Permutation produced order %d,%d,%d; expected 1,2,3",
				sorted[0].ID, sorted[1].ID, sorted[2].ID)
		}
	}
}

func TestSortTransactionsDoesNotMutateInput(t *testing.T) {
	txs := []*models.Transaction{
		tx(2, models.TransactionTypeDebit, 100, "2024-02-01"),
		tx(1, models.TransactionTypeDebit, 100, "2024-01-01"),
	}

	SortTransactions(txs)
	if txs[0].ID != 2 || txs[1].ID != 1 {
		t.Error("Input slice order was mutated")
	}
}

func TestSortTransactionsUnparseableDateSortsFirst(t *testing.T) {
	txs := []*models.Transaction{
		tx(1, models.TransactionTypeDebit, 100, "2024-01-01"),
		tx(3, models.TransactionTypeDebit, 100, "bogus"),
		tx(2, models.TransactionTypeDebit, 100, ""),
	}

	sorted := SortTransactions(txs)
	// Both malformed dates normalize to the zero-time sentinel and order
	// between themselves by id.
	if sorted[0].ID != 2 || sorted[1].ID != 3 || sorted[2].ID != 1 {
		t.Errorf("Expected order 2,3,1; got %d,%d,%d", sorted[0].ID, sorted[1].ID, sorted[2].ID)
	}
}
