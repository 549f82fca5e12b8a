package finance

import (
	"sort"

	"ledgerbook/pkg/models"
)

// SortTransactions returns a loan's transactions in processing order: date
// ascending, ties broken by numeric id ascending. The input slice is not
// mutated, and the result is the same for any permutation of the input.
//
// A transaction whose date fails to parse sorts as the zero time, i.e. before
// every valid date, and then falls through to the id tie-break.
func SortTransactions(txs []*models.Transaction) []*models.Transaction {
	sorted := make([]*models.Transaction, len(txs))
	copy(sorted, txs)
	sort.SliceStable(sorted, func(i, j int) bool {
		di, _ := ParseDate(sorted[i].Date)
		dj, _ := ParseDate(sorted[j].Date)
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted
}
