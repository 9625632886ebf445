package ledger

import (
	"strings"

	"github.com/tx-ledger/internal/types"
)

// SameEvent reports whether two records describe the same underlying chain event:
// their ids match, or both carry a txHash and the hashes match case-insensitively.
// Add, ImportAll and discovery merging all go through this predicate.
func SameEvent(a, b *types.Transaction) bool {
	if a.ID != "" && a.ID == b.ID {
		return true
	}
	return SameHash(a.TxHash, b.TxHash)
}

// SameHash compares two transaction hashes, treating empty as never equal
func SameHash(a, b string) bool {
	return a != "" && b != "" && strings.EqualFold(a, b)
}

// ContainsHash reports whether any record carries the given hash
func ContainsHash(records []types.Transaction, hash string) bool {
	return indexOfHash(records, hash) >= 0
}

func indexOfHash(records []types.Transaction, hash string) int {
	for i := range records {
		if SameHash(records[i].TxHash, hash) {
			return i
		}
	}
	return -1
}

func indexOfEvent(records []types.Transaction, tx *types.Transaction) int {
	for i := range records {
		if SameEvent(&records[i], tx) {
			return i
		}
	}
	return -1
}

func indexOfID(records []types.Transaction, id string) int {
	for i := range records {
		if records[i].ID == id {
			return i
		}
	}
	return -1
}
