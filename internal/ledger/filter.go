package ledger

import (
	"strings"
	"time"

	"github.com/tx-ledger/internal/types"
)

// ApplyFilter returns the records matching every set criterion, preserving order.
// The timeframe is evaluated against now at call time.
func ApplyFilter(records []types.Transaction, criteria types.FilterCriteria, now time.Time) []types.Transaction {
	window := criteria.Timeframe.Millis()
	nowMs := now.UnixMilli()

	out := make([]types.Transaction, 0, len(records))
	for i := range records {
		tx := &records[i]
		if criteria.Type != "" && tx.Type != criteria.Type {
			continue
		}
		if criteria.Status != "" && tx.Status != criteria.Status {
			continue
		}
		if criteria.ChainID != 0 && tx.ChainID != criteria.ChainID {
			continue
		}
		if criteria.Token != "" && !strings.EqualFold(tx.Token, criteria.Token) {
			continue
		}
		if window > 0 && nowMs-tx.Timestamp > window {
			continue
		}
		out = append(out, *tx)
	}
	return out
}

// Scope narrows records to a user and chain; empty address or zero chain match all
func Scope(records []types.Transaction, userAddress string, chainID types.ChainID) []types.Transaction {
	out := make([]types.Transaction, 0, len(records))
	for i := range records {
		if records[i].BelongsTo(userAddress, chainID) {
			out = append(out, records[i])
		}
	}
	return out
}
