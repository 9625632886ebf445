package ledger

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/tx-ledger/internal/types"
)

// ComputeStats aggregates a record set. Volume and gas figures only count
// completed records; most-used ties go to the first value seen in iteration order.
func ComputeStats(records []types.Transaction) types.TransactionStats {
	stats := types.TransactionStats{
		TotalTransactions: len(records),
		TotalVolume:       decimal.Zero,
		TotalGasUsed:      decimal.Zero,
		AverageGasPrice:   decimal.Zero,
		MostUsedToken:     types.NotAvailable,
		MostUsedChain:     types.NotAvailable,
	}

	tokens := newTally()
	chains := newTally()
	gasPriceSum := decimal.Zero
	gasSamples := 0

	for i := range records {
		tx := &records[i]

		switch tx.Status {
		case types.StatusCompleted:
			stats.CompletedTransactions++
			stats.TotalVolume = stats.TotalVolume.Add(ParseVolume(tx.Value))

			gasUsed, okUsed := parseInteger(tx.GasUsed)
			gasPrice, okPrice := parseInteger(tx.GasPrice)
			if okUsed && okPrice {
				stats.TotalGasUsed = stats.TotalGasUsed.Add(gasUsed)
				gasPriceSum = gasPriceSum.Add(gasPrice)
				gasSamples++
			}
		case types.StatusPending:
			stats.PendingTransactions++
		case types.StatusFailed:
			stats.FailedTransactions++
		}

		tokens.add(tx.Token)
		if tx.ChainID != 0 {
			chains.add(tx.ChainID.Name())
		}
	}

	if top, ok := tokens.top(); ok {
		stats.MostUsedToken = top
	}
	if top, ok := chains.top(); ok {
		stats.MostUsedChain = top
	}
	if gasSamples > 0 {
		stats.AverageGasPrice = gasPriceSum.Div(decimal.NewFromInt(int64(gasSamples)))
	}

	return stats
}

// ParseVolume parses a display-formatted USD amount such as "$1,234.56" by
// keeping only digits and dots. Anything that still fails to parse counts as zero.
func ParseVolume(value string) decimal.Decimal {
	cleaned := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' {
			return r
		}
		return -1
	}, value)
	if cleaned == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseInteger(value string) (decimal.Decimal, bool) {
	if value == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// tally counts occurrences while remembering first-seen order
type tally struct {
	counts map[string]int
	order  []string
}

func newTally() *tally {
	return &tally{counts: make(map[string]int)}
}

func (t *tally) add(key string) {
	if key == "" {
		return
	}
	if _, seen := t.counts[key]; !seen {
		t.order = append(t.order, key)
	}
	t.counts[key]++
}

func (t *tally) top() (string, bool) {
	best, bestCount := "", 0
	for _, key := range t.order {
		if c := t.counts[key]; c > bestCount {
			best, bestCount = key, c
		}
	}
	return best, bestCount > 0
}
