package types

import "github.com/shopspring/decimal"

// NotAvailable is reported for most-used token/chain when there is nothing to count
const NotAvailable = "N/A"

// TransactionStats holds aggregate figures over a scoped set of ledger entries
type TransactionStats struct {
	TotalTransactions     int             `json:"totalTransactions"`
	CompletedTransactions int             `json:"completedTransactions"`
	PendingTransactions   int             `json:"pendingTransactions"`
	FailedTransactions    int             `json:"failedTransactions"`
	TotalVolume           decimal.Decimal `json:"totalVolume"` // USD, completed entries only
	MostUsedToken         string          `json:"mostUsedToken"`
	MostUsedChain         string          `json:"mostUsedChain"`
	TotalGasUsed          decimal.Decimal `json:"totalGasUsed"`
	AverageGasPrice       decimal.Decimal `json:"averageGasPrice"` // Wei
}

// StatusResult is the on-chain confirmation state of a submitted transaction
type StatusResult struct {
	Status      TransactionStatus `json:"status"`
	BlockNumber uint64            `json:"blockNumber,omitempty"`
	Timestamp   int64             `json:"timestamp,omitempty"` // Block time, epoch milliseconds
	GasUsed     string            `json:"gasUsed,omitempty"`
	GasPrice    string            `json:"gasPrice,omitempty"`
}

// TokenTransfer represents an ERC-20 transfer decoded from a receipt log
type TokenTransfer struct {
	Token string `json:"token"` // Token contract address
	From  string `json:"from"`
	To    string `json:"to"`
	Value string `json:"value"` // Raw integer amount
}

// ChainTransaction is a transaction discovered on chain between the user and a known contract
type ChainTransaction struct {
	Hash           string            `json:"hash"`
	ChainID        ChainID           `json:"chainId"`
	From           string            `json:"from"`
	To             string            `json:"to"`
	Value          string            `json:"value"` // Native value in wei
	BlockNumber    uint64            `json:"blockNumber"`
	Timestamp      int64             `json:"timestamp"` // Block time, epoch milliseconds
	Status         TransactionStatus `json:"status"`
	GasUsed        string            `json:"gasUsed,omitempty"`
	GasPrice       string            `json:"gasPrice,omitempty"`
	MethodID       string            `json:"methodId,omitempty"`
	Method         string            `json:"method"` // Decoded operation name, "unknown" when unrecognized
	TokenTransfers []TokenTransfer   `json:"tokenTransfers,omitempty"`
}
