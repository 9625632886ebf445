package types

import "strings"

// Transaction is a single ledger entry
type Transaction struct {
	ID          string            `json:"id"`
	Type        TransactionType   `json:"type"`
	Action      string            `json:"action"`
	Token       string            `json:"token"`
	Amount      string            `json:"amount"`
	Value       string            `json:"value"`              // Display-formatted USD, e.g. "$1,234.56"
	FromChain   string            `json:"fromChain,omitempty"` // Only set for cross-chain operations
	ToChain     string            `json:"toChain,omitempty"`
	Timestamp   int64             `json:"timestamp"` // Epoch milliseconds
	Status      TransactionStatus `json:"status"`
	TxHash      string            `json:"txHash,omitempty"`
	BlockNumber uint64            `json:"blockNumber,omitempty"`
	GasUsed     string            `json:"gasUsed,omitempty"`
	GasPrice    string            `json:"gasPrice,omitempty"` // Wei
	UserAddress string            `json:"userAddress"`
	ChainID     ChainID           `json:"chainId"`
	PoolAddress string            `json:"poolAddress,omitempty"`
	Metadata    *Metadata         `json:"metadata,omitempty"`
}

// IsCrossChain reports whether the entry moved value between two different chains
func (t *Transaction) IsCrossChain() bool {
	return t.FromChain != "" && t.ToChain != "" && !strings.EqualFold(t.FromChain, t.ToChain)
}

// BelongsTo reports whether the entry is scoped to the given user and chain.
// An empty address or zero chain matches everything.
func (t *Transaction) BelongsTo(userAddress string, chainID ChainID) bool {
	if userAddress != "" && !strings.EqualFold(t.UserAddress, userAddress) {
		return false
	}
	if chainID != 0 && t.ChainID != chainID {
		return false
	}
	return true
}

// Clone returns a deep copy of the entry
func (t Transaction) Clone() Transaction {
	if t.Metadata != nil {
		md := t.Metadata.Clone()
		t.Metadata = md
	}
	return t
}

// TransactionDraft holds the caller-supplied fields of a new ledger entry.
// The store assigns the id, the timestamp (when zero) and the initial status.
type TransactionDraft struct {
	Type        TransactionType `json:"type"`
	Action      string          `json:"action,omitempty"`
	Token       string          `json:"token"`
	Amount      string          `json:"amount"`
	Value       string          `json:"value"`
	FromChain   string          `json:"fromChain,omitempty"`
	ToChain     string          `json:"toChain,omitempty"`
	Timestamp   int64           `json:"timestamp,omitempty"`
	TxHash      string          `json:"txHash,omitempty"`
	UserAddress string          `json:"userAddress"`
	ChainID     ChainID         `json:"chainId"`
	PoolAddress string          `json:"poolAddress,omitempty"`
	Metadata    *Metadata       `json:"metadata,omitempty"`
}

// TransactionPatch holds the mutable fields merged by an update. Nil fields are left untouched.
type TransactionPatch struct {
	Status      *TransactionStatus `json:"status,omitempty"`
	BlockNumber *uint64            `json:"blockNumber,omitempty"`
	GasUsed     *string            `json:"gasUsed,omitempty"`
	GasPrice    *string            `json:"gasPrice,omitempty"`
	TxHash      *string            `json:"txHash,omitempty"`
	Metadata    *Metadata          `json:"metadata,omitempty"`
}

// IsEmpty reports whether the patch changes nothing
func (p *TransactionPatch) IsEmpty() bool {
	return p == nil || (p.Status == nil && p.BlockNumber == nil && p.GasUsed == nil &&
		p.GasPrice == nil && p.TxHash == nil && p.Metadata == nil)
}

// Timeframe restricts a filter to a trailing window
type Timeframe string

const (
	Timeframe24Hours Timeframe = "24hours"
	Timeframe7Days   Timeframe = "7days"
	Timeframe30Days  Timeframe = "30days"
	TimeframeAll     Timeframe = "all"
)

// Millis returns the window length in milliseconds; zero means unbounded
func (tf Timeframe) Millis() int64 {
	const day = int64(24 * 60 * 60 * 1000)
	switch tf {
	case Timeframe24Hours:
		return day
	case Timeframe7Days:
		return 7 * day
	case Timeframe30Days:
		return 30 * day
	default:
		return 0
	}
}

// FilterCriteria narrows a set of ledger entries. All set criteria are ANDed.
type FilterCriteria struct {
	Type      TransactionType   `json:"type,omitempty"`
	Status    TransactionStatus `json:"status,omitempty"`
	ChainID   ChainID           `json:"chainId,omitempty"`
	Token     string            `json:"token,omitempty"`
	Timeframe Timeframe         `json:"timeframe,omitempty"`
}

// IsEmpty reports whether no criterion is set
func (c FilterCriteria) IsEmpty() bool {
	return c.Type == "" && c.Status == "" && c.ChainID == 0 && c.Token == "" &&
		(c.Timeframe == "" || c.Timeframe == TimeframeAll)
}
