// Package types provides common type definitions for the transaction ledger.
package types

import (
	"strconv"
	"strings"
)

// TransactionType represents the kind of user operation a ledger entry records
type TransactionType string

const (
	// TypeDeposit represents a collateral deposit (supply)
	TypeDeposit TransactionType = "deposit"
	// TypeWithdraw represents a collateral withdrawal
	TypeWithdraw TransactionType = "withdraw"
	// TypeBorrow represents a borrow against collateral
	TypeBorrow TransactionType = "borrow"
	// TypeRepay represents a debt repayment
	TypeRepay TransactionType = "repay"
	// TypeBridge represents a cross-chain asset transfer
	TypeBridge TransactionType = "bridge"
	// TypeStake represents staking into a pool
	TypeStake TransactionType = "stake"
	// TypeUnstake represents unstaking from a pool
	TypeUnstake TransactionType = "unstake"
	// TypeLiquidation represents a liquidation call
	TypeLiquidation TransactionType = "liquidation"
)

// AllTransactionTypes lists the closed set of ledger operation kinds
var AllTransactionTypes = []TransactionType{
	TypeDeposit, TypeWithdraw, TypeBorrow, TypeRepay,
	TypeBridge, TypeStake, TypeUnstake, TypeLiquidation,
}

// Valid reports whether t is one of the known operation kinds
func (t TransactionType) Valid() bool {
	for _, known := range AllTransactionTypes {
		if t == known {
			return true
		}
	}
	return false
}

// TransactionStatus represents the lifecycle state of a ledger entry
type TransactionStatus string

const (
	// StatusPending represents a submitted operation awaiting confirmation
	StatusPending TransactionStatus = "pending"
	// StatusCompleted represents a confirmed, successful operation
	StatusCompleted TransactionStatus = "completed"
	// StatusFailed represents a confirmed, reverted operation
	StatusFailed TransactionStatus = "failed"
)

// Valid reports whether s is one of the three lifecycle states
func (s TransactionStatus) Valid() bool {
	return s == StatusPending || s == StatusCompleted || s == StatusFailed
}

// Settled reports whether s is a terminal state
func (s TransactionStatus) Settled() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ChainID is an EVM chain identifier (EIP-155)
type ChainID uint64

const (
	// ChainEthereum represents the Ethereum mainnet
	ChainEthereum ChainID = 1
	// ChainOptimism represents the Optimism network
	ChainOptimism ChainID = 10
	// ChainBNB represents the BNB Chain (BSC)
	ChainBNB ChainID = 56
	// ChainPolygon represents the Polygon network
	ChainPolygon ChainID = 137
	// ChainBase represents the Base network
	ChainBase ChainID = 8453
	// ChainArbitrum represents the Arbitrum network
	ChainArbitrum ChainID = 42161
	// ChainSepolia represents the Sepolia testnet
	ChainSepolia ChainID = 11155111
)

var chainNames = map[ChainID]string{
	ChainEthereum: "ethereum",
	ChainOptimism: "optimism",
	ChainBNB:      "bnb",
	ChainPolygon:  "polygon",
	ChainBase:     "base",
	ChainArbitrum: "arbitrum",
	ChainSepolia:  "sepolia",
}

// Name returns the well-known network name, or the decimal id for unknown chains
func (c ChainID) Name() string {
	if name, ok := chainNames[c]; ok {
		return name
	}
	return c.String()
}

func (c ChainID) String() string {
	return strconv.FormatUint(uint64(c), 10)
}

// NativeAsset returns the native gas token symbol for the chain
func (c ChainID) NativeAsset() string {
	switch c {
	case ChainPolygon:
		return "MATIC"
	case ChainBNB:
		return "BNB"
	default:
		// Ethereum and the OP/Arbitrum/Base rollups all use ETH
		return "ETH"
	}
}

// ParseChainID parses either a decimal chain id or a well-known network name
func ParseChainID(s string) (ChainID, bool) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, false
	}
	if n, err := strconv.ParseUint(s, 10, 64); err == nil {
		return ChainID(n), true
	}
	for id, name := range chainNames {
		if name == s {
			return id, true
		}
	}
	return 0, false
}

// ActionLabel derives the human-readable action for an operation kind.
// Borrow and bridge carry a distinct label when a cross-chain path is involved.
func ActionLabel(t TransactionType, crossChain bool) string {
	switch t {
	case TypeDeposit:
		return "Deposit Collateral"
	case TypeWithdraw:
		return "Withdraw Collateral"
	case TypeBorrow:
		if crossChain {
			return "Cross-Chain Borrow"
		}
		return "Borrow"
	case TypeRepay:
		return "Repay Loan"
	case TypeBridge:
		if crossChain {
			return "Cross-Chain Bridge"
		}
		return "Bridge Assets"
	case TypeStake:
		return "Stake"
	case TypeUnstake:
		return "Unstake"
	case TypeLiquidation:
		return "Liquidation"
	default:
		return string(t)
	}
}

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}
