// Package adapter connects the ledger to EVM chains: per-chain JSON-RPC clients,
// the known contract and token tables, and call data decoding.
package adapter

import (
	"errors"
	"fmt"

	"github.com/tx-ledger/internal/ratelimit"
	"github.com/tx-ledger/internal/types"
)

// EthClient is the read-only JSON-RPC surface used for reconciliation
type EthClient = ratelimit.EthClient

// ClientSource resolves the client for a chain
type ClientSource interface {
	Client(chainID types.ChainID) (EthClient, error)
}

var (
	// ErrChainNotConfigured indicates no RPC endpoint is registered for the chain
	ErrChainNotConfigured = errors.New("chain not configured")

	// ErrInvalidAddress indicates the address format is invalid
	ErrInvalidAddress = errors.New("invalid address format")
)

// AdapterError wraps errors with the chain and operation that failed
type AdapterError struct {
	Chain   types.ChainID
	Op      string
	Err     error
	Details map[string]interface{}
}

func (e *AdapterError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("chain adapter error [%s:%s]: %v (details: %+v)", e.Chain.Name(), e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("chain adapter error [%s:%s]: %v", e.Chain.Name(), e.Op, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// NewAdapterError creates a new AdapterError
func NewAdapterError(chain types.ChainID, op string, err error, details map[string]interface{}) *AdapterError {
	return &AdapterError{
		Chain:   chain,
		Op:      op,
		Err:     err,
		Details: details,
	}
}

// StaticClients is a fixed ClientSource, mostly useful in tests and tools
type StaticClients map[types.ChainID]EthClient

// Client implements ClientSource
func (s StaticClients) Client(chainID types.ChainID) (EthClient, error) {
	if c, ok := s[chainID]; ok && c != nil {
		return c, nil
	}
	return nil, NewAdapterError(chainID, "Client", ErrChainNotConfigured, nil)
}
