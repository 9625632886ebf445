package orchestrator

import (
	"strings"
	"sync"

	"github.com/tx-ledger/internal/types"
)

// Session provides the account context a refresh is scoped to. An empty
// address means no wallet is connected.
type Session interface {
	Current() (userAddress string, chainID types.ChainID)
}

// StaticSession is a Session that can be switched at runtime
type StaticSession struct {
	mu      sync.RWMutex
	address string
	chainID types.ChainID
}

// NewStaticSession creates a session seeded with an account
func NewStaticSession(address string, chainID types.ChainID) *StaticSession {
	return &StaticSession{address: strings.TrimSpace(address), chainID: chainID}
}

// Current implements Session
func (s *StaticSession) Current() (string, types.ChainID) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.address, s.chainID
}

// Set switches the account context
func (s *StaticSession) Set(address string, chainID types.ChainID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.address = strings.TrimSpace(address)
	s.chainID = chainID
}
