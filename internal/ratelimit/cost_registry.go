// Package ratelimit throttles JSON-RPC calls to chain endpoints with a token bucket.
package ratelimit

import "sync"

// Token costs per call. eth_getLogs scans a block range and is the expensive one.
const (
	DefaultCost = 1

	CostEthBlockNumber           = 1
	CostEthGetBlockByNumber      = 2
	CostEthGetLogs               = 5
	CostEthGetTransactionByHash  = 1
	CostEthGetTransactionReceipt = 1
)

// RPC method names
const (
	MethodEthBlockNumber           = "eth_blockNumber"
	MethodEthGetBlockByNumber      = "eth_getBlockByNumber"
	MethodEthGetLogs               = "eth_getLogs"
	MethodEthGetTransactionByHash  = "eth_getTransactionByHash"
	MethodEthGetTransactionReceipt = "eth_getTransactionReceipt"
)

// CostRegistry maps RPC methods to the number of limiter tokens a call consumes.
// It is safe for concurrent use.
type CostRegistry struct {
	mu          sync.RWMutex
	costs       map[string]int
	defaultCost int
}

// NewCostRegistry creates a registry with the default costs plus positive overrides
func NewCostRegistry(overrides map[string]int) *CostRegistry {
	costs := map[string]int{
		MethodEthBlockNumber:           CostEthBlockNumber,
		MethodEthGetBlockByNumber:      CostEthGetBlockByNumber,
		MethodEthGetLogs:               CostEthGetLogs,
		MethodEthGetTransactionByHash:  CostEthGetTransactionByHash,
		MethodEthGetTransactionReceipt: CostEthGetTransactionReceipt,
	}
	for method, cost := range overrides {
		if cost > 0 {
			costs[method] = cost
		}
	}
	return &CostRegistry{costs: costs, defaultCost: DefaultCost}
}

// GetCost returns the cost for a method, or the default for unknown methods
func (r *CostRegistry) GetCost(method string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if cost, ok := r.costs[method]; ok {
		return cost
	}
	return r.defaultCost
}

// MaxCost returns the most expensive known call
func (r *CostRegistry) MaxCost() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	max := r.defaultCost
	for _, cost := range r.costs {
		if cost > max {
			max = cost
		}
	}
	return max
}
