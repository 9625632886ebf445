package adapter

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/tx-ledger/internal/config"
	"github.com/tx-ledger/internal/logging"
	"github.com/tx-ledger/internal/ratelimit"
	"github.com/tx-ledger/internal/types"
)

// ClientRegistry owns one rate-limited JSON-RPC client per enabled chain
type ClientRegistry struct {
	mu      sync.RWMutex
	clients map[types.ChainID]EthClient
	closers []*ethclient.Client
}

// NewClientRegistry creates an empty registry
func NewClientRegistry() *ClientRegistry {
	return &ClientRegistry{clients: make(map[types.ChainID]EthClient)}
}

// DialClients connects to every enabled chain that has an RPC URL.
// Chains without a URL are skipped with a warning; reconciliation treats them as unreachable.
func DialClients(chains config.ChainsConfig, rc config.ReconcileConfig, logger *logging.Logger) (*ClientRegistry, error) {
	registry := NewClientRegistry()

	for _, chainID := range chains.Enabled {
		chainCfg := chains.Chains[chainID]
		if chainCfg.RPCURL == "" {
			logger.WithField("chain", chainID.Name()).Warn("no RPC URL configured, chain will not be reconciled")
			continue
		}

		client, err := ethclient.Dial(chainCfg.RPCURL)
		if err != nil {
			registry.Close()
			return nil, NewAdapterError(chainID, "Dial", err, nil)
		}
		registry.closers = append(registry.closers, client)

		limited, err := ratelimit.NewRateLimitedClient(&ratelimit.RateLimitedClientConfig{
			Client:            client,
			RequestsPerSecond: rc.RPCRequestsPerSecond,
			Burst:             rc.RPCBurst,
			Logger:            logger.WithField("chain", chainID.Name()),
		})
		if err != nil {
			registry.Close()
			return nil, fmt.Errorf("rate limiter for %s: %w", chainID.Name(), err)
		}

		registry.Register(chainID, limited)
		logger.WithField("chain", chainID.Name()).Info("connected RPC client")
	}

	return registry, nil
}

// Register sets the client for a chain
func (r *ClientRegistry) Register(chainID types.ChainID, client EthClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[chainID] = client
}

// Client implements ClientSource
func (r *ClientRegistry) Client(chainID types.ChainID) (EthClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if c, ok := r.clients[chainID]; ok {
		return c, nil
	}
	return nil, NewAdapterError(chainID, "Client", ErrChainNotConfigured, nil)
}

// Chains lists the chains with a registered client
func (r *ClientRegistry) Chains() []types.ChainID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.ChainID, 0, len(r.clients))
	for id := range r.clients {
		out = append(out, id)
	}
	return out
}

// Close closes every dialed connection
func (r *ClientRegistry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.closers {
		c.Close()
	}
	r.closers = nil
}
