package adapter

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tx-ledger/internal/config"
	"github.com/tx-ledger/internal/types"
)

// TokenInfo describes a known ERC-20 token
type TokenInfo struct {
	Address  common.Address
	Symbol   string
	Decimals int
}

type chainContracts struct {
	contracts []common.Address
	tokens    map[common.Address]TokenInfo
}

// Registry is the chain-keyed table of protocol contracts scanned during
// discovery and of tokens whose transfers can be priced
type Registry struct {
	mu     sync.RWMutex
	chains map[types.ChainID]*chainContracts
}

var aaveV3Pools = map[types.ChainID]string{
	types.ChainEthereum: "0x87870Bca3F3fD6335C3F4ce8392D69350B4fA4E2",
	types.ChainOptimism: "0x794a61358D6845594F94dc1DB02A252b5b4814aD",
	types.ChainPolygon:  "0x794a61358D6845594F94dc1DB02A252b5b4814aD",
	types.ChainArbitrum: "0x794a61358D6845594F94dc1DB02A252b5b4814aD",
	types.ChainBase:     "0xA238Dd80C259a72e81d7e4664a9801593F98d1c5",
}

var wellKnownTokens = map[types.ChainID][]TokenInfo{
	types.ChainEthereum: {
		{common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"), "USDC", 6},
		{common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7"), "USDT", 6},
		{common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F"), "DAI", 18},
		{common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"), "WETH", 18},
	},
	types.ChainBase: {
		{common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"), "USDC", 6},
		{common.HexToAddress("0x4200000000000000000000000000000000000006"), "WETH", 18},
	},
	types.ChainOptimism: {
		{common.HexToAddress("0x0b2C639c533813f4Aa9D7837CAf62653d097Ff85"), "USDC", 6},
		{common.HexToAddress("0x4200000000000000000000000000000000000006"), "WETH", 18},
	},
	types.ChainArbitrum: {
		{common.HexToAddress("0xaf88d065e77c8cC2239327C5EDb3A432268e5831"), "USDC", 6},
		{common.HexToAddress("0x82aF49447D8a07e3bd95BD0d56f35241523fBab1"), "WETH", 18},
	},
	types.ChainPolygon: {
		{common.HexToAddress("0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359"), "USDC", 6},
	},
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{chains: make(map[types.ChainID]*chainContracts)}
}

// DefaultRegistry returns a registry seeded with the Aave v3 pools and the
// major stablecoins and wrapped ether of each supported chain
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for chainID, pool := range aaveV3Pools {
		r.AddContract(chainID, common.HexToAddress(pool))
	}
	for chainID, tokens := range wellKnownTokens {
		for _, token := range tokens {
			r.AddToken(chainID, token)
		}
	}
	return r
}

// RegistryFromConfig extends the default registry with configured contracts and tokens
func RegistryFromConfig(chains config.ChainsConfig) (*Registry, error) {
	r := DefaultRegistry()
	for chainID, chainCfg := range chains.Chains {
		for _, addr := range chainCfg.Contracts {
			if !common.IsHexAddress(addr) {
				return nil, NewAdapterError(chainID, "RegistryFromConfig", ErrInvalidAddress, map[string]interface{}{
					"contract": addr,
				})
			}
			r.AddContract(chainID, common.HexToAddress(addr))
		}
		for _, token := range chainCfg.Tokens {
			if !common.IsHexAddress(token.Address) {
				return nil, NewAdapterError(chainID, "RegistryFromConfig", ErrInvalidAddress, map[string]interface{}{
					"token": token.Address,
				})
			}
			r.AddToken(chainID, TokenInfo{
				Address:  common.HexToAddress(token.Address),
				Symbol:   strings.ToUpper(token.Symbol),
				Decimals: token.Decimals,
			})
		}
	}
	return r, nil
}

func (r *Registry) entry(chainID types.ChainID) *chainContracts {
	e, ok := r.chains[chainID]
	if !ok {
		e = &chainContracts{tokens: make(map[common.Address]TokenInfo)}
		r.chains[chainID] = e
	}
	return e
}

// AddContract registers a protocol contract for discovery; duplicates are ignored
func (r *Registry) AddContract(chainID types.ChainID, addr common.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.entry(chainID)
	for _, existing := range e.contracts {
		if existing == addr {
			return
		}
	}
	e.contracts = append(e.contracts, addr)
}

// AddToken registers or replaces a token
func (r *Registry) AddToken(chainID types.ChainID, token TokenInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entry(chainID).tokens[token.Address] = token
}

// Contracts returns the protocol contracts known for a chain
func (r *Registry) Contracts(chainID types.ChainID) []common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.chains[chainID]
	if !ok {
		return nil
	}
	return append([]common.Address(nil), e.contracts...)
}

// IsKnownContract reports whether addr is a registered protocol contract
func (r *Registry) IsKnownContract(chainID types.ChainID, addr common.Address) bool {
	for _, c := range r.Contracts(chainID) {
		if c == addr {
			return true
		}
	}
	return false
}

// Token looks up a token by contract address
func (r *Registry) Token(chainID types.ChainID, addr common.Address) (TokenInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.chains[chainID]
	if !ok {
		return TokenInfo{}, false
	}
	t, ok := e.tokens[addr]
	return t, ok
}

// TokenByHex looks up a token by a hex address string
func (r *Registry) TokenByHex(chainID types.ChainID, addr string) (TokenInfo, bool) {
	if !common.IsHexAddress(addr) {
		return TokenInfo{}, false
	}
	return r.Token(chainID, common.HexToAddress(addr))
}

func (t TokenInfo) String() string {
	return fmt.Sprintf("%s(%s)", t.Symbol, t.Address.Hex())
}
