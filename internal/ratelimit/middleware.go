package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/time/rate"

	"github.com/tx-ledger/internal/logging"
)

// DefaultMaxWait bounds how long a call waits for limiter tokens
const DefaultMaxWait = 30 * time.Second

// ErrMaxWaitExceeded is returned when tokens are not available within MaxWait
var ErrMaxWaitExceeded = errors.New("maximum wait time exceeded waiting for rate limit budget")

// EthClient is the read-only subset of the JSON-RPC client the ledger needs
type EthClient interface {
	BlockNumber(ctx context.Context) (uint64, error)
	BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// Ensure ethclient.Client implements EthClient interface
var _ EthClient = (*ethclient.Client)(nil)

// RateLimitedClient wraps an EthClient and takes limiter tokens before every call
type RateLimitedClient struct {
	underlying EthClient
	limiter    *rate.Limiter
	costs      *CostRegistry
	maxWait    time.Duration
	logger     *logging.Logger
}

// RateLimitedClientConfig holds configuration for the rate-limited client
type RateLimitedClientConfig struct {
	Client            EthClient // Required
	RequestsPerSecond float64   // Token refill rate
	Burst             int
	Costs             *CostRegistry
	MaxWait           time.Duration
	Logger            *logging.Logger
}

// Validate checks if the configuration is valid
func (c *RateLimitedClientConfig) Validate() error {
	if c.Client == nil {
		return errors.New("underlying client is required")
	}
	if c.RequestsPerSecond <= 0 {
		return errors.New("requests per second must be positive")
	}
	return nil
}

// NewRateLimitedClient creates a rate-limited RPC client
func NewRateLimitedClient(cfg *RateLimitedClientConfig) (*RateLimitedClient, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	costs := cfg.Costs
	if costs == nil {
		costs = NewCostRegistry(nil)
	}

	// The bucket must hold at least one of the most expensive calls or WaitN fails outright
	burst := cfg.Burst
	if max := costs.MaxCost(); burst < max {
		burst = max
	}

	maxWait := cfg.MaxWait
	if maxWait == 0 {
		maxWait = DefaultMaxWait
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	return &RateLimitedClient{
		underlying: cfg.Client,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst),
		costs:      costs,
		maxWait:    maxWait,
		logger:     logger.WithComponent("ratelimit"),
	}, nil
}

// waitForBudget blocks until the method's tokens are available, the context
// ends or MaxWait elapses
func (c *RateLimitedClient) waitForBudget(ctx context.Context, method string) error {
	cost := c.costs.GetCost(method)

	reservation := c.limiter.ReserveN(time.Now(), cost)
	if !reservation.OK() {
		return fmt.Errorf("%s cost %d exceeds burst", method, cost)
	}

	delay := reservation.Delay()
	if delay == 0 {
		return nil
	}
	if delay > c.maxWait {
		reservation.Cancel()
		c.logger.WithFields(logging.Fields{
			"method": method,
			"wait":   delay.String(),
		}).Warn("rate limit wait exceeds maximum")
		return ErrMaxWaitExceeded
	}

	c.logger.WithFields(logging.Fields{
		"method": method,
		"wait":   delay.String(),
	}).Debug("waiting for rate limit budget")

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		reservation.Cancel()
		return ctx.Err()
	}
}

// BlockNumber wraps eth_blockNumber with rate limiting
func (c *RateLimitedClient) BlockNumber(ctx context.Context) (uint64, error) {
	if err := c.waitForBudget(ctx, MethodEthBlockNumber); err != nil {
		return 0, fmt.Errorf("rate limit: %w", err)
	}
	return c.underlying.BlockNumber(ctx)
}

// BlockByNumber wraps eth_getBlockByNumber with rate limiting
func (c *RateLimitedClient) BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error) {
	if err := c.waitForBudget(ctx, MethodEthGetBlockByNumber); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	return c.underlying.BlockByNumber(ctx, number)
}

// FilterLogs wraps eth_getLogs with rate limiting
func (c *RateLimitedClient) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	if err := c.waitForBudget(ctx, MethodEthGetLogs); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	return c.underlying.FilterLogs(ctx, q)
}

// TransactionByHash wraps eth_getTransactionByHash with rate limiting
func (c *RateLimitedClient) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	if err := c.waitForBudget(ctx, MethodEthGetTransactionByHash); err != nil {
		return nil, false, fmt.Errorf("rate limit: %w", err)
	}
	return c.underlying.TransactionByHash(ctx, hash)
}

// TransactionReceipt wraps eth_getTransactionReceipt with rate limiting
func (c *RateLimitedClient) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	if err := c.waitForBudget(ctx, MethodEthGetTransactionReceipt); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	return c.underlying.TransactionReceipt(ctx, hash)
}

// Underlying returns the wrapped client
func (c *RateLimitedClient) Underlying() EthClient {
	return c.underlying
}
