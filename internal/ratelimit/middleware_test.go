package ratelimit

import (
	"context"
	"errors"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tx-ledger/internal/logging"
)

type countingClient struct {
	calls atomic.Int32
}

func (c *countingClient) BlockNumber(context.Context) (uint64, error) {
	c.calls.Add(1)
	return 42, nil
}

func (c *countingClient) BlockByNumber(context.Context, *big.Int) (*types.Block, error) {
	c.calls.Add(1)
	return nil, nil
}

func (c *countingClient) FilterLogs(context.Context, ethereum.FilterQuery) ([]types.Log, error) {
	c.calls.Add(1)
	return nil, nil
}

func (c *countingClient) TransactionByHash(context.Context, common.Hash) (*types.Transaction, bool, error) {
	c.calls.Add(1)
	return nil, false, nil
}

func (c *countingClient) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	c.calls.Add(1)
	return nil, ethereum.NotFound
}

func newLimited(t *testing.T, rps float64, burst int, maxWait time.Duration) (*RateLimitedClient, *countingClient) {
	t.Helper()
	underlying := &countingClient{}
	client, err := NewRateLimitedClient(&RateLimitedClientConfig{
		Client:            underlying,
		RequestsPerSecond: rps,
		Burst:             burst,
		MaxWait:           maxWait,
		Logger:            logging.NewNopLogger(),
	})
	require.NoError(t, err)
	return client, underlying
}

func TestNewRateLimitedClient_Validation(t *testing.T) {
	_, err := NewRateLimitedClient(nil)
	assert.Error(t, err)

	_, err = NewRateLimitedClient(&RateLimitedClientConfig{RequestsPerSecond: 1})
	assert.Error(t, err)

	_, err = NewRateLimitedClient(&RateLimitedClientConfig{Client: &countingClient{}})
	assert.Error(t, err)
}

func TestRateLimitedClient_PassesThrough(t *testing.T) {
	client, underlying := newLimited(t, 1000, 50, time.Second)
	ctx := context.Background()

	n, err := client.BlockNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), n)

	_, err = client.TransactionReceipt(ctx, common.Hash{})
	assert.True(t, errors.Is(err, ethereum.NotFound), "underlying errors are returned unchanged")

	_, _, err = client.TransactionByHash(ctx, common.Hash{})
	require.NoError(t, err)
	_, err = client.FilterLogs(ctx, ethereum.FilterQuery{})
	require.NoError(t, err)
	_, err = client.BlockByNumber(ctx, big.NewInt(1))
	require.NoError(t, err)

	assert.Equal(t, int32(5), underlying.calls.Load())
	assert.Same(t, underlying, client.Underlying())
}

func TestRateLimitedClient_MaxWaitExceeded(t *testing.T) {
	client, underlying := newLimited(t, 0.001, 1, 50*time.Millisecond)
	ctx := context.Background()

	_, err := client.FilterLogs(ctx, ethereum.FilterQuery{})
	require.NoError(t, err, "burst is raised to fit the most expensive call")

	_, err = client.FilterLogs(ctx, ethereum.FilterQuery{})
	assert.ErrorIs(t, err, ErrMaxWaitExceeded)
	assert.Equal(t, int32(1), underlying.calls.Load())
}

func TestRateLimitedClient_ContextCancelled(t *testing.T) {
	client, underlying := newLimited(t, 10, 5, time.Minute)

	_, err := client.FilterLogs(context.Background(), ethereum.FilterQuery{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = client.FilterLogs(ctx, ethereum.FilterQuery{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), underlying.calls.Load())
}

func TestCostRegistry(t *testing.T) {
	registry := NewCostRegistry(map[string]int{
		MethodEthBlockNumber: 3,
		"custom_method":      7,
		MethodEthGetLogs:     0,
	})

	assert.Equal(t, 3, registry.GetCost(MethodEthBlockNumber))
	assert.Equal(t, 7, registry.GetCost("custom_method"))
	assert.Equal(t, CostEthGetLogs, registry.GetCost(MethodEthGetLogs), "non-positive overrides are ignored")
	assert.Equal(t, DefaultCost, registry.GetCost("unknown"))
	assert.Equal(t, 7, registry.MaxCost())
}
