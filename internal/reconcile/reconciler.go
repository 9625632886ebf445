// Package reconcile aligns ledger records with on-chain state. It resolves the
// confirmation status of submitted transactions and discovers user activity
// against known protocol contracts that the ledger never recorded.
//
// The reconciler only reads from the chain. Network failures never surface as
// errors from ResolveStatus; they leave a record pending until the next pass.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/tx-ledger/internal/adapter"
	"github.com/tx-ledger/internal/circuitbreaker"
	"github.com/tx-ledger/internal/logging"
	"github.com/tx-ledger/internal/pricing"
	"github.com/tx-ledger/internal/retry"
	"github.com/tx-ledger/internal/types"
)

// DefaultBlockWindow bounds how far back discovery scans
const DefaultBlockWindow uint64 = 5000

// Config wires the reconciler's collaborators
type Config struct {
	Clients     adapter.ClientSource
	Registry    *adapter.Registry
	Oracle      pricing.Oracle
	Breakers    *circuitbreaker.Manager
	Retry       *retry.Config
	BlockWindow uint64
	Logger      *logging.Logger
}

// Reconciler resolves and discovers chain transactions
type Reconciler struct {
	clients     adapter.ClientSource
	registry    *adapter.Registry
	oracle      pricing.Oracle
	breakers    *circuitbreaker.Manager
	retry       *retry.Config
	blockWindow uint64
	logger      *logging.Logger
}

// New creates a reconciler
func New(cfg *Config) (*Reconciler, error) {
	if cfg == nil || cfg.Clients == nil {
		return nil, errors.New("reconcile: client source is required")
	}

	r := &Reconciler{
		clients:     cfg.Clients,
		registry:    cfg.Registry,
		oracle:      cfg.Oracle,
		breakers:    cfg.Breakers,
		retry:       cfg.Retry,
		blockWindow: cfg.BlockWindow,
		logger:      cfg.Logger,
	}
	if r.registry == nil {
		r.registry = adapter.DefaultRegistry()
	}
	if r.breakers == nil {
		r.breakers = circuitbreaker.NewManager(*circuitbreaker.DefaultConfig(""))
	}
	if r.retry == nil {
		r.retry = retry.DefaultConfig()
	}
	if r.retry.Retryable == nil {
		rc := *r.retry
		rc.Retryable = func(err error) bool { return !errors.Is(err, circuitbreaker.ErrCircuitOpen) }
		r.retry = &rc
	}
	if r.blockWindow == 0 {
		r.blockWindow = DefaultBlockWindow
	}
	if r.logger == nil {
		r.logger = logging.GetGlobalLogger()
	}
	r.logger = r.logger.WithComponent("reconciler")
	return r, nil
}

// guard runs fn behind the chain's circuit breaker
func (r *Reconciler) guard(ctx context.Context, chainID types.ChainID, fn func(ctx context.Context) error) error {
	return r.breakers.Get(chainID.Name()).Execute(ctx, fn)
}

// ResolveStatus looks up the receipt of txHash. A missing receipt, an
// unreachable endpoint or an open breaker all resolve to pending.
func (r *Reconciler) ResolveStatus(ctx context.Context, txHash string, chainID types.ChainID) types.StatusResult {
	pending := types.StatusResult{Status: types.StatusPending}
	logger := r.logger.WithFields(logging.Fields{"txHash": txHash, "chain": chainID.Name()})

	hash, ok := parseHash(txHash)
	if !ok {
		logger.Debug("not a transaction hash, leaving pending")
		return pending
	}

	client, err := r.clients.Client(chainID)
	if err != nil {
		logger.WithError(err).Debug("no client for chain")
		return pending
	}

	var receipt *ethtypes.Receipt
	err = r.guard(ctx, chainID, func(ctx context.Context) error {
		rc, err := client.TransactionReceipt(ctx, hash)
		if errors.Is(err, ethereum.NotFound) {
			return nil
		}
		receipt = rc
		return err
	})
	if err != nil {
		logger.WithError(err).Warn("receipt lookup failed, leaving pending")
		return pending
	}
	if receipt == nil {
		return pending
	}

	result := types.StatusResult{
		Status:  types.StatusCompleted,
		GasUsed: fmt.Sprintf("%d", receipt.GasUsed),
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		result.Status = types.StatusFailed
	}
	if receipt.EffectiveGasPrice != nil {
		result.GasPrice = receipt.EffectiveGasPrice.String()
	}
	if receipt.BlockNumber != nil {
		result.BlockNumber = receipt.BlockNumber.Uint64()

		var block *ethtypes.Block
		err := r.guard(ctx, chainID, func(ctx context.Context) error {
			b, err := client.BlockByNumber(ctx, receipt.BlockNumber)
			block = b
			return err
		})
		if err != nil || block == nil {
			logger.WithError(err).Debug("block lookup failed, timestamp omitted")
		} else {
			result.Timestamp = int64(block.Time()) * 1000
		}
	}

	logger.WithFields(logging.Fields{
		"status":      result.Status,
		"blockNumber": result.BlockNumber,
	}).Debug("resolved transaction status")
	return result
}

// ReconcilePending resolves every pending record that carries a txHash and
// returns the merged set. Other records pass through unchanged. Each hash is
// resolved at most once per call.
func (r *Reconciler) ReconcilePending(ctx context.Context, records []types.Transaction) []types.Transaction {
	out := make([]types.Transaction, len(records))
	resolved := make(map[string]types.StatusResult)

	for i, record := range records {
		out[i] = record.Clone()
		if record.Status != types.StatusPending || record.TxHash == "" {
			continue
		}

		key := fmt.Sprintf("%d:%s", record.ChainID, strings.ToLower(record.TxHash))
		res, ok := resolved[key]
		if !ok {
			res = r.ResolveStatus(ctx, record.TxHash, record.ChainID)
			resolved[key] = res
		}
		out[i] = ApplyStatus(out[i], res)
	}
	return out
}

// DiscoverUserHistory scans recent logs of the chain's known contracts for
// transactions sent by user. Blocks outside the configured window are never
// scanned. A failed log query yields an empty result and the error; failures
// on individual transactions only drop that transaction.
func (r *Reconciler) DiscoverUserHistory(ctx context.Context, user string, chainID types.ChainID, fromBlock, toBlock *uint64) ([]types.ChainTransaction, error) {
	if !common.IsHexAddress(user) {
		return nil, adapter.NewAdapterError(chainID, "DiscoverUserHistory", adapter.ErrInvalidAddress, map[string]interface{}{
			"address": user,
		})
	}

	contracts := r.registry.Contracts(chainID)
	if len(contracts) == 0 {
		return nil, nil
	}

	client, err := r.clients.Client(chainID)
	if err != nil {
		return nil, err
	}

	logger := r.logger.WithFields(logging.Fields{"chain": chainID.Name(), "user": user})
	ctx = logging.WithLogger(ctx, logger)

	from, to, err := r.window(ctx, client, chainID, fromBlock, toBlock)
	if err != nil {
		return nil, adapter.NewAdapterError(chainID, "DiscoverUserHistory", err, nil)
	}
	if from > to {
		return nil, nil
	}

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: contracts,
	}

	var logs []ethtypes.Log
	err = retry.Do(ctx, r.retry, func(ctx context.Context, attempt int) error {
		return r.guard(ctx, chainID, func(ctx context.Context) error {
			l, err := client.FilterLogs(ctx, query)
			logs = l
			return err
		})
	})
	if err != nil {
		return nil, adapter.NewAdapterError(chainID, "DiscoverUserHistory", err, map[string]interface{}{
			"fromBlock": from,
			"toBlock":   to,
		})
	}

	var hashes []common.Hash
	seen := make(map[common.Hash]bool)
	for _, l := range logs {
		if l.Removed || seen[l.TxHash] {
			continue
		}
		seen[l.TxHash] = true
		hashes = append(hashes, l.TxHash)
	}

	blocks := make(map[uint64]*ethtypes.Block)
	var found []types.ChainTransaction
	for _, hash := range hashes {
		if ctx.Err() != nil {
			break
		}
		ct, err := r.loadChainTransaction(ctx, client, chainID, hash, user, blocks)
		if err != nil {
			logger.WithError(err).WithField("txHash", hash.Hex()).Debug("skipping discovered transaction")
			continue
		}
		if ct != nil {
			found = append(found, *ct)
		}
	}

	sort.SliceStable(found, func(i, j int) bool {
		if found[i].BlockNumber != found[j].BlockNumber {
			return found[i].BlockNumber > found[j].BlockNumber
		}
		return found[i].Timestamp > found[j].Timestamp
	})

	logger.WithFields(logging.Fields{
		"fromBlock": from,
		"toBlock":   to,
		"logs":      len(logs),
		"found":     len(found),
	}).Debug("discovery scan finished")
	return found, nil
}

// window clamps the requested range to the last blockWindow blocks
func (r *Reconciler) window(ctx context.Context, client adapter.EthClient, chainID types.ChainID, fromBlock, toBlock *uint64) (uint64, uint64, error) {
	var to uint64
	if toBlock != nil {
		to = *toBlock
	} else {
		err := retry.Do(ctx, r.retry, func(ctx context.Context, attempt int) error {
			return r.guard(ctx, chainID, func(ctx context.Context) error {
				n, err := client.BlockNumber(ctx)
				to = n
				return err
			})
		})
		if err != nil {
			return 0, 0, err
		}
	}

	var floor uint64
	if to >= r.blockWindow {
		floor = to - r.blockWindow + 1
	}
	from := floor
	if fromBlock != nil && *fromBlock > floor {
		from = *fromBlock
	}
	return from, to, nil
}

// loadChainTransaction fetches the transaction, receipt and block for hash.
// It returns nil when the sender is not user.
func (r *Reconciler) loadChainTransaction(ctx context.Context, client adapter.EthClient, chainID types.ChainID, hash common.Hash, user string, blocks map[uint64]*ethtypes.Block) (*types.ChainTransaction, error) {
	var (
		tx        *ethtypes.Transaction
		isPending bool
	)
	err := r.guard(ctx, chainID, func(ctx context.Context) error {
		t, p, err := client.TransactionByHash(ctx, hash)
		tx, isPending = t, p
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("transaction: %w", err)
	}
	if tx == nil || isPending {
		return nil, nil
	}

	sender, err := adapter.Sender(tx, chainID)
	if err != nil {
		return nil, fmt.Errorf("sender: %w", err)
	}
	if !strings.EqualFold(sender.Hex(), user) {
		return nil, nil
	}

	var receipt *ethtypes.Receipt
	err = r.guard(ctx, chainID, func(ctx context.Context) error {
		rc, err := client.TransactionReceipt(ctx, hash)
		receipt = rc
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("receipt: %w", err)
	}
	if receipt == nil || receipt.BlockNumber == nil {
		return nil, nil
	}

	blockNumber := receipt.BlockNumber.Uint64()
	block, ok := blocks[blockNumber]
	if !ok {
		err = r.guard(ctx, chainID, func(ctx context.Context) error {
			b, err := client.BlockByNumber(ctx, receipt.BlockNumber)
			block = b
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", blockNumber, err)
		}
		blocks[blockNumber] = block
	}

	method := adapter.DecodeMethod(tx.Data())
	ct := &types.ChainTransaction{
		Hash:           hash.Hex(),
		ChainID:        chainID,
		From:           sender.Hex(),
		Value:          tx.Value().String(),
		BlockNumber:    blockNumber,
		Status:         types.StatusCompleted,
		GasUsed:        fmt.Sprintf("%d", receipt.GasUsed),
		Method:         method.Name,
		TokenTransfers: adapter.TransfersTouching(adapter.ParseTokenTransfers(receipt.Logs), user),
	}
	if tx.To() != nil {
		ct.To = tx.To().Hex()
	}
	if block != nil {
		ct.Timestamp = int64(block.Time()) * 1000
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		ct.Status = types.StatusFailed
	}
	if receipt.EffectiveGasPrice != nil {
		ct.GasPrice = receipt.EffectiveGasPrice.String()
	}
	if len(tx.Data()) >= 4 {
		ct.MethodID = method.SelectorHex()
	}
	return ct, nil
}

// parseHash accepts a 0x-prefixed hex string of at most 32 bytes.
// Short hashes are left-padded the way common.HexToHash does.
func parseHash(s string) (common.Hash, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return common.Hash{}, false
	}
	digits := s[2:]
	if len(digits) == 0 || len(digits) > 2*common.HashLength {
		return common.Hash{}, false
	}
	for _, c := range digits {
		if !isHexDigit(c) {
			return common.Hash{}, false
		}
	}
	return common.HexToHash(s), true
}

func isHexDigit(c rune) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}
