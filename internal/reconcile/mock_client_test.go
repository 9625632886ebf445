package reconcile

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

// mockEthClient serves canned chain state
type mockEthClient struct {
	mu sync.Mutex

	head     uint64
	receipts map[common.Hash]*ethtypes.Receipt
	txs      map[common.Hash]*ethtypes.Transaction
	blocks   map[uint64]*ethtypes.Block
	logs     []ethtypes.Log

	receiptErr error
	logsErr    error

	receiptCalls int
	logQueries   []ethereum.FilterQuery
}

func newMockEthClient(head uint64) *mockEthClient {
	return &mockEthClient{
		head:     head,
		receipts: make(map[common.Hash]*ethtypes.Receipt),
		txs:      make(map[common.Hash]*ethtypes.Transaction),
		blocks:   make(map[uint64]*ethtypes.Block),
	}
}

func (m *mockEthClient) BlockNumber(ctx context.Context) (uint64, error) {
	return m.head, nil
}

func (m *mockEthClient) BlockByNumber(ctx context.Context, number *big.Int) (*ethtypes.Block, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.blocks[number.Uint64()]; ok {
		return b, nil
	}
	return nil, ethereum.NotFound
}

func (m *mockEthClient) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]ethtypes.Log, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logQueries = append(m.logQueries, q)
	if m.logsErr != nil {
		return nil, m.logsErr
	}

	var out []ethtypes.Log
	for _, l := range m.logs {
		if q.FromBlock != nil && l.BlockNumber < q.FromBlock.Uint64() {
			continue
		}
		if q.ToBlock != nil && l.BlockNumber > q.ToBlock.Uint64() {
			continue
		}
		if !containsAddress(q.Addresses, l.Address) {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (m *mockEthClient) TransactionByHash(ctx context.Context, hash common.Hash) (*ethtypes.Transaction, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tx, ok := m.txs[hash]; ok {
		return tx, false, nil
	}
	return nil, false, ethereum.NotFound
}

func (m *mockEthClient) TransactionReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.receiptCalls++
	if m.receiptErr != nil {
		return nil, m.receiptErr
	}
	if r, ok := m.receipts[hash]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

func (m *mockEthClient) addBlock(number, unixSeconds uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks[number] = ethtypes.NewBlockWithHeader(&ethtypes.Header{
		Number: new(big.Int).SetUint64(number),
		Time:   unixSeconds,
	})
}

func (m *mockEthClient) addReceipt(hash common.Hash, status uint64, block uint64, logs ...*ethtypes.Log) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.receipts[hash] = &ethtypes.Receipt{
		Status:            status,
		TxHash:            hash,
		BlockNumber:       new(big.Int).SetUint64(block),
		GasUsed:           21000,
		EffectiveGasPrice: big.NewInt(2_000_000_000),
		Logs:              logs,
	}
}

func containsAddress(list []common.Address, addr common.Address) bool {
	if len(list) == 0 {
		return true
	}
	for _, a := range list {
		if a == addr {
			return true
		}
	}
	return false
}

var errRPCDown = errors.New("connection refused")
