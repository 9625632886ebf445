package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/tx-ledger/internal/config"
	"github.com/tx-ledger/internal/types"
)

// ClickHouseDB wraps the ClickHouse connection
type ClickHouseDB struct {
	conn driver.Conn
}

// NewClickHouseDB creates a new ClickHouse database connection
func NewClickHouseDB(cfg *config.ClickHouseConfig) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:      10 * time.Second,
		MaxOpenConns:     5,
		MaxIdleConns:     2,
		ConnMaxLifetime:  time.Hour,
		ConnOpenStrategy: clickhouse.ConnOpenInOrder,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &ClickHouseDB{conn: conn}, nil
}

// Close closes the ClickHouse connection
func (db *ClickHouseDB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// Ping checks if the database is reachable
func (db *ClickHouseDB) Ping(ctx context.Context) error {
	return db.conn.Ping(ctx)
}

// Exec executes a query without returning rows
func (db *ClickHouseDB) Exec(ctx context.Context, query string, args ...interface{}) error {
	return db.conn.Exec(ctx, query, args...)
}

const insertEvictionQuery = `INSERT INTO ledger_evictions (
	id, tx_hash, type, status, chain_id, from_chain, to_chain,
	token, amount, value, user_address, block_number,
	timestamp, evicted_at, payload
)`

// ClickHouseArchive keeps a copy of every record the ledger evicts for capacity
type ClickHouseArchive struct {
	db  *ClickHouseDB
	now func() time.Time
}

// NewClickHouseArchive creates an eviction archive on an open connection
func NewClickHouseArchive(db *ClickHouseDB) *ClickHouseArchive {
	return &ClickHouseArchive{db: db, now: time.Now}
}

// ArchiveEvicted appends the evicted records in a single batch
func (a *ClickHouseArchive) ArchiveEvicted(ctx context.Context, records []types.Transaction) error {
	if len(records) == 0 {
		return nil
	}

	batch, err := a.db.conn.PrepareBatch(ctx, insertEvictionQuery)
	if err != nil {
		return fmt.Errorf("failed to prepare eviction batch: %w", err)
	}

	evictedAt := a.now().UTC()
	for _, tx := range records {
		row, err := evictionRow(tx, evictedAt)
		if err != nil {
			_ = batch.Abort()
			return err
		}
		if err := batch.Append(row...); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("failed to append evicted record %s: %w", tx.ID, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send eviction batch: %w", err)
	}
	return nil
}

// evictionRow maps a record to the ledger_evictions column order
func evictionRow(tx types.Transaction, evictedAt time.Time) ([]interface{}, error) {
	payload, err := json.Marshal(tx)
	if err != nil {
		return nil, fmt.Errorf("failed to encode evicted record %s: %w", tx.ID, err)
	}
	return []interface{}{
		tx.ID,
		tx.TxHash,
		string(tx.Type),
		string(tx.Status),
		uint64(tx.ChainID),
		tx.FromChain,
		tx.ToChain,
		tx.Token,
		tx.Amount,
		tx.Value,
		tx.UserAddress,
		tx.BlockNumber,
		time.UnixMilli(tx.Timestamp).UTC(),
		evictedAt,
		string(payload),
	}, nil
}
