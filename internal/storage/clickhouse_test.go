package storage

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tx-ledger/internal/config"
	"github.com/tx-ledger/internal/types"
)

func TestEvictionRow(t *testing.T) {
	tx := types.Transaction{
		ID:          "1700000000000-abc",
		Type:        types.TypeBorrow,
		Action:      "Borrow",
		Token:       "USDC",
		Amount:      "100",
		Value:       "$100.00",
		FromChain:   "base",
		ToChain:     "base",
		Timestamp:   1700000000000,
		Status:      types.StatusCompleted,
		TxHash:      "0xabc",
		BlockNumber: 42,
		UserAddress: "0xuser",
		ChainID:     types.ChainBase,
	}
	evictedAt := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	row, err := evictionRow(tx, evictedAt)
	require.NoError(t, err)
	require.Len(t, row, 15)

	assert.Equal(t, "1700000000000-abc", row[0])
	assert.Equal(t, "borrow", row[2])
	assert.Equal(t, uint64(8453), row[4])
	assert.Equal(t, uint64(42), row[11])
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), row[12])
	assert.Equal(t, evictedAt, row[13])

	var decoded types.Transaction
	require.NoError(t, json.Unmarshal([]byte(row[14].(string)), &decoded))
	assert.Equal(t, tx.TxHash, decoded.TxHash)
}

func TestSplitSQLStatements(t *testing.T) {
	content := `-- header comment
CREATE TABLE IF NOT EXISTS a (
    id String
) ENGINE = MergeTree ORDER BY id;

-- second
CREATE TABLE IF NOT EXISTS b (id String) ENGINE = Log;
SELECT 1`

	stmts := splitSQLStatements(content)
	require.Len(t, stmts, 3)
	assert.Contains(t, stmts[0], "CREATE TABLE IF NOT EXISTS a")
	assert.NotContains(t, stmts[0], ";")
	assert.Equal(t, "CREATE TABLE IF NOT EXISTS b (id String) ENGINE = Log", stmts[1])
	assert.Equal(t, "SELECT 1", stmts[2])
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...", truncate("abcdef", 2))
}

func TestClickHouseArchive(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg := &config.ClickHouseConfig{
		Host:     "localhost",
		Port:     "9000",
		Database: "tx_ledger",
		User:     "default",
	}

	db, err := NewClickHouseDB(cfg)
	if err != nil {
		t.Skipf("Skipping test - ClickHouse not available: %v", err)
		return
	}
	defer func() { _ = db.Close() }()

	ctx := testContext(t)
	require.NoError(t, RunClickHouseMigrations(ctx, db, "../../migrations/clickhouse"))

	archive := NewClickHouseArchive(db)
	err = archive.ArchiveEvicted(ctx, []types.Transaction{{
		ID:        "evicted-1",
		Type:      types.TypeStake,
		Status:    types.StatusCompleted,
		ChainID:   types.ChainEthereum,
		Timestamp: time.Now().UnixMilli(),
	}})
	assert.NoError(t, err)
	assert.NoError(t, archive.ArchiveEvicted(ctx, nil))
}
