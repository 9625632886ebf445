package storage

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tx-ledger/internal/config"
)

func testPostgresConfig() *config.PostgresConfig {
	return &config.PostgresConfig{
		Host:           "localhost",
		Port:           "5432",
		Database:       "tx_ledger",
		User:           "ledger",
		Password:       os.Getenv("POSTGRES_PASSWORD"),
		MaxConnections: 4,
		MigrationsPath: "../../migrations/postgres",
	}
}

func TestPostgresBackend(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg := testPostgresConfig()
	db, err := NewPostgresDB(cfg)
	if err != nil {
		t.Skipf("Skipping test - Postgres not available: %v", err)
		return
	}
	defer db.Close()

	require.NoError(t, RunMigrations(cfg))

	b := NewPostgresBackend(db)
	ctx := testContext(t)
	_ = b.Delete(ctx, "ledger.transactions.v2")
	_ = b.Delete(ctx, "ledger.transactions")

	exerciseBackend(t, b)
}
