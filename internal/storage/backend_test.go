package storage

import (
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tx-ledger/internal/config"
	"github.com/tx-ledger/internal/logging"
)

// exerciseBackend runs the slot contract every backend must honor
func exerciseBackend(t *testing.T, b Backend) {
	t.Helper()
	ctx := testContext(t)

	_, found, err := b.Get(ctx, "ledger.transactions.v2")
	require.NoError(t, err)
	assert.False(t, found, "fresh backend should not have the slot")

	require.NoError(t, b.Set(ctx, "ledger.transactions.v2", []byte(`[{"id":"a"}]`)))
	data, found, err := b.Get(ctx, "ledger.transactions.v2")
	require.NoError(t, err)
	assert.True(t, found)
	assert.JSONEq(t, `[{"id":"a"}]`, string(data))

	require.NoError(t, b.Set(ctx, "ledger.transactions.v2", []byte(`[]`)))
	data, _, err = b.Get(ctx, "ledger.transactions.v2")
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))

	_, found, err = b.Get(ctx, "ledger.transactions")
	require.NoError(t, err)
	assert.False(t, found, "slots must be independent")

	require.NoError(t, b.Delete(ctx, "ledger.transactions.v2"))
	_, found, err = b.Get(ctx, "ledger.transactions.v2")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, b.Delete(ctx, "never-written"), "deleting a missing slot is a no-op")
}

func TestMemoryBackend(t *testing.T) {
	exerciseBackend(t, NewMemoryBackend(0))
}

func TestMemoryBackend_Quota(t *testing.T) {
	ctx := testContext(t)
	b := NewMemoryBackend(10)

	require.NoError(t, b.Set(ctx, "a", []byte("12345")))
	err := b.Set(ctx, "b", []byte("123456"))
	assert.True(t, errors.Is(err, ErrQuotaExceeded))

	// Overwriting a slot only counts its new size
	require.NoError(t, b.Set(ctx, "a", []byte("1234567890")))

	b.SetQuota(0)
	require.NoError(t, b.Set(ctx, "b", []byte("123456")))
}

func TestMemoryBackend_ReturnsCopies(t *testing.T) {
	ctx := testContext(t)
	b := NewMemoryBackend(0)

	in := []byte("abc")
	require.NoError(t, b.Set(ctx, "s", in))
	in[0] = 'x'

	out, _, err := b.Get(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(out))
	out[1] = 'y'

	again, _, _ := b.Get(ctx, "s")
	assert.Equal(t, "abc", string(again))
}

func TestFileBackend(t *testing.T) {
	b, err := NewFileBackend(t.TempDir())
	require.NoError(t, err)
	exerciseBackend(t, b)
}

func TestFileBackend_SanitizesSlotNames(t *testing.T) {
	dir := t.TempDir()
	b, err := NewFileBackend(dir)
	require.NoError(t, err)

	ctx := testContext(t)
	require.NoError(t, b.Set(ctx, "../escape/slot", []byte("x")))

	path := b.path("../escape/slot")
	assert.Contains(t, path, dir)
	data, found, err := b.Get(ctx, "../escape/slot")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "x", string(data))
}

func TestRedisBackend(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	b := NewRedisBackendFromClient(client, "txledger:")
	exerciseBackend(t, b)

	ctx := testContext(t)
	require.NoError(t, b.Set(ctx, "slot", []byte("v")))
	assert.True(t, mr.Exists("txledger:slot"), "keys are namespaced by prefix")
	assert.NoError(t, b.Ping(ctx))
	assert.NoError(t, b.Close(), "borrowed client stays open")
	assert.NoError(t, client.Ping(ctx).Err())
}

func TestRedisBackend_ConnectionError(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	b := NewRedisBackendFromClient(client, "")

	mr.Close()

	ctx := testContext(t)
	assert.Error(t, b.Set(ctx, "slot", []byte("v")))
	_, _, err = b.Get(ctx, "slot")
	assert.Error(t, err)
}

func TestOpenBackend(t *testing.T) {
	cfg := &config.Config{Storage: config.StorageConfig{Backend: "memory"}}
	opened, err := OpenBackend(cfg, logging.NewNopLogger())
	require.NoError(t, err)
	assert.IsType(t, &MemoryBackend{}, opened.Backend)
	assert.Nil(t, opened.Archive)
	opened.Close()

	cfg.Storage = config.StorageConfig{Backend: "file", FileDir: t.TempDir()}
	opened, err = OpenBackend(cfg, logging.NewNopLogger())
	require.NoError(t, err)
	assert.IsType(t, &FileBackend{}, opened.Backend)

	cfg.Storage.Backend = "floppy"
	_, err = OpenBackend(cfg, logging.NewNopLogger())
	assert.Error(t, err)
}
