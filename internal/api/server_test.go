package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tx-ledger/internal/ledger"
	"github.com/tx-ledger/internal/logging"
	"github.com/tx-ledger/internal/orchestrator"
	"github.com/tx-ledger/internal/storage"
	"github.com/tx-ledger/internal/types"
)

const testUser = "0x00000000000000000000000000000000000000aa"

func setupTestServer(t *testing.T) (*Server, *storage.MemoryBackend) {
	t.Helper()

	backend := storage.NewMemoryBackend(0)
	store := ledger.NewStore(&ledger.StoreConfig{Backend: backend, Logger: logging.NewNopLogger()})
	session := orchestrator.NewStaticSession(testUser, types.ChainBase)

	orch, err := orchestrator.New(&orchestrator.Config{
		Store:   store,
		Session: session,
		Logger:  logging.NewNopLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(orch.Close)

	return NewServer(&ServerConfig{Host: "localhost", Port: "0"}, orch, session, logging.NewNopLogger()), backend
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decodeView(t *testing.T, w *httptest.ResponseRecorder) ViewResponse {
	t.Helper()
	var v ViewResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v))
	return v
}

func TestHealth(t *testing.T) {
	s, _ := setupTestServer(t)
	w := do(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestTransactionLifecycle(t *testing.T) {
	s, _ := setupTestServer(t)

	w := do(t, s, http.MethodPost, "/api/transactions", `{"type":"borrow","token":"ETH","amount":"1.5","value":"$4500.00","txHash":"0xabc"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var tx types.Transaction
	require.NoError(t, json.NewDecoder(w.Body).Decode(&tx))
	assert.Equal(t, types.StatusPending, tx.Status)
	assert.Equal(t, testUser, tx.UserAddress)
	assert.Equal(t, types.ChainBase, tx.ChainID)
	assert.Equal(t, "Borrow", tx.Action)

	w = do(t, s, http.MethodGet, "/api/transactions", "")
	require.Equal(t, http.StatusOK, w.Code)
	view := decodeView(t, w)
	require.Len(t, view.Transactions, 1)
	assert.Equal(t, tx.ID, view.Transactions[0].ID)
	assert.Equal(t, 1, view.Stats.PendingTransactions)

	w = do(t, s, http.MethodPatch, "/api/transactions/"+tx.ID, `{"status":"completed","blockNumber":12}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, s, http.MethodGet, "/api/stats", "")
	var stats types.TransactionStats
	require.NoError(t, json.NewDecoder(w.Body).Decode(&stats))
	assert.Equal(t, 1, stats.CompletedTransactions)
	assert.Equal(t, "4500", stats.TotalVolume.String())

	w = do(t, s, http.MethodPatch, "/api/transactions/missing", `{"status":"failed"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, s, http.MethodDelete, "/api/transactions/"+tx.ID, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, s, http.MethodDelete, "/api/transactions/"+tx.ID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAddTransaction_Validation(t *testing.T) {
	s, _ := setupTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"unknown type", `{"type":"mint"}`},
		{"unknown field", `{"type":"deposit","bogus":1}`},
		{"not json", `deposit`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, s, http.MethodPost, "/api/transactions", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestAddTransaction_PersistenceFailure(t *testing.T) {
	s, backend := setupTestServer(t)
	backend.SetQuota(5)

	w := do(t, s, http.MethodPost, "/api/transactions", `{"type":"deposit","token":"USDC","value":"$1"}`)
	assert.Equal(t, http.StatusInsufficientStorage, w.Code)
	assert.Contains(t, w.Body.String(), "PERSISTENCE_ERROR")
}

func TestAddTransaction_OlderThanFullLedger(t *testing.T) {
	store := ledger.NewStore(&ledger.StoreConfig{MaxRecords: 1, Logger: logging.NewNopLogger()})
	session := orchestrator.NewStaticSession(testUser, types.ChainBase)
	orch, err := orchestrator.New(&orchestrator.Config{Store: store, Session: session, Logger: logging.NewNopLogger()})
	require.NoError(t, err)
	t.Cleanup(orch.Close)
	s := NewServer(&ServerConfig{Host: "localhost", Port: "0"}, orch, session, logging.NewNopLogger())

	w := do(t, s, http.MethodPost, "/api/transactions", `{"type":"deposit","token":"USDC","timestamp":5000}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = do(t, s, http.MethodPost, "/api/transactions", `{"type":"repay","token":"USDC","timestamp":1000}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Len(t, store.GetAll(context.Background()), 1)
}

func TestFilterEndpoints(t *testing.T) {
	s, _ := setupTestServer(t)

	for _, body := range []string{
		`{"type":"bridge","token":"USDC"}`,
		`{"type":"bridge","token":"USDC","txHash":"0x1"}`,
		`{"type":"deposit","token":"ETH"}`,
	} {
		require.Equal(t, http.StatusCreated, do(t, s, http.MethodPost, "/api/transactions", body).Code)
	}

	w := do(t, s, http.MethodPut, "/api/filter", `{"type":"bridge","status":"completed"}`)
	require.Equal(t, http.StatusOK, w.Code)
	view := decodeView(t, w)
	require.Len(t, view.Transactions, 1)
	assert.Equal(t, 3, view.Total)
	assert.Equal(t, types.TypeBridge, view.Filter.Type)

	w = do(t, s, http.MethodGet, "/api/transactions?token=eth", "")
	assert.Empty(t, decodeView(t, w).Transactions)

	w = do(t, s, http.MethodDelete, "/api/filter", "")
	assert.Len(t, decodeView(t, w).Transactions, 3)

	w = do(t, s, http.MethodGet, "/api/transactions?token=eth", "")
	assert.Len(t, decodeView(t, w).Transactions, 1)

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPut, "/api/filter", `{"timeframe":"1year"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/transactions?chainId=narnia", "").Code)
}

func TestExportImport(t *testing.T) {
	s, _ := setupTestServer(t)

	require.Equal(t, http.StatusCreated, do(t, s, http.MethodPost, "/api/transactions", `{"type":"stake","token":"ETH","txHash":"0xaa"}`).Code)

	w := do(t, s, http.MethodGet, "/api/export", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "transactions.json")
	exported := w.Body.String()

	assert.Equal(t, http.StatusNoContent, do(t, s, http.MethodDelete, "/api/transactions", "").Code)
	assert.Empty(t, decodeView(t, do(t, s, http.MethodGet, "/api/transactions", "")).Transactions)

	w = do(t, s, http.MethodPost, "/api/import", "not an array")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/import", bytes.NewBufferString(exported))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeView(t, rec).Transactions, 1)
}

func TestSessionEndpoints(t *testing.T) {
	s, _ := setupTestServer(t)

	require.Equal(t, http.StatusCreated, do(t, s, http.MethodPost, "/api/transactions", `{"type":"deposit","token":"ETH"}`).Code)

	w := do(t, s, http.MethodPut, "/api/session", `{"address":"0x00000000000000000000000000000000000000bb","chainId":8453}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodeView(t, w).Transactions)

	w = do(t, s, http.MethodGet, "/api/session", "")
	var sess SessionRequest
	require.NoError(t, json.NewDecoder(w.Body).Decode(&sess))
	assert.Equal(t, types.ChainBase, sess.ChainID)

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPut, "/api/session", `{"address":"bob"}`).Code)

	w = do(t, s, http.MethodPost, "/api/refresh", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	handler := RateLimitMiddleware(rl)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := RecoveryMiddleware(logging.NewNopLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
