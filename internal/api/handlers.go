package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"

	apperrors "github.com/tx-ledger/internal/errors"
	"github.com/tx-ledger/internal/ledger"
	"github.com/tx-ledger/internal/logging"
	"github.com/tx-ledger/internal/orchestrator"
	"github.com/tx-ledger/internal/types"
)

// ViewResponse is the JSON shape of the orchestrator view
type ViewResponse struct {
	Transactions  []types.Transaction    `json:"transactions"`
	Total         int                    `json:"total"`
	Stats         types.TransactionStats `json:"stats"`
	Filter        types.FilterCriteria   `json:"filter"`
	IsLoading     bool                   `json:"isLoading"`
	Error         string                 `json:"error,omitempty"`
	LastRefreshed *time.Time             `json:"lastRefreshed,omitempty"`
}

// SessionRequest switches the account context
type SessionRequest struct {
	Address string        `json:"address"`
	ChainID types.ChainID `json:"chainId"`
}

func toViewResponse(v orchestrator.View) ViewResponse {
	resp := ViewResponse{
		Transactions: v.Transactions,
		Total:        len(v.All),
		Stats:        v.Stats,
		Filter:       v.Filter,
		IsLoading:    v.IsLoading,
	}
	if resp.Transactions == nil {
		resp.Transactions = []types.Transaction{}
	}
	if v.Err != nil {
		resp.Error = v.Err.Error()
	}
	if !v.LastRefreshed.IsZero() {
		t := v.LastRefreshed
		resp.LastRefreshed = &t
	}
	return resp
}

// handleListTransactions returns the filtered view. Query parameters narrow
// the result without changing the active filter.
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	view := s.ledger.Snapshot()

	criteria, err := criteriaFromQuery(r)
	if err != nil {
		respondCategorized(w, err)
		return
	}
	if !criteria.IsEmpty() {
		view.Transactions = ledger.ApplyFilter(view.Transactions, criteria, time.Now())
	}

	respondJSON(w, http.StatusOK, toViewResponse(view))
}

func (s *Server) handleAddTransaction(w http.ResponseWriter, r *http.Request) {
	var draft types.TransactionDraft
	if err := parseJSONBody(r, &draft); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	if !draft.Type.Valid() {
		respondCategorized(w, apperrors.NewInvalidParameterError("type", "unknown transaction type"))
		return
	}

	user, chainID := s.session.Current()
	if draft.UserAddress == "" {
		draft.UserAddress = user
	}
	if draft.ChainID == 0 {
		draft.ChainID = chainID
	}

	tx, err := s.ledger.AddTransaction(r.Context(), draft)
	if errors.Is(err, ledger.ErrBeyondCapacity) {
		respondError(w, http.StatusConflict, ErrCodeInvalidInput, "Ledger is full and the transaction is older than every stored record", nil)
		return
	}
	if err != nil {
		respondCategorized(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, tx)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var patch types.TransactionPatch
	if err := parseJSONBody(r, &patch); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	if patch.Status != nil && !patch.Status.Valid() {
		respondCategorized(w, apperrors.NewInvalidParameterError("status", "unknown status"))
		return
	}

	tx, err := s.ledger.UpdateTransaction(r.Context(), id, patch)
	if err != nil {
		respondCategorized(w, err)
		return
	}
	if tx == nil {
		respondCategorized(w, apperrors.NewNotFoundError("transaction", id))
		return
	}
	respondJSON(w, http.StatusOK, tx)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	ok, err := s.ledger.DeleteTransaction(r.Context(), id)
	if err != nil {
		respondCategorized(w, err)
		return
	}
	if !ok {
		respondCategorized(w, apperrors.NewNotFoundError("transaction", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearTransactions(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.ClearAll(r.Context()); err != nil {
		respondCategorized(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.ledger.Snapshot().Stats)
}

func (s *Server) handleApplyFilter(w http.ResponseWriter, r *http.Request) {
	var criteria types.FilterCriteria
	if err := parseJSONBody(r, &criteria); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	if err := validateCriteria(criteria); err != nil {
		respondCategorized(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toViewResponse(s.ledger.ApplyFilter(criteria)))
}

func (s *Server) handleClearFilter(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, toViewResponse(s.ledger.ClearFilter()))
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	data, err := s.ledger.ExportTransactions(r.Context())
	if err != nil {
		respondCategorized(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="transactions.json"`)
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, data)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Could not read request body", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	ok, err := s.ledger.ImportTransactions(r.Context(), string(body))
	if err != nil {
		respondCategorized(w, err)
		return
	}
	if !ok {
		respondCategorized(w, apperrors.NewInvalidImportError("payload is not a JSON array of transactions"))
		return
	}
	respondJSON(w, http.StatusOK, toViewResponse(s.ledger.Snapshot()))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.Refresh(r.Context()); err != nil {
		respondCategorized(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toViewResponse(s.ledger.Snapshot()))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	address, chainID := s.session.Current()
	respondJSON(w, http.StatusOK, SessionRequest{Address: address, ChainID: chainID})
}

// handleSetSession switches the account and refreshes. An empty address disconnects.
func (s *Server) handleSetSession(w http.ResponseWriter, r *http.Request) {
	var req SessionRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	if req.Address != "" && !common.IsHexAddress(req.Address) {
		respondCategorized(w, apperrors.NewInvalidParameterError("address", "not a hex address"))
		return
	}

	s.session.Set(req.Address, req.ChainID)
	s.logger.WithFields(logging.Fields{
		"address": req.Address,
		"chain":   req.ChainID.Name(),
	}).Info("session switched")

	if err := s.ledger.Refresh(r.Context()); err != nil {
		respondCategorized(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toViewResponse(s.ledger.Snapshot()))
}

func criteriaFromQuery(r *http.Request) (types.FilterCriteria, error) {
	q := r.URL.Query()
	criteria := types.FilterCriteria{
		Type:      types.TransactionType(q.Get("type")),
		Status:    types.TransactionStatus(q.Get("status")),
		Token:     q.Get("token"),
		Timeframe: types.Timeframe(q.Get("timeframe")),
	}
	if raw := q.Get("chainId"); raw != "" {
		chainID, ok := types.ParseChainID(raw)
		if !ok {
			return criteria, apperrors.NewInvalidParameterError("chainId", "unknown chain")
		}
		criteria.ChainID = chainID
	}
	return criteria, validateCriteria(criteria)
}

func validateCriteria(c types.FilterCriteria) error {
	if c.Type != "" && !c.Type.Valid() {
		return apperrors.NewInvalidParameterError("type", "unknown transaction type")
	}
	if c.Status != "" && !c.Status.Valid() {
		return apperrors.NewInvalidParameterError("status", "unknown status")
	}
	switch c.Timeframe {
	case "", types.Timeframe24Hours, types.Timeframe7Days, types.Timeframe30Days, types.TimeframeAll:
	default:
		return apperrors.NewInvalidParameterError("timeframe", "expected 24hours, 7days, 30days or all")
	}
	return nil
}
