// Package api exposes the ledger orchestrator over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/tx-ledger/internal/logging"
	"github.com/tx-ledger/internal/orchestrator"
	"github.com/tx-ledger/internal/types"
)

// Ledger is the orchestrator surface served by the API
type Ledger interface {
	Snapshot() orchestrator.View
	Refresh(ctx context.Context) error
	AddTransaction(ctx context.Context, draft types.TransactionDraft) (types.Transaction, error)
	UpdateTransaction(ctx context.Context, id string, patch types.TransactionPatch) (*types.Transaction, error)
	DeleteTransaction(ctx context.Context, id string) (bool, error)
	ImportTransactions(ctx context.Context, data string) (bool, error)
	ExportTransactions(ctx context.Context) (string, error)
	ClearAll(ctx context.Context) error
	ApplyFilter(criteria types.FilterCriteria) orchestrator.View
	ClearFilter() orchestrator.View
}

// SessionSwitcher lets the API change the account the ledger is scoped to
type SessionSwitcher interface {
	orchestrator.Session
	Set(address string, chainID types.ChainID)
}

var (
	_ Ledger          = (*orchestrator.Orchestrator)(nil)
	_ SessionSwitcher = (*orchestrator.StaticSession)(nil)
)

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	ledger     Ledger
	session    SessionSwitcher
	logger     *logging.Logger
	config     *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host              string
	Port              string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	RequestsPerSecond float64 // Per client address; zero disables rate limiting
	Burst             int
}

// NewServer creates a new API server instance.
func NewServer(config *ServerConfig, ledger Ledger, session SessionSwitcher, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	s := &Server{
		router:  mux.NewRouter(),
		ledger:  ledger,
		session: session,
		logger:  logger.WithComponent("api"),
		config:  config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(RecoveryMiddleware(s.logger))
	s.router.Use(CORSMiddleware)
	if s.config.RequestsPerSecond > 0 {
		s.router.Use(RateLimitMiddleware(NewRateLimiter(s.config.RequestsPerSecond, s.config.Burst)))
	}
	s.router.Use(CompressionMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()

	// Transactions
	api.HandleFunc("/transactions", s.handleListTransactions).Methods("GET")
	api.HandleFunc("/transactions", s.handleAddTransaction).Methods("POST")
	api.HandleFunc("/transactions", s.handleClearTransactions).Methods("DELETE")
	api.HandleFunc("/transactions/{id}", s.handleUpdateTransaction).Methods("PATCH")
	api.HandleFunc("/transactions/{id}", s.handleDeleteTransaction).Methods("DELETE")
	api.HandleFunc("/stats", s.handleStats).Methods("GET")

	// Filter state
	api.HandleFunc("/filter", s.handleApplyFilter).Methods("PUT")
	api.HandleFunc("/filter", s.handleClearFilter).Methods("DELETE")

	// Export / import
	api.HandleFunc("/export", s.handleExport).Methods("GET")
	api.HandleFunc("/import", s.handleImport).Methods("POST")

	// Reconciliation and account context
	api.HandleFunc("/refresh", s.handleRefresh).Methods("POST")
	api.HandleFunc("/session", s.handleGetSession).Methods("GET")
	api.HandleFunc("/session", s.handleSetSession).Methods("PUT")
}

// Handler returns the configured router
func (s *Server) Handler() http.Handler {
	return s.router
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "tx-ledger",
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	return s.httpServer.Shutdown(ctx)
}
