// Package main runs the transaction ledger service: it reconciles pending
// records against the configured chains and serves the ledger over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tx-ledger/internal/adapter"
	"github.com/tx-ledger/internal/api"
	"github.com/tx-ledger/internal/circuitbreaker"
	"github.com/tx-ledger/internal/config"
	"github.com/tx-ledger/internal/ledger"
	"github.com/tx-ledger/internal/logging"
	"github.com/tx-ledger/internal/orchestrator"
	"github.com/tx-ledger/internal/pricing"
	"github.com/tx-ledger/internal/reconcile"
	"github.com/tx-ledger/internal/retry"
	"github.com/tx-ledger/internal/storage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ledgerd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger.WithFields(logging.Fields{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("structured logging initialized")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithLogger(ctx, logger)

	// Storage
	opened, err := storage.OpenBackend(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer opened.Close()

	storeCfg := &ledger.StoreConfig{
		Backend:    opened.Backend,
		Slot:       cfg.Storage.Slot,
		LegacySlot: cfg.Storage.LegacySlot,
		MaxRecords: cfg.Storage.MaxRecords,
		Logger:     logger,
	}
	if opened.Archive != nil {
		storeCfg.Archive = opened.Archive
	}
	store := ledger.NewStore(storeCfg)

	// Chains
	clients, err := adapter.DialClients(cfg.Chains, cfg.Reconcile, logger)
	if err != nil {
		return fmt.Errorf("failed to connect chain clients: %w", err)
	}
	defer clients.Close()

	registry, err := adapter.RegistryFromConfig(cfg.Chains)
	if err != nil {
		return fmt.Errorf("invalid chain configuration: %w", err)
	}

	oracle, err := pricing.NewStaticOracle(cfg.Pricing.Prices)
	if err != nil {
		return fmt.Errorf("invalid price table: %w", err)
	}

	reconciler, err := reconcile.New(&reconcile.Config{
		Clients:  clients,
		Registry: registry,
		Oracle:   oracle,
		Breakers: circuitbreaker.NewManager(circuitbreaker.Config{
			MaxFailures: cfg.Reconcile.BreakerMaxFailures,
			Timeout:     cfg.Reconcile.BreakerTimeout,
			Logger:      logger,
		}),
		Retry: &retry.Config{
			MaxAttempts:  cfg.Reconcile.RetryAttempts,
			InitialDelay: cfg.Reconcile.RetryInitialDelay,
			MaxDelay:     10 * time.Second,
			Multiplier:   2,
		},
		BlockWindow: cfg.Reconcile.DiscoveryBlockWindow,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	// Orchestrator
	session := orchestrator.NewStaticSession(cfg.Session.UserAddress, cfg.Session.ChainID)
	orch, err := orchestrator.New(&orchestrator.Config{
		Store:           store,
		Reconciler:      reconciler,
		Session:         session,
		RefreshInterval: cfg.Reconcile.RefreshInterval,
		Logger:          logger,
	})
	if err != nil {
		return err
	}
	defer orch.Close()

	if err := orch.Start(ctx); err != nil {
		return err
	}

	// HTTP
	server := api.NewServer(&api.ServerConfig{
		Host:              cfg.Server.Host,
		Port:              cfg.Server.Port,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ShutdownTimeout:   cfg.Server.ShutdownTimeout,
		RequestsPerSecond: cfg.Server.RequestsPerSecond,
		Burst:             cfg.Server.RateLimitBurst,
	}, orch, session, logger)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("api server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("api server did not shut down cleanly")
	}

	logger.Info("ledgerd stopped")
	return nil
}
