// Package main provides a CLI for inspecting and maintaining the persisted
// ledger without running the service.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/tx-ledger/internal/config"
	"github.com/tx-ledger/internal/ledger"
	"github.com/tx-ledger/internal/logging"
	"github.com/tx-ledger/internal/storage"
	"github.com/tx-ledger/internal/types"
)

func main() {
	var (
		action  = flag.String("action", "list", "Action: list, stats, export, import, clear")
		file    = flag.String("file", "", "File for export/import (default stdout/stdin)")
		user    = flag.String("user", "", "Scope list/stats to this address")
		chain   = flag.String("chain", "", "Scope list/stats to this chain id")
		confirm = flag.Bool("yes", false, "Confirm destructive actions")
	)
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	ctx := logging.WithLogger(context.Background(), logger)

	opened, err := storage.OpenBackend(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
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

	var chainID types.ChainID
	if *chain != "" {
		var ok bool
		if chainID, ok = types.ParseChainID(*chain); !ok {
			log.Fatalf("Invalid chain: %s", *chain)
		}
	}

	switch *action {
	case "list":
		err = list(ctx, store, *user, chainID)
	case "stats":
		err = printJSON(store.Stats(ctx, *user, chainID))
	case "export":
		err = export(ctx, store, *file)
	case "import":
		err = importFile(ctx, store, *file)
	case "clear":
		if !*confirm {
			log.Fatalf("Refusing to clear the ledger without -yes")
		}
		err = store.Clear(ctx)
		if err == nil {
			log.Println("Ledger cleared")
		}
	default:
		err = fmt.Errorf("unknown action: %s", *action)
	}
	if err != nil {
		log.Fatalf("%s failed: %v", *action, err)
	}
}

func list(ctx context.Context, store *ledger.Store, user string, chainID types.ChainID) error {
	records := ledger.Scope(store.GetAll(ctx), user, chainID)
	for _, tx := range records {
		hash := tx.TxHash
		if hash == "" {
			hash = "-"
		}
		fmt.Printf("%-36s %-11s %-9s %-10s %14s %-8s %s\n",
			tx.ID, tx.Type, tx.Status, tx.ChainID.Name(), tx.Amount, tx.Token, hash)
	}
	fmt.Printf("%d record(s)\n", len(records))
	return nil
}

func export(ctx context.Context, store *ledger.Store, path string) error {
	data, err := store.ExportAll(ctx)
	if err != nil {
		return err
	}
	if path == "" {
		_, err = fmt.Fprintln(os.Stdout, data)
		return err
	}
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		return err
	}
	log.Printf("Exported ledger to %s", path)
	return nil
}

func importFile(ctx context.Context, store *ledger.Store, path string) error {
	var (
		data []byte
		err  error
	)
	if path == "" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return err
	}

	ok, err := store.ImportAll(ctx, strings.TrimSpace(string(data)))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("input is not a valid ledger export")
	}
	log.Println("Import completed")
	return nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
