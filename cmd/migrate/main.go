// Package main applies the ledger's Postgres slot table and ClickHouse
// eviction archive schemas.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/tx-ledger/internal/config"
	"github.com/tx-ledger/internal/storage"
)

// migrator runs one migration action against one database
type migrator func(ctx context.Context, cfg *config.Config) error

var migrators = map[string]map[string]migrator{
	"postgres": {
		"up":      postgresUp,
		"down":    postgresDown,
		"version": postgresVersion,
	},
	"clickhouse": {
		"up": clickHouseUp,
	},
}

func main() {
	var (
		action  = flag.String("action", "up", "Migration action: up, down, version")
		dbType  = flag.String("db", "postgres", "Database: postgres, clickhouse, all")
		timeout = flag.Duration("timeout", 2*time.Minute, "Overall deadline")
	)
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	targets := []string{*dbType}
	if *dbType == "all" {
		targets = []string{"postgres", "clickhouse"}
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	for _, db := range targets {
		run, err := lookup(db, *action)
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("%s: %s", db, *action)
		if err := run(ctx, cfg); err != nil {
			log.Fatalf("%s %s failed: %v", db, *action, err)
		}
	}
}

func lookup(db, action string) (migrator, error) {
	actions, ok := migrators[db]
	if !ok {
		return nil, fmt.Errorf("unknown database %q", db)
	}
	run, ok := actions[action]
	if !ok {
		supported := make([]string, 0, len(actions))
		for name := range actions {
			supported = append(supported, name)
		}
		sort.Strings(supported)
		return nil, fmt.Errorf("%s supports %s, not %q", db, strings.Join(supported, ", "), action)
	}
	return run, nil
}

func requireDir(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("migrations directory %s: %w", path, err)
	}
	return nil
}

func postgresUp(ctx context.Context, cfg *config.Config) error {
	pg := &cfg.Database.Postgres
	if err := requireDir(pg.MigrationsPath); err != nil {
		return err
	}
	if err := storage.RunMigrations(pg); err != nil {
		return err
	}
	return postgresVersion(ctx, cfg)
}

func postgresDown(ctx context.Context, cfg *config.Config) error {
	if err := storage.RollbackMigrations(&cfg.Database.Postgres); err != nil {
		return err
	}
	return postgresVersion(ctx, cfg)
}

func postgresVersion(_ context.Context, cfg *config.Config) error {
	version, dirty, err := storage.MigrationVersion(&cfg.Database.Postgres)
	if err != nil {
		return err
	}
	log.Printf("ledger_slots schema at version %d (dirty: %v)", version, dirty)
	return nil
}

func clickHouseUp(ctx context.Context, cfg *config.Config) error {
	ch := &cfg.Database.ClickHouse
	if err := requireDir(ch.MigrationsPath); err != nil {
		return err
	}

	db, err := storage.NewClickHouseDB(ch)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("closing ClickHouse connection: %v", err)
		}
	}()

	if err := storage.RunClickHouseMigrations(ctx, db, ch.MigrationsPath); err != nil {
		return err
	}
	log.Println("ledger_evictions schema is current")
	return nil
}
