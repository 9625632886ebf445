package storage

import (
	"fmt"

	"github.com/tx-ledger/internal/config"
	"github.com/tx-ledger/internal/logging"
)

// Opened is a configured backend plus the resources it holds open
type Opened struct {
	Backend Backend
	Archive *ClickHouseArchive // Nil unless eviction archiving is enabled

	closers []func()
}

// Close releases every connection opened by OpenBackend
func (o *Opened) Close() {
	for i := len(o.closers) - 1; i >= 0; i-- {
		o.closers[i]()
	}
	o.closers = nil
}

// OpenBackend connects the slot backend selected by cfg.Storage.Backend and,
// when enabled, the ClickHouse eviction archive
func OpenBackend(cfg *config.Config, logger *logging.Logger) (*Opened, error) {
	opened := &Opened{}
	logger = logger.WithField("backend", cfg.Storage.Backend)

	switch cfg.Storage.Backend {
	case "memory":
		opened.Backend = NewMemoryBackend(0)
	case "file", "":
		fb, err := NewFileBackend(cfg.Storage.FileDir)
		if err != nil {
			return nil, err
		}
		opened.Backend = fb
	case "redis":
		rb, err := NewRedisBackend(&cfg.Database.Redis)
		if err != nil {
			return nil, err
		}
		opened.Backend = rb
		opened.closers = append(opened.closers, func() { _ = rb.Close() })
	case "postgres":
		db, err := NewPostgresDB(&cfg.Database.Postgres)
		if err != nil {
			return nil, err
		}
		opened.Backend = NewPostgresBackend(db)
		opened.closers = append(opened.closers, db.Close)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	if cfg.Storage.ArchiveEvicted {
		ch, err := NewClickHouseDB(&cfg.Database.ClickHouse)
		if err != nil {
			opened.Close()
			return nil, fmt.Errorf("eviction archive: %w", err)
		}
		opened.Archive = NewClickHouseArchive(ch)
		opened.closers = append(opened.closers, func() { _ = ch.Close() })
		logger.Info("archiving evicted records to ClickHouse")
	}

	logger.Info("ledger storage opened")
	return opened, nil
}
