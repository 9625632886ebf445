// Package ledger implements the durable, capacity-bounded transaction ledger.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/tx-ledger/internal/errors"
	"github.com/tx-ledger/internal/logging"
	"github.com/tx-ledger/internal/storage"
	"github.com/tx-ledger/internal/types"
)

const (
	// DefaultMaxRecords bounds the ledger when no capacity is configured
	DefaultMaxRecords = 1000
	// DefaultSlot holds the current schema
	DefaultSlot = "ledger.transactions.v2"
	// DefaultLegacySlot holds records written by the previous schema
	DefaultLegacySlot = "ledger.transactions"
)

// ErrBeyondCapacity is returned by Add when the ledger is full and the new
// record is older than every record it holds
var ErrBeyondCapacity = errors.New("ledger is full and the record is older than every held record")

// Archive receives records evicted for capacity
type Archive interface {
	ArchiveEvicted(ctx context.Context, records []types.Transaction) error
}

// StoreConfig holds store dependencies and limits
type StoreConfig struct {
	Backend    storage.Backend
	Slot       string
	LegacySlot string
	MaxRecords int
	Archive    Archive // Optional
	Logger     *logging.Logger
	Clock      func() time.Time
	NewID      func() string
}

// Store is the sole owner of persisted ledger state. Every mutation is a
// read-modify-write of the whole slot performed under one lock.
type Store struct {
	mu         sync.Mutex
	backend    storage.Backend
	slot       string
	legacySlot string
	maxRecords int
	archive    Archive
	logger     *logging.Logger
	now        func() time.Time
	newID      func() string
	migrated   bool
}

// NewStore creates a store. Legacy migration happens lazily on first access.
func NewStore(cfg *StoreConfig) *Store {
	s := &Store{
		backend:    cfg.Backend,
		slot:       cfg.Slot,
		legacySlot: cfg.LegacySlot,
		maxRecords: cfg.MaxRecords,
		archive:    cfg.Archive,
		logger:     cfg.Logger,
		now:        cfg.Clock,
		newID:      cfg.NewID,
	}
	if s.backend == nil {
		s.backend = storage.NewMemoryBackend(0)
	}
	if s.slot == "" {
		s.slot = DefaultSlot
	}
	if s.legacySlot == "" {
		s.legacySlot = DefaultLegacySlot
	}
	if s.maxRecords <= 0 {
		s.maxRecords = DefaultMaxRecords
	}
	if s.logger == nil {
		s.logger = logging.GetGlobalLogger()
	}
	s.logger = s.logger.WithComponent("ledger")
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

// MaxRecords returns the capacity bound
func (s *Store) MaxRecords() int {
	return s.maxRecords
}

// GetAll returns every record, newest first. A missing, corrupt or
// unreadable slot yields an empty ledger.
func (s *Store) GetAll(ctx context.Context) []types.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("failed to read ledger slot, treating as empty")
		return []types.Transaction{}
	}
	return records
}

// Add records a new operation. A draft whose txHash is already recorded returns
// the existing record without writing. A full ledger rejects a record older than
// everything it holds with ErrBeyondCapacity. Read and write failures are
// persistence errors.
func (s *Store) Add(ctx context.Context, draft types.TransactionDraft) (types.Transaction, error) {
	s.mu.Lock()
	records, err := s.load(ctx)
	if err != nil {
		s.mu.Unlock()
		return types.Transaction{}, apperrors.NewPersistenceError("add", err)
	}

	tx := s.fromDraft(draft)
	if idx := indexOfEvent(records, &tx); idx >= 0 {
		existing := records[idx]
		s.mu.Unlock()
		s.logger.WithFields(logging.Fields{
			"txHash": tx.TxHash,
			"id":     existing.ID,
		}).Debug("add skipped, event already recorded")
		return existing, nil
	}

	records = append([]types.Transaction{tx}, records...)
	records, evicted := s.bound(records)
	if indexOfID(evicted, tx.ID) >= 0 {
		s.mu.Unlock()
		s.logger.WithFields(logging.Fields{
			"txHash":    tx.TxHash,
			"timestamp": tx.Timestamp,
		}).Debug("add skipped, record would be evicted immediately")
		return types.Transaction{}, ErrBeyondCapacity
	}

	if err := s.persist(ctx, "add", records); err != nil {
		s.mu.Unlock()
		return types.Transaction{}, err
	}
	s.mu.Unlock()

	s.archiveEvicted(ctx, evicted)
	return tx.Clone(), nil
}

// Update merges a patch into the record with the given id. An unknown id
// returns nil without error. A settled status is final.
func (s *Store) Update(ctx context.Context, id string, patch types.TransactionPatch) (*types.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load(ctx)
	if err != nil {
		return nil, apperrors.NewPersistenceError("update", err)
	}
	idx := indexOfID(records, id)
	if idx < 0 {
		return nil, nil
	}

	updated := applyPatch(records[idx], patch)
	if patch.TxHash != nil && !SameHash(updated.TxHash, records[idx].TxHash) {
		if other := indexOfHash(records, updated.TxHash); other >= 0 && other != idx {
			s.logger.WithField("txHash", updated.TxHash).Warn("update ignored txHash already owned by another record")
			updated.TxHash = records[idx].TxHash
		}
	}

	if reflect.DeepEqual(updated, records[idx]) {
		out := updated.Clone()
		return &out, nil
	}

	records[idx] = updated
	if err := s.persist(ctx, "update", records); err != nil {
		return nil, err
	}

	out := updated.Clone()
	return &out, nil
}

// Delete removes a record and reports whether it existed
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load(ctx)
	if err != nil {
		return false, apperrors.NewPersistenceError("delete", err)
	}
	idx := indexOfID(records, id)
	if idx < 0 {
		return false, nil
	}

	records = append(records[:idx], records[idx+1:]...)
	if err := s.persist(ctx, "delete", records); err != nil {
		return false, err
	}
	return true, nil
}

// Filter returns the records matching criteria, newest first
func (s *Store) Filter(ctx context.Context, criteria types.FilterCriteria) []types.Transaction {
	return ApplyFilter(s.GetAll(ctx), criteria, s.now())
}

// Stats computes aggregates over the records scoped to a user and chain
func (s *Store) Stats(ctx context.Context, userAddress string, chainID types.ChainID) types.TransactionStats {
	return ComputeStats(Scope(s.GetAll(ctx), userAddress, chainID))
}

// ExportAll serializes the whole ledger as an indented JSON array
func (s *Store) ExportAll(ctx context.Context) (string, error) {
	records := s.GetAll(ctx)
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return "", apperrors.NewInternalError("failed to encode ledger export", err)
	}
	return string(data), nil
}

// ImportAll merges a serialized JSON array into the ledger. Input that is not an
// array of objects returns false and leaves the ledger untouched. Existing records
// win over imported copies of the same event, except that a settled copy upgrades
// a pending record.
func (s *Store) ImportAll(ctx context.Context, data string) (bool, error) {
	incoming, err := decodeRecords([]byte(data))
	if err != nil {
		s.logger.WithError(err).Warn("import rejected")
		return false, nil
	}

	s.mu.Lock()
	records, err := s.load(ctx)
	if err != nil {
		s.mu.Unlock()
		return false, apperrors.NewPersistenceError("import", err)
	}

	added, upgraded := 0, 0
	for _, tx := range incoming {
		s.normalize(&tx)

		if idx := indexOfEvent(records, &tx); idx >= 0 {
			if upgradeFrom(&records[idx], tx) {
				upgraded++
			}
			continue
		}
		records = append(records, tx)
		added++
	}

	sortNewestFirst(records)
	records, evicted := s.bound(records)

	if err := s.persist(ctx, "import", records); err != nil {
		s.mu.Unlock()
		return false, err
	}
	s.mu.Unlock()

	s.logger.WithFields(logging.Fields{
		"received": len(incoming),
		"added":    added,
		"upgraded": upgraded,
		"evicted":  len(evicted),
	}).Info("import merged")

	s.archiveEvicted(ctx, evicted)
	return true, nil
}

// Clear removes every record
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.migrated = true
	return s.persist(ctx, "clear", []types.Transaction{})
}

// load reads the current slot, running the legacy migration on first access.
// An absent or corrupt slot is an empty ledger; only a failed read is an error.
// Caller must hold s.mu.
func (s *Store) load(ctx context.Context) ([]types.Transaction, error) {
	if !s.migrated {
		s.migrateLegacy(ctx)
	}

	data, found, err := s.backend.Get(ctx, s.slot)
	if err != nil {
		return nil, err
	}
	if !found {
		return []types.Transaction{}, nil
	}

	records, err := decodeRecords(data)
	if err != nil {
		s.logger.WithError(err).Warn("ledger slot is corrupt, treating as empty")
		return []types.Transaction{}, nil
	}

	sortNewestFirst(records)
	return records, nil
}

// migrateLegacy moves the previous schema's slot into the current one when
// the current slot does not exist yet. Caller must hold s.mu.
func (s *Store) migrateLegacy(ctx context.Context) {
	_, found, err := s.backend.Get(ctx, s.slot)
	if err != nil {
		return
	}
	if found {
		s.migrated = true
		return
	}

	legacy, found, err := s.backend.Get(ctx, s.legacySlot)
	if err != nil {
		return
	}
	if !found {
		s.migrated = true
		return
	}

	records, err := decodeRecords(legacy)
	if err != nil {
		s.logger.WithError(err).Warn("legacy ledger slot is corrupt, discarding")
		records = nil
	}
	for i := range records {
		s.normalize(&records[i])
	}
	records = dedupe(records)
	sortNewestFirst(records)
	records, _ = s.bound(records)

	if err := s.persist(ctx, "migrate", records); err != nil {
		s.logger.WithError(err).Warn("legacy migration failed, will retry on next access")
		return
	}
	if err := s.backend.Delete(ctx, s.legacySlot); err != nil {
		s.logger.WithError(err).Warn("failed to clear legacy ledger slot")
	}

	s.migrated = true
	s.logger.WithField("records", len(records)).Info("migrated legacy ledger slot")
}

// persist writes the whole collection. Caller must hold s.mu.
func (s *Store) persist(ctx context.Context, op string, records []types.Transaction) error {
	if records == nil {
		records = []types.Transaction{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return apperrors.NewInternalError("failed to encode ledger", err)
	}
	if err := s.backend.Set(ctx, s.slot, data); err != nil {
		s.logger.WithError(err).WithField("operation", op).Error("ledger write rejected")
		return apperrors.NewPersistenceError(op, err)
	}
	return nil
}

// bound truncates a newest-first collection to capacity, returning the evicted tail
func (s *Store) bound(records []types.Transaction) (kept, evicted []types.Transaction) {
	sortNewestFirst(records)
	if len(records) <= s.maxRecords {
		return records, nil
	}
	evicted = append([]types.Transaction(nil), records[s.maxRecords:]...)
	return records[:s.maxRecords], evicted
}

func (s *Store) archiveEvicted(ctx context.Context, evicted []types.Transaction) {
	if len(evicted) == 0 {
		return
	}
	s.logger.WithField("count", len(evicted)).Info("evicted oldest records")
	if s.archive == nil {
		return
	}
	if err := s.archive.ArchiveEvicted(ctx, evicted); err != nil {
		s.logger.WithError(err).Warn("failed to archive evicted records")
	}
}

// fromDraft builds a new record. No txHash means the event already settled locally.
func (s *Store) fromDraft(d types.TransactionDraft) types.Transaction {
	tx := types.Transaction{
		ID:          s.newID(),
		Type:        d.Type,
		Action:      d.Action,
		Token:       d.Token,
		Amount:      d.Amount,
		Value:       d.Value,
		FromChain:   d.FromChain,
		ToChain:     d.ToChain,
		Timestamp:   d.Timestamp,
		Status:      types.StatusCompleted,
		TxHash:      d.TxHash,
		UserAddress: d.UserAddress,
		ChainID:     d.ChainID,
		PoolAddress: d.PoolAddress,
		Metadata:    d.Metadata.Clone(),
	}
	if tx.TxHash != "" {
		tx.Status = types.StatusPending
	}
	if tx.Timestamp == 0 {
		tx.Timestamp = s.now().UnixMilli()
	}
	if tx.Action == "" {
		tx.Action = types.ActionLabel(tx.Type, tx.IsCrossChain())
	}
	return tx
}

// normalize fills the fields older or foreign records may lack
func (s *Store) normalize(tx *types.Transaction) {
	if tx.ID == "" {
		tx.ID = s.newID()
	}
	if !tx.Status.Valid() {
		if tx.TxHash != "" {
			tx.Status = types.StatusPending
		} else {
			tx.Status = types.StatusCompleted
		}
	}
	if tx.Action == "" {
		tx.Action = types.ActionLabel(tx.Type, tx.IsCrossChain())
	}
	if tx.Timestamp == 0 {
		tx.Timestamp = s.now().UnixMilli()
	}
}

func applyPatch(tx types.Transaction, p types.TransactionPatch) types.Transaction {
	tx = tx.Clone()
	if p.Status != nil && p.Status.Valid() && !tx.Status.Settled() {
		tx.Status = *p.Status
	}
	if p.BlockNumber != nil {
		tx.BlockNumber = *p.BlockNumber
	}
	if p.GasUsed != nil {
		tx.GasUsed = *p.GasUsed
	}
	if p.GasPrice != nil {
		tx.GasPrice = *p.GasPrice
	}
	if p.TxHash != nil {
		tx.TxHash = *p.TxHash
	}
	if p.Metadata != nil {
		tx.Metadata = tx.Metadata.Merge(p.Metadata)
	}
	return tx
}

// upgradeFrom copies confirmation fields from a settled copy onto a pending record
func upgradeFrom(existing *types.Transaction, incoming types.Transaction) bool {
	if existing.Status.Settled() || !incoming.Status.Settled() {
		return false
	}
	existing.Status = incoming.Status
	if incoming.BlockNumber != 0 {
		existing.BlockNumber = incoming.BlockNumber
	}
	if incoming.GasUsed != "" {
		existing.GasUsed = incoming.GasUsed
	}
	if incoming.GasPrice != "" {
		existing.GasPrice = incoming.GasPrice
	}
	if existing.TxHash == "" {
		existing.TxHash = incoming.TxHash
	}
	existing.Metadata = existing.Metadata.Merge(incoming.Metadata)
	return true
}

// dedupe keeps the first record of every event
func dedupe(records []types.Transaction) []types.Transaction {
	out := make([]types.Transaction, 0, len(records))
	for i := range records {
		if idx := indexOfEvent(out, &records[i]); idx >= 0 {
			upgradeFrom(&out[idx], records[i])
			continue
		}
		out = append(out, records[i])
	}
	return out
}

func sortNewestFirst(records []types.Transaction) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp > records[j].Timestamp
	})
}
