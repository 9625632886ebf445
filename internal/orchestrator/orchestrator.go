// Package orchestrator is the single entry point over the ledger. It owns the
// refresh cycle that reconciles pending records and imports discovered chain
// activity, the active filter, and the background poller that keeps pending
// records moving while any exist.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tx-ledger/internal/ledger"
	"github.com/tx-ledger/internal/logging"
	"github.com/tx-ledger/internal/reconcile"
	"github.com/tx-ledger/internal/types"
)

// DefaultRefreshInterval is the poll period while records are pending
const DefaultRefreshInterval = 30 * time.Second

// ErrClosed is returned by Refresh after Close
var ErrClosed = errors.New("orchestrator closed")

// Store is the ledger surface the orchestrator drives
type Store interface {
	GetAll(ctx context.Context) []types.Transaction
	Add(ctx context.Context, draft types.TransactionDraft) (types.Transaction, error)
	Update(ctx context.Context, id string, patch types.TransactionPatch) (*types.Transaction, error)
	Delete(ctx context.Context, id string) (bool, error)
	ExportAll(ctx context.Context) (string, error)
	ImportAll(ctx context.Context, data string) (bool, error)
	Clear(ctx context.Context) error
}

// Reconciler is the chain surface the orchestrator drives
type Reconciler interface {
	ReconcilePending(ctx context.Context, records []types.Transaction) []types.Transaction
	DiscoverUserHistory(ctx context.Context, user string, chainID types.ChainID, fromBlock, toBlock *uint64) ([]types.ChainTransaction, error)
	ToLedgerDraft(ctx context.Context, ct types.ChainTransaction, user string, chainID types.ChainID) (types.TransactionDraft, bool)
}

var (
	_ Store      = (*ledger.Store)(nil)
	_ Reconciler = (*reconcile.Reconciler)(nil)
)

// Config wires the orchestrator
type Config struct {
	Store           Store
	Reconciler      Reconciler // Nil disables reconciliation and discovery
	Session         Session
	RefreshInterval time.Duration
	Logger          *logging.Logger
	Clock           func() time.Time
}

// View is the state exposed to presentation code
type View struct {
	Transactions  []types.Transaction // Scoped and filtered, newest first
	All           []types.Transaction // Scoped, newest first
	Stats         types.TransactionStats
	Filter        types.FilterCriteria
	IsLoading     bool
	Err           error
	LastRefreshed time.Time
}

// Orchestrator serializes refresh passes over the store
type Orchestrator struct {
	store      Store
	reconciler Reconciler
	session    Session
	interval   time.Duration
	logger     *logging.Logger
	now        func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	view       View
	hasPending bool
	requested  uint64
	completed  uint64
	running    bool
	lastErr    error
	passDone   chan struct{}
	closed     bool

	wake    chan struct{}
	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
	armed   bool
}

// New creates an orchestrator. Call Start to run the background poller.
func New(cfg *Config) (*Orchestrator, error) {
	if cfg == nil || cfg.Store == nil {
		return nil, errors.New("orchestrator: store is required")
	}

	o := &Orchestrator{
		store:      cfg.Store,
		reconciler: cfg.Reconciler,
		session:    cfg.Session,
		interval:   cfg.RefreshInterval,
		logger:     cfg.Logger,
		now:        cfg.Clock,
		passDone:   make(chan struct{}),
		wake:       make(chan struct{}, 1),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
	if o.session == nil {
		o.session = NewStaticSession("", 0)
	}
	if o.interval <= 0 {
		o.interval = DefaultRefreshInterval
	}
	if o.logger == nil {
		o.logger = logging.GetGlobalLogger()
	}
	o.logger = o.logger.WithComponent("orchestrator")
	if o.now == nil {
		o.now = time.Now
	}
	o.ctx, o.cancel = context.WithCancel(logging.WithLogger(context.Background(), o.logger))
	return o, nil
}

// Snapshot returns a copy of the current view
func (o *Orchestrator) Snapshot() View {
	o.mu.Lock()
	defer o.mu.Unlock()

	v := o.view
	v.Transactions = cloneAll(o.view.Transactions)
	v.All = cloneAll(o.view.All)
	return v
}

// Refresh runs a refresh pass and waits for it. A call that arrives while a
// pass is in flight is coalesced into a single follow-up pass, which it then
// waits for. Cancelling ctx stops the wait, not the pass.
func (o *Orchestrator) Refresh(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	o.requested++
	target := o.requested
	if !o.running {
		o.running = true
		o.view.IsLoading = true
		go o.drive()
	}
	o.mu.Unlock()

	for {
		o.mu.Lock()
		if o.completed >= target {
			err := o.lastErr
			o.mu.Unlock()
			return err
		}
		done := o.passDone
		o.mu.Unlock()

		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// drive runs passes until every request has been served
func (o *Orchestrator) drive() {
	for {
		o.mu.Lock()
		target := o.requested
		o.mu.Unlock()

		err := o.pass(o.ctx)

		o.mu.Lock()
		o.completed = target
		o.lastErr = err
		o.view.Err = err
		finished := o.completed >= o.requested
		if finished {
			o.running = false
			o.view.IsLoading = false
		}
		close(o.passDone)
		o.passDone = make(chan struct{})
		o.mu.Unlock()

		o.signal()
		if finished {
			return
		}
	}
}

// inFlight reports whether a pass is running
func (o *Orchestrator) inFlight() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// pass is one refresh cycle. The step order is fixed: reconciliation must see
// the stored records, discovery must see the reconciled ones, and the view is
// derived last.
func (o *Orchestrator) pass(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("refresh panicked: %v", r)
			o.logger.WithField("panic", r).Error("recovered from panic in refresh")
		}
	}()

	start := o.now()

	// 1. read
	records := o.store.GetAll(ctx)

	// 2. reconcile pending records and persist status changes
	if o.reconciler != nil && anyPending(records) {
		reconciled := o.reconciler.ReconcilePending(ctx, records)
		for i := range records {
			if i >= len(reconciled) {
				break
			}
			patch, changed := reconcile.StatusPatch(records[i], reconciled[i])
			if !changed {
				continue
			}
			if _, err := o.store.Update(ctx, records[i].ID, *patch); err != nil {
				return fmt.Errorf("persist reconciled status: %w", err)
			}
			o.logger.WithFields(logging.Fields{
				"id":     records[i].ID,
				"txHash": records[i].TxHash,
				"status": reconciled[i].Status,
			}).Info("pending transaction settled")
		}
	}

	// 3. re-read
	records = o.store.GetAll(ctx)

	// 4. discover activity the ledger never recorded
	user, chainID := o.session.Current()
	if o.reconciler != nil && user != "" && chainID != 0 {
		o.discover(ctx, records, user, chainID)
	}

	// 5. re-read and scope
	records = o.store.GetAll(ctx)
	scoped := ledger.Scope(records, user, chainID)

	// 6. filter and stats
	o.mu.Lock()
	o.hasPending = anyPending(records)
	o.view.All = scoped
	o.view.Transactions = ledger.ApplyFilter(scoped, o.view.Filter, o.now())
	o.view.Stats = ledger.ComputeStats(scoped)
	o.view.LastRefreshed = o.now()
	o.mu.Unlock()

	o.logger.WithFields(logging.Fields{
		"records":  len(scoped),
		"duration": o.now().Sub(start).String(),
	}).Debug("refresh complete")
	return nil
}

// discover adds chain transactions missing from records. Failures are logged
// and end the step without an error.
func (o *Orchestrator) discover(ctx context.Context, records []types.Transaction, user string, chainID types.ChainID) {
	logger := o.logger.WithFields(logging.Fields{"user": user, "chain": chainID.Name()})

	found, err := o.reconciler.DiscoverUserHistory(ctx, user, chainID, nil, nil)
	if err != nil {
		logger.WithError(err).Warn("discovery failed, continuing without new transactions")
		return
	}

	added := 0
	for _, ct := range found {
		if ledger.ContainsHash(records, ct.Hash) {
			continue
		}
		draft, ok := o.reconciler.ToLedgerDraft(ctx, ct, user, chainID)
		if !ok {
			continue
		}
		tx, err := o.store.Add(ctx, draft)
		if errors.Is(err, ledger.ErrBeyondCapacity) {
			continue
		}
		if err != nil {
			logger.WithError(err).WithField("txHash", ct.Hash).Warn("failed to record discovered transaction")
			return
		}
		if patch := reconcile.ConfirmationPatch(ct); patch != nil && tx.Status == types.StatusPending {
			if _, err := o.store.Update(ctx, tx.ID, *patch); err != nil {
				logger.WithError(err).WithField("txHash", ct.Hash).Warn("failed to settle discovered transaction")
			}
		}
		records = append(records, tx)
		added++
	}

	if added > 0 {
		logger.WithField("added", added).Info("imported discovered transactions")
	}
}

// AddTransaction records a new operation and refreshes
func (o *Orchestrator) AddTransaction(ctx context.Context, draft types.TransactionDraft) (types.Transaction, error) {
	tx, err := o.store.Add(ctx, draft)
	o.refreshAfter(ctx, "add")
	return tx, err
}

// UpdateTransaction patches a record and refreshes. A nil record means the id is unknown.
func (o *Orchestrator) UpdateTransaction(ctx context.Context, id string, patch types.TransactionPatch) (*types.Transaction, error) {
	tx, err := o.store.Update(ctx, id, patch)
	o.refreshAfter(ctx, "update")
	return tx, err
}

// DeleteTransaction removes a record and refreshes
func (o *Orchestrator) DeleteTransaction(ctx context.Context, id string) (bool, error) {
	ok, err := o.store.Delete(ctx, id)
	o.refreshAfter(ctx, "delete")
	return ok, err
}

// ImportTransactions merges an exported payload and refreshes
func (o *Orchestrator) ImportTransactions(ctx context.Context, data string) (bool, error) {
	ok, err := o.store.ImportAll(ctx, data)
	o.refreshAfter(ctx, "import")
	return ok, err
}

// ExportTransactions returns every stored record as a JSON array
func (o *Orchestrator) ExportTransactions(ctx context.Context) (string, error) {
	return o.store.ExportAll(ctx)
}

// ClearAll removes every record and refreshes
func (o *Orchestrator) ClearAll(ctx context.Context) error {
	err := o.store.Clear(ctx)
	o.refreshAfter(ctx, "clear")
	return err
}

// refreshAfter refreshes after a mutation. The pass error is kept in the
// view; the mutation reports only its own result.
func (o *Orchestrator) refreshAfter(ctx context.Context, op string) {
	if err := o.Refresh(ctx); err != nil && !errors.Is(err, ErrClosed) {
		o.logger.WithError(err).WithField("op", op).Warn("refresh after mutation failed")
	}
}

// ApplyFilter sets the active criteria and re-derives the filtered view
// from the last scoped set
func (o *Orchestrator) ApplyFilter(criteria types.FilterCriteria) View {
	o.mu.Lock()
	o.view.Filter = criteria
	o.view.Transactions = ledger.ApplyFilter(o.view.All, criteria, o.now())
	o.mu.Unlock()
	return o.Snapshot()
}

// ClearFilter drops the active criteria
func (o *Orchestrator) ClearFilter() View {
	return o.ApplyFilter(types.FilterCriteria{})
}

func anyPending(records []types.Transaction) bool {
	for i := range records {
		if records[i].Status == types.StatusPending {
			return true
		}
	}
	return false
}

func cloneAll(records []types.Transaction) []types.Transaction {
	if records == nil {
		return nil
	}
	out := make([]types.Transaction, len(records))
	for i := range records {
		out[i] = records[i].Clone()
	}
	return out
}
