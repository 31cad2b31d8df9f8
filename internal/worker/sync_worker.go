package worker

import (
	"context"
	"errors"
	"fmt"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/insights"
	"fintrack/internal/ledger"
	"fintrack/internal/log"
	"fintrack/internal/metrics"
	"fintrack/internal/sheets"
	"fintrack/internal/storage"
)

const (
	DefaultBatchSize = 50

	outcomeOK    = "ok"
	outcomeError = "error"
	outcomeStale = "stale"
)

// SyncStore is the part of the SQLite ledger that tracks mirror state.
type SyncStore interface {
	ListTransactions(ctx context.Context) ([]core.Transaction, error)
	GetSyncState(ctx context.Context, id string) (storage.PendingSync, string, error)
	GetPendingSync(ctx context.Context, limit int) ([]storage.PendingSync, error)
	MarkSynced(ctx context.Context, id string, version int64) (bool, error)
	MarkSyncError(ctx context.Context, id string) error
	PurgeSyncedDeletes(ctx context.Context) (int64, error)
	SyncCounts(ctx context.Context) (map[string]int64, error)
}

var _ SyncStore = (*storage.SQLiteRepository)(nil)

// SyncWorker mirrors ledger changes from SQLite into the spreadsheet.
type SyncWorker struct {
	store     SyncStore
	mirror    sheets.Mirror
	insights  *insights.Generator
	metrics   *metrics.Metrics
	logger    *log.Logger
	batchSize int
}

type Option func(*SyncWorker)

func WithInsights(g *insights.Generator) Option {
	return func(w *SyncWorker) { w.insights = g }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(w *SyncWorker) { w.metrics = m }
}

func WithLogger(l *log.Logger) Option {
	return func(w *SyncWorker) { w.logger = l }
}

func WithBatchSize(n int) Option {
	return func(w *SyncWorker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

func NewSyncWorker(store SyncStore, mirror sheets.Mirror, opts ...Option) *SyncWorker {
	w := &SyncWorker{
		store:     store,
		mirror:    mirror,
		logger:    log.Default().WithComponent(log.ComponentWorker),
		batchSize: DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// HandleMessage applies one change event. The message only names the row;
// the worker always mirrors the row's current state so late or duplicated
// events are harmless. A mirror failure marks the row for the next sweep
// and acknowledges the message.
func (w *SyncWorker) HandleMessage(ctx context.Context, msg *amqp.TransactionSyncMessage) error {
	w.logger.InfoContext(ctx, "Processing sync message",
		log.FieldTransactionID, msg.ID,
		"op", msg.Op,
		"version", msg.Version)

	state, _, err := w.store.GetSyncState(ctx, msg.ID)
	if errors.Is(err, ledger.ErrNotFound) {
		// Already purged: the delete reached the mirror earlier, or the row
		// never existed. Removing again is a no-op on the mirror.
		if msg.Op == amqp.OpDelete {
			return w.mirror.Remove(ctx, msg.ID)
		}
		w.logger.WarnContext(ctx, "Sync message for unknown transaction", log.FieldTransactionID, msg.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get sync state: %w", err)
	}

	if err := w.apply(ctx, state); err != nil {
		w.logger.ErrorContext(ctx, "Failed to mirror transaction",
			log.FieldTransactionID, msg.ID,
			log.FieldError, err)
	}
	return nil
}

// SweepPending mirrors up to one batch of rows whose events were lost or
// failed. It returns how many rows were confirmed.
func (w *SyncWorker) SweepPending(ctx context.Context) (int, error) {
	pending, err := w.store.GetPendingSync(ctx, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("get pending sync: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	w.logger.InfoContext(ctx, "Processing pending transactions", log.FieldCount, len(pending))

	synced := 0
	for _, p := range pending {
		if err := ctx.Err(); err != nil {
			return synced, err
		}
		if err := w.apply(ctx, p); err != nil {
			w.logger.ErrorContext(ctx, "Failed to sync transaction",
				log.FieldTransactionID, p.Transaction.ID,
				log.FieldError, err)
			continue
		}
		synced++
	}

	purged, err := w.store.PurgeSyncedDeletes(ctx)
	if err != nil {
		return synced, err
	}
	w.logger.InfoContext(ctx, "Sweep completed",
		"total", len(pending),
		"synced", synced,
		"errors", len(pending)-synced,
		"purged", purged)
	return synced, nil
}

// StartupSyncCheck reports the backlog and runs one sweep so changes made
// while the worker was down reach the mirror.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	counts, err := w.store.SyncCounts(ctx)
	if err != nil {
		return fmt.Errorf("count sync state: %w", err)
	}
	attrs := []any{
		"pending", counts[storage.SyncPending],
		"errors", counts[storage.SyncError],
		"synced", counts[storage.SyncSynced],
	}
	if lister, ok := w.mirror.(sheets.RowLister); ok {
		rows, err := lister.ListRows(ctx)
		if err != nil {
			w.logger.WarnContext(ctx, "Could not read mirror rows", log.FieldError, err)
		} else {
			attrs = append(attrs, "mirror_rows", len(rows))
		}
	}
	w.logger.InfoContext(ctx, "Startup sync check", attrs...)

	if counts[storage.SyncPending]+counts[storage.SyncError] == 0 {
		return nil
	}
	_, err = w.SweepPending(ctx)
	return err
}

// Digest logs the heuristic insights for the current month. It never calls
// the text generator.
func (w *SyncWorker) Digest(ctx context.Context) ([]core.Insight, error) {
	if w.insights == nil {
		return nil, nil
	}
	txs, err := w.store.ListTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	out := w.insights.Local(txs)
	for _, in := range out {
		w.logger.InfoContext(ctx, "Insight digest",
			log.FieldKind, in.Kind,
			log.FieldCategory, in.Category,
			"message", in.Message)
	}
	if w.metrics != nil {
		w.metrics.Insights.WithLabelValues(metrics.SourceLocal).Inc()
	}
	return out, nil
}

func (w *SyncWorker) apply(ctx context.Context, p storage.PendingSync) error {
	id := p.Transaction.ID
	op := string(amqp.OpUpsert)
	var err error
	if p.Deleted {
		op = string(amqp.OpDelete)
		err = w.mirror.Remove(ctx, id)
	} else {
		err = w.mirror.Upsert(ctx, p.Transaction)
	}
	if err != nil {
		w.count(op, outcomeError)
		if markErr := w.store.MarkSyncError(ctx, id); markErr != nil {
			w.logger.ErrorContext(ctx, "Failed to mark sync error", log.FieldTransactionID, id, log.FieldError, markErr)
		}
		return fmt.Errorf("%s %s: %w", op, id, err)
	}

	applied, err := w.store.MarkSynced(ctx, id, p.Version)
	if err != nil {
		return err
	}
	if !applied {
		// Changed while mirroring; the newer version is still pending.
		w.count(op, outcomeStale)
		return nil
	}
	w.count(op, outcomeOK)
	w.logger.InfoContext(ctx, "Transaction mirrored",
		log.FieldTransactionID, id,
		"op", op,
		"version", p.Version)
	return nil
}

func (w *SyncWorker) count(op, outcome string) {
	if w.metrics != nil {
		w.metrics.SyncedRows.WithLabelValues(op, outcome).Inc()
	}
}
