package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/ledger"
	"fintrack/internal/log"

	_ "modernc.org/sqlite"
)

// Sync states of a transaction row.
const (
	SyncPending = "pending"
	SyncSynced  = "synced"
	SyncError   = "error"
)

// Fixed-width so stored timestamps sort as text.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

type SQLiteRepository struct {
	db            *sql.DB
	queries       *Queries
	now           func() time.Time
	logger        *log.Logger
	schemaVersion uint
}

var _ ledger.Store = (*SQLiteRepository)(nil)

// PendingSync is a transaction change that has not reached the mirror yet.
// Deleted rows carry their last known values.
type PendingSync struct {
	Transaction core.Transaction
	Version     int64
	Deleted     bool
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One connection serialises writers and keeps the busy timeout in effect.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	version, err := migrateSchema(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	r := &SQLiteRepository{
		db:            db,
		queries:       New(db),
		now:           time.Now,
		logger:        log.Default().WithComponent(log.ComponentStorage),
		schemaVersion: version,
	}
	r.logger.Debug("Ledger schema ready", "path", dbPath, "schema_version", version)
	return r, nil
}

// SchemaVersion is the migration version the database was opened at.
func (r *SQLiteRepository) SchemaVersion() uint {
	return r.schemaVersion
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) stamp() string {
	return r.now().UTC().Format(timestampLayout)
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context) ([]core.Transaction, error) {
	rows, err := r.queries.ListTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	out := make([]core.Transaction, 0, len(rows))
	for _, row := range rows {
		tx, err := row.toCore()
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, nil
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	row, err := r.queries.GetTransaction(ctx, id)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && row.DeletedAt.Valid) {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, ledger.ErrNotFound)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return row.toCore()
}

func (r *SQLiteRepository) AddTransaction(ctx context.Context, tx core.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	return r.inTx(ctx, func(q *Queries) error {
		existing, err := q.GetTransaction(ctx, tx.ID)
		switch {
		case err == nil && !existing.DeletedAt.Valid:
			return fmt.Errorf("transaction %s: %w", tx.ID, ledger.ErrExists)
		case err != nil && !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("check transaction: %w", err)
		}
		if err := q.UpsertTransaction(ctx, r.params(tx)); err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
		return nil
	})
}

func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, tx core.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	n, err := r.queries.UpdateTransaction(ctx, r.params(tx))
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("transaction %s: %w", tx.ID, ledger.ErrNotFound)
	}
	return nil
}

// DeleteTransaction soft-deletes the row so the removal can be mirrored.
func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, id string) error {
	n, err := r.queries.SoftDeleteTransaction(ctx, id, r.stamp())
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("transaction %s: %w", id, ledger.ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) ListGoals(ctx context.Context) ([]core.Goal, error) {
	rows, err := r.queries.ListGoals(ctx)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	out := make([]core.Goal, 0, len(rows))
	for _, row := range rows {
		g, err := row.toCore()
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

func (r *SQLiteRepository) GetGoal(ctx context.Context, id string) (core.Goal, error) {
	row, err := r.queries.GetGoal(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Goal{}, fmt.Errorf("goal %s: %w", id, ledger.ErrNotFound)
	}
	if err != nil {
		return core.Goal{}, fmt.Errorf("get goal: %w", err)
	}
	return row.toCore()
}

func (r *SQLiteRepository) AddGoal(ctx context.Context, g core.Goal) error {
	if err := g.Validate(); err != nil {
		return err
	}
	return r.inTx(ctx, func(q *Queries) error {
		if _, err := q.GetGoal(ctx, g.ID); err == nil {
			return fmt.Errorf("goal %s: %w", g.ID, ledger.ErrExists)
		} else if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("check goal: %w", err)
		}
		if err := q.InsertGoal(ctx, goalRow(g)); err != nil {
			return fmt.Errorf("insert goal: %w", err)
		}
		return nil
	})
}

func (r *SQLiteRepository) UpdateGoal(ctx context.Context, g core.Goal) error {
	if err := g.Validate(); err != nil {
		return err
	}
	n, err := r.queries.UpdateGoal(ctx, goalRow(g))
	if err != nil {
		return fmt.Errorf("update goal: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("goal %s: %w", g.ID, ledger.ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) DeleteGoal(ctx context.Context, id string) error {
	n, err := r.queries.DeleteGoal(ctx, id)
	if err != nil {
		return fmt.Errorf("delete goal: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("goal %s: %w", id, ledger.ErrNotFound)
	}
	return nil
}

// Restore replaces the non-nil collections in a single database
// transaction. Replaced transactions are soft-deleted so the mirror follows.
func (r *SQLiteRepository) Restore(ctx context.Context, txs []core.Transaction, goals []core.Goal) error {
	for _, tx := range txs {
		if err := tx.Validate(); err != nil {
			return fmt.Errorf("transaction %s: %w", tx.ID, err)
		}
	}
	for _, g := range goals {
		if err := g.Validate(); err != nil {
			return fmt.Errorf("goal %s: %w", g.ID, err)
		}
	}

	err := r.inTx(ctx, func(q *Queries) error {
		if txs != nil {
			if err := q.SoftDeleteAllTransactions(ctx, r.stamp()); err != nil {
				return fmt.Errorf("clear transactions: %w", err)
			}
			for _, tx := range txs {
				if err := q.UpsertTransaction(ctx, r.params(tx)); err != nil {
					return fmt.Errorf("restore transaction %s: %w", tx.ID, err)
				}
			}
		}
		if goals != nil {
			if err := q.DeleteAllGoals(ctx); err != nil {
				return fmt.Errorf("clear goals: %w", err)
			}
			for _, g := range goals {
				if err := q.InsertGoal(ctx, goalRow(g)); err != nil {
					return fmt.Errorf("restore goal %s: %w", g.ID, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.logger.InfoContext(ctx, "Ledger restored",
		"transactions", len(txs),
		"goals", len(goals),
		"transactions_replaced", txs != nil,
		"goals_replaced", goals != nil)
	return nil
}

// GetPendingSync returns up to limit changes the mirror has not confirmed,
// oldest first.
func (r *SQLiteRepository) GetPendingSync(ctx context.Context, limit int) ([]PendingSync, error) {
	rows, err := r.queries.ListPendingSync(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("get pending sync: %w", err)
	}
	out := make([]PendingSync, 0, len(rows))
	for _, row := range rows {
		tx, err := row.toCore()
		if err != nil {
			return nil, err
		}
		out = append(out, PendingSync{Transaction: tx, Version: row.Version, Deleted: row.DeletedAt.Valid})
	}
	return out, nil
}

// GetSyncState returns a single row's pending state, including deleted rows.
func (r *SQLiteRepository) GetSyncState(ctx context.Context, id string) (PendingSync, string, error) {
	row, err := r.queries.GetTransaction(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return PendingSync{}, "", fmt.Errorf("transaction %s: %w", id, ledger.ErrNotFound)
	}
	if err != nil {
		return PendingSync{}, "", fmt.Errorf("get sync state: %w", err)
	}
	tx, err := row.toCore()
	if err != nil {
		return PendingSync{}, "", err
	}
	return PendingSync{Transaction: tx, Version: row.Version, Deleted: row.DeletedAt.Valid}, row.SyncStatus, nil
}

// TransactionVersion returns the current row version of id, counting
// soft-deleted rows.
func (r *SQLiteRepository) TransactionVersion(ctx context.Context, id string) (int64, error) {
	state, _, err := r.GetSyncState(ctx, id)
	if err != nil {
		return 0, err
	}
	return state.Version, nil
}

// MarkSynced records that version of id reached the mirror. It reports
// false when the row changed in the meantime and must be synced again.
func (r *SQLiteRepository) MarkSynced(ctx context.Context, id string, version int64) (bool, error) {
	n, err := r.queries.MarkSynced(ctx, id, version, r.stamp())
	if err != nil {
		return false, fmt.Errorf("mark transaction synced: %w", err)
	}
	r.logger.DebugContext(ctx, "Transaction marked as synced",
		log.FieldTransactionID, id,
		"version", version,
		"applied", n > 0)
	return n > 0, nil
}

func (r *SQLiteRepository) MarkSyncError(ctx context.Context, id string) error {
	if err := r.queries.MarkSyncError(ctx, id); err != nil {
		return fmt.Errorf("mark transaction sync error: %w", err)
	}
	r.logger.WarnContext(ctx, "Transaction marked with sync error", log.FieldTransactionID, id)
	return nil
}

// PurgeSyncedDeletes drops soft-deleted rows whose removal already reached
// the mirror.
func (r *SQLiteRepository) PurgeSyncedDeletes(ctx context.Context) (int64, error) {
	n, err := r.queries.PurgeSyncedDeletes(ctx)
	if err != nil {
		return 0, fmt.Errorf("purge synced deletes: %w", err)
	}
	return n, nil
}

// SyncCounts returns the number of rows per sync status.
func (r *SQLiteRepository) SyncCounts(ctx context.Context) (map[string]int64, error) {
	counts, err := r.queries.CountBySyncStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count sync status: %w", err)
	}
	return counts, nil
}

func (r *SQLiteRepository) inTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(r.queries.WithTx(tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) params(tx core.Transaction) InsertTransactionParams {
	return InsertTransactionParams{
		ID:          tx.ID,
		Kind:        string(tx.Kind),
		Category:    tx.Category,
		AmountCents: tx.Amount.Cents,
		Date:        tx.Date.String(),
		Note:        tx.Note,
		Now:         r.stamp(),
	}
}

func (row TransactionRow) toCore() (core.Transaction, error) {
	date, err := core.ParseDate(row.Date)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", row.ID, err)
	}
	return core.Transaction{
		ID:       row.ID,
		Kind:     core.Kind(row.Kind),
		Category: row.Category,
		Amount:   core.Money{Cents: row.AmountCents},
		Date:     date,
		Note:     row.Note,
	}, nil
}

func goalRow(g core.Goal) GoalRow {
	return GoalRow{
		ID:           g.ID,
		Title:        g.Title,
		TargetCents:  g.TargetAmount.Cents,
		CurrentCents: g.CurrentAmount.Cents,
		Deadline:     g.Deadline.String(),
		CreatedAt:    g.CreatedAt.UTC().Format(timestampLayout),
	}
}

func (row GoalRow) toCore() (core.Goal, error) {
	deadline, err := core.ParseDate(row.Deadline)
	if err != nil {
		return core.Goal{}, fmt.Errorf("goal %s: %w", row.ID, err)
	}
	created, err := time.Parse(time.RFC3339Nano, row.CreatedAt)
	if err != nil {
		return core.Goal{}, fmt.Errorf("goal %s: invalid created_at: %w", row.ID, err)
	}
	return core.Goal{
		ID:            row.ID,
		Title:         row.Title,
		TargetAmount:  core.Money{Cents: row.TargetCents},
		CurrentAmount: core.Money{Cents: row.CurrentCents},
		Deadline:      deadline,
		CreatedAt:     created,
	}, nil
}
