package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// TransactionRow mirrors a row of the transactions table.
type TransactionRow struct {
	ID          string
	Kind        string
	Category    string
	AmountCents int64
	Date        string
	Note        string
	Version     int64
	SyncStatus  string
	UpdatedAt   string
	DeletedAt   sql.NullString
}

type GoalRow struct {
	ID           string
	Title        string
	TargetCents  int64
	CurrentCents int64
	Deadline     string
	CreatedAt    string
}

const transactionColumns = `id, kind, category, amount_cents, date, note, version, sync_status, updated_at, deleted_at`

func scanTransaction(s interface{ Scan(...any) error }) (TransactionRow, error) {
	var r TransactionRow
	err := s.Scan(&r.ID, &r.Kind, &r.Category, &r.AmountCents, &r.Date, &r.Note,
		&r.Version, &r.SyncStatus, &r.UpdatedAt, &r.DeletedAt)
	return r, err
}

const listTransactions = `SELECT ` + transactionColumns + ` FROM transactions
WHERE deleted_at IS NULL
ORDER BY seq`

func (q *Queries) ListTransactions(ctx context.Context) ([]TransactionRow, error) {
	rows, err := q.db.QueryContext(ctx, listTransactions)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []TransactionRow
	for rows.Next() {
		r, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

const getTransaction = `SELECT ` + transactionColumns + ` FROM transactions
WHERE id = ?`

// GetTransaction returns the row whether or not it is soft-deleted.
func (q *Queries) GetTransaction(ctx context.Context, id string) (TransactionRow, error) {
	return scanTransaction(q.db.QueryRowContext(ctx, getTransaction, id))
}

const insertTransaction = `INSERT INTO transactions (id, kind, category, amount_cents, date, note, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

type InsertTransactionParams struct {
	ID          string
	Kind        string
	Category    string
	AmountCents int64
	Date        string
	Note        string
	Now         string
}

func (q *Queries) InsertTransaction(ctx context.Context, p InsertTransactionParams) error {
	_, err := q.db.ExecContext(ctx, insertTransaction,
		p.ID, p.Kind, p.Category, p.AmountCents, p.Date, p.Note, p.Now, p.Now)
	return err
}

const updateTransaction = `UPDATE transactions
SET kind = ?, category = ?, amount_cents = ?, date = ?, note = ?,
    version = version + 1, sync_status = 'pending', updated_at = ?
WHERE id = ? AND deleted_at IS NULL`

func (q *Queries) UpdateTransaction(ctx context.Context, p InsertTransactionParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateTransaction,
		p.Kind, p.Category, p.AmountCents, p.Date, p.Note, p.Now, p.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Revives soft-deleted rows so a restore can bring an id back.
const upsertTransaction = `INSERT INTO transactions (id, kind, category, amount_cents, date, note, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    kind = excluded.kind,
    category = excluded.category,
    amount_cents = excluded.amount_cents,
    date = excluded.date,
    note = excluded.note,
    version = transactions.version + 1,
    sync_status = 'pending',
    updated_at = excluded.updated_at,
    deleted_at = NULL`

func (q *Queries) UpsertTransaction(ctx context.Context, p InsertTransactionParams) error {
	_, err := q.db.ExecContext(ctx, upsertTransaction,
		p.ID, p.Kind, p.Category, p.AmountCents, p.Date, p.Note, p.Now, p.Now)
	return err
}

const softDeleteTransaction = `UPDATE transactions
SET deleted_at = ?, updated_at = ?, version = version + 1, sync_status = 'pending'
WHERE id = ? AND deleted_at IS NULL`

func (q *Queries) SoftDeleteTransaction(ctx context.Context, id, now string) (int64, error) {
	res, err := q.db.ExecContext(ctx, softDeleteTransaction, now, now, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const softDeleteAllTransactions = `UPDATE transactions
SET deleted_at = ?, updated_at = ?, version = version + 1, sync_status = 'pending'
WHERE deleted_at IS NULL`

func (q *Queries) SoftDeleteAllTransactions(ctx context.Context, now string) error {
	_, err := q.db.ExecContext(ctx, softDeleteAllTransactions, now, now)
	return err
}

const listPendingSync = `SELECT ` + transactionColumns + ` FROM transactions
WHERE sync_status IN ('pending', 'error')
ORDER BY updated_at, seq
LIMIT ?`

func (q *Queries) ListPendingSync(ctx context.Context, limit int64) ([]TransactionRow, error) {
	rows, err := q.db.QueryContext(ctx, listPendingSync, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []TransactionRow
	for rows.Next() {
		r, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

const markSynced = `UPDATE transactions
SET sync_status = 'synced', synced_at = ?
WHERE id = ? AND version = ?`

// MarkSynced only applies when version still matches, so a row edited while
// its sync was in flight stays pending.
func (q *Queries) MarkSynced(ctx context.Context, id string, version int64, now string) (int64, error) {
	res, err := q.db.ExecContext(ctx, markSynced, now, id, version)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const markSyncError = `UPDATE transactions SET sync_status = 'error' WHERE id = ?`

func (q *Queries) MarkSyncError(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, markSyncError, id)
	return err
}

const purgeSyncedDeletes = `DELETE FROM transactions
WHERE deleted_at IS NOT NULL AND sync_status = 'synced'`

func (q *Queries) PurgeSyncedDeletes(ctx context.Context) (int64, error) {
	res, err := q.db.ExecContext(ctx, purgeSyncedDeletes)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const countBySyncStatus = `SELECT sync_status, COUNT(*) FROM transactions GROUP BY sync_status`

func (q *Queries) CountBySyncStatus(ctx context.Context) (map[string]int64, error) {
	rows, err := q.db.QueryContext(ctx, countBySyncStatus)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int64{}
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}

const goalColumns = `id, title, target_cents, current_cents, deadline, created_at`

func scanGoal(s interface{ Scan(...any) error }) (GoalRow, error) {
	var r GoalRow
	err := s.Scan(&r.ID, &r.Title, &r.TargetCents, &r.CurrentCents, &r.Deadline, &r.CreatedAt)
	return r, err
}

const listGoals = `SELECT ` + goalColumns + ` FROM goals ORDER BY seq`

func (q *Queries) ListGoals(ctx context.Context) ([]GoalRow, error) {
	rows, err := q.db.QueryContext(ctx, listGoals)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []GoalRow
	for rows.Next() {
		r, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

const getGoal = `SELECT ` + goalColumns + ` FROM goals WHERE id = ?`

func (q *Queries) GetGoal(ctx context.Context, id string) (GoalRow, error) {
	return scanGoal(q.db.QueryRowContext(ctx, getGoal, id))
}

const insertGoal = `INSERT INTO goals (id, title, target_cents, current_cents, deadline, created_at)
VALUES (?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertGoal(ctx context.Context, r GoalRow) error {
	_, err := q.db.ExecContext(ctx, insertGoal, r.ID, r.Title, r.TargetCents, r.CurrentCents, r.Deadline, r.CreatedAt)
	return err
}

const updateGoal = `UPDATE goals
SET title = ?, target_cents = ?, current_cents = ?, deadline = ?
WHERE id = ?`

func (q *Queries) UpdateGoal(ctx context.Context, r GoalRow) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateGoal, r.Title, r.TargetCents, r.CurrentCents, r.Deadline, r.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteGoal = `DELETE FROM goals WHERE id = ?`

func (q *Queries) DeleteGoal(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteGoal, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteAllGoals = `DELETE FROM goals`

func (q *Queries) DeleteAllGoals(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, deleteAllGoals)
	return err
}
