package worker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"fintrack/internal/amqp"
	"fintrack/internal/analytics"
	"fintrack/internal/core"
	"fintrack/internal/insights"
	"fintrack/internal/log"
	"fintrack/internal/metrics"
	sheetsmem "fintrack/internal/sheets/memory"
	"fintrack/internal/storage"
)

func newRepo(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "fintrack.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func tx(id, category string, cents int64) core.Transaction {
	return core.Transaction{
		ID:       id,
		Kind:     core.Expense,
		Category: category,
		Amount:   core.Money{Cents: cents},
		Date:     core.NewDate(2026, 8, 10),
	}
}

func newWorker(repo *storage.SQLiteRepository, mirror *sheetsmem.Store, m *metrics.Metrics) *SyncWorker {
	return NewSyncWorker(repo, mirror, WithMetrics(m), WithLogger(log.Discard()), WithBatchSize(10))
}

func statusOf(t *testing.T, repo *storage.SQLiteRepository, id string) string {
	t.Helper()
	_, status, err := repo.GetSyncState(context.Background(), id)
	if err != nil {
		t.Fatalf("GetSyncState(%s): %v", id, err)
	}
	return status
}

func TestHandleMessageUpsertAndDelete(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	mirror := sheetsmem.New()
	m := metrics.New()
	w := newWorker(repo, mirror, m)

	_ = repo.AddTransaction(ctx, tx("a", "Food", 1250))
	if err := w.HandleMessage(ctx, amqp.NewTransactionSyncMessage("a", amqp.OpUpsert, 1)); err != nil {
		t.Fatalf("HandleMessage upsert: %v", err)
	}
	rows, _ := mirror.ListRows(ctx)
	if len(rows) != 1 || rows[0].Amount.Cents != 1250 {
		t.Fatalf("mirror rows = %+v", rows)
	}
	if got := statusOf(t, repo, "a"); got != storage.SyncSynced {
		t.Errorf("status = %s, want synced", got)
	}

	_ = repo.DeleteTransaction(ctx, "a")
	if err := w.HandleMessage(ctx, amqp.NewTransactionSyncMessage("a", amqp.OpDelete, 2)); err != nil {
		t.Fatalf("HandleMessage delete: %v", err)
	}
	rows, _ = mirror.ListRows(ctx)
	if len(rows) != 0 {
		t.Fatalf("mirror rows after delete = %+v", rows)
	}
	if got := testutil.ToFloat64(m.SyncedRows.WithLabelValues("delete", outcomeOK)); got != 1 {
		t.Errorf("delete ok count = %v", got)
	}
}

func TestHandleMessageMirrorsCurrentState(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	mirror := sheetsmem.New()
	w := newWorker(repo, mirror, nil)

	_ = repo.AddTransaction(ctx, tx("a", "Food", 100))
	_ = repo.UpdateTransaction(ctx, tx("a", "Health", 900))

	// The event for version 1 arrives after the edit.
	if err := w.HandleMessage(ctx, amqp.NewTransactionSyncMessage("a", amqp.OpUpsert, 1)); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	rows, _ := mirror.ListRows(ctx)
	if len(rows) != 1 || rows[0].Category != "Health" {
		t.Fatalf("mirror rows = %+v", rows)
	}
}

func TestHandleMessageUnknownID(t *testing.T) {
	ctx := context.Background()
	w := newWorker(newRepo(t), sheetsmem.New(), nil)

	if err := w.HandleMessage(ctx, amqp.NewTransactionSyncMessage("ghost", amqp.OpUpsert, 1)); err != nil {
		t.Errorf("upsert unknown: %v", err)
	}
	if err := w.HandleMessage(ctx, amqp.NewTransactionSyncMessage("ghost", amqp.OpDelete, 1)); err != nil {
		t.Errorf("delete unknown: %v", err)
	}
}

func TestHandleMessageMirrorFailureMarksError(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	mirror := sheetsmem.New()
	m := metrics.New()
	w := newWorker(repo, mirror, m)

	_ = repo.AddTransaction(ctx, tx("a", "Food", 100))
	mirror.FailOn("a", errors.New("quota exceeded"))

	if err := w.HandleMessage(ctx, amqp.NewTransactionSyncMessage("a", amqp.OpUpsert, 1)); err != nil {
		t.Fatalf("HandleMessage should acknowledge mirror failures, got %v", err)
	}
	if got := statusOf(t, repo, "a"); got != storage.SyncError {
		t.Errorf("status = %s, want error", got)
	}
	if got := testutil.ToFloat64(m.SyncedRows.WithLabelValues("upsert", outcomeError)); got != 1 {
		t.Errorf("error count = %v", got)
	}

	// The sweep retries rows in error.
	mirror.FailOn("a", nil)
	n, err := w.SweepPending(ctx)
	if err != nil || n != 1 {
		t.Fatalf("SweepPending = %d, %v", n, err)
	}
	if got := statusOf(t, repo, "a"); got != storage.SyncSynced {
		t.Errorf("status after sweep = %s", got)
	}
}

// racingMirror edits the ledger while a row is being written.
type racingMirror struct {
	*sheetsmem.Store
	before func()
}

func (r *racingMirror) Upsert(ctx context.Context, t core.Transaction) error {
	if r.before != nil {
		r.before()
		r.before = nil
	}
	return r.Store.Upsert(ctx, t)
}

func TestSweepLeavesRowPendingWhenChangedMeanwhile(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	m := metrics.New()
	mirror := &racingMirror{Store: sheetsmem.New()}
	mirror.before = func() { _ = repo.UpdateTransaction(ctx, tx("a", "Food", 777)) }
	w := NewSyncWorker(repo, mirror, WithMetrics(m), WithLogger(log.Discard()))

	_ = repo.AddTransaction(ctx, tx("a", "Food", 100))
	if _, err := w.SweepPending(ctx); err != nil {
		t.Fatalf("SweepPending: %v", err)
	}
	if got := statusOf(t, repo, "a"); got != storage.SyncPending {
		t.Fatalf("status = %s, want pending", got)
	}
	if got := testutil.ToFloat64(m.SyncedRows.WithLabelValues("upsert", outcomeStale)); got != 1 {
		t.Errorf("stale count = %v", got)
	}

	if _, err := w.SweepPending(ctx); err != nil {
		t.Fatalf("second SweepPending: %v", err)
	}
	rows, _ := mirror.ListRows(ctx)
	if len(rows) != 1 || rows[0].Amount.Cents != 777 {
		t.Fatalf("mirror rows = %+v", rows)
	}
}

func TestSweepPendingPurgesSyncedDeletes(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	mirror := sheetsmem.New()
	w := newWorker(repo, mirror, nil)

	_ = repo.AddTransaction(ctx, tx("a", "Food", 100))
	_ = repo.AddTransaction(ctx, tx("b", "Bills", 200))
	if n, err := w.SweepPending(ctx); err != nil || n != 2 {
		t.Fatalf("first sweep = %d, %v", n, err)
	}

	_ = repo.DeleteTransaction(ctx, "a")
	if n, err := w.SweepPending(ctx); err != nil || n != 1 {
		t.Fatalf("second sweep = %d, %v", n, err)
	}
	if _, _, err := repo.GetSyncState(ctx, "a"); err == nil {
		t.Error("deleted row should be purged once mirrored")
	}
	rows, _ := mirror.ListRows(ctx)
	if len(rows) != 1 || rows[0].ID != "b" {
		t.Fatalf("mirror rows = %+v", rows)
	}

	if n, err := w.SweepPending(ctx); err != nil || n != 0 {
		t.Errorf("idle sweep = %d, %v", n, err)
	}
}

func TestStartupSyncCheck(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	mirror := sheetsmem.New()
	w := newWorker(repo, mirror, nil)

	if err := w.StartupSyncCheck(ctx); err != nil {
		t.Fatalf("StartupSyncCheck on empty ledger: %v", err)
	}

	_ = repo.AddTransaction(ctx, tx("a", "Food", 100))
	if err := w.StartupSyncCheck(ctx); err != nil {
		t.Fatalf("StartupSyncCheck: %v", err)
	}
	if got := statusOf(t, repo, "a"); got != storage.SyncSynced {
		t.Errorf("status = %s, want synced", got)
	}
}

func TestDigest(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	m := metrics.New()
	engine := analytics.NewEngine(analytics.WithClock(func() time.Time {
		return time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	}))
	w := NewSyncWorker(repo, sheetsmem.New(),
		WithInsights(insights.NewGenerator(engine, insights.WithLogger(log.Discard()))),
		WithMetrics(m),
		WithLogger(log.Discard()))

	_ = repo.AddTransaction(ctx, tx("a", "Food", 10000))
	out, err := w.Digest(ctx)
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	found := false
	for _, in := range out {
		if in.Kind == core.Summary && in.Category == "Food" {
			found = true
		}
	}
	if !found {
		t.Errorf("digest = %+v, want a Food summary", out)
	}
	if got := testutil.ToFloat64(m.Insights.WithLabelValues(metrics.SourceLocal)); got != 1 {
		t.Errorf("local insight count = %v", got)
	}
}

func TestDigestWithoutGenerator(t *testing.T) {
	w := newWorker(newRepo(t), sheetsmem.New(), nil)
	out, err := w.Digest(context.Background())
	if err != nil || out != nil {
		t.Errorf("Digest = %v, %v", out, err)
	}
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	s := NewScheduler(newWorker(newRepo(t), sheetsmem.New(), nil), log.Discard())
	if err := s.Start("not a cron spec", ""); err == nil {
		<-s.Stop().Done()
		t.Fatal("expected error for invalid spec")
	}
}

func TestSchedulerStartStop(t *testing.T) {
	s := NewScheduler(newWorker(newRepo(t), sheetsmem.New(), nil), log.Discard())
	if err := s.Start(DefaultSyncSchedule, DefaultDigestSchedule); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := len(s.cron.Entries()); got != 2 {
		t.Errorf("entries = %d, want 2", got)
	}
	<-s.Stop().Done()
}
