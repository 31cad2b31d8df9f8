package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/ledger"
)

func sampleTx(id string) core.Transaction {
	return core.Transaction{
		ID:       id,
		Kind:     core.Expense,
		Category: "Food",
		Amount:   core.Money{Cents: 1250},
		Date:     core.NewDate(2026, 8, 3),
	}
}

func sampleGoal(id string) core.Goal {
	return core.Goal{
		ID:           id,
		Title:        "Laptop",
		TargetAmount: core.NewMoney(1200),
		Deadline:     core.NewDate(2027, 1, 1),
		CreatedAt:    time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestStoreTransactionCRUD(t *testing.T) {
	ctx := context.Background()
	s := New()

	if err := s.AddTransaction(ctx, sampleTx("a")); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.AddTransaction(ctx, sampleTx("b")); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.AddTransaction(ctx, sampleTx("a")); !errors.Is(err, ledger.ErrExists) {
		t.Fatalf("duplicate add err = %v, want ErrExists", err)
	}

	updated := sampleTx("a")
	updated.Category = "Bills"
	if err := s.UpdateTransaction(ctx, updated); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := s.GetTransaction(ctx, "a")
	if err != nil || got.Category != "Bills" {
		t.Fatalf("get after update = %+v, %v", got, err)
	}

	if err := s.DeleteTransaction(ctx, "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetTransaction(ctx, "a"); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("get deleted err = %v", err)
	}
	if err := s.DeleteTransaction(ctx, "a"); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("second delete err = %v", err)
	}

	txs, _ := s.ListTransactions(ctx)
	if len(txs) != 1 || txs[0].ID != "b" {
		t.Fatalf("list = %+v", txs)
	}
}

func TestStoreRejectsInvalidRecords(t *testing.T) {
	ctx := context.Background()
	s := New()

	bad := sampleTx("x")
	bad.Kind = "transfer"
	if err := s.AddTransaction(ctx, bad); !errors.Is(err, core.ErrInvalidKind) {
		t.Errorf("add invalid kind err = %v", err)
	}

	g := sampleGoal("g")
	g.TargetAmount = core.Money{}
	if err := s.AddGoal(ctx, g); !errors.Is(err, core.ErrInvalidTarget) {
		t.Errorf("add zero target err = %v", err)
	}
}

func TestListReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := New()
	_ = s.AddTransaction(ctx, sampleTx("a"))

	txs, _ := s.ListTransactions(ctx)
	txs[0].Category = "mutated"

	again, _ := s.ListTransactions(ctx)
	if again[0].Category != "Food" {
		t.Fatalf("store leaked internal slice: %+v", again[0])
	}
}

func TestRestoreNilLeavesCollection(t *testing.T) {
	ctx := context.Background()
	s := New()
	_ = s.AddTransaction(ctx, sampleTx("a"))
	_ = s.AddGoal(ctx, sampleGoal("g"))

	if err := s.Restore(ctx, []core.Transaction{sampleTx("z")}, nil); err != nil {
		t.Fatalf("restore: %v", err)
	}
	txs, _ := s.ListTransactions(ctx)
	goals, _ := s.ListGoals(ctx)
	if len(txs) != 1 || txs[0].ID != "z" {
		t.Errorf("transactions = %+v", txs)
	}
	if len(goals) != 1 || goals[0].ID != "g" {
		t.Errorf("goals = %+v", goals)
	}

	if err := s.Restore(ctx, nil, []core.Goal{}); err != nil {
		t.Fatalf("restore: %v", err)
	}
	goals, _ = s.ListGoals(ctx)
	if len(goals) != 0 {
		t.Errorf("goals after clearing = %+v", goals)
	}
}

func TestOpenPersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "ledger.json")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("open new: %v", err)
	}
	if err := s.AddTransaction(ctx, sampleTx("a")); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.AddGoal(ctx, sampleGoal("g")); err != nil {
		t.Fatalf("add goal: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	txs, _ := reopened.ListTransactions(ctx)
	if len(txs) != 1 || txs[0].Amount.Cents != 1250 || txs[0].Date.String() != "2026-08-03" {
		t.Fatalf("reloaded transactions = %+v", txs)
	}
	goals, _ := reopened.ListGoals(ctx)
	if len(goals) != 1 || !goals[0].CreatedAt.Equal(sampleGoal("g").CreatedAt) {
		t.Fatalf("reloaded goals = %+v", goals)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("expected only the ledger file, found %d entries", len(entries))
	}
}

func TestOpenRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); err == nil {
		t.Fatal("expected error for corrupt file")
	}
}

func TestFailedWriteKeepsPreviousState(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "data")
	s, err := Open(filepath.Join(dir, "ledger.json"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.AddTransaction(ctx, sampleTx("a")); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.AddGoal(ctx, sampleGoal("g")); err != nil {
		t.Fatalf("add goal: %v", err)
	}

	// Replace the data directory with a plain file so every write-back fails.
	if err := os.RemoveAll(dir); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dir, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	changed := sampleTx("a")
	changed.Category = "Bills"
	changedGoal := sampleGoal("g")
	changedGoal.Title = "Bike"

	writes := []struct {
		name string
		fn   func() error
	}{
		{"add transaction", func() error { return s.AddTransaction(ctx, sampleTx("b")) }},
		{"update transaction", func() error { return s.UpdateTransaction(ctx, changed) }},
		{"delete transaction", func() error { return s.DeleteTransaction(ctx, "a") }},
		{"add goal", func() error { return s.AddGoal(ctx, sampleGoal("h")) }},
		{"update goal", func() error { return s.UpdateGoal(ctx, changedGoal) }},
		{"delete goal", func() error { return s.DeleteGoal(ctx, "g") }},
		{"restore", func() error { return s.Restore(ctx, []core.Transaction{}, []core.Goal{}) }},
	}
	for _, w := range writes {
		t.Run(w.name, func(t *testing.T) {
			if err := w.fn(); err == nil {
				t.Fatal("expected write-back error")
			}
			txs, _ := s.ListTransactions(ctx)
			if len(txs) != 1 || txs[0].ID != "a" || txs[0].Category != "Food" {
				t.Errorf("transactions after failed write = %+v", txs)
			}
			goals, _ := s.ListGoals(ctx)
			if len(goals) != 1 || goals[0].ID != "g" || goals[0].Title != "Laptop" {
				t.Errorf("goals after failed write = %+v", goals)
			}
		})
	}

	// The failed add left no trace, so a retry reaches the file again
	// instead of reporting a duplicate.
	if err := s.AddTransaction(ctx, sampleTx("b")); errors.Is(err, ledger.ErrExists) {
		t.Errorf("retry after failed add reported %v", err)
	}
}
