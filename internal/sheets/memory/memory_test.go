package memory

import (
	"context"
	"errors"
	"testing"

	"fintrack/internal/core"
)

func TestStoreUpsertAndRemove(t *testing.T) {
	ctx := context.Background()
	s := New()
	tx := core.Transaction{ID: "a", Kind: core.Expense, Category: "Food", Amount: core.Money{Cents: 100}, Date: core.NewDate(2026, 8, 1)}

	if err := s.Upsert(ctx, tx); err != nil {
		t.Fatal(err)
	}
	tx.Category = "Bills"
	if err := s.Upsert(ctx, tx); err != nil {
		t.Fatal(err)
	}
	rows, _ := s.ListRows(ctx)
	if len(rows) != 1 || rows[0].Category != "Bills" {
		t.Fatalf("rows = %+v", rows)
	}

	if err := s.Remove(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if err := s.Remove(ctx, "a"); err != nil {
		t.Fatalf("removing an unknown id: %v", err)
	}
	if rows, _ := s.ListRows(ctx); len(rows) != 0 {
		t.Fatalf("rows after remove = %+v", rows)
	}
}

func TestStoreFailOn(t *testing.T) {
	ctx := context.Background()
	s := New()
	boom := errors.New("quota exceeded")
	s.FailOn("a", boom)

	if err := s.Upsert(ctx, core.Transaction{ID: "a"}); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	s.FailOn("a", nil)
	if err := s.Upsert(ctx, core.Transaction{ID: "a"}); err != nil {
		t.Fatalf("err after clearing = %v", err)
	}
}
