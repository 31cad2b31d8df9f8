package core

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2025, 1, 1), true},
		{NewDate(2025, 12, 31), true},
		{Date{Time: time.Time{}}, false}, // zero time
	}
	for i, tc := range cases {
		err := tc.d.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2026-08-14")
	if err != nil || d.String() != "2026-08-14" {
		t.Fatalf("ParseDate date-only: %v %s", err, d)
	}
	d, err = ParseDate("2026-08-14T22:10:00Z")
	if err != nil || d.String() != "2026-08-14" {
		t.Fatalf("ParseDate RFC3339: %v %s", err, d)
	}
	if _, err := ParseDate("14/08/2026"); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
}

func TestMoneyValidate(t *testing.T) {
	if err := (Money{Cents: 0}).Validate(); err != nil {
		t.Fatalf("expected zero to be allowed, got %v", err)
	}
	if err := (Money{Cents: -1}).Validate(); err == nil {
		t.Fatalf("expected error for negative")
	}
}

func TestTransactionValidate(t *testing.T) {
	good := Transaction{
		ID:       "t1",
		Kind:     Expense,
		Category: "Food",
		Amount:   Money{Cents: 100},
		Date:     NewDate(2025, 1, 1),
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Transaction)
		want   error
	}{
		{"empty id", func(tx *Transaction) { tx.ID = " " }, ErrEmptyID},
		{"bad kind", func(tx *Transaction) { tx.Kind = "transfer" }, ErrInvalidKind},
		{"empty category", func(tx *Transaction) { tx.Category = "" }, ErrEmptyCategory},
		{"negative amount", func(tx *Transaction) { tx.Amount = Money{Cents: -5} }, ErrInvalidAmount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tx := good
			tc.mutate(&tx)
			if err := tx.Validate(); !errors.Is(err, tc.want) {
				t.Fatalf("Validate() = %v, want %v", err, tc.want)
			}
		})
	}

	zeroDate := good
	zeroDate.Date = Date{}
	if err := zeroDate.Validate(); err == nil {
		t.Fatalf("expected error for zero date")
	}
}

func TestGoalValidate(t *testing.T) {
	g := Goal{ID: "g1", Title: "Laptop", TargetAmount: Money{Cents: 100}, Deadline: NewDate(2027, 1, 1)}
	if err := g.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	g.TargetAmount = Money{}
	if err := g.Validate(); !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("expected ErrInvalidTarget, got %v", err)
	}
}

func TestTransactionJSONLayout(t *testing.T) {
	raw := `{"id":"a","type":"expense","category":"Food","amount":500,"date":"2026-08-01","note":"lunch"}`
	var tx Transaction
	if err := json.Unmarshal([]byte(raw), &tx); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if tx.Kind != Expense || tx.Amount.Cents != 50000 || tx.Date.String() != "2026-08-01" {
		t.Fatalf("unexpected transaction %+v", tx)
	}
	out, err := json.Marshal(tx)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != raw {
		t.Fatalf("marshal got %s", out)
	}
}
