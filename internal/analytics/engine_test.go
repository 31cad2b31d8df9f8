package analytics

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"fintrack/internal/core"
)

var fixedNow = time.Date(2026, time.August, 15, 10, 0, 0, 0, time.UTC)

func newTestEngine() *Engine {
	return NewEngine(WithClock(func() time.Time { return fixedNow }))
}

func tx(id string, kind core.Kind, category string, units float64, date core.Date) core.Transaction {
	return core.Transaction{ID: id, Kind: kind, Category: category, Amount: core.NewMoney(units), Date: date}
}

func TestMonthlySummary_IncomeAndFoodExpense(t *testing.T) {
	e := newTestEngine()
	m := core.NewMonth(2026, time.August)
	txs := []core.Transaction{
		tx("1", core.Income, "Salary", 1000, core.NewDate(2026, 8, 1)),
		tx("2", core.Expense, "Food", 500, core.NewDate(2026, 8, 3)),
		tx("3", core.Expense, "Food", 70, core.NewDate(2026, 7, 31)),
	}

	got := e.MonthlySummary(txs, m)
	want := core.MonthlySummary{
		Month:             m,
		Income:            core.NewMoney(1000),
		Expenses:          core.NewMoney(500),
		Savings:           core.NewMoney(500),
		CategoryBreakdown: core.Breakdown{{Name: "Food", Amount: core.NewMoney(500)}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("MonthlySummary() = %+v, want %+v", got, want)
	}
}

func TestMonthlySummary_EmptyMonth(t *testing.T) {
	e := newTestEngine()
	got := e.MonthlySummary(nil, core.NewMonth(2020, time.March))
	if got.Income.Cents != 0 || got.Expenses.Cents != 0 || got.Savings.Cents != 0 || len(got.CategoryBreakdown) != 0 {
		t.Fatalf("expected zero summary, got %+v", got)
	}
	if got.CategoryBreakdown == nil {
		t.Fatalf("breakdown should be empty, not nil")
	}
}

func TestMonthlySummary_CategoriesAreCaseSensitive(t *testing.T) {
	e := newTestEngine()
	m := core.NewMonth(2026, time.August)
	txs := []core.Transaction{
		tx("1", core.Expense, "Food", 10, core.NewDate(2026, 8, 1)),
		tx("2", core.Expense, "food", 5, core.NewDate(2026, 8, 2)),
	}
	got := e.MonthlySummary(txs, m)
	if len(got.CategoryBreakdown) != 2 {
		t.Fatalf("expected two distinct categories, got %+v", got.CategoryBreakdown)
	}
}

func TestMonthlySummary_Properties(t *testing.T) {
	e := newTestEngine()
	txs := []core.Transaction{
		tx("1", core.Income, "Salary", 1200.5, core.NewDate(2026, 6, 1)),
		tx("2", core.Income, "Salary", 1100, core.NewDate(2026, 7, 1)),
		tx("3", core.Expense, "Rent", 900, core.NewDate(2026, 7, 2)),
		tx("4", core.Expense, "Food", 1500, core.NewDate(2026, 8, 2)),
		tx("5", core.Income, "Gift", 0.25, core.NewDate(2025, 12, 24)),
	}

	var incomeAll int64
	for _, x := range txs {
		if x.Kind == core.Income {
			incomeAll += x.Amount.Cents
		}
	}

	var incomeByMonth int64
	for m := core.NewMonth(2025, time.December); m != core.NewMonth(2026, time.September); m = m.AddMonths(1) {
		s := e.MonthlySummary(txs, m)
		if s.Savings.Cents != s.Income.Cents-s.Expenses.Cents {
			t.Fatalf("savings identity broken for %s: %+v", m, s)
		}
		if s.CategoryBreakdown.Total() != s.Expenses {
			t.Fatalf("breakdown total differs from expenses for %s", m)
		}
		incomeByMonth += s.Income.Cents
	}
	if incomeByMonth != incomeAll {
		t.Fatalf("income not conserved across months: %d != %d", incomeByMonth, incomeAll)
	}

	m := core.NewMonth(2026, time.July)
	if !reflect.DeepEqual(e.MonthlySummary(txs, m), e.MonthlySummary(txs, m)) {
		t.Fatalf("MonthlySummary is not idempotent")
	}
}

func TestCategoryTotals(t *testing.T) {
	e := newTestEngine()
	txs := []core.Transaction{
		tx("1", core.Expense, "Food", 10, core.NewDate(2024, 1, 1)),
		tx("2", core.Income, "Salary", 100, core.NewDate(2024, 1, 1)),
		tx("3", core.Expense, "Bills", 40, core.NewDate(2026, 8, 1)),
		tx("4", core.Expense, "Food", 15, core.NewDate(2026, 8, 1)),
	}
	got := e.CategoryTotals(txs)
	want := core.Breakdown{{Name: "Food", Amount: core.NewMoney(25)}, {Name: "Bills", Amount: core.NewMoney(40)}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("CategoryTotals() = %+v, want %+v", got, want)
	}
}

func TestSavingsTrend(t *testing.T) {
	e := newTestEngine()
	txs := []core.Transaction{
		tx("1", core.Income, "Salary", 100, core.NewDate(2026, 3, 1)),
		tx("2", core.Expense, "Food", 30, core.NewDate(2026, 8, 1)),
	}

	for _, n := range []int{1, 6, 12, 24} {
		trend := e.SavingsTrend(txs, n)
		if len(trend) != n {
			t.Fatalf("SavingsTrend(%d) has %d entries", n, len(trend))
		}
		if last := trend[len(trend)-1].Month; last != core.NewMonth(2026, time.August) {
			t.Fatalf("last month = %s, want 2026-08", last)
		}
		for i := 1; i < len(trend); i++ {
			if trend[i].Month != trend[i-1].Month.AddMonths(1) {
				t.Fatalf("trend not chronological at %d", i)
			}
		}
	}

	trend := e.SavingsTrend(txs, 6)
	if trend[0].Month.String() != "2026-03" || trend[0].Income.Cents != 10000 {
		t.Fatalf("unexpected first entry %+v", trend[0])
	}
	if len(e.SavingsTrend(txs, 0)) != 0 {
		t.Fatalf("SavingsTrend(0) must be empty")
	}
}

func TestDetectPatterns(t *testing.T) {
	aug := func(d int) core.Date { return core.NewDate(2026, 8, d) }

	tests := []struct {
		name string
		txs  []core.Transaction
		want []string
	}{
		{
			name: "scenario B high spending",
			txs: []core.Transaction{
				tx("1", core.Income, "Salary", 1000, aug(1)),
				tx("2", core.Expense, "Food", 450, aug(2)),
			},
			want: []string{"High spending on Food (45.0% of income)"},
		},
		{
			name: "zero income yields nothing",
			txs: []core.Transaction{
				tx("1", core.Expense, "Food", 450, aug(2)),
				tx("2", core.Income, "Salary", 1000, core.NewDate(2026, 7, 1)),
			},
			want: []string{},
		},
		{
			name: "overspending after category warnings",
			txs: []core.Transaction{
				tx("1", core.Income, "Salary", 1000, aug(1)),
				tx("2", core.Expense, "Rent", 700, aug(2)),
				tx("3", core.Expense, "Shopping", 500, aug(3)),
			},
			want: []string{
				"High spending on Rent (70.0% of income)",
				"High spending on Shopping (50.0% of income)",
				"You're spending more than you earn this month",
			},
		},
		{
			name: "low savings rate",
			txs: []core.Transaction{
				tx("1", core.Income, "Salary", 1000, aug(1)),
				tx("2", core.Expense, "Rent", 400, aug(2)),
				tx("3", core.Expense, "Food", 350, aug(3)),
				tx("4", core.Expense, "Bills", 200, aug(4)),
			},
			want: []string{"Low savings rate: 5.0%"},
		},
		{
			name: "exactly forty percent is not flagged",
			txs: []core.Transaction{
				tx("1", core.Income, "Salary", 1000, aug(1)),
				tx("2", core.Expense, "Food", 400, aug(2)),
			},
			want: []string{},
		},
	}

	e := newTestEngine()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.DetectPatterns(tt.txs)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("DetectPatterns() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDetectPatterns_NeverBothOverspendAndLowRate(t *testing.T) {
	e := newTestEngine()
	txs := []core.Transaction{
		tx("1", core.Income, "Salary", 100, core.NewDate(2026, 8, 1)),
		tx("2", core.Expense, "Food", 30, core.NewDate(2026, 8, 2)),
		tx("3", core.Expense, "Rent", 30, core.NewDate(2026, 8, 2)),
		tx("4", core.Expense, "Bills", 39.99, core.NewDate(2026, 8, 2)),
		tx("5", core.Expense, "Misc", 0.02, core.NewDate(2026, 8, 2)),
	}
	got := e.DetectPatterns(txs)
	if len(got) != 1 || got[0] != MsgOverspending {
		t.Fatalf("DetectPatterns() = %q", got)
	}
	for _, w := range got {
		if strings.HasPrefix(w, "Low savings") {
			t.Fatalf("low savings warning must not accompany overspending")
		}
	}
}
