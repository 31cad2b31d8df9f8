// Package analytics turns a transaction snapshot into monthly summaries,
// category totals, savings trends and heuristic spending warnings.
//
// Every method works on the snapshot handed to it and on the engine's clock;
// the engine holds no other state.
package analytics

import (
	"fmt"
	"time"

	"fintrack/internal/core"
)

const (
	// HighSpendingPercent is the share of income above which a category is flagged.
	HighSpendingPercent = 40.0
	// LowSavingsPercent is the savings rate below which a warning is raised.
	LowSavingsPercent = 10.0

	MsgOverspending = "You're spending more than you earn this month"
)

// Engine computes analytics relative to "now" as reported by its clock.
type Engine struct {
	now func() time.Time
}

type Option func(*Engine)

// WithClock overrides the wall clock, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Now returns the engine's notion of the current time.
func (e *Engine) Now() time.Time {
	return e.now()
}

// CurrentMonth is the calendar month containing Now.
func (e *Engine) CurrentMonth() core.Month {
	return core.MonthOf(e.now())
}

// MonthlySummary aggregates the transactions dated within month.
func (e *Engine) MonthlySummary(txs []core.Transaction, month core.Month) core.MonthlySummary {
	s := core.MonthlySummary{Month: month, CategoryBreakdown: core.Breakdown{}}
	for _, tx := range txs {
		if !month.Contains(tx.Date) {
			continue
		}
		switch tx.Kind {
		case core.Income:
			s.Income = s.Income.Add(tx.Amount)
		case core.Expense:
			s.Expenses = s.Expenses.Add(tx.Amount)
			s.CategoryBreakdown = s.CategoryBreakdown.Add(tx.Category, tx.Amount)
		}
	}
	s.Savings = s.Income.Sub(s.Expenses)
	return s
}

// CategoryTotals sums expenses by category across all time.
func (e *Engine) CategoryTotals(txs []core.Transaction) core.Breakdown {
	totals := core.Breakdown{}
	for _, tx := range txs {
		if tx.Kind == core.Expense {
			totals = totals.Add(tx.Category, tx.Amount)
		}
	}
	return totals
}

// SavingsTrend returns one summary per month for the n months ending with
// the current month, oldest first. Months without data yield zero summaries.
func (e *Engine) SavingsTrend(txs []core.Transaction, n int) []core.MonthlySummary {
	if n <= 0 {
		return []core.MonthlySummary{}
	}
	current := e.CurrentMonth()
	out := make([]core.MonthlySummary, 0, n)
	for i := n - 1; i >= 0; i-- {
		out = append(out, e.MonthlySummary(txs, current.AddMonths(-i)))
	}
	return out
}

// DetectPatterns flags risky spending in the current month. It returns no
// warnings when the month has no income.
func (e *Engine) DetectPatterns(txs []core.Transaction) []string {
	s := e.MonthlySummary(txs, e.CurrentMonth())
	warnings := []string{}
	if s.Income.Cents == 0 {
		return warnings
	}

	for _, ca := range s.CategoryBreakdown {
		pct := Percent(ca.Amount, s.Income)
		if pct > HighSpendingPercent {
			warnings = append(warnings, fmt.Sprintf("High spending on %s (%.1f%% of income)", ca.Name, pct))
		}
	}

	if s.Savings.Cents < 0 {
		warnings = append(warnings, MsgOverspending)
	}

	rate := SavingsRate(s)
	if rate > 0 && rate < LowSavingsPercent {
		warnings = append(warnings, fmt.Sprintf("Low savings rate: %.1f%%", rate))
	}
	return warnings
}

// SavingsRate is savings as a percentage of income, or 0 without income.
func SavingsRate(s core.MonthlySummary) float64 {
	return Percent(s.Savings, s.Income)
}

// Percent returns part as a percentage of whole, 0 when whole is zero.
func Percent(part, whole core.Money) float64 {
	if whole.Cents == 0 {
		return 0
	}
	return float64(part.Cents) / float64(whole.Cents) * 100
}
