// Package query answers simple free-text questions about the ledger, such as
// "How much did I spend on food in August?".
package query

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cloudflare/ahocorasick"

	"fintrack/internal/analytics"
	"fintrack/internal/core"
)

// MsgNotUnderstood is the answer when no category or month is recognised.
const MsgNotUnderstood = "I couldn't understand your query. Try asking about categories or months."

// Categories are the recognised category keywords, in priority order.
var Categories = []string{"food", "transport", "entertainment", "bills", "shopping", "health", "education"}

var monthNames = []string{
	"january", "february", "march", "april", "may", "june",
	"july", "august", "september", "october", "november", "december",
}

var (
	incomeWords  = []string{"income", "earn"}
	expenseWords = []string{"expense", "spend"}
)

type keywordGroup int

const (
	groupCategory keywordGroup = iota
	groupMonth
	groupIncome
	groupExpense
)

type keyword struct {
	group keywordGroup
	rank  int
}

// Interpreter turns questions into intents and intents into answers.
type Interpreter struct {
	engine *analytics.Engine

	mu       sync.Mutex
	matcher  *ahocorasick.Matcher
	keywords []keyword
}

func NewInterpreter(engine *analytics.Engine) *Interpreter {
	in := &Interpreter{engine: engine}

	var dict []string
	add := func(g keywordGroup, words []string) {
		for i, w := range words {
			dict = append(dict, w)
			in.keywords = append(in.keywords, keyword{group: g, rank: i})
		}
	}
	add(groupCategory, Categories)
	add(groupMonth, monthNames)
	add(groupIncome, incomeWords)
	add(groupExpense, expenseWords)

	in.matcher = ahocorasick.NewStringMatcher(dict)
	return in
}

// ParseIntent extracts category, month and kind from q. Each dimension takes
// the first keyword in list order that appears anywhere in the text, not the
// earliest occurrence in the text. A month resolves to the current year.
func (in *Interpreter) ParseIntent(q string) core.QueryIntent {
	lower := strings.ToLower(q)

	in.mu.Lock()
	hits := in.matcher.Match([]byte(lower))
	in.mu.Unlock()

	best := map[keywordGroup]int{}
	for _, idx := range hits {
		kw := in.keywords[idx]
		if cur, ok := best[kw.group]; !ok || kw.rank < cur {
			best[kw.group] = kw.rank
		}
	}

	var intent core.QueryIntent
	if rank, ok := best[groupCategory]; ok {
		intent.Category = Categories[rank]
	}
	if rank, ok := best[groupMonth]; ok {
		m := core.NewMonth(in.engine.Now().Year(), time.Month(rank+1))
		intent.Month = &m
	}
	if _, ok := best[groupIncome]; ok {
		intent.Kind = core.Income
	} else if _, ok := best[groupExpense]; ok {
		intent.Kind = core.Expense
	}
	return intent
}

// Answer renders a one-sentence reply for intent. Category and month
// together report that month's spending in the category; category alone the
// all-time total; month alone the month's income, spending and savings.
func (in *Interpreter) Answer(intent core.QueryIntent, txs []core.Transaction) string {
	switch {
	case intent.Category != "" && intent.Month != nil:
		summary := in.engine.MonthlySummary(txs, *intent.Month)
		var amount core.Money
		for _, ca := range summary.CategoryBreakdown {
			if strings.EqualFold(ca.Name, intent.Category) {
				amount = amount.Add(ca.Amount)
			}
		}
		return fmt.Sprintf("You spent %s%s on %s in %s.", amount, core.CurrencySymbol, intent.Category, intent.Month.Label())

	case intent.Category != "":
		var total core.Money
		for _, tx := range txs {
			if tx.Kind == core.Expense && strings.EqualFold(tx.Category, intent.Category) {
				total = total.Add(tx.Amount)
			}
		}
		return fmt.Sprintf("Total spending on %s: %s%s", intent.Category, total, core.CurrencySymbol)

	case intent.Month != nil:
		s := in.engine.MonthlySummary(txs, *intent.Month)
		return fmt.Sprintf("In %s, you earned %s%s, spent %s%s, and saved %s%s.",
			intent.Month.Label(),
			s.Income, core.CurrencySymbol,
			s.Expenses, core.CurrencySymbol,
			s.Savings, core.CurrencySymbol)

	default:
		return MsgNotUnderstood
	}
}

// Ask parses q and answers it in one step.
func (in *Interpreter) Ask(q string, txs []core.Transaction) (core.QueryIntent, string) {
	intent := in.ParseIntent(q)
	return intent, in.Answer(intent, txs)
}
