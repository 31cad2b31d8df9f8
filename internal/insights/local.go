package insights

import (
	"fmt"
	"strings"

	"fintrack/internal/analytics"
	"fintrack/internal/core"
)

const (
	// GoodSavingsPercent is the savings rate that earns a praise tip.
	GoodSavingsPercent = 20.0

	MsgKeepTracking = "Keep tracking your expenses to gain better insights!"

	warningLimit = 200
	tipLimit     = 200
	summaryLimit = 300
)

// Local derives insights from heuristics alone. The result is never empty.
func (g *Generator) Local(txs []core.Transaction) []core.Insight {
	current := g.engine.MonthlySummary(txs, g.engine.CurrentMonth())
	out := []core.Insight{}

	for _, w := range g.engine.DetectPatterns(txs) {
		out = append(out, core.Insight{Kind: core.Warning, Message: w})
	}

	if current.Savings.Cents > 0 {
		if rate := analytics.SavingsRate(current); rate >= GoodSavingsPercent {
			out = append(out, core.Insight{
				Kind:    core.Tip,
				Message: fmt.Sprintf("Great job! You're saving %.1f%% of your income.", rate),
			})
		}
	}

	if top, ok := current.CategoryBreakdown.Largest(); ok {
		out = append(out, core.Insight{
			Kind:     core.Summary,
			Message:  fmt.Sprintf("Your largest expense category is %s (%s).", top.Name, top.Amount),
			Category: top.Name,
		})
	}

	if len(out) == 0 {
		out = append(out, core.Insight{Kind: core.Tip, Message: MsgKeepTracking})
	}
	return out
}

// ParseExternalResponse classifies free generated text into one insight by
// keyword: overspend/warning first, then tip/recommend, else a summary.
func (g *Generator) ParseExternalResponse(text string, txs []core.Transaction) []core.Insight {
	lower := strings.ToLower(text)

	var out []core.Insight
	switch {
	case strings.Contains(lower, "overspend") || strings.Contains(lower, "warning"):
		out = append(out, core.Insight{Kind: core.Warning, Message: truncateRunes(text, warningLimit)})
	case strings.Contains(lower, "tip") || strings.Contains(lower, "recommend"):
		out = append(out, core.Insight{Kind: core.Tip, Message: truncateRunes(text, tipLimit)})
	default:
		out = append(out, core.Insight{Kind: core.Summary, Message: truncateRunes(text, summaryLimit)})
	}

	// The switch always yields one insight today.
	if len(out) == 0 {
		return g.Local(txs)
	}
	return out
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
