package insights

import (
	"strings"

	"fintrack/internal/core"
)

// BuildAnalysisPrompt renders the current and previous month plus the
// active warnings into the analysis prompt. The output depends only on the
// transactions and the engine clock.
func (g *Generator) BuildAnalysisPrompt(txs []core.Transaction) string {
	currentMonth := g.engine.CurrentMonth()
	lastMonth := currentMonth.AddMonths(-1)
	current := g.engine.MonthlySummary(txs, currentMonth)
	previous := g.engine.MonthlySummary(txs, lastMonth)
	warnings := g.engine.DetectPatterns(txs)

	breakdown, err := current.CategoryBreakdown.MarshalJSON()
	if err != nil {
		breakdown = []byte("{}")
	}

	var b strings.Builder
	b.WriteString("Analyze this personal finance data and provide helpful insights:\n\n")

	b.WriteString("Current Month (" + currentMonth.String() + "):\n")
	b.WriteString("- Income: " + current.Income.String() + "\n")
	b.WriteString("- Expenses: " + current.Expenses.String() + "\n")
	b.WriteString("- Savings: " + current.Savings.String() + "\n")
	b.WriteString("- Category Breakdown: " + string(breakdown) + "\n\n")

	b.WriteString("Previous Month (" + lastMonth.String() + "):\n")
	b.WriteString("- Income: " + previous.Income.String() + "\n")
	b.WriteString("- Expenses: " + previous.Expenses.String() + "\n")
	b.WriteString("- Savings: " + previous.Savings.String() + "\n\n")

	b.WriteString("Warnings: " + strings.Join(warnings, ", ") + "\n\n")

	b.WriteString("Provide:\n")
	b.WriteString("1. A brief summary of spending patterns\n")
	b.WriteString("2. Specific recommendations for improvement\n")
	b.WriteString("3. Positive observations if applicable\n")
	b.WriteString("4. Actionable saving tips\n\n")
	b.WriteString("Keep response concise and friendly.")

	return b.String()
}
