// Package capture turns a spoken or typed phrase such as "spent 250 taka on
// food yesterday" into a draft transaction.
package capture

import (
	"regexp"
	"strings"
	"time"

	"fintrack/internal/core"
)

// DefaultCategory is used when the phrase names none of Categories.
const DefaultCategory = "Other"

// Categories offered for captured transactions, in match priority order.
var Categories = []string{"Food", "Transport", "Entertainment", "Bills", "Shopping", "Health", "Education", DefaultCategory}

const maxNoteRunes = 100

var (
	amountRegex  = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:taka|tk|৳|dollar|dollars|\$)?`)
	leadingDigit = regexp.MustCompile(`^\d`)
)

// Draft is a parsed phrase, ready to be completed with an id and stored.
type Draft struct {
	Kind     core.Kind  `json:"type"`
	Amount   core.Money `json:"amount"`
	Category string     `json:"category"`
	Date     core.Date  `json:"date"`
	Note     string     `json:"note,omitempty"`
}

// Parse extracts a draft from text. It reports false when the phrase holds
// no positive amount.
//
// Examples:
//   - "salary 5000" -> income, 5000, Other
//   - "add expense 120 tk food yesterday" -> expense, 120, Food, yesterday
//   - "coffee with Sam 3.5" -> expense, 3.5, Other, note "coffee with Sam"
func Parse(text string, now time.Time) (Draft, bool) {
	lower := strings.ToLower(text)

	d := Draft{Kind: core.Expense, Category: DefaultCategory}
	if containsAny(lower, "income", "earn", "salary") {
		d.Kind = core.Income
	}

	if m := amountRegex.FindStringSubmatch(text); m != nil {
		cents, err := core.ParseDecimalToCents(m[1])
		if err == nil {
			d.Amount = core.Money{Cents: cents}
		}
	}

	for _, cat := range Categories {
		if strings.Contains(lower, strings.ToLower(cat)) {
			d.Category = cat
			break
		}
	}

	d.Date = core.DateOf(now)
	if !strings.Contains(lower, "today") && strings.Contains(lower, "yesterday") {
		d.Date = core.DateOf(now.AddDate(0, 0, -1))
	}

	if !containsAny(lower, "add", "expense", "income") {
		d.Note = noteFrom(text)
	}

	if d.Amount.Cents <= 0 {
		return Draft{}, false
	}
	return d, true
}

// Transaction completes the draft with id.
func (d Draft) Transaction(id string) core.Transaction {
	return core.Transaction{
		ID:       id,
		Kind:     d.Kind,
		Category: d.Category,
		Amount:   d.Amount,
		Date:     d.Date,
		Note:     d.Note,
	}
}

// noteFrom keeps the words that are neither numbers nor category names.
func noteFrom(text string) string {
	var parts []string
	for _, w := range strings.Fields(text) {
		if leadingDigit.MatchString(w) || mentionsCategory(strings.ToLower(w)) {
			continue
		}
		parts = append(parts, w)
	}
	note := []rune(strings.Join(parts, " "))
	if len(note) > maxNoteRunes {
		note = note[:maxNoteRunes]
	}
	return string(note)
}

func mentionsCategory(word string) bool {
	for _, cat := range Categories {
		if strings.Contains(word, strings.ToLower(cat)) {
			return true
		}
	}
	return false
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
