package google

import (
	"errors"
	"fmt"
	"strings"

	"fintrack/internal/core"
)

var errBlankRow = errors.New("blank row")

// formatRow lays out tx in column order ID, Date, Type, Category, Amount, Note.
// Amounts are written as plain decimal text so a sheet locale cannot regroup them.
func formatRow(tx core.Transaction) []any {
	return []any{tx.ID, tx.Date.String(), string(tx.Kind), tx.Category, tx.Amount.String(), tx.Note}
}

// parseRow is the inverse of formatRow for values read back from the sheet.
func parseRow(cols []string) (core.Transaction, error) {
	if len(cols) == 0 || strings.TrimSpace(strings.Join(cols, "")) == "" {
		return core.Transaction{}, errBlankRow
	}
	if len(cols) < 5 {
		return core.Transaction{}, fmt.Errorf("expected at least 5 columns, got %d", len(cols))
	}
	date, err := core.ParseDate(cols[1])
	if err != nil {
		return core.Transaction{}, err
	}
	cents, err := core.ParseDecimalToCents(cols[4])
	if err != nil {
		return core.Transaction{}, fmt.Errorf("amount %q: %w", cols[4], err)
	}
	tx := core.Transaction{
		ID:       cols[0],
		Date:     date,
		Kind:     core.Kind(strings.ToLower(cols[2])),
		Category: cols[3],
		Amount:   core.Money{Cents: cents},
		Note:     safeGet(cols, 5),
	}
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	return tx, nil
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}
