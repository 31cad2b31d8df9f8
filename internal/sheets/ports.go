// Package sheets declares the spreadsheet mirror the worker keeps in step
// with the ledger.
package sheets

import (
	"context"

	"fintrack/internal/core"
)

// Ports for outbound adapters.
type (
	// Mirror holds one row per transaction, keyed by transaction id.
	Mirror interface {
		// Upsert writes tx over its existing row or appends a new one.
		Upsert(ctx context.Context, tx core.Transaction) error
		// Remove clears the row for id. Removing an unknown id is not an error.
		Remove(ctx context.Context, id string) error
	}

	// RowLister reads back what the mirror currently holds.
	RowLister interface {
		ListRows(ctx context.Context) ([]core.Transaction, error)
	}
)

// Header is the first row of the mirror sheet.
var Header = []string{"ID", "Date", "Type", "Category", "Amount", "Note"}
