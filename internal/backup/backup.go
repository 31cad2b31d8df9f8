// Package backup exports the ledger as JSON or CSV and restores it from a
// JSON export.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"
	"golang.org/x/sync/errgroup"

	"fintrack/internal/core"
	"fintrack/internal/ledger"
)

// Source is the read side of the ledger needed for an export.
type Source interface {
	ListTransactions(ctx context.Context) ([]core.Transaction, error)
	ListGoals(ctx context.Context) ([]core.Goal, error)
}

// ImportError describes why a backup was rejected. The ledger is unchanged
// whenever Import returns one.
type ImportError struct {
	Reason string
	Err    error
}

func (e *ImportError) Error() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

func (e *ImportError) Unwrap() error { return e.Err }

// Result summarises a successful import.
type Result struct {
	Transactions         int  `json:"transactions"`
	Goals                int  `json:"goals"`
	TransactionsReplaced bool `json:"transactionsReplaced"`
	GoalsReplaced        bool `json:"goalsReplaced"`
}

// Export loads both collections concurrently and renders them in the
// backup layout, indented by two spaces.
func Export(ctx context.Context, src Source) ([]byte, error) {
	snap, err := load(ctx, src)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(snap, "", "  ")
}

func load(ctx context.Context, src Source) (ledger.Snapshot, error) {
	var snap ledger.Snapshot
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		txs, err := src.ListTransactions(ctx)
		if err != nil {
			return fmt.Errorf("load transactions: %w", err)
		}
		snap.Transactions = txs
		return nil
	})
	g.Go(func() error {
		goals, err := src.ListGoals(ctx)
		if err != nil {
			return fmt.Errorf("load goals: %w", err)
		}
		snap.Goals = goals
		return nil
	})
	if err := g.Wait(); err != nil {
		return ledger.Snapshot{}, err
	}
	if snap.Transactions == nil {
		snap.Transactions = []core.Transaction{}
	}
	if snap.Goals == nil {
		snap.Goals = []core.Goal{}
	}
	return snap, nil
}

// Import validates data as a backup and replaces the collections it holds.
// Absent or null collections are left as they are.
func Import(ctx context.Context, dst ledger.Restorer, data []byte) (Result, error) {
	txs, goals, err := Decode(data)
	if err != nil {
		return Result{}, err
	}
	if err := dst.Restore(ctx, txs, goals); err != nil {
		return Result{}, fmt.Errorf("restore ledger: %w", err)
	}
	return Result{
		Transactions:         len(txs),
		Goals:                len(goals),
		TransactionsReplaced: txs != nil,
		GoalsReplaced:        goals != nil,
	}, nil
}

// Decode parses and validates a backup without touching any store. A nil
// slice means the collection was absent.
func Decode(data []byte) ([]core.Transaction, []core.Goal, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil, &ImportError{Reason: "Please paste JSON data"}
	}
	var top any
	if err := json.Unmarshal(trimmed, &top); err != nil {
		return nil, nil, &ImportError{Reason: "Invalid JSON", Err: err}
	}
	if _, ok := top.(map[string]any); !ok {
		return nil, nil, &ImportError{Reason: "Invalid backup: expected an object with transactions and goals"}
	}

	var raw struct {
		Transactions json.RawMessage `json:"transactions"`
		Goals        json.RawMessage `json:"goals"`
	}
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, nil, &ImportError{Reason: "Invalid backup", Err: err}
	}

	txs, err := decodeTransactions(raw.Transactions)
	if err != nil {
		return nil, nil, err
	}
	goals, err := decodeGoals(raw.Goals)
	if err != nil {
		return nil, nil, err
	}
	return txs, goals, nil
}

func isAbsent(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

func decodeTransactions(raw json.RawMessage) ([]core.Transaction, error) {
	if isAbsent(raw) {
		return nil, nil
	}
	if raw[0] != '[' {
		return nil, &ImportError{Reason: "Invalid backup: transactions must be an array"}
	}
	txs := []core.Transaction{}
	if err := json.Unmarshal(raw, &txs); err != nil {
		return nil, &ImportError{Reason: "Invalid transactions", Err: err}
	}
	seen := make(map[string]struct{}, len(txs))
	for i, tx := range txs {
		if err := tx.Validate(); err != nil {
			return nil, &ImportError{Reason: fmt.Sprintf("Invalid transaction at index %d", i), Err: err}
		}
		if _, dup := seen[tx.ID]; dup {
			return nil, &ImportError{Reason: fmt.Sprintf("Duplicate transaction id %q", tx.ID)}
		}
		seen[tx.ID] = struct{}{}
	}
	return txs, nil
}

func decodeGoals(raw json.RawMessage) ([]core.Goal, error) {
	if isAbsent(raw) {
		return nil, nil
	}
	if raw[0] != '[' {
		return nil, &ImportError{Reason: "Invalid backup: goals must be an array"}
	}
	goals := []core.Goal{}
	if err := json.Unmarshal(raw, &goals); err != nil {
		return nil, &ImportError{Reason: "Invalid goals", Err: err}
	}
	seen := make(map[string]struct{}, len(goals))
	for i, g := range goals {
		if err := g.Validate(); err != nil {
			return nil, &ImportError{Reason: fmt.Sprintf("Invalid goal at index %d", i), Err: err}
		}
		if _, dup := seen[g.ID]; dup {
			return nil, &ImportError{Reason: fmt.Sprintf("Duplicate goal id %q", g.ID)}
		}
		seen[g.ID] = struct{}{}
	}
	return goals, nil
}

// IsImportError reports whether err is a rejected backup rather than a
// storage failure.
func IsImportError(err error) bool {
	var ie *ImportError
	return errors.As(err, &ie)
}

// csvRow is the spreadsheet layout of a transaction.
type csvRow struct {
	ID       string `csv:"id"`
	Date     string `csv:"date"`
	Type     string `csv:"type"`
	Category string `csv:"category"`
	Amount   string `csv:"amount"`
	Note     string `csv:"note"`
}

// ExportCSV writes every transaction as a CSV row with a header line.
func ExportCSV(ctx context.Context, src ledger.TransactionStore, w io.Writer) error {
	txs, err := src.ListTransactions(ctx)
	if err != nil {
		return fmt.Errorf("load transactions: %w", err)
	}
	rows := make([]*csvRow, 0, len(txs))
	for _, tx := range txs {
		rows = append(rows, &csvRow{
			ID:       tx.ID,
			Date:     tx.Date.String(),
			Type:     string(tx.Kind),
			Category: tx.Category,
			Amount:   tx.Amount.String(),
			Note:     strings.TrimSpace(tx.Note),
		})
	}
	if err := gocsv.Marshal(rows, w); err != nil {
		return fmt.Errorf("encode csv: %w", err)
	}
	return nil
}
