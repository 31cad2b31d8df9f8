// Package ledger declares the persistence ports for transactions and goals.
package ledger

import (
	"context"
	"errors"

	"fintrack/internal/core"
)

var (
	// ErrNotFound is returned when no record has the requested id.
	ErrNotFound = errors.New("not found")
	ErrExists   = errors.New("already exists")
)

// Ports for the ledger backends.
type (
	TransactionStore interface {
		// ListTransactions returns every transaction in insertion order.
		ListTransactions(ctx context.Context) ([]core.Transaction, error)
		GetTransaction(ctx context.Context, id string) (core.Transaction, error)
		AddTransaction(ctx context.Context, tx core.Transaction) error
		UpdateTransaction(ctx context.Context, tx core.Transaction) error
		DeleteTransaction(ctx context.Context, id string) error
	}

	GoalStore interface {
		ListGoals(ctx context.Context) ([]core.Goal, error)
		GetGoal(ctx context.Context, id string) (core.Goal, error)
		AddGoal(ctx context.Context, g core.Goal) error
		UpdateGoal(ctx context.Context, g core.Goal) error
		DeleteGoal(ctx context.Context, id string) error
	}

	// Restorer replaces whole collections in one step. A nil slice leaves
	// that collection untouched; an empty one clears it.
	Restorer interface {
		Restore(ctx context.Context, txs []core.Transaction, goals []core.Goal) error
	}

	Store interface {
		TransactionStore
		GoalStore
		Restorer
	}
)

// Snapshot is the persisted layout shared by the file store and backups.
type Snapshot struct {
	Transactions []core.Transaction `json:"transactions"`
	Goals        []core.Goal        `json:"goals"`
}
