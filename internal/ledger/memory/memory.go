// Package memory is an in-process ledger, optionally persisted to a JSON file
// in the backup layout.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"fintrack/internal/core"
	"fintrack/internal/ledger"
)

type Store struct {
	mu    sync.Mutex
	path  string
	txs   []core.Transaction
	goals []core.Goal
}

var _ ledger.Store = (*Store)(nil)

// New returns an empty store that lives only in memory.
func New() *Store {
	return &Store{}
}

// Open loads the store from path, starting empty when the file does not
// exist yet. Every mutation is written back to path.
func Open(path string) (*Store, error) {
	s := &Store{path: path}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger file: %w", err)
	}
	if len(data) == 0 {
		return s, nil
	}
	var snap ledger.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode ledger file %s: %w", path, err)
	}
	s.txs = snap.Transactions
	s.goals = snap.Goals
	return s, nil
}

// Path returns the backing file, empty for a memory-only store.
func (s *Store) Path() string { return s.path }

func (s *Store) ListTransactions(_ context.Context) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.txs), nil
}

func (s *Store) GetTransaction(_ context.Context, id string) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.txIndex(id)
	if i < 0 {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, ledger.ErrNotFound)
	}
	return s.txs[i], nil
}

func (s *Store) AddTransaction(_ context.Context, tx core.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.txIndex(tx.ID) >= 0 {
		return fmt.Errorf("transaction %s: %w", tx.ID, ledger.ErrExists)
	}
	return s.commitLocked(append(slices.Clip(s.txs), tx), s.goals)
}

func (s *Store) UpdateTransaction(_ context.Context, tx core.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.txIndex(tx.ID)
	if i < 0 {
		return fmt.Errorf("transaction %s: %w", tx.ID, ledger.ErrNotFound)
	}
	next := slices.Clone(s.txs)
	next[i] = tx
	return s.commitLocked(next, s.goals)
}

func (s *Store) DeleteTransaction(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.txIndex(id)
	if i < 0 {
		return fmt.Errorf("transaction %s: %w", id, ledger.ErrNotFound)
	}
	return s.commitLocked(slices.Delete(slices.Clone(s.txs), i, i+1), s.goals)
}

func (s *Store) ListGoals(_ context.Context) ([]core.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.goals), nil
}

func (s *Store) GetGoal(_ context.Context, id string) (core.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.goalIndex(id)
	if i < 0 {
		return core.Goal{}, fmt.Errorf("goal %s: %w", id, ledger.ErrNotFound)
	}
	return s.goals[i], nil
}

func (s *Store) AddGoal(_ context.Context, g core.Goal) error {
	if err := g.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.goalIndex(g.ID) >= 0 {
		return fmt.Errorf("goal %s: %w", g.ID, ledger.ErrExists)
	}
	return s.commitLocked(s.txs, append(slices.Clip(s.goals), g))
}

func (s *Store) UpdateGoal(_ context.Context, g core.Goal) error {
	if err := g.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.goalIndex(g.ID)
	if i < 0 {
		return fmt.Errorf("goal %s: %w", g.ID, ledger.ErrNotFound)
	}
	next := slices.Clone(s.goals)
	next[i] = g
	return s.commitLocked(s.txs, next)
}

func (s *Store) DeleteGoal(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.goalIndex(id)
	if i < 0 {
		return fmt.Errorf("goal %s: %w", id, ledger.ErrNotFound)
	}
	return s.commitLocked(s.txs, slices.Delete(slices.Clone(s.goals), i, i+1))
}

// Restore replaces the non-nil collections. If the file cannot be written
// the previous state is kept.
func (s *Store) Restore(_ context.Context, txs []core.Transaction, goals []core.Goal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	nextTxs, nextGoals := s.txs, s.goals
	if txs != nil {
		nextTxs = slices.Clone(txs)
	}
	if goals != nil {
		nextGoals = slices.Clone(goals)
	}
	return s.commitLocked(nextTxs, nextGoals)
}

// commitLocked installs the new collections and writes them back. The stored
// slices are never modified in place, so a failed write restores the old ones.
func (s *Store) commitLocked(txs []core.Transaction, goals []core.Goal) error {
	prevTxs, prevGoals := s.txs, s.goals
	s.txs, s.goals = txs, goals
	if err := s.persistLocked(); err != nil {
		s.txs, s.goals = prevTxs, prevGoals
		return err
	}
	return nil
}

func (s *Store) txIndex(id string) int {
	return slices.IndexFunc(s.txs, func(t core.Transaction) bool { return t.ID == id })
}

func (s *Store) goalIndex(id string) int {
	return slices.IndexFunc(s.goals, func(g core.Goal) bool { return g.ID == id })
}

// persistLocked writes the snapshot to a temp file and renames it over the
// target so readers never see a partial file.
func (s *Store) persistLocked() error {
	if s.path == "" {
		return nil
	}
	snap := ledger.Snapshot{Transactions: s.txs, Goals: s.goals}
	if snap.Transactions == nil {
		snap.Transactions = []core.Transaction{}
	}
	if snap.Goals == nil {
		snap.Goals = []core.Goal{}
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create ledger dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".ledger-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace ledger file: %w", err)
	}
	return nil
}
