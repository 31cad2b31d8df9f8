// Package memory is a Mirror kept in process, used when no spreadsheet is
// configured and in tests.
package memory

import (
	"context"
	"slices"
	"sync"

	"fintrack/internal/core"
	"fintrack/internal/sheets"
)

type Store struct {
	mu    sync.Mutex
	rows  []core.Transaction
	fails map[string]error
}

var (
	_ sheets.Mirror    = (*Store)(nil)
	_ sheets.RowLister = (*Store)(nil)
)

func New() *Store {
	return &Store{fails: map[string]error{}}
}

// FailOn makes the next operations on id return err until cleared with a
// nil error.
func (s *Store) FailOn(id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fails, id)
		return
	}
	s.fails[id] = err
}

func (s *Store) Upsert(_ context.Context, tx core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fails[tx.ID]; err != nil {
		return err
	}
	if i := s.index(tx.ID); i >= 0 {
		s.rows[i] = tx
		return nil
	}
	s.rows = append(s.rows, tx)
	return nil
}

func (s *Store) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fails[id]; err != nil {
		return err
	}
	if i := s.index(id); i >= 0 {
		s.rows = slices.Delete(s.rows, i, i+1)
	}
	return nil
}

func (s *Store) ListRows(_ context.Context) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.rows), nil
}

func (s *Store) index(id string) int {
	return slices.IndexFunc(s.rows, func(t core.Transaction) bool { return t.ID == id })
}
