// Package memory is a process-local ledger.Store for tests and throwaway runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"expenses/internal/core"
	"expenses/internal/ledger"
)

type Store struct {
	mu    sync.Mutex
	items map[core.Identity][]core.Record
}

var _ ledger.Store = (*Store)(nil)

func New() *Store {
	return &Store{items: make(map[core.Identity][]core.Record)}
}

// Seed installs records for id, creating it if needed.
func (s *Store) Seed(id core.Identity, records ...core.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[id] = append(s.items[id], records...)
}

func (s *Store) Exists(_ context.Context, id core.Identity) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.items[id]
	return ok, nil
}

func (s *Store) Create(_ context.Context, id core.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; ok {
		return fmt.Errorf("%w: ledger %s already exists", ledger.ErrIO, id)
	}
	s.items[id] = []core.Record{}
	return nil
}

func (s *Store) Load(_ context.Context, id core.Identity) (ledger.LoadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.items[id]
	if len(items) == 0 {
		return ledger.LoadResult{Status: ledger.StatusFresh}, nil
	}
	return ledger.LoadResult{
		Records: append([]core.Record(nil), items...),
		Status:  ledger.StatusLoaded,
	}, nil
}

func (s *Store) AppendRecord(_ context.Context, id core.Identity, r core.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[id] = append(s.items[id], r)
	return nil
}

// Len returns how many records are stored for id.
func (s *Store) Len(id core.Identity) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items[id])
}
