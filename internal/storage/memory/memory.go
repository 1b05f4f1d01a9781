// Package memory is a process-local storage.Store, used for development and
// tests. Data does not survive a restart.
package memory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"

	"expenses/internal/core"
	"expenses/internal/export"
	"expenses/internal/storage"
)

var (
	_ storage.Store         = (*Store)(nil)
	_ storage.SnapshotStore = (*Store)(nil)
)

type Store struct {
	mu        sync.RWMutex
	opts      storage.Options
	items     map[string]core.Expense
	snapshots []storage.StatsSnapshot
}

func New(opts ...storage.Option) *Store {
	return &Store{
		opts:  storage.ApplyOptions(opts),
		items: make(map[string]core.Expense),
	}
}

// NewFromFile seeds the store from an expenses CSV export. A missing file
// yields an empty store.
func NewFromFile(path string, opts ...storage.Option) (*Store, error) {
	s := New(opts...)
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()

	rows, err := export.ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("read seed file %s: %w", path, err)
	}
	for _, e := range rows {
		if e.ID == "" {
			e.ID = s.opts.NewID()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = storage.Timestamp(s.opts.Now())
		}
		if e.UpdatedAt.Before(e.CreatedAt) {
			e.UpdatedAt = e.CreatedAt
		}
		s.items[e.ID] = e
	}
	return s, nil
}

func (s *Store) GetAll(_ context.Context) ([]core.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Expense, 0, len(s.items))
	for _, e := range s.items {
		out = append(out, e)
	}
	// Map order is random; ids break full ties so GetAll is deterministic.
	slices.SortFunc(out, func(a, b core.Expense) int {
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	storage.SortRecords(out)
	return out, nil
}

func (s *Store) GetByID(_ context.Context, id string) (core.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.items[id]
	if !ok {
		return core.Expense{}, storage.NotFound(id)
	}
	return e, nil
}

func (s *Store) Insert(_ context.Context, in core.ExpenseInput) (core.Expense, error) {
	if err := in.Normalize().Validate(); err != nil {
		return core.Expense{}, err
	}
	e := s.opts.NewRecord(in)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[e.ID] = e
	return e, nil
}

func (s *Store) Update(_ context.Context, id string, patch core.ExpensePatch) (core.Expense, error) {
	if err := patch.Normalize().Validate(); err != nil {
		return core.Expense{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[id]
	if !ok {
		return core.Expense{}, storage.NotFound(id)
	}
	e = s.opts.Merge(e, patch)
	s.items[id] = e
	return e, nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return storage.NotFound(id)
	}
	delete(s.items, id)
	return nil
}

func (s *Store) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]core.Expense)
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func (s *Store) SaveStatsSnapshot(_ context.Context, snap storage.StatsSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, snap)
	return nil
}

func (s *Store) LatestStatsSnapshot(context.Context) (storage.StatsSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.snapshots) == 0 {
		return storage.StatsSnapshot{}, storage.ErrNoSnapshot
	}
	return s.snapshots[len(s.snapshots)-1], nil
}
