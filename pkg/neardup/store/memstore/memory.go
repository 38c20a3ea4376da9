package memstore

import (
	"context"
	"sync"

	"github.com/cognicore/neardup/pkg/neardup/store"
)

// Store is an in-memory implementation of store.Store for tests and
// single-process runs.
type Store struct {
	mu    sync.RWMutex
	meta  *store.Meta
	reps  []store.Representative
	drops map[string][]store.Drop
	runs  map[string]store.Run
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		drops: make(map[string][]store.Drop),
		runs:  make(map[string]store.Run),
	}
}

// Close implements store.Store.
func (s *Store) Close() error { return nil }

// Meta returns the saved layout, if any.
func (s *Store) Meta(ctx context.Context) (store.Meta, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.meta == nil {
		return store.Meta{}, false, nil
	}
	return *s.meta, true, nil
}

// SaveMeta replaces the saved layout.
func (s *Store) SaveMeta(ctx context.Context, m store.Meta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.meta = &m
	return nil
}

// Commit appends the batch under one lock.
func (s *Store) Commit(ctx context.Context, b store.Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range b.Representatives {
		r.Signature = r.Signature.Clone()
		s.reps = append(s.reps, r)
	}
	for _, d := range b.Drops {
		s.drops[d.RunID] = append(s.drops[d.RunID], d)
	}
	return nil
}

// Representatives calls fn for every representative in insertion order.
func (s *Store) Representatives(ctx context.Context, fn func(store.Representative) error) error {
	s.mu.RLock()
	reps := make([]store.Representative, len(s.reps))
	for i, r := range s.reps {
		r.Signature = r.Signature.Clone()
		reps[i] = r
	}
	s.mu.RUnlock()

	for _, r := range reps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

// CountRepresentatives returns the number of stored representatives.
func (s *Store) CountRepresentatives(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.reps), nil
}

// Drops returns the audit trail of a run in the order it was recorded.
func (s *Store) Drops(ctx context.Context, runID string) ([]store.Drop, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]store.Drop, len(s.drops[runID]))
	copy(out, s.drops[runID])
	return out, nil
}

// UpsertRun inserts or replaces a run row.
func (s *Store) UpsertRun(ctx context.Context, r store.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[r.ID] = r
	return nil
}

// GetRun returns a run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (store.Run, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.runs[id]
	return r, ok, nil
}
