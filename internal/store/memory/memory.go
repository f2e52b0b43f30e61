// Package memory is an in-process job store. Records are lost on restart.
package memory

import (
	"context"
	"errors"
	"slices"
	"sync"

	"scholarsource/internal/job"
)

// Store keeps records in a map. Every Put and Get copies the record so
// callers never share memory with the store.
type Store struct {
	mu      sync.RWMutex
	records map[string]*job.Record
	closed  bool
}

// New creates an empty store.
func New() *Store {
	return &Store{records: make(map[string]*job.Record)}
}

var errClosed = errors.New("memory store closed")

// Put replaces the record stored under rec.ID.
func (s *Store) Put(_ context.Context, rec *job.Record) error {
	if rec == nil || rec.ID == "" {
		return errors.New("memory store: record id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	s.records[rec.ID] = rec.Clone()
	return nil
}

// Get returns a copy of the record, or nil if absent.
func (s *Store) Get(_ context.Context, id string) (*job.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed
	}
	return s.records[id].Clone(), nil
}

// ListByStatus returns copies of records in any of the given statuses,
// oldest first.
func (s *Store) ListByStatus(_ context.Context, statuses ...job.Status) ([]*job.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed
	}

	var out []*job.Record
	for _, rec := range s.records {
		if slices.Contains(statuses, rec.Status) {
			out = append(out, rec.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *job.Record) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, nil
}

// Len reports how many records are stored.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Ping fails only after Close.
func (s *Store) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errClosed
	}
	return nil
}

// Close makes further operations fail.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

var (
	_ job.Store  = (*Store)(nil)
	_ job.Lister = (*Store)(nil)
)
