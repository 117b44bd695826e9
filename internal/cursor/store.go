// Package cursor persists each endpoint's poll position. The cursor is the
// only mutable state shared across cycles, and the feed poller is its single
// writer: it is replaced whole at the end of a fully successful traversal or
// not at all.
package cursor

import (
	"context"
	"sync"

	"carelink/internal/domain"
)

// Store reads and replaces per-endpoint cursors. Get on an endpoint that has
// never been polled returns the zero cursor, not an error.
type Store interface {
	Get(ctx context.Context, endpointID string) (domain.Cursor, error)
	Put(ctx context.Context, endpointID string, c domain.Cursor) error
}

// MemoryStore is an in-memory cursor store for tests and local development.
type MemoryStore struct {
	mu      sync.RWMutex
	cursors map[string]domain.Cursor
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cursors: make(map[string]domain.Cursor)}
}

func (s *MemoryStore) Get(_ context.Context, endpointID string) (domain.Cursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursors[endpointID], nil
}

func (s *MemoryStore) Put(_ context.Context, endpointID string, c domain.Cursor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[endpointID] = c
	return nil
}
