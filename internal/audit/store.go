package audit

import (
	"context"
	"sync"
)

// Store is an append-only event sink with read-back for operators.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByEndpoint(ctx context.Context, endpointID string) ([]Event, error)
}

// MemoryStore keeps events in memory, for tests and local development.
type MemoryStore struct {
	mu     sync.RWMutex
	events []Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *MemoryStore) ListByEndpoint(_ context.Context, endpointID string) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for _, event := range s.events {
		if event.EndpointID == endpointID {
			out = append(out, event)
		}
	}
	return out, nil
}

// All returns every recorded event in order.
func (s *MemoryStore) All() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}
