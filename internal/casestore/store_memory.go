package casestore

import (
	"context"
	"fmt"
	"sync"

	"carelink/internal/domain"
)

// MemoryStore is a mutex-guarded in-memory case store for tests and local
// development.
type MemoryStore struct {
	mu    sync.RWMutex
	cases map[string]domain.CaseRecord // keyed on domain + "/" + case id

	// Writes records every submission in order, for assertions on write
	// counts and idempotence.
	writes []domain.CaseWrite
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cases: make(map[string]domain.CaseRecord)}
}

func key(caseDomain, caseID string) string {
	return caseDomain + "/" + caseID
}

func (s *MemoryStore) FindByExternalID(_ context.Context, caseDomain, caseType, externalID string) ([]domain.CaseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []domain.CaseRecord
	for _, c := range s.cases {
		if c.Domain == caseDomain && c.Type == caseType && c.ExternalID == externalID {
			matches = append(matches, copyCase(c))
		}
	}
	return matches, nil
}

func (s *MemoryStore) Get(_ context.Context, caseDomain, caseID string) (domain.CaseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.cases[key(caseDomain, caseID)]
	if !ok {
		return domain.CaseRecord{}, ErrNotFound
	}
	return copyCase(c), nil
}

func (s *MemoryStore) Submit(_ context.Context, write domain.CaseWrite) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(write.Domain, write.CaseID)
	if write.Create {
		if _, exists := s.cases[k]; exists {
			return fmt.Errorf("create case %s: already exists", write.CaseID)
		}
		c := domain.CaseRecord{
			ID:         write.CaseID,
			Domain:     write.Domain,
			Type:       write.CaseType,
			Name:       write.CaseName,
			ExternalID: write.ExternalID,
			OwnerID:    write.OwnerID,
			Properties: make(map[string]string, len(write.Updates)),
		}
		for prop, value := range write.Updates {
			c.Properties[prop] = value
		}
		s.cases[k] = c
	} else {
		c, exists := s.cases[k]
		if !exists {
			return fmt.Errorf("update case %s: %w", write.CaseID, ErrNotFound)
		}
		if write.CaseName != "" {
			c.Name = write.CaseName
		}
		if write.ExternalID != "" {
			c.ExternalID = write.ExternalID
		}
		if c.Properties == nil {
			c.Properties = make(map[string]string, len(write.Updates))
		}
		for prop, value := range write.Updates {
			c.Properties[prop] = value
		}
		s.cases[k] = c
	}
	s.writes = append(s.writes, write)
	return nil
}

// Seed inserts a case directly, bypassing write accounting.
func (s *MemoryStore) Seed(c domain.CaseRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cases[key(c.Domain, c.ID)] = copyCase(c)
}

// Writes returns the submissions applied so far.
func (s *MemoryStore) Writes() []domain.CaseWrite {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.CaseWrite, len(s.writes))
	copy(out, s.writes)
	return out
}

func copyCase(c domain.CaseRecord) domain.CaseRecord {
	props := make(map[string]string, len(c.Properties))
	for prop, value := range c.Properties {
		props[prop] = value
	}
	c.Properties = props
	return c
}
