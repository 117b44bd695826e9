// Package casestore defines the contract this subsystem requires from the
// local case-tracking store: lookup by external id, and a single
// create-or-update write sink. The storage engine behind it is not ours to
// specify; both a memory and a PostgreSQL implementation are provided.
package casestore

import (
	"context"
	"errors"

	"carelink/internal/domain"
)

// ErrNotFound is returned by id lookups that match nothing.
var ErrNotFound = errors.New("case not found")

// Store is the case-tracking contract. The synchronizer is the only caller
// that writes through it from this subsystem.
type Store interface {
	// FindByExternalID returns every case in the domain with the given
	// type and external id. More than one result is a data-integrity
	// fault the caller must surface; the store just reports what exists.
	FindByExternalID(ctx context.Context, caseDomain, caseType, externalID string) ([]domain.CaseRecord, error)

	// Submit applies one create-or-update write.
	Submit(ctx context.Context, write domain.CaseWrite) error

	// Get fetches a case by id.
	Get(ctx context.Context, caseDomain, caseID string) (domain.CaseRecord, error)
}
