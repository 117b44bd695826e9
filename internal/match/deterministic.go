package match

import (
	"context"
	"fmt"

	"carelink/internal/casestore"
	"carelink/internal/domain"
)

// ErrNoMatch is returned by the deterministic path when no case carries the
// external id.
var ErrNoMatch = fmt.Errorf("no case matches external id")

// Deterministic resolves a patient id to the single local case linked to it.
type Deterministic struct {
	cases casestore.Store
}

func NewDeterministic(cases casestore.Store) *Deterministic {
	return &Deterministic{cases: cases}
}

// Match looks up the case whose external_id equals the patient id. Zero
// results is ErrNoMatch; more than one is an integrity fault carrying the
// ids of every case involved.
func (d *Deterministic) Match(ctx context.Context, ep domain.Endpoint, caseType, patientUUID string) (domain.CaseRecord, error) {
	matches, err := d.cases.FindByExternalID(ctx, ep.Domain, caseType, patientUUID)
	if err != nil {
		return domain.CaseRecord{}, fmt.Errorf("lookup case by external id: %w", err)
	}
	switch len(matches) {
	case 0:
		return domain.CaseRecord{}, ErrNoMatch
	case 1:
		return matches[0], nil
	default:
		fault := domain.NewFault(domain.FaultIntegrity, ep.ID, ep.Domain, patientUUID,
			"more than one case linked to one external id")
		for _, c := range matches {
			fault.CaseIDs = append(fault.CaseIDs, c.ID)
		}
		return domain.CaseRecord{}, fault
	}
}
