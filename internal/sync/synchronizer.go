// Package sync orchestrates the per-entry pipeline: fetch the patient,
// resolve it to a local case, map and diff properties, and submit a single
// create-or-update to the case store. It is the only writer to the case
// store in this subsystem.
package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"carelink/internal/audit"
	"carelink/internal/casestore"
	"carelink/internal/domain"
	"carelink/internal/mapping"
	"carelink/internal/match"
	"carelink/internal/sync/metrics"
)

const (
	// XMLNS tags every outbound write so case history is attributable to
	// this integration.
	XMLNS = "http://carelink.org/registry-sync"

	// deviceIDPrefix plus the endpoint id forms the write's device
	// identifier.
	deviceIDPrefix = "registry-sync-"
)

// Outcome is the terminal state of one feed entry.
type Outcome string

const (
	OutcomeSubmitted Outcome = "submitted"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFaulted   Outcome = "faulted"
)

// PatientGetter is the slice of the registry client the synchronizer needs.
type PatientGetter interface {
	GetPatient(ctx context.Context, patientUUID string) (domain.Patient, error)
}

// Synchronizer applies one endpoint's feed entries to the case store.
type Synchronizer struct {
	endpoint      domain.Endpoint
	cases         casestore.Store
	patients      PatientGetter
	deterministic *match.Deterministic
	finder        match.Finder
	mapper        *mapping.Mapper
	owners        OwnerResolver
	audit         *audit.Publisher
	metrics       *metrics.Metrics
	log           *zap.Logger
}

func NewSynchronizer(
	ep domain.Endpoint,
	cases casestore.Store,
	patients PatientGetter,
	finder match.Finder,
	mapper *mapping.Mapper,
	owners OwnerResolver,
	auditPub *audit.Publisher,
	m *metrics.Metrics,
	log *zap.Logger,
) *Synchronizer {
	return &Synchronizer{
		endpoint:      ep,
		cases:         cases,
		patients:      patients,
		deterministic: match.NewDeterministic(cases),
		finder:        finder,
		mapper:        mapper,
		owners:        owners,
		audit:         auditPub,
		metrics:       m,
		log:           log.With(zap.String("endpoint_id", ep.ID), zap.String("domain", ep.Domain)),
	}
}

// DeviceID returns the identifier stamped on this endpoint's writes.
func (s *Synchronizer) DeviceID() string {
	return deviceIDPrefix + s.endpoint.ID
}

// ProcessEntry runs the per-entry state machine. Faults terminate the entry,
// never the cycle: the error return carries the fault for logging, and the
// outcome is already final.
func (s *Synchronizer) ProcessEntry(ctx context.Context, entry domain.FeedEntry) (Outcome, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveEntryDuration(time.Since(start)) }()

	outcome, err := s.processEntry(ctx, entry)
	s.metrics.IncrementEntry(s.endpoint.ID, string(outcome))
	if err != nil {
		if fault, ok := domain.AsFault(err); ok {
			s.metrics.IncrementFault(string(fault.Kind))
		}
	}
	return outcome, err
}

func (s *Synchronizer) processEntry(ctx context.Context, entry domain.FeedEntry) (Outcome, error) {
	// Fetch. A transport failure here abandons this entry only; the
	// cycle's cursor advance does not depend on it.
	patient, err := s.patients.GetPatient(ctx, entry.PatientUUID)
	if err != nil {
		fault := domain.NewFault(domain.FaultTransport, s.endpoint.ID, s.endpoint.Domain,
			entry.PatientUUID, "fetch patient")
		fault.Severity = domain.SeverityWarn
		fault.Err = err
		s.emit(ctx, audit.ActionTransportFault, entry.PatientUUID, "", fault.Msg, err.Error())
		return OutcomeFaulted, fault
	}

	// Resolve. The deterministic lookup needs an unambiguous record
	// type, so the single-type requirement applies to the whole entry.
	caseType := s.endpoint.CaseType()
	if caseType == "" {
		fault := domain.NewFault(domain.FaultConfiguration, s.endpoint.ID, s.endpoint.Domain,
			entry.PatientUUID,
			fmt.Sprintf("endpoint must configure exactly one case type, has %d", len(s.endpoint.CaseTypes)))
		s.emit(ctx, audit.ActionConfigFault, entry.PatientUUID, "", fault.Msg, "")
		return OutcomeFaulted, fault
	}

	existing, err := s.deterministic.Match(ctx, s.endpoint, caseType, patient.UUID)
	switch {
	case err == nil:
		return s.updateCase(ctx, patient, existing)
	case errors.Is(err, match.ErrNoMatch):
		return s.createCase(ctx, patient, caseType)
	default:
		if fault, ok := domain.AsFault(err); ok {
			s.emit(ctx, audit.ActionIntegrityFault, patient.UUID, "",
				fault.Msg, strings.Join(fault.CaseIDs, ","))
			s.log.Error("integrity fault: entry abandoned",
				zap.String("patient_uuid", patient.UUID),
				zap.Strings("case_ids", fault.CaseIDs),
			)
			return OutcomeFaulted, fault
		}
		fault := domain.NewFault(domain.FaultTransport, s.endpoint.ID, s.endpoint.Domain,
			patient.UUID, "case lookup")
		fault.Severity = domain.SeverityWarn
		fault.Err = err
		return OutcomeFaulted, fault
	}
}

// updateCase diffs mapped values against the existing case and submits only
// the changed properties. An empty diff is an idempotent no-op.
func (s *Synchronizer) updateCase(ctx context.Context, patient domain.Patient, existing domain.CaseRecord) (Outcome, error) {
	diff := s.mapper.Diff(patient, existing)
	if len(diff) == 0 {
		s.log.Debug("no property changes, skipping write",
			zap.String("patient_uuid", patient.UUID),
			zap.String("case_id", existing.ID),
		)
		s.emit(ctx, audit.ActionEntrySkipped, patient.UUID, existing.ID, "no property changes", "")
		return OutcomeSkipped, nil
	}

	write := domain.CaseWrite{
		Create:   false,
		CaseID:   existing.ID,
		Domain:   s.endpoint.Domain,
		CaseType: existing.Type,
		CaseName: patient.Display,
		Updates:  diff,
		XMLNS:    XMLNS,
		DeviceID: s.DeviceID(),
	}
	if err := s.cases.Submit(ctx, write); err != nil {
		return s.submitFault(ctx, patient.UUID, existing.ID, err)
	}
	s.emit(ctx, audit.ActionCaseUpdated, patient.UUID, existing.ID,
		"", fmt.Sprintf("%d properties updated", len(diff)))
	s.log.Info("case updated",
		zap.String("patient_uuid", patient.UUID),
		zap.String("case_id", existing.ID),
		zap.Int("properties", len(diff)),
	)
	return OutcomeSubmitted, nil
}

// createCase builds a new case skeleton for a patient with no linked case
// and submits the full extracted property set.
func (s *Synchronizer) createCase(ctx context.Context, patient domain.Patient, caseType string) (Outcome, error) {
	owner, err := s.owners.ResolveOwner(ctx, s.endpoint)
	if err != nil || owner == "" {
		fault := domain.NewFault(domain.FaultConfiguration, s.endpoint.ID, s.endpoint.Domain,
			patient.UUID,
			fmt.Sprintf("no valid owner at location %q", s.endpoint.LocationID))
		fault.Err = err
		s.emit(ctx, audit.ActionConfigFault, patient.UUID, "", fault.Msg, "")
		return OutcomeFaulted, fault
	}

	fields := s.mapper.Extract(patient)
	if len(fields) == 0 {
		s.log.Debug("no mapped values for new case, skipping write",
			zap.String("patient_uuid", patient.UUID),
		)
		s.emit(ctx, audit.ActionEntrySkipped, patient.UUID, "", "no mapped values", "")
		return OutcomeSkipped, nil
	}

	write := domain.CaseWrite{
		Create:     true,
		CaseID:     newCaseID(),
		Domain:     s.endpoint.Domain,
		CaseType:   caseType,
		CaseName:   patient.Display,
		OwnerID:    owner,
		ExternalID: patient.UUID,
		Updates:    fields,
		XMLNS:      XMLNS,
		DeviceID:   s.DeviceID(),
	}
	if err := s.cases.Submit(ctx, write); err != nil {
		return s.submitFault(ctx, patient.UUID, write.CaseID, err)
	}
	s.emit(ctx, audit.ActionCaseCreated, patient.UUID, write.CaseID,
		"", fmt.Sprintf("%d properties set", len(fields)))
	s.log.Info("case created",
		zap.String("patient_uuid", patient.UUID),
		zap.String("case_id", write.CaseID),
		zap.String("case_type", caseType),
	)
	return OutcomeSubmitted, nil
}

// LinkCase resolves an unlinked local case to its registry patient with the
// heuristic finder. On an unambiguous match it submits an update linking the
// case and applying the mapped diff; an ambiguous result is surfaced for
// manual review and nothing is written.
func (s *Synchronizer) LinkCase(ctx context.Context, c domain.CaseRecord) ([]domain.Candidate, error) {
	if s.finder == nil {
		return nil, fmt.Errorf("endpoint %s has no finder configured", s.endpoint.ID)
	}
	candidates, err := s.finder.Find(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("find patients for case %s: %w", c.ID, err)
	}
	for _, candidate := range candidates {
		s.metrics.ObserveCandidateScore(candidate.Score)
	}

	switch len(candidates) {
	case 0:
		return nil, nil
	case 1:
		patient := candidates[0].Patient
		diff := s.mapper.Diff(patient, c)
		write := domain.CaseWrite{
			Create:     false,
			CaseID:     c.ID,
			Domain:     s.endpoint.Domain,
			CaseType:   c.Type,
			CaseName:   patient.Display,
			ExternalID: patient.UUID,
			Updates:    diff,
			XMLNS:      XMLNS,
			DeviceID:   s.DeviceID(),
		}
		if err := s.cases.Submit(ctx, write); err != nil {
			return nil, fmt.Errorf("link case %s: %w", c.ID, err)
		}
		s.emit(ctx, audit.ActionCaseUpdated, patient.UUID, c.ID,
			"linked by heuristic match", fmt.Sprintf("score %.3f", candidates[0].Score))
		return candidates, nil
	default:
		detail := make([]string, 0, len(candidates))
		for _, candidate := range candidates {
			detail = append(detail, fmt.Sprintf("%s=%.3f", candidate.Patient.UUID, candidate.Score))
		}
		s.metrics.IncrementFault(string(domain.FaultAmbiguousMatch))
		s.emit(ctx, audit.ActionAmbiguousMatch, "", c.ID,
			"multiple candidates above threshold", strings.Join(detail, ","))
		return candidates, nil
	}
}

func (s *Synchronizer) submitFault(ctx context.Context, patientUUID, caseID string, err error) (Outcome, error) {
	fault := domain.NewFault(domain.FaultTransport, s.endpoint.ID, s.endpoint.Domain,
		patientUUID, "submit case write")
	fault.Severity = domain.SeverityWarn
	fault.Err = err
	s.emit(ctx, audit.ActionTransportFault, patientUUID, caseID, fault.Msg, err.Error())
	return OutcomeFaulted, fault
}

func (s *Synchronizer) emit(ctx context.Context, action audit.Action, patientUUID, caseID, reason, detail string) {
	err := s.audit.Emit(ctx, audit.Event{
		EndpointID:  s.endpoint.ID,
		Domain:      s.endpoint.Domain,
		Action:      action,
		PatientUUID: patientUUID,
		CaseID:      caseID,
		Reason:      reason,
		Detail:      detail,
	})
	if err != nil {
		s.log.Warn("audit emit failed", zap.String("action", string(action)), zap.Error(err))
	}
}

// newCaseID generates the local identity for a created case: a hex UUID
// without separators, matching the case store's id convention.
func newCaseID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
