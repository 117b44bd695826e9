package audit

import "time"

// Action names what the sync engine did or failed to do.
type Action string

const (
	ActionCaseCreated     Action = "case_created"
	ActionCaseUpdated     Action = "case_updated"
	ActionEntrySkipped    Action = "entry_skipped"
	ActionIntegrityFault  Action = "integrity_fault"
	ActionAmbiguousMatch  Action = "ambiguous_match"
	ActionConfigFault     Action = "configuration_fault"
	ActionTransportFault  Action = "transport_fault"
	ActionCycleCompleted  Action = "cycle_completed"
	ActionCycleAborted    Action = "cycle_aborted"
)

// Event is emitted from the sync engine to capture writes and faults. Keep
// it transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp   time.Time
	EndpointID  string
	Domain      string
	Action      Action
	PatientUUID string
	CaseID      string

	// Reason carries fault context; Detail carries anything operators
	// need to act, e.g. candidate scores on an ambiguous match or the
	// duplicate case ids behind an integrity fault.
	Reason string
	Detail string
}
