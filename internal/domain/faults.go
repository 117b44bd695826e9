package domain

import (
	"errors"
	"fmt"
)

// FaultKind classifies everything that can go wrong while synchronizing.
// Every kind has a distinct, loggable signal; nothing is silently discarded.
type FaultKind string

const (
	// FaultTransport covers network and protocol errors reaching the
	// registry. Recoverable: the next scheduled cycle retries the same
	// work because cursor and entry state are left untouched.
	FaultTransport FaultKind = "transport"

	// FaultIntegrity means multiple local cases are linked to one
	// external id. Never auto-resolved; surfaced with full context and
	// the entry is abandoned.
	FaultIntegrity FaultKind = "integrity"

	// FaultAmbiguousMatch means the heuristic matcher could not pick a
	// unique winner. Not an error in the usual sense: a first-class
	// outcome requiring manual review.
	FaultAmbiguousMatch FaultKind = "ambiguous_match"

	// FaultConfiguration means the endpoint cannot support the creation
	// path: no single target record type, or no resolvable owner.
	FaultConfiguration FaultKind = "configuration"
)

// Severity splits integrity checks into a warn kind (logged, non-aborting)
// and a fatal kind (aborts the entry). The two are never conflated in one
// assertion mechanism.
type Severity string

const (
	SeverityWarn  Severity = "warn"
	SeverityFatal Severity = "fatal"
)

// Fault carries the context operators need to act on a failed entry. It
// wraps the underlying cause when there is one.
type Fault struct {
	Kind        FaultKind
	Severity    Severity
	EndpointID  string
	Domain      string
	PatientUUID string

	// CaseIDs lists the local records involved, e.g. the duplicates
	// behind an integrity fault.
	CaseIDs []string

	Msg string
	Err error
}

func (f *Fault) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s fault (endpoint %s, patient %s): %s: %v",
			f.Kind, f.EndpointID, f.PatientUUID, f.Msg, f.Err)
	}
	return fmt.Sprintf("%s fault (endpoint %s, patient %s): %s",
		f.Kind, f.EndpointID, f.PatientUUID, f.Msg)
}

func (f *Fault) Unwrap() error { return f.Err }

// NewFault builds a fatal fault of the given kind.
func NewFault(kind FaultKind, endpointID, domain, patientUUID, msg string) *Fault {
	return &Fault{
		Kind:        kind,
		Severity:    SeverityFatal,
		EndpointID:  endpointID,
		Domain:      domain,
		PatientUUID: patientUUID,
		Msg:         msg,
	}
}

// AsFault unwraps err into a *Fault when one is in the chain.
func AsFault(err error) (*Fault, bool) {
	var f *Fault
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// IsKind reports whether err carries a fault of the given kind.
func IsKind(err error, kind FaultKind) bool {
	f, ok := AsFault(err)
	return ok && f.Kind == kind
}
