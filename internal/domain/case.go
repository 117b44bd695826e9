package domain

// CaseRecord is the local view of a tracked case. Property values are plain
// strings; insertion order is irrelevant.
type CaseRecord struct {
	ID     string
	Domain string
	Type   string
	Name   string

	// ExternalID links the case to a registry patient UUID. At most one
	// case may exist per (external id, type) pair within a domain.
	ExternalID string

	OwnerID    string
	Properties map[string]string
}

// Property returns the case's value for a local property name, or "" when
// the property has never been set.
func (c CaseRecord) Property(name string) string {
	return c.Properties[name]
}

// CaseWrite is a single create-or-update submission to the case store. It is
// the only unit of work this subsystem ever writes.
type CaseWrite struct {
	Create bool

	CaseID   string
	Domain   string
	CaseType string
	CaseName string

	// OwnerID is only set on creation. ExternalID is set on creation and
	// on link writes that attach a registry patient to an existing case.
	OwnerID    string
	ExternalID string

	// Updates holds just the properties being written: the full extracted
	// set on create, the diff on update.
	Updates map[string]string

	// XMLNS and DeviceID make every write attributable to this
	// integration for audit and debugging.
	XMLNS    string
	DeviceID string
}
