package domain

import "time"

// Endpoint describes one registry integration: where the change feed and
// patient resources live, how to authenticate, and which local records it is
// allowed to touch. The Domain value is threaded explicitly through every
// component call; nothing in the engine assumes a single-tenant default.
type Endpoint struct {
	ID       string
	Name     string
	Domain   string
	BaseURL  string
	Username string
	Password string

	// CaseTypes lists the local record types this endpoint may write.
	// Creation requires exactly one entry; anything else is a
	// configuration fault on the creation path.
	CaseTypes []string

	// LocationID binds created records to an owning location. The owner
	// resolver turns it into a concrete owner id.
	LocationID string

	Enabled bool
}

// CaseType returns the single permitted record type, or "" when the endpoint
// is not configured with exactly one.
func (e Endpoint) CaseType() string {
	if len(e.CaseTypes) != 1 {
		return ""
	}
	return e.CaseTypes[0]
}

// Cursor is the durable poll position for one endpoint. It is replaced
// atomically at the end of a fully successful feed traversal and never
// partially advanced.
type Cursor struct {
	// LastPolledAt is the UTC time the last successful cycle completed.
	// Zero means the feed has never been polled.
	LastPolledAt time.Time

	// LastPage is the opaque page token to resume from. Empty means the
	// next poll starts at the most recent page.
	LastPage string
}

// IsZero reports whether the cursor has never been advanced.
func (c Cursor) IsZero() bool {
	return c.LastPolledAt.IsZero() && c.LastPage == ""
}
