package domain

import "time"

// Patient is a registry patient record: the canonical UUID, the registry's
// display name, and the raw document the property mapper evaluates path
// expressions against. Patients are fetched on demand and never cached
// across cycles.
type Patient struct {
	UUID    string
	Display string
	Doc     []byte
}

// Candidate pairs a patient with the confidence score the heuristic matcher
// assigned to it. Candidates only exist during matching and are never
// persisted.
type Candidate struct {
	Patient Patient
	Score   float64
}

// FeedEntry is one change-feed item: the patient it refers to and the feed's
// own timestamps. Entries are ephemeral; nothing outlives the cycle that
// yielded them.
type FeedEntry struct {
	PatientUUID string
	PublishedAt time.Time
	UpdatedAt   time.Time
}
