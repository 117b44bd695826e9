package sync

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"carelink/internal/audit"
	"carelink/internal/casestore"
	"carelink/internal/domain"
	"carelink/internal/mapping"
	"carelink/internal/match"
)

const alicePatientUUID = "672c4a51-abad-4b5e-950c-10bc262c9c1a"

type fakeRegistry struct {
	patients map[string]domain.Patient
	err      error
}

func (f *fakeRegistry) GetPatient(_ context.Context, patientUUID string) (domain.Patient, error) {
	if f.err != nil {
		return domain.Patient{}, f.err
	}
	patient, ok := f.patients[patientUUID]
	if !ok {
		return domain.Patient{}, fmt.Errorf("patient %s not found", patientUUID)
	}
	return patient, nil
}

func (f *fakeRegistry) SearchPatients(_ context.Context, query string) ([]domain.Patient, error) {
	var out []domain.Patient
	for _, patient := range f.patients {
		out = append(out, patient)
	}
	return out, nil
}

func alicePatient() domain.Patient {
	return domain.Patient{
		UUID:    alicePatientUUID,
		Display: "Alice Mwangi",
		Doc: []byte(`{
			"uuid": "` + alicePatientUUID + `",
			"person": {
				"display": "Alice Mwangi",
				"gender": "F",
				"preferredName": {"givenName": "Alice", "familyName": "Mwangi"}
			}
		}`),
	}
}

func testRules() []mapping.Rule {
	return []mapping.Rule{
		{CaseProperty: "first_name", Path: "person.preferredName.givenName"},
		{CaseProperty: "last_name", Path: "person.preferredName.familyName"},
		{CaseProperty: "sex", Path: "person.gender", ValueMap: map[string]string{"F": "female", "M": "male"}},
	}
}

type syncFixture struct {
	sync     *Synchronizer
	cases    *casestore.MemoryStore
	registry *fakeRegistry
	events   *audit.MemoryStore
}

func newSyncFixture(t *testing.T, ep domain.Endpoint) *syncFixture {
	t.Helper()

	cases := casestore.NewMemoryStore()
	registry := &fakeRegistry{patients: map[string]domain.Patient{
		alicePatientUUID: alicePatient(),
	}}
	events := audit.NewMemoryStore()
	log := zap.NewNop()
	mapper := mapping.New(testRules(), log)

	finder, err := match.New(match.Config{
		Kind:                 match.KindWeightedProperty,
		SearchableProperties: []string{"first_name", "last_name"},
		PropertyWeights: []match.PropertyWeight{
			{CaseProperty: "first_name", Weight: 0.6},
			{CaseProperty: "last_name", Weight: 0.6},
		},
	}, mapper, registry, log)
	require.NoError(t, err)

	owners := NewStaticOwnerResolver(map[string]string{"loc-1": "owner-1"})
	publisher := audit.NewPublisher(events, log)

	return &syncFixture{
		sync:     NewSynchronizer(ep, cases, registry, finder, mapper, owners, publisher, nil, log),
		cases:    cases,
		registry: registry,
		events:   events,
	}
}

func syncEndpoint() domain.Endpoint {
	return domain.Endpoint{
		ID:         "clinic-a",
		Domain:     "nairobi",
		CaseTypes:  []string{"patient"},
		LocationID: "loc-1",
		Enabled:    true,
	}
}

func aliceEntry() domain.FeedEntry {
	return domain.FeedEntry{PatientUUID: alicePatientUUID}
}

func TestProcessEntryCreatesCase(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t, syncEndpoint())

	outcome, err := f.sync.ProcessEntry(ctx, aliceEntry())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSubmitted, outcome)

	writes := f.cases.Writes()
	require.Len(t, writes, 1)
	write := writes[0]
	assert.True(t, write.Create)
	assert.Equal(t, "nairobi", write.Domain)
	assert.Equal(t, "patient", write.CaseType)
	assert.Equal(t, "Alice Mwangi", write.CaseName)
	assert.Equal(t, "owner-1", write.OwnerID)
	assert.Equal(t, alicePatientUUID, write.ExternalID)
	assert.Equal(t, "female", write.Updates["sex"])

	// Every outbound write is attributable to this integration.
	assert.Equal(t, XMLNS, write.XMLNS)
	assert.Equal(t, "registry-sync-clinic-a", write.DeviceID)

	// The local case id is generated here, never the registry uuid.
	assert.NotEqual(t, alicePatientUUID, write.CaseID)
	assert.NotContains(t, write.CaseID, "-")

	events := f.events.All()
	require.Len(t, events, 1)
	assert.Equal(t, audit.ActionCaseCreated, events[0].Action)
}

func TestProcessEntryUpdatesLinkedCase(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t, syncEndpoint())
	f.cases.Seed(domain.CaseRecord{
		ID:         "case-1",
		Domain:     "nairobi",
		Type:       "patient",
		ExternalID: alicePatientUUID,
		Properties: map[string]string{
			"first_name": "Alice",
			"last_name":  "Otieno",
			"sex":        "female",
		},
	})

	outcome, err := f.sync.ProcessEntry(ctx, aliceEntry())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSubmitted, outcome)

	writes := f.cases.Writes()
	require.Len(t, writes, 1)
	assert.False(t, writes[0].Create)
	assert.Equal(t, "case-1", writes[0].CaseID)

	// Only the changed property travels.
	assert.Equal(t, map[string]string{"last_name": "Mwangi"}, writes[0].Updates)
}

func TestProcessEntryIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t, syncEndpoint())

	outcome, err := f.sync.ProcessEntry(ctx, aliceEntry())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSubmitted, outcome)

	// Reprocessing the same entry finds the linked case with nothing
	// changed and writes nothing.
	outcome, err = f.sync.ProcessEntry(ctx, aliceEntry())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)
	assert.Len(t, f.cases.Writes(), 1)

	events := f.events.All()
	require.Len(t, events, 2)
	assert.Equal(t, audit.ActionEntrySkipped, events[1].Action)
}

func TestProcessEntryTransportFault(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t, syncEndpoint())
	f.registry.err = errors.New("connection refused")

	outcome, err := f.sync.ProcessEntry(ctx, aliceEntry())
	assert.Equal(t, OutcomeFaulted, outcome)
	require.Error(t, err)

	fault, ok := domain.AsFault(err)
	require.True(t, ok)
	assert.Equal(t, domain.FaultTransport, fault.Kind)
	assert.Equal(t, domain.SeverityWarn, fault.Severity)
	assert.Empty(t, f.cases.Writes())
}

func TestProcessEntryRequiresSingleCaseType(t *testing.T) {
	ctx := context.Background()
	ep := syncEndpoint()
	ep.CaseTypes = []string{"patient", "referral"}
	f := newSyncFixture(t, ep)

	outcome, err := f.sync.ProcessEntry(ctx, aliceEntry())
	assert.Equal(t, OutcomeFaulted, outcome)
	assert.True(t, domain.IsKind(err, domain.FaultConfiguration))
	assert.Empty(t, f.cases.Writes())
}

func TestProcessEntryIntegrityFault(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t, syncEndpoint())
	f.cases.Seed(domain.CaseRecord{ID: "case-1", Domain: "nairobi", Type: "patient", ExternalID: alicePatientUUID})
	f.cases.Seed(domain.CaseRecord{ID: "case-2", Domain: "nairobi", Type: "patient", ExternalID: alicePatientUUID})

	outcome, err := f.sync.ProcessEntry(ctx, aliceEntry())
	assert.Equal(t, OutcomeFaulted, outcome)
	assert.True(t, domain.IsKind(err, domain.FaultIntegrity))

	// The entry is abandoned without guessing which duplicate to update.
	assert.Empty(t, f.cases.Writes())

	events := f.events.All()
	require.Len(t, events, 1)
	assert.Equal(t, audit.ActionIntegrityFault, events[0].Action)
	assert.Contains(t, events[0].Detail, "case-1")
	assert.Contains(t, events[0].Detail, "case-2")
}

func TestProcessEntryNoOwnerConfigFault(t *testing.T) {
	ctx := context.Background()
	ep := syncEndpoint()
	ep.LocationID = "loc-unmapped"
	f := newSyncFixture(t, ep)

	outcome, err := f.sync.ProcessEntry(ctx, aliceEntry())
	assert.Equal(t, OutcomeFaulted, outcome)
	assert.True(t, domain.IsKind(err, domain.FaultConfiguration))
	assert.Empty(t, f.cases.Writes())
}

func TestLinkCaseLinksSoleCandidate(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t, syncEndpoint())
	f.cases.Seed(domain.CaseRecord{
		ID:     "case-1",
		Domain: "nairobi",
		Type:   "patient",
		Properties: map[string]string{
			"first_name": "Alice",
			"last_name":  "Mwangi",
		},
	})

	record, err := f.cases.Get(ctx, "nairobi", "case-1")
	require.NoError(t, err)

	candidates, err := f.sync.LinkCase(ctx, record)
	require.NoError(t, err)
	require.Len(t, candidates, 1)

	// The case is now linked; the deterministic path picks it up next
	// cycle.
	matches, err := f.cases.FindByExternalID(ctx, "nairobi", "patient", alicePatientUUID)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "case-1", matches[0].ID)
}

func TestLinkCaseAmbiguousWritesNothing(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t, syncEndpoint())

	twin := alicePatient()
	twin.UUID = "8a156208-7c67-414a-9d25-6f28d2eca5a9"
	twin.Doc = []byte(`{
		"uuid": "8a156208-7c67-414a-9d25-6f28d2eca5a9",
		"person": {
			"display": "Alice Mwangi",
			"preferredName": {"givenName": "Alice", "familyName": "Mwangi"}
		}
	}`)
	f.registry.patients[twin.UUID] = twin

	f.cases.Seed(domain.CaseRecord{
		ID:     "case-1",
		Domain: "nairobi",
		Type:   "patient",
		Properties: map[string]string{
			"first_name": "Alice",
			"last_name":  "Mwangi",
		},
	})

	record, err := f.cases.Get(ctx, "nairobi", "case-1")
	require.NoError(t, err)

	candidates, err := f.sync.LinkCase(ctx, record)
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	assert.Empty(t, f.cases.Writes())

	events := f.events.All()
	require.Len(t, events, 1)
	assert.Equal(t, audit.ActionAmbiguousMatch, events[0].Action)
}

func TestLinkCaseNoCandidates(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t, syncEndpoint())
	f.cases.Seed(domain.CaseRecord{
		ID:     "case-1",
		Domain: "nairobi",
		Type:   "patient",
		Properties: map[string]string{
			"first_name": "Grace",
			"last_name":  "Otieno",
		},
	})

	record, err := f.cases.Get(ctx, "nairobi", "case-1")
	require.NoError(t, err)

	candidates, err := f.sync.LinkCase(ctx, record)
	require.NoError(t, err)
	assert.Empty(t, candidates)
	assert.Empty(t, f.cases.Writes())
}
