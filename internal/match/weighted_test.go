package match

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"carelink/internal/domain"
	"carelink/internal/mapping"
)

type fakeSearcher struct {
	patients []domain.Patient
	err      error
	queries  []string
}

func (f *fakeSearcher) SearchPatients(_ context.Context, query string) ([]domain.Patient, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	return f.patients, nil
}

func patientDoc(uuid, given, family string) domain.Patient {
	doc := fmt.Sprintf(`{"uuid":%q,"person":{"display":"%s %s","preferredName":{"givenName":%q,"familyName":%q}}}`,
		uuid, given, family, given, family)
	return domain.Patient{UUID: uuid, Display: given + " " + family, Doc: []byte(doc)}
}

func nameRules() []mapping.Rule {
	return []mapping.Rule{
		{CaseProperty: "first_name", Path: "person.preferredName.givenName"},
		{CaseProperty: "last_name", Path: "person.preferredName.familyName"},
	}
}

func nameConfig() Config {
	return Config{
		Kind:                 KindWeightedProperty,
		SearchableProperties: []string{"first_name", "last_name"},
		PropertyWeights: []PropertyWeight{
			{CaseProperty: "first_name", Weight: 0.6},
			{CaseProperty: "last_name", Weight: 0.6},
		},
	}
}

func newNameFinder(t *testing.T, cfg Config, search PatientSearcher) *WeightedPropertyFinder {
	t.Helper()
	mapper := mapping.New(nameRules(), zap.NewNop())
	finder, err := New(cfg, mapper, search, zap.NewNop())
	require.NoError(t, err)
	return finder.(*WeightedPropertyFinder)
}

func nameCase(first, last string) domain.CaseRecord {
	return domain.CaseRecord{
		ID:   "case-1",
		Name: first + " " + last,
		Properties: map[string]string{
			"first_name": first,
			"last_name":  last,
		},
	}
}

func TestNewRejectsUnknownKind(t *testing.T) {
	mapper := mapping.New(nameRules(), zap.NewNop())
	_, err := New(Config{Kind: "soundex"}, mapper, &fakeSearcher{}, zap.NewNop())
	require.Error(t, err)
}

func TestNewAppliesDefaults(t *testing.T) {
	finder := newNameFinder(t, nameConfig(), &fakeSearcher{})
	assert.Equal(t, DefaultThreshold, finder.threshold)
	assert.Equal(t, DefaultConfidenceMargin, finder.margin)
}

func TestNewRejectsBadParameters(t *testing.T) {
	mapper := mapping.New(nameRules(), zap.NewNop())

	cfg := nameConfig()
	cfg.Threshold = -1
	_, err := New(cfg, mapper, &fakeSearcher{}, zap.NewNop())
	require.Error(t, err)

	cfg = nameConfig()
	cfg.PropertyWeights = []PropertyWeight{{CaseProperty: "first_name", Weight: -0.5}}
	_, err = New(cfg, mapper, &fakeSearcher{}, zap.NewNop())
	require.Error(t, err)
}

func TestScoreSumsMatchingWeights(t *testing.T) {
	finder := newNameFinder(t, nameConfig(), &fakeSearcher{})
	c := nameCase("Alice", "Mwangi")

	assert.InDelta(t, 1.2, finder.Score(patientDoc("p1", "Alice", "Mwangi"), c), 1e-9)
	assert.InDelta(t, 0.6, finder.Score(patientDoc("p2", "Alice", "Otieno"), c), 1e-9)
	assert.InDelta(t, 0.0, finder.Score(patientDoc("p3", "Grace", "Otieno"), c), 1e-9)
}

func TestFindAcceptsSoleCandidate(t *testing.T) {
	search := &fakeSearcher{patients: []domain.Patient{
		patientDoc("p1", "Alice", "Mwangi"),
		patientDoc("p2", "Grace", "Otieno"),
	}}
	finder := newNameFinder(t, nameConfig(), search)

	candidates, err := finder.Find(context.Background(), nameCase("Alice", "Mwangi"))
	require.NoError(t, err)

	// p2 scores 0.0 and falls under the threshold; p1 at 1.2 is the sole
	// survivor and is auto-accepted.
	require.Len(t, candidates, 1)
	assert.Equal(t, "p1", candidates[0].Patient.UUID)
	assert.InDelta(t, 1.2, candidates[0].Score, 1e-9)
}

func TestFindConfidenceMarginSeparatesCandidates(t *testing.T) {
	// Weights chosen so the runner-up lands at 0.7: 1.2/0.7 > 1.667 and
	// the best candidate wins outright.
	cfg := nameConfig()
	cfg.PropertyWeights = []PropertyWeight{
		{CaseProperty: "first_name", Weight: 0.5},
		{CaseProperty: "last_name", Weight: 0.7},
	}
	cfg.Threshold = 0.5
	search := &fakeSearcher{patients: []domain.Patient{
		patientDoc("p1", "Alice", "Mwangi"),
		patientDoc("p2", "Grace", "Mwangi"),
	}}
	finder := newNameFinder(t, cfg, search)

	candidates, err := finder.Find(context.Background(), nameCase("Alice", "Mwangi"))
	require.NoError(t, err)

	require.Len(t, candidates, 1)
	assert.Equal(t, "p1", candidates[0].Patient.UUID)
}

func TestFindNearTieIsAmbiguous(t *testing.T) {
	// Runner-up at 0.8: 1.2/0.8 = 1.5 <= 1.667, so both candidates come
	// back and nothing is auto-merged.
	cfg := nameConfig()
	cfg.PropertyWeights = []PropertyWeight{
		{CaseProperty: "first_name", Weight: 0.4},
		{CaseProperty: "last_name", Weight: 0.8},
	}
	cfg.Threshold = 0.5
	search := &fakeSearcher{patients: []domain.Patient{
		patientDoc("p1", "Alice", "Mwangi"),
		patientDoc("p2", "Grace", "Mwangi"),
	}}
	finder := newNameFinder(t, cfg, search)

	candidates, err := finder.Find(context.Background(), nameCase("Alice", "Mwangi"))
	require.NoError(t, err)

	require.Len(t, candidates, 2)
	assert.Equal(t, "p1", candidates[0].Patient.UUID)
	assert.Equal(t, "p2", candidates[1].Patient.UUID)
	assert.Greater(t, candidates[0].Score, candidates[1].Score)
}

func TestFindDeduplicatesAcrossSearches(t *testing.T) {
	// The same patient comes back from the first_name and the last_name
	// search; it must be scored once.
	search := &fakeSearcher{patients: []domain.Patient{
		patientDoc("p1", "Alice", "Mwangi"),
	}}
	finder := newNameFinder(t, nameConfig(), search)

	candidates, err := finder.Find(context.Background(), nameCase("Alice", "Mwangi"))
	require.NoError(t, err)

	assert.Equal(t, []string{"Alice", "Mwangi"}, search.queries)
	require.Len(t, candidates, 1)
}

func TestFindSkipsEmptySearchProperties(t *testing.T) {
	search := &fakeSearcher{}
	finder := newNameFinder(t, nameConfig(), search)

	c := domain.CaseRecord{ID: "case-1", Properties: map[string]string{"first_name": "Alice"}}
	candidates, err := finder.Find(context.Background(), c)
	require.NoError(t, err)

	assert.Equal(t, []string{"Alice"}, search.queries)
	assert.Empty(t, candidates)
}

func TestFindPropagatesSearchErrors(t *testing.T) {
	search := &fakeSearcher{err: errors.New("registry unavailable")}
	finder := newNameFinder(t, nameConfig(), search)

	_, err := finder.Find(context.Background(), nameCase("Alice", "Mwangi"))
	require.Error(t, err)
}
