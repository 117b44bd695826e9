package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"carelink/internal/domain"
)

var samplePatientDoc = []byte(`{
	"uuid": "672c4a51-abad-4b5e-950c-10bc262c9c1a",
	"person": {
		"display": "Alice Mwangi",
		"gender": "F",
		"preferredName": {
			"givenName": "Alice",
			"familyName": "Mwangi"
		},
		"preferredAddress": {
			"address1": "Kisumu"
		},
		"attributes": [
			{"value": "0712345678"},
			{"value": "alice@example.com"}
		]
	}
}`)

func samplePatient() domain.Patient {
	return domain.Patient{
		UUID:    "672c4a51-abad-4b5e-950c-10bc262c9c1a",
		Display: "Alice Mwangi",
		Doc:     samplePatientDoc,
	}
}

func sampleRules() []Rule {
	return []Rule{
		{CaseProperty: "first_name", Path: "person.preferredName.givenName"},
		{CaseProperty: "last_name", Path: "person.preferredName.familyName"},
		{CaseProperty: "sex", Path: "person.gender", ValueMap: map[string]string{
			"M": "male",
			"F": "female",
		}},
		{CaseProperty: "town", Path: "person.preferredAddress.address1"},
	}
}

func TestRuleTranslate(t *testing.T) {
	rule := Rule{ValueMap: map[string]string{"F": "female"}}

	assert.Equal(t, "female", rule.Translate("F"))
	// Values absent from the table pass through unchanged.
	assert.Equal(t, "X", rule.Translate("X"))

	var bare Rule
	assert.Equal(t, "F", bare.Translate("F"))
}

func TestValue(t *testing.T) {
	m := New(sampleRules(), zap.NewNop())
	patient := samplePatient()

	value, ok := m.Value(Rule{CaseProperty: "sex", Path: "person.gender", ValueMap: map[string]string{"F": "female"}}, patient)
	assert.True(t, ok)
	assert.Equal(t, "female", value)

	// A path that matches nothing is reported not-ok, never an error.
	_, ok = m.Value(Rule{CaseProperty: "dob", Path: "person.birthdate"}, patient)
	assert.False(t, ok)

	// A path over an array matches multiple values and is rejected.
	_, ok = m.Value(Rule{CaseProperty: "phone", Path: "person.attributes.#.value"}, patient)
	assert.False(t, ok)
}

func TestExtract(t *testing.T) {
	m := New(sampleRules(), zap.NewNop())

	fields := m.Extract(samplePatient())
	assert.Equal(t, map[string]string{
		"first_name": "Alice",
		"last_name":  "Mwangi",
		"sex":        "female",
		"town":       "Kisumu",
	}, fields)
}

func TestDiffOnlyChangedValues(t *testing.T) {
	m := New(sampleRules(), zap.NewNop())

	c := domain.CaseRecord{
		ID: "case-1",
		Properties: map[string]string{
			"first_name": "Alice",
			"last_name":  "Otieno",
			"sex":        "female",
		},
	}

	fields := m.Diff(samplePatient(), c)
	assert.Equal(t, map[string]string{
		"last_name": "Mwangi",
		"town":      "Kisumu",
	}, fields)
}

func TestDiffIsEmptyWhenCaseMatchesPatient(t *testing.T) {
	m := New(sampleRules(), zap.NewNop())
	patient := samplePatient()

	c := domain.CaseRecord{
		ID:         "case-1",
		Properties: m.Extract(patient),
	}

	assert.Empty(t, m.Diff(patient, c))
}
