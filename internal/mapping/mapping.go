// Package mapping translates declarative property rules into concrete case
// property values. Each rule points a local property name at a path inside a
// registry patient document, with an optional table translating registry-side
// coded values into local values.
package mapping

import (
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"carelink/internal/domain"
)

// Rule maps one local case property to a path expression evaluated against
// the raw patient document. ValueMap translates the extracted registry value;
// values absent from the table pass through unchanged.
type Rule struct {
	CaseProperty string            `mapstructure:"case_property"`
	Path         string            `mapstructure:"path"`
	ValueMap     map[string]string `mapstructure:"value_map"`
}

// Translate applies the rule's value table to a registry value.
func (r Rule) Translate(registryValue string) string {
	if mapped, ok := r.ValueMap[registryValue]; ok {
		return mapped
	}
	return registryValue
}

// Mapper evaluates a fixed rule set against patient documents.
type Mapper struct {
	rules []Rule
	log   *zap.Logger
}

func New(rules []Rule, log *zap.Logger) *Mapper {
	return &Mapper{rules: rules, log: log}
}

// Rules returns the configured rule set.
func (m *Mapper) Rules() []Rule { return m.rules }

// Value evaluates a single rule against a patient document. The path is
// expected to match exactly one value; zero or multiple matches are a
// configuration smell, logged and reported as not-ok rather than failing the
// entry.
func (m *Mapper) Value(rule Rule, patient domain.Patient) (string, bool) {
	result := gjson.GetBytes(patient.Doc, rule.Path)
	if !result.Exists() {
		m.log.Warn("mapping path matched nothing",
			zap.String("case_property", rule.CaseProperty),
			zap.String("path", rule.Path),
			zap.String("patient_uuid", patient.UUID),
		)
		return "", false
	}
	if result.IsArray() {
		m.log.Warn("mapping path matched multiple values",
			zap.String("case_property", rule.CaseProperty),
			zap.String("path", rule.Path),
			zap.String("patient_uuid", patient.UUID),
			zap.Int("matches", len(result.Array())),
		)
		return "", false
	}
	return rule.Translate(result.String()), true
}

// Extract produces the full property map for creating a new case. Empty
// values are dropped; there is no prior state to diff against.
func (m *Mapper) Extract(patient domain.Patient) map[string]string {
	fields := make(map[string]string)
	for _, rule := range m.rules {
		value, ok := m.Value(rule, patient)
		if !ok || value == "" {
			continue
		}
		fields[rule.CaseProperty] = value
	}
	return fields
}

// Diff produces only the properties whose translated registry value differs
// from the case's current value. An empty diff means the update is a no-op.
func (m *Mapper) Diff(patient domain.Patient, c domain.CaseRecord) map[string]string {
	fields := make(map[string]string)
	for _, rule := range m.rules {
		value, ok := m.Value(rule, patient)
		if !ok {
			continue
		}
		if value != c.Property(rule.CaseProperty) {
			fields[rule.CaseProperty] = value
		}
	}
	return fields
}
