// Package match resolves feed entries to local cases. The deterministic path
// looks cases up by external id; the heuristic path scores registry
// candidates by weighted property agreement. False positives are strictly
// worse than false negatives here: auto-matching the wrong patient corrupts
// a medical record, so ties and near-ties are never silently resolved.
package match

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"carelink/internal/domain"
	"carelink/internal/mapping"
)

// Kind discriminates the closed set of finder strategies. New strategies are
// added by extending this enumeration, not by runtime discovery.
type Kind string

const (
	// KindWeightedProperty scores candidates by summing configured
	// property weights over matching values.
	KindWeightedProperty Kind = "weighted_property"
)

// PatientSearcher is the slice of the registry client the heuristic path
// needs.
type PatientSearcher interface {
	SearchPatients(ctx context.Context, query string) ([]domain.Patient, error)
}

// Finder is one matching strategy. Find returns zero candidates (no match),
// exactly one (auto-accept), or several (ambiguous; the caller must not
// auto-merge).
type Finder interface {
	Find(ctx context.Context, c domain.CaseRecord) ([]domain.Candidate, error)
}

// PropertyWeight assigns a fixed non-negative weight to one case property.
type PropertyWeight struct {
	CaseProperty string  `mapstructure:"case_property"`
	Weight       float64 `mapstructure:"weight"`
}

// Config selects and parameterizes a finder. The Kind field is the explicit
// discriminant read at decode time.
type Config struct {
	Kind Kind `mapstructure:"kind"`

	// Weighted-property parameters.
	SearchableProperties []string         `mapstructure:"searchable_properties"`
	PropertyWeights      []PropertyWeight `mapstructure:"property_weights"`
	Threshold            float64          `mapstructure:"threshold"`
	ConfidenceMargin     float64          `mapstructure:"confidence_margin"`
}

// Defaults applied when a weighted-property config leaves them unset.
const (
	DefaultThreshold        = 1.0
	DefaultConfidenceMargin = 0.667
)

// New builds the finder the config names.
func New(cfg Config, mapper *mapping.Mapper, search PatientSearcher, log *zap.Logger) (Finder, error) {
	switch cfg.Kind {
	case KindWeightedProperty:
		return newWeightedPropertyFinder(cfg, mapper, search, log)
	default:
		return nil, fmt.Errorf("unknown finder kind %q", cfg.Kind)
	}
}
