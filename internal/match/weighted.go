package match

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"carelink/internal/domain"
	"carelink/internal/mapping"
)

// WeightedPropertyFinder matches cases to registry patients by assigning
// weights to agreeing property values and summing them into a confidence
// score. Weights are fixed non-negative reals and are not normalized.
type WeightedPropertyFinder struct {
	searchable []string
	weights    []PropertyWeight
	threshold  float64
	margin     float64

	mapper *mapping.Mapper
	search PatientSearcher
	log    *zap.Logger
}

func newWeightedPropertyFinder(cfg Config, mapper *mapping.Mapper, search PatientSearcher, log *zap.Logger) (*WeightedPropertyFinder, error) {
	threshold := cfg.Threshold
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	if threshold <= 0 {
		return nil, fmt.Errorf("weighted property finder: threshold must be positive, got %v", threshold)
	}
	margin := cfg.ConfidenceMargin
	if margin == 0 {
		margin = DefaultConfidenceMargin
	}
	for _, pw := range cfg.PropertyWeights {
		if pw.Weight < 0 {
			return nil, fmt.Errorf("weighted property finder: negative weight for %q", pw.CaseProperty)
		}
	}
	return &WeightedPropertyFinder{
		searchable: cfg.SearchableProperties,
		weights:    cfg.PropertyWeights,
		threshold:  threshold,
		margin:     margin,
		mapper:     mapper,
		search:     search,
		log:        log,
	}, nil
}

// Score sums the weights of every configured property whose mapped and
// translated registry value equals the case's value. Adding a matching
// property can only increase the score.
func (f *WeightedPropertyFinder) Score(patient domain.Patient, c domain.CaseRecord) float64 {
	rulesByProperty := make(map[string]mapping.Rule, len(f.mapper.Rules()))
	for _, rule := range f.mapper.Rules() {
		rulesByProperty[rule.CaseProperty] = rule
	}

	var score float64
	for _, pw := range f.weights {
		rule, ok := rulesByProperty[pw.CaseProperty]
		if !ok {
			continue
		}
		value, ok := f.mapper.Value(rule, patient)
		if !ok {
			continue
		}
		if value == c.Property(pw.CaseProperty) {
			score += pw.Weight
		}
	}
	return score
}

// Find searches the registry over every searchable property, scores the
// deduplicated candidates, and applies the threshold and confidence margin.
//
// Zero surviving candidates: no match. One: auto-accept. Several: only the
// best is returned when it beats the runner-up by more than the confidence
// margin; otherwise the whole sorted set comes back and the caller must
// defer to manual resolution.
func (f *WeightedPropertyFinder) Find(ctx context.Context, c domain.CaseRecord) ([]domain.Candidate, error) {
	candidates := make(map[string]domain.Candidate)
	for _, prop := range f.searchable {
		value := c.Property(prop)
		if value == "" {
			continue
		}
		patients, err := f.search.SearchPatients(ctx, value)
		if err != nil {
			return nil, fmt.Errorf("search on %q: %w", prop, err)
		}
		for _, patient := range patients {
			if _, seen := candidates[patient.UUID]; seen {
				continue
			}
			score := f.Score(patient, c)
			if score >= f.threshold {
				candidates[patient.UUID] = domain.Candidate{Patient: patient, Score: score}
			}
		}
	}

	if len(candidates) == 0 {
		f.log.Info("no candidate patients found",
			zap.String("case_id", c.ID),
			zap.String("case_name", c.Name),
		)
		return nil, nil
	}

	scored := make([]domain.Candidate, 0, len(candidates))
	for _, candidate := range candidates {
		scored = append(scored, candidate)
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

	if len(scored) == 1 {
		f.log.Info("matched case to only candidate",
			zap.String("case_id", c.ID),
			zap.String("patient_uuid", scored[0].Patient.UUID),
			zap.Float64("score", scored[0].Score),
		)
		return scored[:1], nil
	}

	// Candidates survive only with score >= threshold > 0, so the
	// runner-up score cannot be zero here; the guard stays anyway.
	if scored[1].Score > 0 && scored[0].Score/scored[1].Score > 1+f.margin {
		f.log.Info("matched case to best candidate",
			zap.String("case_id", c.ID),
			zap.String("patient_uuid", scored[0].Patient.UUID),
			zap.Float64("score", scored[0].Score),
			zap.Float64("second_score", scored[1].Score),
		)
		return scored[:1], nil
	}

	f.log.Info("ambiguous match, deferring to manual resolution",
		zap.String("case_id", c.ID),
		zap.Int("candidates", len(scored)),
		zap.Float64("best_score", scored[0].Score),
		zap.Float64("second_score", scored[1].Score),
	)
	return scored, nil
}
