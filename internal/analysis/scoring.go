package analysis

import (
	"fmt"
	"sort"

	"github.com/stwalsh4118/broker/internal/models"
)

// Decision thresholds
const (
	ThresholdBuy  = 70.0
	ThresholdHold = 40.0
)

// RubricFactor is one weighted scoring factor.
type RubricFactor struct {
	Name   string
	Weight float64
	// LowerIsBetter inverts the normalized value so that a smaller raw metric scores higher.
	LowerIsBetter bool
}

// Rubric is the fixed weighted set of scoring factors.
type Rubric struct {
	Factors []RubricFactor
}

// DefaultRubric weighs the four scoring factors equally. Appreciation is display-only.
func DefaultRubric() Rubric {
	return Rubric{Factors: []RubricFactor{
		{Name: models.MetricCapRate, Weight: 0.25},
		{Name: models.MetricRentGrowth12m, Weight: 0.25},
		{Name: models.MetricMSI, Weight: 0.25},
		{Name: models.MetricAffordability, Weight: 0.25, LowerIsBetter: true},
	}}
}

// NewRubric builds the standard rubric with custom weights.
func NewRubric(capRate, rentGrowth, msi, affordability float64) Rubric {
	r := DefaultRubric()
	weights := []float64{capRate, rentGrowth, msi, affordability}
	for i := range r.Factors {
		r.Factors[i].Weight = weights[i]
	}
	return r
}

// Validate checks that every weight is non-negative and at least one is positive.
// Non-negative weights are what make the score monotonic in each factor.
func (r Rubric) Validate() error {
	total := 0.0
	for _, f := range r.Factors {
		if f.Weight < 0 || !isFinite(f.Weight) {
			return fmt.Errorf("weight for %s must be a non-negative number, got %f", f.Name, f.Weight)
		}
		total += f.Weight
	}
	if total <= 0 {
		return fmt.Errorf("rubric weights must sum to a positive value")
	}
	return nil
}

// NormalizeFactors turns present metrics into factor attributions. Missing metrics and
// zero-weight factors are left out and the remaining weights are rescaled to sum to 1.
// Lower-is-better factors such as affordability report an inverted NormalizedValue
// (1 minus their position within the bounds).
// The result is sorted by contribution descending, then name.
func NormalizeFactors(metrics models.Metrics, reference *ReferenceSnapshot, rubric Rubric) ([]models.FactorAttribution, error) {
	if err := rubric.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rubric: %w", err)
	}

	type present struct {
		factor RubricFactor
		raw    float64
	}

	var factors []present
	total := 0.0
	for _, f := range rubric.Factors {
		v := metrics.Get(f.Name)
		if v == nil || !isFinite(*v) || f.Weight <= 0 {
			continue
		}
		factors = append(factors, present{factor: f, raw: *v})
		total += f.Weight
	}

	out := make([]models.FactorAttribution, 0, len(factors))
	for _, p := range factors {
		normalized := DegenerateValue
		if reference != nil {
			normalized = reference.Normalize(p.factor.Name, p.raw)
		}
		if p.factor.LowerIsBetter {
			normalized = 1 - normalized
		}
		weight := p.factor.Weight / total
		out = append(out, models.FactorAttribution{
			Name:            p.factor.Name,
			RawValue:        p.raw,
			NormalizedValue: normalized,
			Weight:          weight,
			Contribution:    normalized * weight,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Contribution != out[j].Contribution {
			return out[i].Contribution > out[j].Contribution
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// ScoreAndDecide sums factor contributions into a 0-100 score and maps it to a decision.
// An empty factor set fails with ErrInsufficientFactors.
func ScoreAndDecide(factors []models.FactorAttribution) (float64, models.Decision, error) {
	if len(factors) == 0 {
		return 0, "", fmt.Errorf("%w: every scoring metric is missing", ErrInsufficientFactors)
	}

	total := 0.0
	for _, f := range factors {
		total += f.Contribution
	}
	score := clamp(100*total, 0, 100)
	return score, Decide(score), nil
}

// Decide maps a score to Buy (>= 70), Hold (>= 40) or Sell.
func Decide(score float64) models.Decision {
	if score >= ThresholdBuy {
		return models.DecisionBuy
	}
	if score >= ThresholdHold {
		return models.DecisionHold
	}
	return models.DecisionSell
}
