package aggregate

import (
	"jobmail-engine/internal/common/config"
	"jobmail-engine/internal/models"
)

// CompositeMax is the upper bound of the composite score range.
const CompositeMax = 100.0

// Aggregator turns component scores into a composite score. It is built
// once from validated configuration and is immutable for the run.
type Aggregator struct {
	weights        Weights
	strategyName   string
	strategy       Strategy
	params         Params
	weightsVersion string

	// completenessBonus is added when at least 80% of the weighted
	// components are present, capped so the total never exceeds 100.
	completenessBonus float64
}

// New builds an Aggregator from scoring configuration. Invalid weights or
// an unknown strategy fail here, before any batch work starts.
func New(cfg config.ScoringConfig) (*Aggregator, error) {
	weights, err := WeightsFromConfig(cfg.Weights)
	if err != nil {
		return nil, err
	}
	strategy, err := LookupStrategy(cfg.Strategy)
	if err != nil {
		return nil, err
	}

	bonus := cfg.CompletenessBonus
	if bonus > 5 {
		bonus = 5
	}
	if bonus < 0 {
		bonus = 0
	}

	return &Aggregator{
		weights:      weights,
		strategyName: cfg.Strategy,
		strategy:     strategy,
		params: Params{
			PowerExponent: cfg.PowerMeanExponent,
			Percentile:    cfg.Percentile,
			GateThreshold: cfg.GateThreshold,
		},
		weightsVersion:    cfg.WeightsVersion,
		completenessBonus: bonus,
	}, nil
}

// Aggregate computes the composite score in [0,100] for one candidate's
// components. The result is a pure function of the components and the
// aggregator's configuration.
func (a *Aggregator) Aggregate(components []models.ComponentScore) models.CompositeScore {
	value := a.strategy(components, a.weights, a.params) * CompositeMax

	if a.completenessBonus > 0 && a.completenessRatio(components) >= 0.8 {
		value += a.completenessBonus
	}
	if value > CompositeMax {
		value = CompositeMax
	}
	if value < 0 {
		value = 0
	}

	return models.CompositeScore{
		Value:          value,
		Strategy:       a.strategyName,
		WeightsVersion: a.weightsVersion,
	}
}

// completenessRatio reports the fraction of weighted components present.
func (a *Aggregator) completenessRatio(components []models.ComponentScore) float64 {
	if len(a.weights) == 0 {
		return 0
	}
	present := 0
	for kind := range a.weights {
		for _, c := range components {
			if c.Kind == kind {
				present++
				break
			}
		}
	}
	return float64(present) / float64(len(a.weights))
}
