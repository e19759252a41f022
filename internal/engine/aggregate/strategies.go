package aggregate

import (
	"math"
	"sort"

	apperrors "jobmail-engine/internal/common/errors"
	"jobmail-engine/internal/models"
)

// Params carries per-strategy tuning values.
type Params struct {
	PowerExponent float64 // power_mean
	Percentile    float64 // percentile, in (0,1]
	GateThreshold float64 // threshold_gated cutoff in [0,1]
}

// Strategy reduces sanitized components to a value in [0,1]. Components
// absent from the weight map carry no weight and are ignored.
type Strategy func(components []models.ComponentScore, w Weights, p Params) float64

// strategyTable is the closed set of selectable strategies. Unknown names
// are rejected at configuration time, never mid-batch.
var strategyTable = map[string]Strategy{
	"weighted_average":    weightedAverage,
	"harmonic_mean":       harmonicMean,
	"geometric_mean":      geometricMean,
	"power_mean":          powerMean,
	"percentile":          percentileAggregate,
	"min":                 minAggregate,
	"max":                 maxAggregate,
	"threshold_gated":     thresholdGated,
	"confidence_adaptive": confidenceAdaptive,
}

// LookupStrategy resolves a strategy by name.
func LookupStrategy(name string) (Strategy, error) {
	s, ok := strategyTable[name]
	if !ok {
		return nil, apperrors.NewUnknownStrategyError(name)
	}
	return s, nil
}

// StrategyNames lists the registered strategy names.
func StrategyNames() []string {
	names := make([]string, 0, len(strategyTable))
	for name := range strategyTable {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// weighted pairs one present component's sanitized value with its weight.
type weighted struct {
	value      float64
	weight     float64
	confidence float64
}

// presentComponents keeps components that carry a positive weight. Missing
// components are excluded entirely so partial profiles are not penalized
// by phantom zeros.
func presentComponents(components []models.ComponentScore, w Weights) []weighted {
	out := make([]weighted, 0, len(components))
	for _, c := range components {
		weight, ok := w[c.Kind]
		if !ok || weight == 0 {
			continue
		}
		out = append(out, weighted{value: sanitizeValue(c.Value), weight: weight, confidence: c.Confidence})
	}
	return out
}

// sanitizeValue substitutes 0 for NaN/Infinity and clamps to [0,1]. This is
// a required property of the aggregator, not an optional nicety.
func sanitizeValue(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func weightedAverage(components []models.ComponentScore, w Weights, _ Params) float64 {
	present := presentComponents(components, w)
	var sum, weightSum float64
	for _, c := range present {
		sum += c.value * c.weight
		weightSum += c.weight
	}
	if weightSum == 0 {
		return 0
	}
	return sum / weightSum
}

// harmonicMean penalizes any very low component. A zero component drives
// the whole mean to zero.
func harmonicMean(components []models.ComponentScore, w Weights, _ Params) float64 {
	present := presentComponents(components, w)
	var weightSum, reciprocal float64
	for _, c := range present {
		if c.value == 0 {
			return 0
		}
		weightSum += c.weight
		reciprocal += c.weight / c.value
	}
	if reciprocal == 0 {
		return 0
	}
	return weightSum / reciprocal
}

func geometricMean(components []models.ComponentScore, w Weights, _ Params) float64 {
	present := presentComponents(components, w)
	var weightSum, logSum float64
	for _, c := range present {
		if c.value == 0 {
			return 0
		}
		weightSum += c.weight
		logSum += c.weight * math.Log(c.value)
	}
	if weightSum == 0 {
		return 0
	}
	return math.Exp(logSum / weightSum)
}

func powerMean(components []models.ComponentScore, w Weights, p Params) float64 {
	exponent := p.PowerExponent
	if exponent == 0 {
		return geometricMean(components, w, p)
	}
	present := presentComponents(components, w)
	var weightSum, powSum float64
	for _, c := range present {
		weightSum += c.weight
		powSum += c.weight * math.Pow(c.value, exponent)
	}
	if weightSum == 0 {
		return 0
	}
	return math.Pow(powSum/weightSum, 1/exponent)
}

func percentileAggregate(components []models.ComponentScore, w Weights, p Params) float64 {
	present := presentComponents(components, w)
	if len(present) == 0 {
		return 0
	}
	values := make([]float64, len(present))
	for i, c := range present {
		values[i] = c.value
	}
	sort.Float64s(values)

	q := p.Percentile
	if q <= 0 || q > 1 {
		q = 0.5
	}
	idx := int(math.Ceil(q*float64(len(values)))) - 1
	if idx < 0 {
		idx = 0
	}
	return values[idx]
}

func minAggregate(components []models.ComponentScore, w Weights, _ Params) float64 {
	present := presentComponents(components, w)
	if len(present) == 0 {
		return 0
	}
	lowest := 1.0
	for _, c := range present {
		if c.value < lowest {
			lowest = c.value
		}
	}
	return lowest
}

func maxAggregate(components []models.ComponentScore, w Weights, _ Params) float64 {
	present := presentComponents(components, w)
	highest := 0.0
	for _, c := range present {
		if c.value > highest {
			highest = c.value
		}
	}
	return highest
}

// thresholdGated ignores components below the cutoff and averages the rest.
func thresholdGated(components []models.ComponentScore, w Weights, p Params) float64 {
	present := presentComponents(components, w)
	var sum, weightSum float64
	for _, c := range present {
		if c.value < p.GateThreshold {
			continue
		}
		sum += c.value * c.weight
		weightSum += c.weight
	}
	if weightSum == 0 {
		return 0
	}
	return sum / weightSum
}

// confidenceAdaptive down-weights components whose confidence is low.
func confidenceAdaptive(components []models.ComponentScore, w Weights, _ Params) float64 {
	present := presentComponents(components, w)
	var sum, weightSum float64
	for _, c := range present {
		conf := c.confidence
		if conf < 0 {
			conf = 0
		}
		if conf > 1 {
			conf = 1
		}
		effective := c.weight * conf
		sum += c.value * effective
		weightSum += effective
	}
	if weightSum == 0 {
		return 0
	}
	return sum / weightSum
}
