// Package aggregate combines component scores into one composite score
// using a configurable strategy chosen from a closed registry built at
// startup. Weight configurations fail fast at load time, never mid-batch.
package aggregate

import (
	"fmt"
	"math"

	apperrors "jobmail-engine/internal/common/errors"
	"jobmail-engine/internal/models"
)

// WeightEpsilon is the tolerance for the weight-sum check.
const WeightEpsilon = 1e-3

// Weights maps component kinds to aggregation weights.
type Weights map[models.ComponentKind]float64

var knownComponents = map[models.ComponentKind]bool{
	models.ComponentLocation:        true,
	models.ComponentCategory:        true,
	models.ComponentSalary:          true,
	models.ComponentKeyword:         true,
	models.ComponentPersonalization: true,
}

// WeightsFromConfig converts a string-keyed weight map, rejecting unknown
// component names.
func WeightsFromConfig(raw map[string]float64) (Weights, error) {
	w := make(Weights, len(raw))
	for name, v := range raw {
		kind := models.ComponentKind(name)
		if !knownComponents[kind] {
			return nil, apperrors.NewWeightsInvalidError(
				fmt.Sprintf("unknown component %q", name))
		}
		w[kind] = v
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return w, nil
}

// Validate rejects negative weights and sums outside 1.0 +/- epsilon.
func (w Weights) Validate() error {
	if len(w) == 0 {
		return apperrors.NewWeightsInvalidError("no weights configured")
	}
	sum := 0.0
	for kind, v := range w {
		if v < 0 {
			return apperrors.NewWeightsInvalidError(
				fmt.Sprintf("weight for %s is negative: %f", kind, v))
		}
		sum += v
	}
	if math.Abs(sum-1.0) > WeightEpsilon {
		return apperrors.NewWeightsInvalidError(
			fmt.Sprintf("weights sum to %f, want 1.0 +/- %g", sum, WeightEpsilon))
	}
	return nil
}
