package aggregate

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmail-engine/internal/common/config"
	apperrors "jobmail-engine/internal/common/errors"
	"jobmail-engine/internal/models"
)

func testScoringConfig() config.ScoringConfig {
	return config.ScoringConfig{
		Weights: map[string]float64{
			"location":        0.5,
			"keyword":         0.3,
			"personalization": 0.2,
		},
		WeightsVersion: "v1",
		Strategy:       "weighted_average",
	}
}

func testComponents(location, keyword, personalization float64) []models.ComponentScore {
	return []models.ComponentScore{
		{Kind: models.ComponentLocation, Value: location, Confidence: 1.0},
		{Kind: models.ComponentKeyword, Value: keyword, Confidence: 1.0},
		{Kind: models.ComponentPersonalization, Value: personalization, Confidence: 1.0},
	}
}

func TestAggregate_WeightedAverage(t *testing.T) {
	agg, err := New(testScoringConfig())
	require.NoError(t, err)

	// 0.5*0.8 + 0.3*0.6 + 0.2*0.9 = 0.76
	composite := agg.Aggregate(testComponents(0.8, 0.6, 0.9))
	assert.InDelta(t, 76.0, composite.Value, 1e-9)
	assert.Equal(t, "weighted_average", composite.Strategy)
	assert.Equal(t, "v1", composite.WeightsVersion)
}

func TestAggregate_Reproducible(t *testing.T) {
	agg, err := New(testScoringConfig())
	require.NoError(t, err)

	components := testComponents(0.8, 0.6, 0.9)
	first := agg.Aggregate(components)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, agg.Aggregate(components))
	}
}

func TestAggregate_MissingComponentExcluded(t *testing.T) {
	agg, err := New(testScoringConfig())
	require.NoError(t, err)

	// Only location present: renormalized over its own weight, not
	// dragged down by phantom zeros.
	composite := agg.Aggregate([]models.ComponentScore{
		{Kind: models.ComponentLocation, Value: 0.8, Confidence: 1.0},
	})
	assert.InDelta(t, 80.0, composite.Value, 1e-9)
}

func TestAggregate_SanitizesBadValues(t *testing.T) {
	agg, err := New(testScoringConfig())
	require.NoError(t, err)

	composite := agg.Aggregate(testComponents(math.NaN(), math.Inf(1), 2.5))
	assert.False(t, math.IsNaN(composite.Value))
	// NaN->0, +Inf->0, 2.5->1: 0.2*1.0 = 0.2 -> 20
	assert.InDelta(t, 20.0, composite.Value, 1e-9)
}

func TestAggregate_CompletenessBonus(t *testing.T) {
	cfg := testScoringConfig()
	cfg.CompletenessBonus = 3

	agg, err := New(cfg)
	require.NoError(t, err)

	t.Run("bonus applies when all components present", func(t *testing.T) {
		composite := agg.Aggregate(testComponents(0.8, 0.6, 0.9))
		assert.InDelta(t, 79.0, composite.Value, 1e-9)
	})

	t.Run("bonus withheld on sparse input", func(t *testing.T) {
		composite := agg.Aggregate([]models.ComponentScore{
			{Kind: models.ComponentLocation, Value: 0.8, Confidence: 1.0},
		})
		assert.InDelta(t, 80.0, composite.Value, 1e-9)
	})

	t.Run("bonus never pushes past the cap", func(t *testing.T) {
		composite := agg.Aggregate(testComponents(1.0, 1.0, 1.0))
		assert.InDelta(t, 100.0, composite.Value, 1e-9)
	})
}

func TestAggregate_BonusCappedAtFive(t *testing.T) {
	cfg := testScoringConfig()
	cfg.CompletenessBonus = 50

	agg, err := New(cfg)
	require.NoError(t, err)

	composite := agg.Aggregate(testComponents(0.5, 0.5, 0.5))
	assert.InDelta(t, 55.0, composite.Value, 1e-9)
}

func TestNew_RejectsBadConfig(t *testing.T) {
	tests := []struct {
		name         string
		mutate       func(*config.ScoringConfig)
		expectedCode apperrors.ErrorCode
	}{
		{
			name:         "unknown strategy",
			mutate:       func(c *config.ScoringConfig) { c.Strategy = "median_of_medians" },
			expectedCode: apperrors.ErrCodeUnknownStrategy,
		},
		{
			name:         "unknown component",
			mutate:       func(c *config.ScoringConfig) { c.Weights["astrology"] = 0.1 },
			expectedCode: apperrors.ErrCodeWeightsInvalid,
		},
		{
			name: "negative weight",
			mutate: func(c *config.ScoringConfig) {
				c.Weights["location"] = -0.1
				c.Weights["keyword"] = 0.9
			},
			expectedCode: apperrors.ErrCodeWeightsInvalid,
		},
		{
			name:         "sum off by more than epsilon",
			mutate:       func(c *config.ScoringConfig) { c.Weights["location"] = 0.6 },
			expectedCode: apperrors.ErrCodeWeightsInvalid,
		},
		{
			name:         "empty weights",
			mutate:       func(c *config.ScoringConfig) { c.Weights = map[string]float64{} },
			expectedCode: apperrors.ErrCodeWeightsInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testScoringConfig()
			tt.mutate(&cfg)
			_, err := New(cfg)
			require.Error(t, err)
			assert.Equal(t, tt.expectedCode, apperrors.CodeOf(err))
			assert.False(t, apperrors.IsRetryable(err))
		})
	}
}

func TestWeights_SumTolerance(t *testing.T) {
	// Inside epsilon passes.
	w := Weights{
		models.ComponentLocation: 0.5004,
		models.ComponentKeyword:  0.5,
	}
	assert.NoError(t, w.Validate())

	// Outside epsilon fails.
	w[models.ComponentLocation] = 0.502
	assert.Error(t, w.Validate())
}

func TestStrategies(t *testing.T) {
	w := Weights{
		models.ComponentLocation: 0.5,
		models.ComponentKeyword:  0.5,
	}
	components := []models.ComponentScore{
		{Kind: models.ComponentLocation, Value: 0.4, Confidence: 1.0},
		{Kind: models.ComponentKeyword, Value: 0.8, Confidence: 0.5},
	}

	tests := []struct {
		name     string
		params   Params
		expected float64
	}{
		{"weighted_average", Params{}, 0.6},
		{"harmonic_mean", Params{}, 1 / (0.5/0.4 + 0.5/0.8)},
		{"geometric_mean", Params{}, math.Exp(0.5*math.Log(0.4) + 0.5*math.Log(0.8))},
		{"power_mean", Params{PowerExponent: 2}, math.Sqrt(0.5*0.16 + 0.5*0.64)},
		{"percentile", Params{Percentile: 0.5}, 0.4},
		{"min", Params{}, 0.4},
		{"max", Params{}, 0.8},
		{"threshold_gated", Params{GateThreshold: 0.5}, 0.8},
		// location 0.5*1.0, keyword 0.5*0.5 effective weights
		{"confidence_adaptive", Params{}, (0.4*0.5 + 0.8*0.25) / 0.75},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			strategy, err := LookupStrategy(tt.name)
			require.NoError(t, err)
			got := strategy(components, w, tt.params)
			assert.InDelta(t, tt.expected, got, 1e-9)
		})
	}
}

func TestStrategies_ZeroComponentEdgeCases(t *testing.T) {
	w := Weights{
		models.ComponentLocation: 0.5,
		models.ComponentKeyword:  0.5,
	}
	withZero := []models.ComponentScore{
		{Kind: models.ComponentLocation, Value: 0, Confidence: 1.0},
		{Kind: models.ComponentKeyword, Value: 0.8, Confidence: 1.0},
	}

	harmonic, _ := LookupStrategy("harmonic_mean")
	assert.Zero(t, harmonic(withZero, w, Params{}))

	geometric, _ := LookupStrategy("geometric_mean")
	assert.Zero(t, geometric(withZero, w, Params{}))

	gated, _ := LookupStrategy("threshold_gated")
	assert.Zero(t, gated(withZero, w, Params{GateThreshold: 0.9}))
}

func TestStrategyNames(t *testing.T) {
	names := StrategyNames()
	assert.Len(t, names, 9)
	assert.Contains(t, names, "weighted_average")
	assert.Contains(t, names, "confidence_adaptive")
}
