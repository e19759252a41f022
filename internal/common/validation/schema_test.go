package validation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "jobmail-engine/internal/common/errors"
	"jobmail-engine/internal/models"
)

const validDocument = `[
  {"name": "editorial_picks", "priority": 1, "min_count": 3, "max_count": 8,
   "predicate": "composite_min", "threshold": 80, "tie_break": "freshness"},
  {"name": "regional", "priority": 2, "min_count": 4, "max_count": 10,
   "predicate": "component_min", "component": "location", "threshold": 0.9,
   "tie_break": "freshness"}
]`

func TestParseSectionSpecs(t *testing.T) {
	specs, err := ParseSectionSpecs([]byte(validDocument))
	require.NoError(t, err)
	require.Len(t, specs, 2)

	assert.Equal(t, "editorial_picks", specs[0].Name)
	assert.Equal(t, models.PredicateCompositeMin, specs[0].Predicate)
	assert.Equal(t, 80.0, specs[0].Threshold)
	assert.Equal(t, models.ComponentLocation, specs[1].Component)
}

func TestParseSectionSpecs_SchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty document", `[]`},
		{"missing required field", `[{"name": "x", "priority": 1, "min_count": 0, "max_count": 5, "predicate": "composite_min"}]`},
		{"unknown predicate", `[{"name": "x", "priority": 1, "min_count": 0, "max_count": 5, "predicate": "phase_of_moon", "tie_break": "freshness"}]`},
		{"zero priority", `[{"name": "x", "priority": 0, "min_count": 0, "max_count": 5, "predicate": "composite_min", "tie_break": "freshness"}]`},
		{"unknown property", `[{"name": "x", "priority": 1, "min_count": 0, "max_count": 5, "predicate": "composite_min", "tie_break": "freshness", "color": "red"}]`},
		{"not an array", `{"name": "x"}`},
		{"malformed json", `[{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSectionSpecs([]byte(tt.doc))
			require.Error(t, err)
			assert.Equal(t, apperrors.ErrCodeSectionSpecInvalid, apperrors.CodeOf(err))
		})
	}
}

func TestParseSectionSpecs_SemanticViolations(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{
			"duplicate name",
			`[{"name": "a", "priority": 1, "min_count": 0, "max_count": 5, "predicate": "composite_min", "tie_break": "freshness"},
			  {"name": "a", "priority": 2, "min_count": 0, "max_count": 5, "predicate": "composite_min", "tie_break": "freshness"}]`,
		},
		{
			"duplicate priority",
			`[{"name": "a", "priority": 1, "min_count": 0, "max_count": 5, "predicate": "composite_min", "tie_break": "freshness"},
			  {"name": "b", "priority": 1, "min_count": 0, "max_count": 5, "predicate": "composite_min", "tie_break": "freshness"}]`,
		},
		{
			"min above max",
			`[{"name": "a", "priority": 1, "min_count": 6, "max_count": 5, "predicate": "composite_min", "tie_break": "freshness"}]`,
		},
		{
			"component_min without component",
			`[{"name": "a", "priority": 1, "min_count": 0, "max_count": 5, "predicate": "component_min", "threshold": 0.5, "tie_break": "score"}]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSectionSpecs([]byte(tt.doc))
			require.Error(t, err)
			assert.Equal(t, apperrors.ErrCodeSectionSpecInvalid, apperrors.CodeOf(err))
		})
	}
}

func TestLoadSectionSpecs(t *testing.T) {
	t.Run("empty path yields defaults", func(t *testing.T) {
		specs, err := LoadSectionSpecs("")
		require.NoError(t, err)
		assert.Len(t, specs, 6)
	})

	t.Run("reads a document from disk", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "sections.json")
		require.NoError(t, os.WriteFile(path, []byte(validDocument), 0o600))

		specs, err := LoadSectionSpecs(path)
		require.NoError(t, err)
		assert.Len(t, specs, 2)
	})

	t.Run("missing file fails as invalid spec", func(t *testing.T) {
		_, err := LoadSectionSpecs("/nonexistent/sections.json")
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeSectionSpecInvalid, apperrors.CodeOf(err))
	})
}

func TestDefaultSectionSpecs(t *testing.T) {
	specs := DefaultSectionSpecs()
	require.Len(t, specs, 6)

	// Priorities are unique and the mins stay below the maxes.
	require.NoError(t, validateSemantics(specs))

	total := 0
	for _, s := range specs {
		total += s.MaxCount
	}
	assert.GreaterOrEqual(t, total, 40, "combined maxima must cover the default target")
}
