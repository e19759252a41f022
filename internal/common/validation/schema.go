// Package validation checks section spec documents before the engine starts.
package validation

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	apperrors "jobmail-engine/internal/common/errors"
	"jobmail-engine/internal/models"
)

// sectionSpecSchema is the JSON schema every section spec document must
// satisfy. Structural validation happens here; semantic rules (unique
// priorities, min <= max) are checked afterwards in validateSemantics.
const sectionSpecSchema = `{
  "type": "array",
  "minItems": 1,
  "items": {
    "type": "object",
    "required": ["name", "priority", "min_count", "max_count", "predicate", "tie_break"],
    "additionalProperties": false,
    "properties": {
      "name":      {"type": "string", "minLength": 1},
      "priority":  {"type": "integer", "minimum": 1},
      "min_count": {"type": "integer", "minimum": 0},
      "max_count": {"type": "integer", "minimum": 1},
      "predicate": {"type": "string", "enum": ["composite_min", "component_min", "flexible_schedule", "fresh_within_days"]},
      "component": {"type": "string", "enum": ["location", "category", "salary", "keyword", "personalization"]},
      "threshold": {"type": "number", "minimum": 0},
      "tie_break": {"type": "string", "enum": ["freshness", "score"]}
    }
  }
}`

type specDocument struct {
	Name      string  `json:"name"`
	Priority  int     `json:"priority"`
	MinCount  int     `json:"min_count"`
	MaxCount  int     `json:"max_count"`
	Predicate string  `json:"predicate"`
	Component string  `json:"component"`
	Threshold float64 `json:"threshold"`
	TieBreak  string  `json:"tie_break"`
}

// LoadSectionSpecs reads, validates and converts a section spec document.
// An empty path returns the built-in defaults.
func LoadSectionSpecs(path string) ([]models.SectionSpec, error) {
	if path == "" {
		return DefaultSectionSpecs(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewSectionSpecInvalidError(
			fmt.Sprintf("read %s: %v", path, err))
	}
	return ParseSectionSpecs(raw)
}

// ParseSectionSpecs validates a raw section spec document against the
// schema and semantic rules.
func ParseSectionSpecs(raw []byte) ([]models.SectionSpec, error) {
	schemaLoader := gojsonschema.NewStringLoader(sectionSpecSchema)
	docLoader := gojsonschema.NewBytesLoader(raw)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return nil, apperrors.NewSectionSpecInvalidError(err.Error())
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return nil, apperrors.NewSectionSpecInvalidError(strings.Join(msgs, "; "))
	}

	var docs []specDocument
	if err := json.Unmarshal(raw, &docs); err != nil {
		return nil, apperrors.NewSectionSpecInvalidError(err.Error())
	}

	specs := make([]models.SectionSpec, 0, len(docs))
	for _, d := range docs {
		specs = append(specs, models.SectionSpec{
			Name:      d.Name,
			Priority:  d.Priority,
			MinCount:  d.MinCount,
			MaxCount:  d.MaxCount,
			Predicate: models.PredicateKind(d.Predicate),
			Component: models.ComponentKind(d.Component),
			Threshold: d.Threshold,
			TieBreak:  models.TieBreak(d.TieBreak),
		})
	}

	if err := validateSemantics(specs); err != nil {
		return nil, err
	}
	return specs, nil
}

func validateSemantics(specs []models.SectionSpec) error {
	names := make(map[string]bool, len(specs))
	priorities := make(map[int]bool, len(specs))

	for _, s := range specs {
		if names[s.Name] {
			return apperrors.NewSectionSpecInvalidError(
				fmt.Sprintf("duplicate section name %q", s.Name))
		}
		names[s.Name] = true

		if priorities[s.Priority] {
			return apperrors.NewSectionSpecInvalidError(
				fmt.Sprintf("duplicate priority %d (section %q)", s.Priority, s.Name))
		}
		priorities[s.Priority] = true

		if s.MinCount > s.MaxCount {
			return apperrors.NewSectionSpecInvalidError(
				fmt.Sprintf("section %q: min_count %d > max_count %d", s.Name, s.MinCount, s.MaxCount))
		}
		if s.Predicate == models.PredicateComponentMin && s.Component == "" {
			return apperrors.NewSectionSpecInvalidError(
				fmt.Sprintf("section %q: component_min requires a component", s.Name))
		}
	}
	return nil
}

// DefaultSectionSpecs returns the six standard digest sections.
func DefaultSectionSpecs() []models.SectionSpec {
	return []models.SectionSpec{
		{Name: "editorial_picks", Priority: 1, MinCount: 3, MaxCount: 8,
			Predicate: models.PredicateCompositeMin, Threshold: 80, TieBreak: models.TieBreakFreshness},
		{Name: "ai_recommended", Priority: 2, MinCount: 3, MaxCount: 8,
			Predicate: models.PredicateComponentMin, Component: models.ComponentPersonalization,
			Threshold: 0.6, TieBreak: models.TieBreakScore},
		{Name: "regional", Priority: 3, MinCount: 4, MaxCount: 10,
			Predicate: models.PredicateComponentMin, Component: models.ComponentLocation,
			Threshold: 0.9, TieBreak: models.TieBreakFreshness},
		{Name: "high_pay", Priority: 4, MinCount: 3, MaxCount: 8,
			Predicate: models.PredicateComponentMin, Component: models.ComponentSalary,
			Threshold: 0.9, TieBreak: models.TieBreakScore},
		{Name: "flexible_schedule", Priority: 5, MinCount: 3, MaxCount: 8,
			Predicate: models.PredicateFlexible, TieBreak: models.TieBreakFreshness},
		{Name: "new_arrivals", Priority: 6, MinCount: 2, MaxCount: 10,
			Predicate: models.PredicateFreshWithin, Threshold: 7, TieBreak: models.TieBreakFreshness},
	}
}
