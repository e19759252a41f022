package models

// PredicateKind names a section eligibility rule.
type PredicateKind string

const (
	PredicateCompositeMin PredicateKind = "composite_min"
	PredicateComponentMin PredicateKind = "component_min"
	PredicateFlexible     PredicateKind = "flexible_schedule"
	PredicateFreshWithin  PredicateKind = "fresh_within_days"
)

// TieBreak names a section ordering rule applied after composite score.
type TieBreak string

const (
	TieBreakFreshness TieBreak = "freshness"
	TieBreakScore     TieBreak = "score"
)

// SectionSpec is configuration, not code: one prioritized digest section
// with its size bounds and eligibility rule.
type SectionSpec struct {
	Name      string        `json:"name" mapstructure:"name"`
	Priority  int           `json:"priority" mapstructure:"priority"`
	MinCount  int           `json:"minCount" mapstructure:"min_count"`
	MaxCount  int           `json:"maxCount" mapstructure:"max_count"`
	Predicate PredicateKind `json:"predicate" mapstructure:"predicate"`
	// Component is the component kind inspected by component_min predicates.
	Component ComponentKind `json:"component,omitempty" mapstructure:"component"`
	// Threshold is the cutoff used by composite_min / component_min, or the
	// day count for fresh_within_days.
	Threshold float64  `json:"threshold,omitempty" mapstructure:"threshold"`
	TieBreak  TieBreak `json:"tieBreak" mapstructure:"tie_break"`
}

// Section is one allocated, ordered slice of the final slate.
type Section struct {
	Name string      `json:"name"`
	Jobs []ScoredJob `json:"jobs"`
}

// Allocation maps prioritized sections to their ordered candidates. It
// exclusively owns its ScoredJob values for the batch run.
type Allocation struct {
	UserID          int64     `json:"userId"`
	BatchRunID      string    `json:"batchRunId"`
	Sections        []Section `json:"sections"`
	DiversityNotMet bool      `json:"diversityNotMet"`
}

// Total returns the number of jobs across all sections.
func (a *Allocation) Total() int {
	n := 0
	for _, s := range a.Sections {
		n += len(s.Jobs)
	}
	return n
}

// JobIDs returns every allocated job id in section order.
func (a *Allocation) JobIDs() []int64 {
	ids := make([]int64, 0, a.Total())
	for _, s := range a.Sections {
		for _, j := range s.Jobs {
			ids = append(ids, j.Job.ID)
		}
	}
	return ids
}
