// Package scorecalc computes the independent component scores for one
// (user, job) candidate pair. Every scorer is a pure function of its
// inputs: malformed values are clamped, missing optional data contributes
// a neutral or zero score, and nothing in this package panics or keeps
// hidden state.
package scorecalc

import (
	"math"
	"sort"

	"jobmail-engine/internal/common/logger"
	"jobmail-engine/internal/models"
)

// Config holds the calculator tuning knobs.
type Config struct {
	// MaxKeywordMatches caps how many keyword terms may contribute.
	MaxKeywordMatches int
	// RelatedCategories maps a category to the categories it decays into.
	RelatedCategories map[string][]string
}

// QualityReport aggregates data quality issues recovered during scoring.
// These are warnings, never errors: batch runs stay resilient.
type QualityReport struct {
	Warnings map[string]int
}

func newQualityReport() *QualityReport {
	return &QualityReport{Warnings: map[string]int{}}
}

func (r *QualityReport) add(kind string) {
	r.Warnings[kind]++
}

// Merge folds another report into this one.
func (r *QualityReport) Merge(other *QualityReport) {
	if other == nil {
		return
	}
	for k, n := range other.Warnings {
		r.Warnings[k] += n
	}
}

// Calculator computes component scores against a fixed keyword table.
type Calculator struct {
	cfg      Config
	keywords []models.KeywordEntry // sorted by search volume descending
	logger   logger.Logger
}

// NewCalculator creates a Calculator. The keyword table is copied and
// sorted by search volume so higher-weighted terms match first.
func NewCalculator(cfg Config, keywords []models.KeywordEntry, log logger.Logger) *Calculator {
	if cfg.MaxKeywordMatches <= 0 {
		cfg.MaxKeywordMatches = 7
	}
	if cfg.RelatedCategories == nil {
		cfg.RelatedCategories = defaultRelatedCategories
	}

	sorted := make([]models.KeywordEntry, len(keywords))
	copy(sorted, keywords)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].SearchVolume != sorted[j].SearchVolume {
			return sorted[i].SearchVolume > sorted[j].SearchVolume
		}
		return sorted[i].Term < sorted[j].Term
	})

	return &Calculator{
		cfg:      cfg,
		keywords: sorted,
		logger:   log.WithFields(map[string]interface{}{"component": "scorecalc"}),
	}
}

// ScoreComponents computes all component scores for one candidate pair.
// The profile may be nil; optional profile fields contribute zero, never
// an error.
func (c *Calculator) ScoreComponents(user *models.User, job *models.Job, profile *models.UserProfile) ([]models.ComponentScore, *QualityReport) {
	report := newQualityReport()

	components := []models.ComponentScore{
		c.locationScore(user, job),
		c.categoryScore(user, job),
		c.salaryScore(user, job, report),
		c.keywordScore(job),
		c.personalizationScore(user, job, profile),
	}

	for i := range components {
		components[i].Value = sanitize(components[i].Value, report)
	}

	return components, report
}

// sanitize replaces values that cannot be used downstream. A score that is
// not a valid number becomes 0 and is surfaced via the quality report.
func sanitize(v float64, report *QualityReport) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		report.add("invalid_component_value")
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

func clampNonNegative(v int, kind string, report *QualityReport) int {
	if v < 0 {
		report.add(kind)
		return 0
	}
	return v
}
