// Package allocate partitions a scored candidate pool into prioritized,
// non-overlapping digest sections with exact totals, per-section bounds
// and a category diversity floor.
package allocate

import (
	"fmt"
	"sort"
	"time"

	apperrors "jobmail-engine/internal/common/errors"
	"jobmail-engine/internal/common/logger"
	"jobmail-engine/internal/models"
)

// Allocator holds the section specs sorted by priority. It is immutable
// after construction and safe for concurrent use.
type Allocator struct {
	specs          []models.SectionSpec
	diversityFloor int
	logger         logger.Logger
	now            func() time.Time
}

// New builds an Allocator from validated section specs.
func New(specs []models.SectionSpec, diversityFloor int, log logger.Logger) (*Allocator, error) {
	if len(specs) == 0 {
		return nil, apperrors.NewSectionSpecInvalidError("no section specs configured")
	}

	sorted := make([]models.SectionSpec, len(specs))
	copy(sorted, specs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority < sorted[j].Priority
	})

	return &Allocator{
		specs:          sorted,
		diversityFloor: diversityFloor,
		logger:         log.WithFields(map[string]interface{}{"component": "allocate"}),
		now:            time.Now,
	}, nil
}

// bucket is one section's eligible candidates: selected plus overflow.
type bucket struct {
	spec       models.SectionSpec
	candidates []models.ScoredJob // sorted, selected prefix + overflow suffix
	taken      int
}

// Allocate partitions scored candidates across the configured sections.
// Candidates eligible for several sections land in the highest-priority
// one (first-match-wins). Output is deterministic for identical input.
//
// When the input pool is smaller than totalRequired the allocation comes
// back short; the supplement engine is responsible for the final top-up.
func (a *Allocator) Allocate(userID int64, scored []models.ScoredJob, totalRequired int) (*models.Allocation, error) {
	if totalRequired <= 0 {
		return nil, apperrors.NewConfigurationError(
			fmt.Sprintf("total_required must be positive, got %d", totalRequired))
	}

	buckets := a.partition(scored)

	// The reachable total is bounded by what the sections can hold, not by
	// the raw input size: candidates matching no predicate cannot be
	// placed, and each bucket stops at its max. Shortfalls are the
	// supplement engine's problem, not an invariant violation.
	capacity := 0
	for _, b := range buckets {
		n := len(b.candidates)
		if n > b.spec.MaxCount {
			n = b.spec.MaxCount
		}
		capacity += n
	}
	target := totalRequired
	if capacity < target {
		target = capacity
	}

	a.selectCounts(buckets, target)

	alloc := &models.Allocation{UserID: userID}
	for _, b := range buckets {
		alloc.Sections = append(alloc.Sections, models.Section{
			Name: b.spec.Name,
			Jobs: append([]models.ScoredJob(nil), b.candidates[:b.taken]...),
		})
	}

	diversityMet := a.enforceDiversity(alloc, buckets)
	alloc.DiversityNotMet = !diversityMet

	if err := a.verify(alloc, target); err != nil {
		return nil, err
	}

	return alloc, nil
}

// partition assigns each candidate to the highest-priority spec it
// qualifies for and sorts every bucket deterministically.
func (a *Allocator) partition(scored []models.ScoredJob) []*bucket {
	buckets := make([]*bucket, len(a.specs))
	for i, spec := range a.specs {
		buckets[i] = &bucket{spec: spec}
	}

	now := a.now()
	for _, s := range scored {
		for i, spec := range a.specs {
			if a.eligible(spec, &s, now) {
				buckets[i].candidates = append(buckets[i].candidates, s)
				break
			}
		}
	}

	for _, b := range buckets {
		sortCandidates(b.candidates, b.spec)
	}
	return buckets
}

func (a *Allocator) eligible(spec models.SectionSpec, s *models.ScoredJob, now time.Time) bool {
	switch spec.Predicate {
	case models.PredicateCompositeMin:
		return s.Composite.Value >= spec.Threshold
	case models.PredicateComponentMin:
		c, ok := s.Component(spec.Component)
		return ok && c.Value >= spec.Threshold
	case models.PredicateFlexible:
		return s.Job.FlexibleSchedule
	case models.PredicateFreshWithin:
		cutoff := now.AddDate(0, 0, -int(spec.Threshold))
		return s.Job.PublishedAt.After(cutoff)
	default:
		return false
	}
}

// sortCandidates orders by composite score descending, then the section's
// tie-break rule, then by id ascending so identical inputs always produce
// identical output.
func sortCandidates(candidates []models.ScoredJob, spec models.SectionSpec) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Composite.Value != candidates[j].Composite.Value {
			return candidates[i].Composite.Value > candidates[j].Composite.Value
		}
		switch spec.TieBreak {
		case models.TieBreakScore:
			if spec.Component != "" {
				ci, _ := candidates[i].Component(spec.Component)
				cj, _ := candidates[j].Component(spec.Component)
				if ci.Value != cj.Value {
					return ci.Value > cj.Value
				}
			}
		default: // freshness: newer first
			if !candidates[i].Job.PublishedAt.Equal(candidates[j].Job.PublishedAt) {
				return candidates[i].Job.PublishedAt.After(candidates[j].Job.PublishedAt)
			}
		}
		return candidates[i].Job.ID < candidates[j].Job.ID
	})
}

// selectCounts decides how many candidates each bucket contributes: first
// the per-section minimums in priority order, then top-ups to each
// maximum while the target allows.
func (a *Allocator) selectCounts(buckets []*bucket, target int) {
	total := 0

	for _, b := range buckets {
		take := b.spec.MinCount
		if take > len(b.candidates) {
			take = len(b.candidates)
		}
		if total+take > target {
			take = target - total
		}
		b.taken = take
		total += take
		if total >= target {
			return
		}
	}

	for _, b := range buckets {
		for b.taken < b.spec.MaxCount && b.taken < len(b.candidates) && total < target {
			b.taken++
			total++
		}
		if total >= target {
			return
		}
	}
}
