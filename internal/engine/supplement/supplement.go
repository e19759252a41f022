// Package supplement guarantees the delivered slate reaches its target
// count: first by borrowing from a secondary candidate pool, then by
// generating synthetic fallback items.
package supplement

import (
	"sort"
	"sync/atomic"

	"jobmail-engine/internal/common/logger"
	"jobmail-engine/internal/models"
)

// fallbackIDBase starts the synthetic id space far above any real job id,
// so generated ids can never collide with inventory.
const fallbackIDBase = int64(1) << 62

// Stats reports exactly where each delivered item came from.
type Stats struct {
	OriginalCount int  `json:"originalCount"`
	PoolBorrowed  int  `json:"poolBorrowed"`
	FallbackCount int  `json:"fallbackCount"`
	TotalCount    int  `json:"totalCount"`
	TargetMet     bool `json:"targetMet"`
}

// Engine tops allocations up to their target count. Safe for concurrent
// use; the synthetic id counter is shared across workers.
type Engine struct {
	fallbackScore float64
	logger        logger.Logger
	nextID        atomic.Int64
}

// New creates an Engine. fallbackScore should sit well below the minimum
// real composite score so fallbacks never outrank inventory.
func New(fallbackScore float64, log logger.Logger) *Engine {
	e := &Engine{
		fallbackScore: fallbackScore,
		logger:        log.WithFields(map[string]interface{}{"component": "supplement"}),
	}
	e.nextID.Store(fallbackIDBase)
	return e
}

// EnsureTarget returns an allocation holding exactly target items. Excess
// items are trimmed lowest-score-first; shortfalls are filled from the
// secondary pool in descending score order (skipping ids already
// selected), then with fallback items. The returned allocation never
// duplicates an id and never exceeds target.
func (e *Engine) EnsureTarget(user *models.User, alloc *models.Allocation, secondary []models.ScoredJob, target int) (*models.Allocation, Stats) {
	stats := Stats{OriginalCount: alloc.Total()}

	if stats.OriginalCount > target {
		trimToTarget(alloc, target)
	}

	selected := make(map[int64]bool, target)
	for _, id := range alloc.JobIDs() {
		selected[id] = true
	}

	if alloc.Total() < target {
		borrowed := e.borrow(alloc, secondary, selected, target)
		stats.PoolBorrowed = borrowed
	}

	if missing := target - alloc.Total(); missing > 0 {
		e.appendJobs(alloc, e.generateFallbacks(user, missing))
		stats.FallbackCount = missing
	}

	stats.TotalCount = alloc.Total()
	stats.TargetMet = stats.TotalCount == target

	if stats.PoolBorrowed > 0 || stats.FallbackCount > 0 {
		e.logger.Debug("allocation supplemented", map[string]interface{}{
			"userId":   user.ID,
			"original": stats.OriginalCount,
			"borrowed": stats.PoolBorrowed,
			"fallback": stats.FallbackCount,
		})
	}

	return alloc, stats
}

// borrow drains the secondary pool in descending score order into sections
// that still have capacity. Fallback-tagged and already-selected items are
// skipped.
func (e *Engine) borrow(alloc *models.Allocation, secondary []models.ScoredJob, selected map[int64]bool, target int) int {
	pool := make([]models.ScoredJob, 0, len(secondary))
	for _, s := range secondary {
		if s.Job.Fallback || selected[s.Job.ID] {
			continue
		}
		pool = append(pool, s)
	}
	sort.SliceStable(pool, func(i, j int) bool {
		if pool[i].Composite.Value != pool[j].Composite.Value {
			return pool[i].Composite.Value > pool[j].Composite.Value
		}
		return pool[i].Job.ID < pool[j].Job.ID
	})

	borrowed := 0
	for _, s := range pool {
		if alloc.Total() >= target {
			break
		}
		// The pool itself may repeat an id.
		if selected[s.Job.ID] {
			continue
		}
		selected[s.Job.ID] = true
		e.appendJobs(alloc, []models.ScoredJob{s})
		borrowed++
	}
	return borrowed
}

// appendJobs places items into the last section. Supplemented items are a
// tail segment of the slate: they never reorder what the allocator chose.
func (e *Engine) appendJobs(alloc *models.Allocation, jobs []models.ScoredJob) {
	if len(alloc.Sections) == 0 {
		alloc.Sections = append(alloc.Sections, models.Section{Name: "supplement"})
	}
	last := len(alloc.Sections) - 1
	alloc.Sections[last].Jobs = append(alloc.Sections[last].Jobs, jobs...)
}

// trimToTarget removes the globally lowest-scoring items until the
// allocation holds exactly target, preserving section ordering.
func trimToTarget(alloc *models.Allocation, target int) {
	type ref struct {
		section int
		idx     int
		score   float64
		id      int64
	}

	var refs []ref
	for si, s := range alloc.Sections {
		for ji, j := range s.Jobs {
			refs = append(refs, ref{section: si, idx: ji, score: j.Composite.Value, id: j.Job.ID})
		}
	}
	sort.SliceStable(refs, func(i, j int) bool {
		if refs[i].score != refs[j].score {
			return refs[i].score < refs[j].score
		}
		return refs[i].id > refs[j].id
	})

	drop := make(map[[2]int]bool)
	for i := 0; i < len(refs)-target; i++ {
		drop[[2]int{refs[i].section, refs[i].idx}] = true
	}

	for si := range alloc.Sections {
		kept := alloc.Sections[si].Jobs[:0]
		for ji, j := range alloc.Sections[si].Jobs {
			if !drop[[2]int{si, ji}] {
				kept = append(kept, j)
			}
		}
		alloc.Sections[si].Jobs = kept
	}
}
