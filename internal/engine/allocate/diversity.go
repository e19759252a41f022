package allocate

import (
	"fmt"
	"sort"

	apperrors "jobmail-engine/internal/common/errors"
	"jobmail-engine/internal/models"
)

// enforceDiversity swaps overflow candidates of unrepresented categories
// into the allocation until the category diversity floor is met. Swaps
// replace the lowest-scoring selected item of an overrepresented category
// within the same section, so per-section bounds stay intact. Returns
// false when the input simply lacks enough distinct categories.
func (a *Allocator) enforceDiversity(alloc *models.Allocation, buckets []*bucket) bool {
	if a.diversityFloor <= 0 {
		return true
	}

	for {
		represented := categoryCounts(alloc)
		if len(represented) >= a.diversityFloor {
			return true
		}

		swap, ok := a.findSwap(alloc, buckets, represented)
		if !ok {
			a.logger.Debug("diversity floor not reachable", map[string]interface{}{
				"userId":     alloc.UserID,
				"floor":      a.diversityFloor,
				"categories": len(represented),
			})
			return false
		}

		section := &alloc.Sections[swap.sectionIdx]
		section.Jobs[swap.outIdx] = swap.in
		sortCandidates(section.Jobs, buckets[swap.sectionIdx].spec)
	}
}

type swapCandidate struct {
	sectionIdx int
	outIdx     int
	in         models.ScoredJob
}

// findSwap picks the highest-scoring overflow candidate whose category is
// not yet represented and pairs it with a removable selected item from
// the same bucket's section. Removable means the item's category keeps at
// least one other representative after removal.
func (a *Allocator) findSwap(alloc *models.Allocation, buckets []*bucket, represented map[string]int) (swapCandidate, bool) {
	type overflowItem struct {
		sectionIdx int
		job        models.ScoredJob
	}

	var overflow []overflowItem
	for i, b := range buckets {
		for _, c := range b.candidates[b.taken:] {
			if represented[c.Job.Category] > 0 {
				continue
			}
			overflow = append(overflow, overflowItem{sectionIdx: i, job: c})
		}
	}

	sort.SliceStable(overflow, func(i, j int) bool {
		if overflow[i].job.Composite.Value != overflow[j].job.Composite.Value {
			return overflow[i].job.Composite.Value > overflow[j].job.Composite.Value
		}
		return overflow[i].job.Job.ID < overflow[j].job.Job.ID
	})

	for _, cand := range overflow {
		section := alloc.Sections[cand.sectionIdx]
		outIdx := -1
		for idx := len(section.Jobs) - 1; idx >= 0; idx-- {
			if represented[section.Jobs[idx].Job.Category] > 1 {
				outIdx = idx
				break
			}
		}
		if outIdx == -1 {
			continue
		}
		return swapCandidate{sectionIdx: cand.sectionIdx, outIdx: outIdx, in: cand.job}, true
	}

	return swapCandidate{}, false
}

func categoryCounts(alloc *models.Allocation) map[string]int {
	counts := map[string]int{}
	for _, s := range alloc.Sections {
		for _, j := range s.Jobs {
			counts[j.Job.Category]++
		}
	}
	return counts
}

// verify checks the allocation invariants after selection. A violation is
// a programming-level bug: the subject's run fails loudly rather than
// shipping a corrupt slate.
func (a *Allocator) verify(alloc *models.Allocation, target int) error {
	if got := alloc.Total(); got != target {
		return apperrors.NewAllocationInvariantError(
			fmt.Sprintf("total selected %d, want %d", got, target),
			map[string]interface{}{"userId": alloc.UserID})
	}

	seen := make(map[int64]string, target)
	for _, s := range alloc.Sections {
		for _, j := range s.Jobs {
			if prev, dup := seen[j.Job.ID]; dup {
				return apperrors.NewAllocationInvariantError(
					fmt.Sprintf("job %d appears in sections %q and %q", j.Job.ID, prev, s.Name),
					map[string]interface{}{"userId": alloc.UserID})
			}
			seen[j.Job.ID] = s.Name
		}
	}

	for i, s := range alloc.Sections {
		if len(s.Jobs) > a.specs[i].MaxCount {
			return apperrors.NewAllocationInvariantError(
				fmt.Sprintf("section %q holds %d items, max %d", s.Name, len(s.Jobs), a.specs[i].MaxCount),
				map[string]interface{}{"userId": alloc.UserID})
		}
	}

	return nil
}
