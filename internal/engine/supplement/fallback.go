package supplement

import (
	"time"

	"jobmail-engine/internal/models"
)

// generateFallbacks creates n synthetic jobs with strictly increasing ids
// from the reserved synthetic id space. Fallbacks carry the user's
// preferred location and top category purely for display consistency;
// they represent no real inventory and are discarded after the run.
func (e *Engine) generateFallbacks(user *models.User, n int) []models.ScoredJob {
	category := "general"
	if len(user.PreferredCategories) > 0 {
		category = user.PreferredCategories[0]
	}

	now := time.Now().UTC()
	out := make([]models.ScoredJob, 0, n)
	for i := 0; i < n; i++ {
		id := e.nextID.Add(1)
		out = append(out, models.ScoredJob{
			Job: models.Job{
				ID:          id,
				Title:       "Recommended opportunities near you",
				Category:    category,
				Prefecture:  user.PreferredPrefecture,
				Region:      user.PreferredRegion,
				PublishedAt: now,
				Fallback:    true,
			},
			Composite: models.CompositeScore{Value: e.fallbackScore},
		})
	}
	return out
}
