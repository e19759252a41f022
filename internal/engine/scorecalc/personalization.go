package scorecalc

import (
	"math"

	"jobmail-engine/internal/models"
)

const (
	applicationWeight = 0.2
	clickWeight       = 0.08

	historyBlend = 0.6
	latentBlend  = 0.4

	defaultBase         = 0.2
	defaultCompleteness = 0.3
)

// personalizationScore blends explicit interaction history with a
// latent-factor similarity when available, and falls back to a
// profile-completeness default otherwise. Missing optional profile fields
// contribute zero; a nil profile is valid input.
func (c *Calculator) personalizationScore(user *models.User, job *models.Job, profile *models.UserProfile) models.ComponentScore {
	if profile == nil {
		return models.ComponentScore{
			Kind:       models.ComponentPersonalization,
			Value:      defaultBase,
			Confidence: 0.2,
		}
	}

	history, historyCount := historyAffinity(profile, job)
	latent, hasLatent := latentSimilarity(profile.LatentFactors, job.FeatureVector)

	hasHistory := historyCount > 0
	var score float64
	switch {
	case hasHistory && hasLatent:
		score = historyBlend*history + latentBlend*latent
	case hasHistory:
		score = history
	case hasLatent:
		score = latent
	default:
		completeness := profile.Completeness
		if completeness < 0 {
			completeness = 0
		}
		if completeness > 1 {
			completeness = 1
		}
		score = defaultBase + defaultCompleteness*completeness
	}

	confidence := 0.2
	if hasLatent {
		confidence = 0.5
	}
	if hasHistory {
		confidence = math.Min(1.0, 0.4+float64(historyCount)/10)
	}

	return models.ComponentScore{
		Kind:       models.ComponentPersonalization,
		Value:      score,
		Confidence: confidence,
	}
}

// historyAffinity weights applications above clicks and only counts
// interactions whose category overlaps the candidate job.
func historyAffinity(profile *models.UserProfile, job *models.Job) (float64, int) {
	score := 0.0
	count := 0

	for _, a := range profile.ApplicationHistory {
		count++
		if a.Category == job.Category {
			score += applicationWeight
		}
	}
	for _, cl := range profile.ClickHistory {
		count++
		if cl.Category == job.Category {
			score += clickWeight
		}
	}

	if score > 1 {
		score = 1
	}
	return score, count
}

// latentSimilarity is the cosine similarity of the subject latent vector
// and the item feature vector, rescaled from [-1,1] to [0,1]. Vectors of
// mismatched or zero length yield no contribution.
func latentSimilarity(userVec, itemVec []float64) (float64, bool) {
	if len(userVec) == 0 || len(userVec) != len(itemVec) {
		return 0, false
	}

	var dot, normU, normI float64
	for i := range userVec {
		dot += userVec[i] * itemVec[i]
		normU += userVec[i] * userVec[i]
		normI += itemVec[i] * itemVec[i]
	}
	if normU == 0 || normI == 0 {
		return 0, false
	}

	cosine := dot / (math.Sqrt(normU) * math.Sqrt(normI))
	return (cosine + 1) / 2, true
}
