package scorecalc

import "jobmail-engine/internal/models"

const (
	locationRegionCredit  = 0.7
	locationMismatchFloor = 0.3
	locationNeutral       = 0.5
)

// locationScore grants full credit for remote-allowed jobs and exact
// prefecture matches, partial credit within the same region, and a floor
// for mismatches. Users without a stated preference get a neutral score.
func (c *Calculator) locationScore(user *models.User, job *models.Job) models.ComponentScore {
	score := locationMismatchFloor
	confidence := 1.0

	switch {
	case job.RemoteAllowed:
		score = 1.0
	case user.PreferredPrefecture == "":
		score = locationNeutral
		confidence = 0.5
	case job.Prefecture == user.PreferredPrefecture:
		score = 1.0
	case job.Region != "" && job.Region == user.PreferredRegion:
		score = locationRegionCredit
	}

	return models.ComponentScore{
		Kind:       models.ComponentLocation,
		Value:      score,
		Confidence: confidence,
	}
}
