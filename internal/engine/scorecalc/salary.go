package scorecalc

import "jobmail-engine/internal/models"

const (
	salaryGapFloor = 0.3
	salaryNeutral  = 0.5
)

// salaryScore grants full credit when the job's offered range overlaps the
// user's expected range, otherwise a partial score based on the gap ratio
// floored at salaryGapFloor. Negative inputs are clamped, not rejected.
func (c *Calculator) salaryScore(user *models.User, job *models.Job, report *QualityReport) models.ComponentScore {
	userMin := clampNonNegative(user.SalaryMin, "negative_salary", report)
	userMax := clampNonNegative(user.SalaryMax, "negative_salary", report)
	jobMin := clampNonNegative(job.SalaryMin, "negative_salary", report)
	jobMax := clampNonNegative(job.SalaryMax, "negative_salary", report)

	// Single-ended ranges collapse to a point.
	if userMax == 0 {
		userMax = userMin
	}
	if jobMax == 0 {
		jobMax = jobMin
	}

	if userMin == 0 && userMax == 0 {
		return models.ComponentScore{Kind: models.ComponentSalary, Value: salaryNeutral, Confidence: 0.5}
	}
	if jobMin == 0 && jobMax == 0 {
		report.add("missing_job_salary")
		return models.ComponentScore{Kind: models.ComponentSalary, Value: salaryNeutral, Confidence: 0.5}
	}

	if jobMin <= userMax && jobMax >= userMin {
		return models.ComponentScore{Kind: models.ComponentSalary, Value: 1.0, Confidence: 1.0}
	}

	// Gap ratio relative to the near edge of the user's expectation.
	var gap, reference float64
	if jobMax < userMin {
		gap = float64(userMin - jobMax)
		reference = float64(userMin)
	} else {
		gap = float64(jobMin - userMax)
		reference = float64(userMax)
	}

	score := 1.0 - gap/reference
	if score < salaryGapFloor {
		score = salaryGapFloor
	}

	return models.ComponentScore{Kind: models.ComponentSalary, Value: score, Confidence: 1.0}
}
