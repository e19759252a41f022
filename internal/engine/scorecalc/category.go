package scorecalc

import "jobmail-engine/internal/models"

const (
	categoryRelatedCredit  = 0.6
	categoryMismatchFloor  = 0.2
	categoryNeutralDefault = 0.5
)

// defaultRelatedCategories links each category to the ones an exact-match
// preference decays into.
var defaultRelatedCategories = map[string][]string{
	"engineering":    {"it_support", "data"},
	"it_support":     {"engineering"},
	"data":           {"engineering"},
	"sales":          {"marketing", "customer_service"},
	"marketing":      {"sales"},
	"customer_service": {"sales", "retail"},
	"retail":         {"customer_service", "logistics"},
	"logistics":      {"retail"},
	"healthcare":     {"care_work"},
	"care_work":      {"healthcare"},
	"food_service":   {"retail"},
	"education":      {},
}

// categoryScore gives full credit for an exact match against the user's
// preferred categories and decayed credit for related ones.
func (c *Calculator) categoryScore(user *models.User, job *models.Job) models.ComponentScore {
	if len(user.PreferredCategories) == 0 {
		return models.ComponentScore{
			Kind:       models.ComponentCategory,
			Value:      categoryNeutralDefault,
			Confidence: 0.5,
		}
	}

	score := categoryMismatchFloor
	for _, pref := range user.PreferredCategories {
		if pref == job.Category {
			score = 1.0
			break
		}
		for _, related := range c.cfg.RelatedCategories[pref] {
			if related == job.Category && score < categoryRelatedCredit {
				score = categoryRelatedCredit
			}
		}
	}

	return models.ComponentScore{
		Kind:       models.ComponentCategory,
		Value:      score,
		Confidence: 1.0,
	}
}
