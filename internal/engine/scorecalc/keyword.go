package scorecalc

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"jobmail-engine/internal/models"
)

// weightedField pairs a candidate text field with its match weight.
// Title carries the most weight, free text the least.
type weightedField struct {
	text   string
	weight float64
}

// keywordScore matches the top weighted keyword terms against the job's
// prioritized text fields, applies a search-volume base score per match
// times the term's intent multiplier and the field weight, then clamps the
// sum to [0,100] and normalizes to [0,1]. At most MaxKeywordMatches terms
// may contribute.
func (c *Calculator) keywordScore(job *models.Job) models.ComponentScore {
	if len(c.keywords) == 0 {
		return models.ComponentScore{Kind: models.ComponentKeyword, Value: 0, Confidence: 0.3}
	}

	fields := []weightedField{
		{normalizeText(job.Title), 1.0},
		{normalizeText(job.Headline), 0.8},
		{normalizeText(job.Description), 0.5},
		{normalizeText(job.FreeText), 0.3},
	}

	total := 0.0
	matches := 0
	for _, kw := range c.keywords {
		if matches >= c.cfg.MaxKeywordMatches {
			break
		}
		term := normalizeText(kw.Term)
		if term == "" {
			continue
		}

		// A term counts once, at the highest-weighted field containing it.
		for _, f := range fields {
			if f.text == "" || !strings.Contains(f.text, term) {
				continue
			}
			total += volumeBaseScore(kw.SearchVolume) * intentMultiplier(kw.Intent) * f.weight
			matches++
			break
		}
	}

	if total > 100 {
		total = 100
	}

	return models.ComponentScore{
		Kind:       models.ComponentKeyword,
		Value:      total / 100,
		Confidence: 1.0,
	}
}

// volumeBaseScore maps a term's monthly search volume to its base score tier.
func volumeBaseScore(volume int) float64 {
	switch {
	case volume >= 10000:
		return 15
	case volume >= 5000:
		return 10
	case volume >= 1000:
		return 7
	case volume >= 500:
		return 5
	default:
		return 3
	}
}

func intentMultiplier(intent models.KeywordIntent) float64 {
	switch intent {
	case models.IntentCommercial:
		return 1.5
	case models.IntentTransactional:
		return 1.3
	case models.IntentNavigational:
		return 0.8
	default: // informational and unknown
		return 1.0
	}
}

var separatorReplacer = strings.NewReplacer(
	"_", " ", "-", " ", "/", " ", ",", " ", "・", " ", "、", " ", "。", " ",
)

// normalizeText case-folds, applies NFKC normalization (collapsing
// full-width and half-width script variants) and collapses separators to
// single spaces.
func normalizeText(s string) string {
	if s == "" {
		return ""
	}
	s = norm.NFKC.String(s)
	s = strings.ToLower(s)
	s = separatorReplacer.Replace(s)
	return strings.Join(strings.Fields(s), " ")
}
