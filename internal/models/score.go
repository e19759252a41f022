package models

// ComponentKind names one independent score source.
type ComponentKind string

const (
	ComponentLocation        ComponentKind = "location"
	ComponentCategory        ComponentKind = "category"
	ComponentSalary          ComponentKind = "salary"
	ComponentKeyword         ComponentKind = "keyword"
	ComponentPersonalization ComponentKind = "personalization"
)

// ComponentScore is one named score in [0,1], owned by the candidate pair
// that produced it for the duration of a single scoring pass.
type ComponentScore struct {
	Kind       ComponentKind `json:"kind"`
	Value      float64       `json:"value"`
	Confidence float64       `json:"confidence"`
}

// CompositeScore is the final relevance value in [0,100], reproducible from
// its components and the weight configuration that produced it.
type CompositeScore struct {
	Value          float64 `json:"value"`
	Strategy       string  `json:"strategy"`
	WeightsVersion string  `json:"weightsVersion"`
}

// ScoredJob pairs a candidate job with its scores for one user.
type ScoredJob struct {
	Job        Job              `json:"job"`
	Components []ComponentScore `json:"components"`
	Composite  CompositeScore   `json:"composite"`
}

// Component returns the named component score, or (zero, false).
func (s *ScoredJob) Component(kind ComponentKind) (ComponentScore, bool) {
	for _, c := range s.Components {
		if c.Kind == kind {
			return c, true
		}
	}
	return ComponentScore{}, false
}

// KeywordIntent classifies a search term's intent for the keyword scorer.
type KeywordIntent string

const (
	IntentCommercial    KeywordIntent = "commercial"
	IntentTransactional KeywordIntent = "transactional"
	IntentInformational KeywordIntent = "informational"
	IntentNavigational  KeywordIntent = "navigational"
)

// KeywordEntry is one row of the keyword relevance table.
type KeywordEntry struct {
	Term         string        `json:"term"`
	SearchVolume int           `json:"searchVolume"`
	Intent       KeywordIntent `json:"intent"`
}
