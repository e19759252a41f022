package models

import "time"

// User is the subject of a scoring pass: the person receiving the digest.
type User struct {
	ID                  int64     `json:"id"`
	Email               string    `json:"email"`
	PreferredCategories []string  `json:"preferredCategories"`
	PreferredPrefecture string    `json:"preferredPrefecture"`
	PreferredRegion     string    `json:"preferredRegion"`
	SalaryMin           int       `json:"salaryMin"`
	SalaryMax           int       `json:"salaryMax"`
	FlexibleOnly        bool      `json:"flexibleOnly"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// Interaction is one historical action (application or click) on a job.
type Interaction struct {
	JobID      int64     `json:"jobId"`
	Category   string    `json:"category"`
	OccurredAt time.Time `json:"occurredAt"`
}

// UserProfile carries the optional signals used by the personalization
// scorer. Every field may be absent; scoring must tolerate the zero value.
type UserProfile struct {
	LatentFactors      []float64     `json:"latentFactors,omitempty"`
	ApplicationHistory []Interaction `json:"applicationHistory,omitempty"`
	ClickHistory       []Interaction `json:"clickHistory,omitempty"`
	Completeness       float64       `json:"completeness"`
}
