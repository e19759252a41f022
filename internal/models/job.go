package models

import "time"

// Job is a candidate listing scored against a user.
type Job struct {
	ID               int64     `json:"id"`
	Title            string    `json:"title"`
	Headline         string    `json:"headline"`
	Description      string    `json:"description"`
	FreeText         string    `json:"freeText"`
	Category         string    `json:"category"`
	Prefecture       string    `json:"prefecture"`
	Region           string    `json:"region"`
	RemoteAllowed    bool      `json:"remoteAllowed"`
	FlexibleSchedule bool      `json:"flexibleSchedule"`
	SalaryMin        int       `json:"salaryMin"`
	SalaryMax        int       `json:"salaryMax"`
	FeatureVector    []float64 `json:"featureVector,omitempty"`
	PublishedAt      time.Time `json:"publishedAt"`
	UpdatedAt        time.Time `json:"updatedAt"`

	// Fallback marks a synthetic supplement item. Fallback jobs are created
	// on demand, never persisted as inventory, and countable in metrics.
	Fallback bool `json:"fallback,omitempty"`
}
