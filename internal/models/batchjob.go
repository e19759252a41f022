package models

import "time"

// BatchStatus enumerates the batch job lifecycle states.
const (
	BatchStatusPending        = "pending"
	BatchStatusRunning        = "running"
	BatchStatusRetryScheduled = "retry_scheduled"
	BatchStatusCompleted      = "completed"
	BatchStatusFailed         = "failed"
	BatchStatusCancelled      = "cancelled"
)

// BatchScope selects which subjects a run covers.
type BatchScope struct {
	// Full processes the whole population; otherwise only subjects changed
	// since Since are reprocessed.
	Full  bool      `json:"full"`
	Since time.Time `json:"since,omitempty"`
	// Resume continues from the last saved checkpoint offset instead of
	// the start of the population.
	Resume bool `json:"resume,omitempty"`
}

// RunMetrics summarizes one orchestrated run.
type RunMetrics struct {
	Processed            int            `json:"processed"`
	Failed               int            `json:"failed"`
	SupplementedPool     int            `json:"supplementedPool"`
	SupplementedFallback int            `json:"supplementedFallback"`
	DiversityNotMetCount int            `json:"diversityNotMetCount"`
	QualityWarnings      map[string]int `json:"qualityWarnings,omitempty"`
	Duration             time.Duration  `json:"duration"`
}

// BatchJobRecord tracks one orchestrated run. Created when the run is
// scheduled, mutated only by the orchestrator, retained for audit.
type BatchJobRecord struct {
	ID          string     `json:"id"`
	Scope       BatchScope `json:"scope"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"startedAt"`
	FinishedAt  time.Time  `json:"finishedAt,omitempty"`
	RetryCount  int        `json:"retryCount"`
	ErrorDetail string     `json:"errorDetail,omitempty"`
	Metrics     RunMetrics `json:"metrics"`
}

// Checkpoint is the durable batch progress marker: the last successfully
// processed subject offset and the wall time it was written.
type Checkpoint struct {
	Offset    int64     `json:"offset"`
	Timestamp time.Time `json:"timestamp"`
}
