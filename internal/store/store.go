// Package store defines the data-access contracts the engine consumes and
// their Postgres, Redis and Elasticsearch implementations. The engine
// never sees a wire format; these interfaces are the whole boundary.
package store

import (
	"context"
	"time"

	"jobmail-engine/internal/models"
)

// UserStore reads subjects and their optional profiles.
type UserStore interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
	GetUserProfile(ctx context.Context, id int64) (*models.UserProfile, error)
	// ListUserIDs pages through subject ids in ascending id order. A
	// non-zero since restricts to subjects changed after that instant.
	ListUserIDs(ctx context.Context, since time.Time, offset, limit int64) ([]int64, error)
}

// CandidateFilter restricts the primary candidate pool for one subject.
// Remote listings always pass the prefecture filter.
type CandidateFilter struct {
	Categories []string
	Prefecture string
	Limit      int
}

// JobStore reads candidate listings.
type JobStore interface {
	ListCandidateJobs(ctx context.Context, f CandidateFilter) ([]models.Job, error)
	// LatestJobChange reports when any active listing last changed. The
	// orchestrator widens an incremental run to the full population when
	// items changed inside the window.
	LatestJobChange(ctx context.Context) (time.Time, error)
}

// SecondaryPool supplies the broader candidate set used by the supplement
// engine when the primary pool runs short.
type SecondaryPool interface {
	SearchSecondary(ctx context.Context, user *models.User, limit int) ([]models.Job, error)
}

// KeywordStore loads the keyword relevance table used by the keyword
// scorer.
type KeywordStore interface {
	GetKeywordTable(ctx context.Context) ([]models.KeywordEntry, error)
}

// AllocationStore persists per-subject allocation results. PersistAllocation
// is an idempotent upsert keyed by (user_id, batch_run_id).
type AllocationStore interface {
	PersistAllocation(ctx context.Context, alloc *models.Allocation) error
}

// BatchJobStore tracks orchestrated runs for status, audit and retention.
type BatchJobStore interface {
	CreateBatchJob(ctx context.Context, rec *models.BatchJobRecord) error
	UpdateBatchJob(ctx context.Context, rec *models.BatchJobRecord) error
	GetBatchJob(ctx context.Context, id string) (*models.BatchJobRecord, error)
	// FindInterrupted returns the most recent run left in the running
	// state, if any. Used to resume after a crash.
	FindInterrupted(ctx context.Context) (*models.BatchJobRecord, error)
	PruneBatchJobs(ctx context.Context, olderThan time.Time) (int64, error)
}

// CheckpointStore persists batch progress. Exactly one orchestrator
// instance may hold the writer lease at a time.
type CheckpointStore interface {
	LoadCheckpoint(ctx context.Context) (*models.Checkpoint, error)
	SaveCheckpoint(ctx context.Context, cp models.Checkpoint) error
	AcquireLease(ctx context.Context, owner string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, owner string) error
}
