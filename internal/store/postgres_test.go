package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "jobmail-engine/internal/common/errors"
	"jobmail-engine/internal/common/logger"
	"jobmail-engine/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

func setupMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return NewPostgresStore(db, logger.NewNoOpLogger()), mock, func() { db.Close() }
}

// ==========================
// UserStore
// ==========================

func TestGetUser(t *testing.T) {
	s, mock, closeDB := setupMockStore(t)
	defer closeDB()

	updated := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "email", "preferred_categories", "preferred_prefecture",
		"preferred_region", "salary_min", "salary_max", "flexible_only", "updated_at",
	}).AddRow(int64(7), "a@example.com", `["engineering","data"]`, "tokyo", "kanto", 300000, 450000, false, updated)

	mock.ExpectQuery("SELECT id, email, preferred_categories").
		WithArgs(int64(7)).
		WillReturnRows(rows)

	user, err := s.GetUser(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), user.ID)
	assert.Equal(t, []string{"engineering", "data"}, user.PreferredCategories)
	assert.Equal(t, "tokyo", user.PreferredPrefecture)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUser_NotFound(t *testing.T) {
	s, mock, closeDB := setupMockStore(t)
	defer closeDB()

	mock.ExpectQuery("SELECT id, email, preferred_categories").
		WithArgs(int64(404)).
		WillReturnError(sql.ErrNoRows)

	_, err := s.GetUser(context.Background(), 404)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeSubjectNotFound, apperrors.CodeOf(err))
	assert.False(t, apperrors.IsRetryable(err))
}

func TestGetUserProfile_MissingIsNotAnError(t *testing.T) {
	s, mock, closeDB := setupMockStore(t)
	defer closeDB()

	mock.ExpectQuery("SELECT latent_factors, application_history").
		WithArgs(int64(7)).
		WillReturnError(sql.ErrNoRows)

	profile, err := s.GetUserProfile(context.Background(), 7)
	assert.NoError(t, err)
	assert.Nil(t, profile)
}

func TestGetUserProfile_MalformedColumnsDegrade(t *testing.T) {
	s, mock, closeDB := setupMockStore(t)
	defer closeDB()

	rows := sqlmock.NewRows([]string{"latent_factors", "application_history", "click_history", "completeness"}).
		AddRow(`not-json`, `[{"jobId":5,"category":"engineering"}]`, `[]`, 0.8)

	mock.ExpectQuery("SELECT latent_factors, application_history").
		WithArgs(int64(7)).
		WillReturnRows(rows)

	profile, err := s.GetUserProfile(context.Background(), 7)
	require.NoError(t, err)
	assert.Nil(t, profile.LatentFactors)
	assert.Len(t, profile.ApplicationHistory, 1)
	assert.Equal(t, 0.8, profile.Completeness)
}

func TestListUserIDs(t *testing.T) {
	s, mock, closeDB := setupMockStore(t)
	defer closeDB()

	t.Run("full listing pages by offset", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"id"}).AddRow(int64(1)).AddRow(int64(2)).AddRow(int64(3))
		mock.ExpectQuery("SELECT id FROM users WHERE active ORDER BY id").
			WithArgs(int64(0), int64(100)).
			WillReturnRows(rows)

		ids, err := s.ListUserIDs(context.Background(), time.Time{}, 0, 100)
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 2, 3}, ids)
	})

	t.Run("incremental listing filters by updated_at", func(t *testing.T) {
		since := time.Now().Add(-time.Hour)
		rows := sqlmock.NewRows([]string{"id"}).AddRow(int64(9))
		mock.ExpectQuery("SELECT id FROM users WHERE active AND updated_at").
			WithArgs(int64(0), int64(100), since).
			WillReturnRows(rows)

		ids, err := s.ListUserIDs(context.Background(), since, 0, 100)
		require.NoError(t, err)
		assert.Equal(t, []int64{9}, ids)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// JobStore
// ==========================

func jobRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "title", "headline", "description", "free_text", "category",
		"prefecture", "region", "remote_allowed", "flexible_schedule",
		"salary_min", "salary_max", "feature_vector", "published_at", "updated_at",
	}).AddRow(int64(100), "Backend Engineer", "", "", "golang postgres", "engineering",
		"tokyo", "kanto", true, false, 300000, 450000, `[0.1,0.2]`, time.Now(), time.Now())
}

func TestListCandidateJobs(t *testing.T) {
	s, mock, closeDB := setupMockStore(t)
	defer closeDB()

	t.Run("preference filters narrow the pool", func(t *testing.T) {
		mock.ExpectQuery(`FROM jobs\s+WHERE active AND published_at > \$1 AND category = ANY\(\$2\) AND \(prefecture = \$3 OR remote_allowed\)`).
			WithArgs(sqlmock.AnyArg(), pq.Array([]string{"engineering"}), "tokyo", 50).
			WillReturnRows(jobRows())

		jobs, err := s.ListCandidateJobs(context.Background(), CandidateFilter{
			Categories: []string{"engineering"},
			Prefecture: "tokyo",
			Limit:      50,
		})
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, "golang postgres", jobs[0].FreeText)
		assert.Equal(t, []float64{0.1, 0.2}, jobs[0].FeatureVector)
	})

	t.Run("empty filter keeps the pool broad", func(t *testing.T) {
		mock.ExpectQuery(`FROM jobs\s+WHERE active AND published_at > \$1 ORDER BY published_at DESC, id LIMIT \$2`).
			WithArgs(sqlmock.AnyArg(), 1000).
			WillReturnRows(jobRows())

		jobs, err := s.ListCandidateJobs(context.Background(), CandidateFilter{})
		require.NoError(t, err)
		assert.Len(t, jobs, 1)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestJobChange(t *testing.T) {
	s, mock, closeDB := setupMockStore(t)
	defer closeDB()

	last := time.Now().Add(-10 * time.Minute).UTC()
	mock.ExpectQuery(`SELECT COALESCE\(MAX\(updated_at\)`).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(last))

	got, err := s.LatestJobChange(context.Background())
	require.NoError(t, err)
	assert.True(t, got.Equal(last))
}

// ==========================
// AllocationStore
// ==========================

func TestPersistAllocation_Upsert(t *testing.T) {
	s, mock, closeDB := setupMockStore(t)
	defer closeDB()

	alloc := &models.Allocation{
		UserID:     7,
		BatchRunID: "run-1",
		Sections: []models.Section{{
			Name: "editorial_picks",
			Jobs: []models.ScoredJob{{
				Job:       models.Job{ID: 100, Title: "Backend Engineer"},
				Composite: models.CompositeScore{Value: 88, Strategy: "weighted_average"},
			}},
		}},
	}
	payload, _ := json.Marshal(alloc.Sections)

	mock.ExpectExec("INSERT INTO allocations").
		WithArgs(int64(7), "run-1", payload, false).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, s.PersistAllocation(context.Background(), alloc))

	// Re-persisting the same key upserts instead of duplicating.
	mock.ExpectExec("INSERT INTO allocations").
		WithArgs(int64(7), "run-1", payload, false).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, s.PersistAllocation(context.Background(), alloc))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPersistAllocation_FailureIsRetryable(t *testing.T) {
	s, mock, closeDB := setupMockStore(t)
	defer closeDB()

	mock.ExpectExec("INSERT INTO allocations").
		WillReturnError(sql.ErrConnDone)

	err := s.PersistAllocation(context.Background(), &models.Allocation{UserID: 7, BatchRunID: "run-1"})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodePersistFailed, apperrors.CodeOf(err))
	assert.True(t, apperrors.IsRetryable(err))
}

// ==========================
// KeywordStore
// ==========================

func TestGetKeywordTable(t *testing.T) {
	s, mock, closeDB := setupMockStore(t)
	defer closeDB()

	rows := sqlmock.NewRows([]string{"term", "search_volume", "intent"}).
		AddRow("engineer", 12000, "commercial").
		AddRow("night shift", 800, "transactional")

	mock.ExpectQuery("SELECT term, search_volume, intent FROM keyword_relevance").
		WillReturnRows(rows)

	entries, err := s.GetKeywordTable(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.IntentCommercial, entries[0].Intent)
	assert.Equal(t, 12000, entries[0].SearchVolume)
}

// ==========================
// BatchJobStore
// ==========================

func TestBatchJobLifecycle(t *testing.T) {
	s, mock, closeDB := setupMockStore(t)
	defer closeDB()

	rec := &models.BatchJobRecord{
		ID:        "run-1",
		Scope:     models.BatchScope{Full: true},
		Status:    models.BatchStatusPending,
		StartedAt: time.Now().UTC(),
		Metrics:   models.RunMetrics{},
	}

	mock.ExpectExec("INSERT INTO batch_jobs").
		WithArgs(rec.ID, sqlmock.AnyArg(), rec.Status, rec.StartedAt, 0, "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, s.CreateBatchJob(context.Background(), rec))

	rec.Status = models.BatchStatusCompleted
	rec.FinishedAt = time.Now().UTC()
	rec.Metrics.Processed = 42

	mock.ExpectExec("UPDATE batch_jobs").
		WithArgs(rec.ID, rec.Status, rec.FinishedAt, 0, "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, s.UpdateBatchJob(context.Background(), rec))

	scope, _ := json.Marshal(rec.Scope)
	metrics, _ := json.Marshal(rec.Metrics)
	rows := sqlmock.NewRows([]string{
		"id", "scope", "status", "started_at", "finished_at", "retry_count", "error_detail", "metrics",
	}).AddRow(rec.ID, scope, rec.Status, rec.StartedAt, rec.FinishedAt, 0, "", metrics)

	mock.ExpectQuery("SELECT id, scope, status").
		WithArgs(rec.ID).
		WillReturnRows(rows)

	got, err := s.GetBatchJob(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusCompleted, got.Status)
	assert.True(t, got.Scope.Full)
	assert.Equal(t, 42, got.Metrics.Processed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindInterrupted_NoneRunning(t *testing.T) {
	s, mock, closeDB := setupMockStore(t)
	defer closeDB()

	mock.ExpectQuery("SELECT id, scope, status").
		WithArgs(models.BatchStatusRunning).
		WillReturnError(sql.ErrNoRows)

	rec, err := s.FindInterrupted(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, rec)
}

func TestPruneBatchJobs(t *testing.T) {
	s, mock, closeDB := setupMockStore(t)
	defer closeDB()

	cutoff := time.Now().AddDate(0, 0, -30)
	mock.ExpectExec("DELETE FROM batch_jobs").
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 3))

	pruned, err := s.PruneBatchJobs(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(3), pruned)
}

// ==========================
// Error Classification
// ==========================

func TestWrapStoreErr(t *testing.T) {
	t.Run("deadline exceeded becomes timeout", func(t *testing.T) {
		ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
		defer cancel()

		err := wrapStoreErr(ctx, context.DeadlineExceeded)
		assert.Equal(t, apperrors.ErrCodeStoreTimeout, apperrors.CodeOf(err))
		assert.True(t, apperrors.IsRetryable(err))
	})

	t.Run("other failures become unavailability", func(t *testing.T) {
		err := wrapStoreErr(context.Background(), sql.ErrConnDone)
		assert.Equal(t, apperrors.ErrCodeStoreUnavailable, apperrors.CodeOf(err))
		assert.True(t, apperrors.IsRetryable(err))
	})
}
