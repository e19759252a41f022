package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	apperrors "jobmail-engine/internal/common/errors"
	"jobmail-engine/internal/common/logger"
	"jobmail-engine/internal/models"
)

// PostgresStore implements UserStore, JobStore, KeywordStore,
// AllocationStore and BatchJobStore on a single connection pool.
type PostgresStore struct {
	db     *sql.DB
	logger logger.Logger
}

var (
	_ UserStore       = (*PostgresStore)(nil)
	_ JobStore        = (*PostgresStore)(nil)
	_ KeywordStore    = (*PostgresStore)(nil)
	_ AllocationStore = (*PostgresStore)(nil)
	_ BatchJobStore   = (*PostgresStore)(nil)
)

func NewPostgresStore(db *sql.DB, log logger.Logger) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "postgres-store"}),
	}
}

// --- UserStore ---

func (s *PostgresStore) GetUser(ctx context.Context, id int64) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, email, preferred_categories, preferred_prefecture,
		       preferred_region, salary_min, salary_max, flexible_only, updated_at
		FROM users WHERE id = $1`, id)

	var u models.User
	var categories []byte
	err := row.Scan(&u.ID, &u.Email, &categories, &u.PreferredPrefecture,
		&u.PreferredRegion, &u.SalaryMin, &u.SalaryMax, &u.FlexibleOnly, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewSubjectNotFoundError(id)
	}
	if err != nil {
		return nil, wrapStoreErr(ctx, err)
	}

	if err := json.Unmarshal(categories, &u.PreferredCategories); err != nil {
		u.PreferredCategories = []string{}
	}
	return &u, nil
}

func (s *PostgresStore) GetUserProfile(ctx context.Context, id int64) (*models.UserProfile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT latent_factors, application_history, click_history, completeness
		FROM user_profiles WHERE user_id = $1`, id)

	var p models.UserProfile
	var latent, applications, clicks []byte
	err := row.Scan(&latent, &applications, &clicks, &p.Completeness)
	if errors.Is(err, sql.ErrNoRows) {
		// Profiles are optional; scoring tolerates their absence.
		return nil, nil
	}
	if err != nil {
		return nil, wrapStoreErr(ctx, err)
	}

	// Malformed optional columns degrade to absent signals.
	if err := json.Unmarshal(latent, &p.LatentFactors); err != nil {
		p.LatentFactors = nil
	}
	if err := json.Unmarshal(applications, &p.ApplicationHistory); err != nil {
		p.ApplicationHistory = nil
	}
	if err := json.Unmarshal(clicks, &p.ClickHistory); err != nil {
		p.ClickHistory = nil
	}
	return &p, nil
}

func (s *PostgresStore) ListUserIDs(ctx context.Context, since time.Time, offset, limit int64) ([]int64, error) {
	query := `SELECT id FROM users WHERE active ORDER BY id OFFSET $1 LIMIT $2`
	args := []interface{}{offset, limit}
	if !since.IsZero() {
		query = `SELECT id FROM users WHERE active AND updated_at > $3 ORDER BY id OFFSET $1 LIMIT $2`
		args = append(args, since)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapStoreErr(ctx, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, wrapStoreErr(ctx, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// --- JobStore ---

func (s *PostgresStore) ListCandidateJobs(ctx context.Context, f CandidateFilter) ([]models.Job, error) {
	query := `
		SELECT id, title, headline, description, free_text, category,
		       prefecture, region, remote_allowed, flexible_schedule,
		       salary_min, salary_max, feature_vector, published_at, updated_at
		FROM jobs
		WHERE active AND published_at > $1`

	// Listings older than the freshness horizon never reach a digest.
	horizon := time.Now().AddDate(0, -3, 0)
	args := []interface{}{horizon}

	if len(f.Categories) > 0 {
		args = append(args, pq.Array(f.Categories))
		query += fmt.Sprintf(" AND category = ANY($%d)", len(args))
	}
	if f.Prefecture != "" {
		args = append(args, f.Prefecture)
		query += fmt.Sprintf(" AND (prefecture = $%d OR remote_allowed)", len(args))
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 1000
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY published_at DESC, id LIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapStoreErr(ctx, err)
	}
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		var j models.Job
		var features []byte
		err := rows.Scan(&j.ID, &j.Title, &j.Headline, &j.Description, &j.FreeText,
			&j.Category, &j.Prefecture, &j.Region, &j.RemoteAllowed, &j.FlexibleSchedule,
			&j.SalaryMin, &j.SalaryMax, &features, &j.PublishedAt, &j.UpdatedAt)
		if err != nil {
			return nil, wrapStoreErr(ctx, err)
		}
		if err := json.Unmarshal(features, &j.FeatureVector); err != nil {
			j.FeatureVector = nil
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (s *PostgresStore) LatestJobChange(ctx context.Context) (time.Time, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(updated_at), 'epoch'::timestamptz) FROM jobs WHERE active`)

	var last time.Time
	if err := row.Scan(&last); err != nil {
		return time.Time{}, wrapStoreErr(ctx, err)
	}
	return last, nil
}

// --- KeywordStore ---

func (s *PostgresStore) GetKeywordTable(ctx context.Context) ([]models.KeywordEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT term, search_volume, intent FROM keyword_relevance
		ORDER BY search_volume DESC, term`)
	if err != nil {
		return nil, wrapStoreErr(ctx, err)
	}
	defer rows.Close()

	var entries []models.KeywordEntry
	for rows.Next() {
		var e models.KeywordEntry
		var intent string
		if err := rows.Scan(&e.Term, &e.SearchVolume, &intent); err != nil {
			return nil, wrapStoreErr(ctx, err)
		}
		e.Intent = models.KeywordIntent(intent)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- AllocationStore ---

// PersistAllocation upserts the whole allocation atomically, keyed by
// (user_id, batch_run_id). Re-running the same subject in the same run
// overwrites rather than duplicates.
func (s *PostgresStore) PersistAllocation(ctx context.Context, alloc *models.Allocation) error {
	payload, err := json.Marshal(alloc.Sections)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO allocations (user_id, batch_run_id, sections, diversity_not_met, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (user_id, batch_run_id)
		DO UPDATE SET sections = EXCLUDED.sections,
		              diversity_not_met = EXCLUDED.diversity_not_met,
		              created_at = NOW()`,
		alloc.UserID, alloc.BatchRunID, payload, alloc.DiversityNotMet)
	if err != nil {
		return apperrors.NewPersistFailedError(err)
	}
	return nil
}

// --- BatchJobStore ---

func (s *PostgresStore) CreateBatchJob(ctx context.Context, rec *models.BatchJobRecord) error {
	scope, _ := json.Marshal(rec.Scope)
	metrics, _ := json.Marshal(rec.Metrics)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO batch_jobs (id, scope, status, started_at, retry_count, error_detail, metrics)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, scope, rec.Status, rec.StartedAt, rec.RetryCount, rec.ErrorDetail, metrics)
	if err != nil {
		return wrapStoreErr(ctx, err)
	}
	return nil
}

func (s *PostgresStore) UpdateBatchJob(ctx context.Context, rec *models.BatchJobRecord) error {
	metrics, _ := json.Marshal(rec.Metrics)

	_, err := s.db.ExecContext(ctx, `
		UPDATE batch_jobs
		SET status = $2, finished_at = $3, retry_count = $4, error_detail = $5, metrics = $6
		WHERE id = $1`,
		rec.ID, rec.Status, nullableTime(rec.FinishedAt), rec.RetryCount, rec.ErrorDetail, metrics)
	if err != nil {
		return wrapStoreErr(ctx, err)
	}
	return nil
}

func (s *PostgresStore) GetBatchJob(ctx context.Context, id string) (*models.BatchJobRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, scope, status, started_at, finished_at, retry_count, error_detail, metrics
		FROM batch_jobs WHERE id = $1`, id)
	return scanBatchJob(ctx, row)
}

func (s *PostgresStore) FindInterrupted(ctx context.Context) (*models.BatchJobRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, scope, status, started_at, finished_at, retry_count, error_detail, metrics
		FROM batch_jobs WHERE status = $1
		ORDER BY started_at DESC LIMIT 1`, models.BatchStatusRunning)

	rec, err := scanBatchJob(ctx, row)
	if err != nil {
		var stdErr *apperrors.StandardError
		if errors.As(err, &stdErr) && stdErr.Code == apperrors.ErrCodeSubjectNotFound {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

func (s *PostgresStore) PruneBatchJobs(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM batch_jobs WHERE finished_at IS NOT NULL AND finished_at < $1`, olderThan)
	if err != nil {
		return 0, wrapStoreErr(ctx, err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBatchJob(ctx context.Context, row rowScanner) (*models.BatchJobRecord, error) {
	var rec models.BatchJobRecord
	var scope, metrics []byte
	var finished sql.NullTime

	err := row.Scan(&rec.ID, &scope, &rec.Status, &rec.StartedAt, &finished,
		&rec.RetryCount, &rec.ErrorDetail, &metrics)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewSubjectNotFoundError(0)
	}
	if err != nil {
		return nil, wrapStoreErr(ctx, err)
	}

	if finished.Valid {
		rec.FinishedAt = finished.Time
	}
	_ = json.Unmarshal(scope, &rec.Scope)
	_ = json.Unmarshal(metrics, &rec.Metrics)
	return &rec, nil
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}

// wrapStoreErr classifies low-level database failures: context deadline
// hits become retryable timeouts, everything else a retryable
// availability error.
func wrapStoreErr(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewStoreTimeoutError("postgres")
	}
	return apperrors.NewStoreUnavailableError(err)
}
