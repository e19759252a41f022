package batch

import (
	"context"
	"strconv"

	apperrors "jobmail-engine/internal/common/errors"
	"jobmail-engine/internal/engine/scorecalc"
	"jobmail-engine/internal/engine/supplement"
	"jobmail-engine/internal/models"
	"jobmail-engine/internal/store"
)

// secondaryFetchFactor oversizes the secondary pool query so duplicates of
// already selected ids still leave enough to borrow from.
const secondaryFetchFactor = 2

type subjectResult struct {
	stats           supplement.Stats
	quality         *scorecalc.QualityReport
	diversityNotMet bool
}

// processSubject runs the full pipeline for one subject: load, score,
// aggregate, allocate, supplement, persist. Each store call gets its own
// IO deadline; engine stages are pure and share nothing mutable.
func (o *Orchestrator) processSubject(ctx context.Context, calc *scorecalc.Calculator, userID int64, runID string) (*subjectResult, error) {
	user, err := o.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	profile, err := o.loadProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	jobs, err := o.loadCandidates(ctx, user)
	if err != nil {
		return nil, err
	}

	quality := &scorecalc.QualityReport{Warnings: map[string]int{}}
	scored := o.scorePool(calc, user, profile, jobs, quality)

	target := o.allocCfg.TotalRequired
	alloc, err := o.allocator.Allocate(userID, scored, target)
	if err != nil {
		return nil, err
	}

	var secondary []models.ScoredJob
	if alloc.Total() < target {
		secondary, err = o.loadSecondary(ctx, calc, user, profile, target, quality)
		if err != nil {
			return nil, err
		}
	}

	final, stats := o.supplement.EnsureTarget(user, alloc, secondary, target)
	final.BatchRunID = runID

	persistCtx, cancel := o.ioContext(ctx)
	defer cancel()
	if err := o.stores.Allocations.PersistAllocation(persistCtx, final); err != nil {
		return nil, err
	}

	return &subjectResult{
		stats:           stats,
		quality:         quality,
		diversityNotMet: final.DiversityNotMet,
	}, nil
}

func (o *Orchestrator) loadUser(ctx context.Context, userID int64) (*models.User, error) {
	loadCtx, cancel := o.ioContext(ctx)
	defer cancel()

	user, err := o.stores.Users.GetUser(loadCtx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperrors.NewSubjectNotFoundError(userID)
	}
	return user, nil
}

// loadProfile reads through the snapshot cache. A missing profile is not
// an error; the personalization scorer handles nil.
func (o *Orchestrator) loadProfile(ctx context.Context, userID int64) (*models.UserProfile, error) {
	key := profileCacheKey(userID)
	if cached, ok := o.readCache.Get(key); ok {
		profile, _ := cached.(*models.UserProfile)
		return profile, nil
	}

	loadCtx, cancel := o.ioContext(ctx)
	defer cancel()

	profile, err := o.stores.Users.GetUserProfile(loadCtx, userID)
	if err != nil {
		return nil, err
	}
	o.readCache.Set(key, profile)
	return profile, nil
}

func profileCacheKey(userID int64) string {
	return "profile:" + strconv.FormatInt(userID, 10)
}

func (o *Orchestrator) loadCandidates(ctx context.Context, user *models.User) ([]models.Job, error) {
	loadCtx, cancel := o.ioContext(ctx)
	defer cancel()

	return o.stores.Jobs.ListCandidateJobs(loadCtx, store.CandidateFilter{
		Categories: user.PreferredCategories,
		Prefecture: user.PreferredPrefecture,
		Limit:      o.allocCfg.CandidatePoolSize,
	})
}

// scorePool scores and aggregates every candidate. Scoring never fails a
// subject; bad data is clamped and surfaced via the quality report.
func (o *Orchestrator) scorePool(calc *scorecalc.Calculator, user *models.User, profile *models.UserProfile, jobs []models.Job, quality *scorecalc.QualityReport) []models.ScoredJob {
	scored := make([]models.ScoredJob, 0, len(jobs))
	for i := range jobs {
		components, report := calc.ScoreComponents(user, &jobs[i], profile)
		quality.Merge(report)
		scored = append(scored, models.ScoredJob{
			Job:        jobs[i],
			Components: components,
			Composite:  o.aggregator.Aggregate(components),
		})
	}
	return scored
}

// loadSecondary queries the broader pool and scores it with the same
// calculator so borrowed items rank consistently with primary ones.
func (o *Orchestrator) loadSecondary(ctx context.Context, calc *scorecalc.Calculator, user *models.User, profile *models.UserProfile, target int, quality *scorecalc.QualityReport) ([]models.ScoredJob, error) {
	searchCtx, cancel := o.ioContext(ctx)
	defer cancel()

	jobs, err := o.stores.Secondary.SearchSecondary(searchCtx, user, target*secondaryFetchFactor)
	if err != nil {
		return nil, err
	}
	return o.scorePool(calc, user, profile, jobs, quality), nil
}
