// Package batch drives the full scoring and allocation pipeline across the
// subject population: chunked dispatch to a bounded worker pool, per-run
// state machine, checkpointing, retries and incremental execution.
package batch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"jobmail-engine/internal/common/cache"
	"jobmail-engine/internal/common/config"
	apperrors "jobmail-engine/internal/common/errors"
	"jobmail-engine/internal/common/logger"
	"jobmail-engine/internal/common/metrics"
	"jobmail-engine/internal/common/observability"
	"jobmail-engine/internal/engine/aggregate"
	"jobmail-engine/internal/engine/allocate"
	"jobmail-engine/internal/engine/scorecalc"
	"jobmail-engine/internal/engine/supplement"
	"jobmail-engine/internal/models"
	"jobmail-engine/internal/store"
)

// Stores bundles the data-access contracts the orchestrator consumes.
type Stores struct {
	Users       store.UserStore
	Jobs        store.JobStore
	Secondary   store.SecondaryPool
	Keywords    store.KeywordStore
	Allocations store.AllocationStore
	BatchJobs   store.BatchJobStore
	Checkpoints store.CheckpointStore
}

// Notifier is told when a run finishes. Implementations must be safe to
// call from the orchestrator goroutine; failures are logged, not fatal.
type Notifier interface {
	NotifyRunFinished(ctx context.Context, rec *models.BatchJobRecord) error
}

// Orchestrator owns the batch lifecycle. Workers share only read-only
// configuration and the injected snapshot cache.
type Orchestrator struct {
	batchCfg config.BatchConfig
	allocCfg config.AllocationConfig
	scoring  config.ScoringConfig

	stores     Stores
	aggregator *aggregate.Aggregator
	allocator  *allocate.Allocator
	supplement *supplement.Engine
	readCache  *cache.Snapshot
	notifier   Notifier
	obs        *observability.Observability
	logger     logger.Logger

	mu     sync.Mutex
	active map[string]*runHandle

	kwMu       sync.Mutex
	keywords   []models.KeywordEntry
	keywordsAt time.Time
}

type runHandle struct {
	cancelled atomic.Bool

	// State as of the last checkpoint this run saved. A retried attempt
	// resumes from that checkpoint, so its counters roll back to match.
	checkpointSaved bool
	checkpointed    models.RunMetrics
}

// New wires the orchestrator. Section specs and weights were validated at
// configuration load; New only assembles.
func New(cfg *config.Config, specs []models.SectionSpec, stores Stores, notifier Notifier, obs *observability.Observability, log logger.Logger) (*Orchestrator, error) {
	aggregator, err := aggregate.New(cfg.Scoring)
	if err != nil {
		return nil, err
	}
	allocator, err := allocate.New(specs, cfg.Allocation.DiversityFloor, log)
	if err != nil {
		return nil, err
	}

	return &Orchestrator{
		batchCfg:   cfg.Batch,
		allocCfg:   cfg.Allocation,
		scoring:    cfg.Scoring,
		stores:     stores,
		aggregator: aggregator,
		allocator:  allocator,
		supplement: supplement.New(cfg.Allocation.FallbackScore, log),
		readCache:  cache.New(cfg.Cache.MaxEntries, time.Duration(cfg.Cache.TTL)*time.Second),
		notifier:   notifier,
		obs:        obs,
		logger:     log.WithFields(map[string]interface{}{"component": "batch"}),
	}, nil
}

// TriggerRun schedules a run and returns its job id immediately.
func (o *Orchestrator) TriggerRun(ctx context.Context, scope models.BatchScope) (string, error) {
	rec := o.newRecord(scope)
	if err := o.stores.BatchJobs.CreateBatchJob(ctx, rec); err != nil {
		return "", err
	}

	handle := &runHandle{}
	o.mu.Lock()
	if o.active == nil {
		o.active = map[string]*runHandle{}
	}
	o.active[rec.ID] = handle
	o.mu.Unlock()

	go func() {
		defer func() {
			o.mu.Lock()
			delete(o.active, rec.ID)
			o.mu.Unlock()
		}()
		if _, err := o.executeWithRetries(context.Background(), rec, handle); err != nil {
			o.logger.Error("run failed", map[string]interface{}{
				"runId": rec.ID,
				"error": err,
			})
		}
	}()

	return rec.ID, nil
}

// Run executes a run synchronously and returns its final record.
func (o *Orchestrator) Run(ctx context.Context, scope models.BatchScope) (*models.BatchJobRecord, error) {
	rec := o.newRecord(scope)
	if err := o.stores.BatchJobs.CreateBatchJob(ctx, rec); err != nil {
		return nil, err
	}
	return o.executeWithRetries(ctx, rec, &runHandle{})
}

// executeWithRetries reruns a failed run while its failure is transient
// and the retry budget lasts: failed -> retry_scheduled -> running. The
// rerun resumes from the last checkpoint so completed subjects are not
// reprocessed.
func (o *Orchestrator) executeWithRetries(ctx context.Context, rec *models.BatchJobRecord, handle *runHandle) (*models.BatchJobRecord, error) {
	for {
		finished, err := o.execute(ctx, rec, handle)
		if finished.Status != models.BatchStatusFailed ||
			!apperrors.IsRetryable(err) ||
			rec.RetryCount >= o.batchCfg.MaxRetries {
			return finished, err
		}

		rec.RetryCount++
		rec.Status = models.BatchStatusRetryScheduled
		rec.ErrorDetail = ""
		// Resume only from a checkpoint this run wrote itself; an older
		// run's checkpoint describes a different population window.
		if handle.checkpointSaved {
			rec.Scope.Resume = true
		}
		// Subjects past the last checkpoint are reprocessed by the next
		// attempt, so their counts roll back with the offset.
		rec.Metrics = cloneRunMetrics(handle.checkpointed)
		if updateErr := o.stores.BatchJobs.UpdateBatchJob(ctx, rec); updateErr != nil {
			return finished, err
		}

		delay := time.Duration(o.batchCfg.RetryInitialDelay) * time.Millisecond
		if o.batchCfg.RetryBackoff == "exponential" {
			delay <<= rec.RetryCount - 1
		}
		o.logger.Warn("run failed transiently, rescheduling", map[string]interface{}{
			"runId":   rec.ID,
			"attempt": rec.RetryCount,
			"delay":   delay.String(),
		})

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return finished, err
		}
	}
}

// AdoptInterrupted finalizes a run that a previous process left in the
// running state and returns its scope with Resume set, so the caller can
// pick up from the last checkpoint under a fresh record. Returns nil when
// nothing was interrupted.
func (o *Orchestrator) AdoptInterrupted(ctx context.Context) (*models.BatchScope, error) {
	rec, err := o.stores.BatchJobs.FindInterrupted(ctx)
	if err != nil || rec == nil {
		return nil, err
	}

	rec.Status = models.BatchStatusFailed
	rec.FinishedAt = time.Now().UTC()
	rec.ErrorDetail = "interrupted by process shutdown"
	if err := o.stores.BatchJobs.UpdateBatchJob(ctx, rec); err != nil {
		return nil, err
	}
	o.logger.Info("adopted interrupted run", map[string]interface{}{
		"previousRunId": rec.ID,
	})

	scope := rec.Scope
	scope.Resume = true
	return &scope, nil
}

// Cancel flags a run for cooperative cancellation. In-flight chunk work
// completes; no partial per-subject result is persisted inconsistently.
func (o *Orchestrator) Cancel(jobID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	handle, ok := o.active[jobID]
	if !ok {
		return false
	}
	handle.cancelled.Store(true)
	return true
}

// JobStatus returns the batch job record for the external status API.
func (o *Orchestrator) JobStatus(ctx context.Context, jobID string) (*models.BatchJobRecord, error) {
	return o.stores.BatchJobs.GetBatchJob(ctx, jobID)
}

// RunMetricsFor returns the run metrics for the external status API.
func (o *Orchestrator) RunMetricsFor(ctx context.Context, jobID string) (*models.RunMetrics, error) {
	rec, err := o.stores.BatchJobs.GetBatchJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return &rec.Metrics, nil
}

func (o *Orchestrator) newRecord(scope models.BatchScope) *models.BatchJobRecord {
	return &models.BatchJobRecord{
		ID:        uuid.NewString(),
		Scope:     scope,
		Status:    models.BatchStatusPending,
		StartedAt: time.Now().UTC(),
		Metrics:   models.RunMetrics{QualityWarnings: map[string]int{}},
	}
}

// execute runs the state machine for one record:
// pending -> running -> completed | failed | cancelled.
func (o *Orchestrator) execute(ctx context.Context, rec *models.BatchJobRecord, handle *runHandle) (*models.BatchJobRecord, error) {
	start := time.Now()
	log := o.logger.WithFields(map[string]interface{}{"runId": rec.ID})

	leaseTTL := 2 * time.Duration(o.batchCfg.IOTimeout) * time.Millisecond
	if leaseTTL < time.Minute {
		leaseTTL = time.Minute
	}
	acquired, err := o.stores.Checkpoints.AcquireLease(ctx, rec.ID, leaseTTL)
	if err != nil {
		return o.finish(ctx, rec, models.BatchStatusFailed, err, start)
	}
	if !acquired {
		leaseErr := apperrors.NewConfigurationError("another orchestrator instance holds the checkpoint lease")
		return o.finish(ctx, rec, models.BatchStatusFailed, leaseErr, start)
	}
	defer func() {
		_ = o.stores.Checkpoints.ReleaseLease(context.Background(), rec.ID)
	}()

	rec.Status = models.BatchStatusRunning
	if err := o.stores.BatchJobs.UpdateBatchJob(ctx, rec); err != nil {
		return o.finish(ctx, rec, models.BatchStatusFailed, err, start)
	}

	// Fatal failures abort before any work is dispatched.
	calc, err := o.buildCalculator(ctx, log)
	if err != nil {
		return o.finish(ctx, rec, models.BatchStatusFailed, err, start)
	}

	since, offset, watermark, err := o.resolveWindow(ctx, rec.Scope)
	if err != nil {
		return o.finish(ctx, rec, models.BatchStatusFailed, err, start)
	}

	log.Info("batch run starting", map[string]interface{}{
		"full":   rec.Scope.Full,
		"since":  since,
		"offset": offset,
	})

	status, runErr := o.processPopulation(ctx, rec, handle, calc, since, offset, watermark, log)
	return o.finish(ctx, rec, status, runErr, start)
}

// buildCalculator assembles the per-run score calculator on top of the
// keyword relevance table. The table is cached across scheduled runs and
// reloaded once keyword_table_refresh seconds have passed.
func (o *Orchestrator) buildCalculator(ctx context.Context, log logger.Logger) (*scorecalc.Calculator, error) {
	keywords, err := o.keywordTable(ctx)
	if err != nil {
		return nil, err
	}

	return scorecalc.NewCalculator(scorecalc.Config{
		MaxKeywordMatches: o.scoring.MaxKeywordMatches,
	}, keywords, log), nil
}

func (o *Orchestrator) keywordTable(ctx context.Context) ([]models.KeywordEntry, error) {
	o.kwMu.Lock()
	defer o.kwMu.Unlock()

	maxAge := time.Duration(o.scoring.KeywordTableRefresh) * time.Second
	if o.keywords != nil && maxAge > 0 && time.Since(o.keywordsAt) < maxAge {
		return o.keywords, nil
	}

	var keywords []models.KeywordEntry
	err := o.retryTransient(ctx, "load keyword table", func() error {
		loadCtx, cancel := o.ioContext(ctx)
		defer cancel()
		var err error
		keywords, err = o.stores.Keywords.GetKeywordTable(loadCtx)
		return err
	})
	if err != nil {
		return nil, err
	}

	o.keywords = keywords
	o.keywordsAt = time.Now()
	return keywords, nil
}

// resolveWindow decides the incremental boundary, start offset and the
// watermark the run's checkpoints carry. A non-full scope without an
// explicit since falls back to the checkpoint timestamp; resume starts at
// the checkpoint offset.
func (o *Orchestrator) resolveWindow(ctx context.Context, scope models.BatchScope) (time.Time, int64, time.Time, error) {
	var since time.Time
	var offset int64

	// The watermark becomes the next incremental boundary, so it must
	// predate every subject read in this run: fix it before any listing.
	// A resumed run inherits the interrupted attempt's watermark, since
	// that attempt did the earlier reads.
	watermark := time.Now().UTC()

	if !scope.Full {
		since = scope.Since
	}

	needCheckpoint := (!scope.Full && since.IsZero()) || scope.Resume
	if needCheckpoint {
		cp, err := o.stores.Checkpoints.LoadCheckpoint(ctx)
		if err != nil {
			return since, 0, watermark, err
		}
		if cp != nil {
			if !scope.Full && since.IsZero() {
				since = cp.Timestamp
			}
			if scope.Resume {
				offset = cp.Offset
				if !cp.Timestamp.IsZero() {
					watermark = cp.Timestamp
				}
			}
		}
	}

	if !since.IsZero() {
		lastChange, err := o.latestItemChange(ctx)
		if err != nil {
			return since, offset, watermark, err
		}
		if lastChange.After(since) {
			// An item mutation can alter any subject's slate, so the
			// incremental window widens to the whole population.
			o.logger.Info("items changed since the incremental boundary, widening to full population", map[string]interface{}{
				"since":      since,
				"lastChange": lastChange,
			})
			since = time.Time{}
		}
	}

	return since, offset, watermark, nil
}

func (o *Orchestrator) latestItemChange(ctx context.Context) (time.Time, error) {
	var last time.Time
	err := o.retryTransient(ctx, "latest item change", func() error {
		loadCtx, cancel := o.ioContext(ctx)
		defer cancel()
		var err error
		last, err = o.stores.Jobs.LatestJobChange(loadCtx)
		return err
	})
	return last, err
}

func (o *Orchestrator) ioContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, time.Duration(o.batchCfg.IOTimeout)*time.Millisecond)
}

// finish closes out the record, prunes old history and notifies.
func (o *Orchestrator) finish(ctx context.Context, rec *models.BatchJobRecord, status string, runErr error, start time.Time) (*models.BatchJobRecord, error) {
	rec.Status = status
	rec.FinishedAt = time.Now().UTC()
	rec.Metrics.Duration = time.Since(start)
	if runErr != nil {
		rec.ErrorDetail = runErr.Error()
	}

	metrics.BatchDuration.Observe(rec.Metrics.Duration.Seconds())

	if err := o.stores.BatchJobs.UpdateBatchJob(ctx, rec); err != nil {
		o.logger.Error("failed to update batch job record", map[string]interface{}{
			"runId": rec.ID,
			"error": err,
		})
	}

	if o.batchCfg.RetentionDays > 0 {
		cutoff := time.Now().UTC().AddDate(0, 0, -o.batchCfg.RetentionDays)
		if _, err := o.stores.BatchJobs.PruneBatchJobs(ctx, cutoff); err != nil {
			o.logger.Warn("batch history prune failed", map[string]interface{}{"error": err})
		}
	}

	if o.notifier != nil {
		if err := o.notifier.NotifyRunFinished(ctx, rec); err != nil {
			o.logger.Warn("run notification failed", map[string]interface{}{
				"runId": rec.ID,
				"error": err,
			})
		}
	}

	o.logger.Info("batch run finished", map[string]interface{}{
		"runId":     rec.ID,
		"status":    rec.Status,
		"processed": rec.Metrics.Processed,
		"failed":    rec.Metrics.Failed,
		"duration":  rec.Metrics.Duration.String(),
	})

	return rec, runErr
}

// processPopulation walks the subject population in chunks, fanning each
// chunk out to the bounded worker pool. The cancel flag is honored only
// between chunks so no subject is left half-processed.
func (o *Orchestrator) processPopulation(ctx context.Context, rec *models.BatchJobRecord, handle *runHandle, calc *scorecalc.Calculator, since time.Time, offset int64, watermark time.Time, log logger.Logger) (string, error) {
	var sinceCheckpoint int

	for {
		if handle.cancelled.Load() || ctx.Err() != nil {
			log.Info("batch run cancelled", map[string]interface{}{"offset": offset})
			return models.BatchStatusCancelled, nil
		}

		var ids []int64
		err := o.retryTransient(ctx, "list subjects", func() error {
			listCtx, cancel := o.ioContext(ctx)
			defer cancel()
			var err error
			ids, err = o.stores.Users.ListUserIDs(listCtx, since, offset, int64(o.batchCfg.BatchSize))
			return err
		})
		if err != nil {
			return models.BatchStatusFailed, err
		}
		if len(ids) == 0 {
			break
		}

		o.processChunk(ctx, rec, calc, ids, log)

		offset += int64(len(ids))
		sinceCheckpoint += len(ids)

		if sinceCheckpoint >= o.batchCfg.CheckpointInterval {
			if o.saveCheckpoint(ctx, offset, watermark, log) == nil {
				handle.checkpointSaved = true
				handle.checkpointed = cloneRunMetrics(rec.Metrics)
			}
			sinceCheckpoint = 0
		}
	}

	if o.saveCheckpoint(ctx, offset, watermark, log) == nil {
		handle.checkpointSaved = true
		handle.checkpointed = cloneRunMetrics(rec.Metrics)
	}
	return models.BatchStatusCompleted, nil
}

// processChunk runs one chunk through the worker pool. Subject failures
// are recorded, never propagated: a single subject cannot abort the run.
func (o *Orchestrator) processChunk(ctx context.Context, rec *models.BatchJobRecord, calc *scorecalc.Calculator, ids []int64, log logger.Logger) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.batchCfg.MaxParallelWorkers)

	var mu sync.Mutex

	for _, id := range ids {
		userID := id
		g.Go(func() error {
			metrics.WorkersActive.Inc()
			defer metrics.WorkersActive.Dec()

			subjStart := time.Now()
			result, err := o.processSubjectWithRetry(gctx, calc, userID, rec.ID)
			elapsed := time.Since(subjStart)
			metrics.SubjectDuration.Observe(elapsed.Seconds())
			if o.obs != nil {
				status := "ok"
				if err != nil {
					status = "failed"
				}
				o.obs.RecordSubjectProcessed(gctx, status)
				o.obs.RecordSubjectDuration(gctx, elapsed, status)
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				rec.Metrics.Failed++
				metrics.SubjectsProcessed.WithLabelValues("failed").Inc()
				metrics.SubjectsFailed.WithLabelValues(string(apperrors.CodeOf(err))).Inc()
				log.Error("subject failed", map[string]interface{}{
					"userId": userID,
					"error":  err,
				})
				return nil
			}

			rec.Metrics.Processed++
			metrics.SubjectsProcessed.WithLabelValues("ok").Inc()
			rec.Metrics.SupplementedPool += result.stats.PoolBorrowed
			rec.Metrics.SupplementedFallback += result.stats.FallbackCount
			metrics.SupplementedItems.WithLabelValues("pool").Add(float64(result.stats.PoolBorrowed))
			metrics.SupplementedItems.WithLabelValues("fallback").Add(float64(result.stats.FallbackCount))
			if result.diversityNotMet {
				rec.Metrics.DiversityNotMetCount++
				metrics.DiversityNotMet.Inc()
			}
			for kind, n := range result.quality.Warnings {
				rec.Metrics.QualityWarnings[kind] += n
				metrics.QualityWarnings.WithLabelValues(kind).Add(float64(n))
			}
			return nil
		})
	}

	_ = g.Wait()
}

// processSubjectWithRetry applies the transient retry policy to one
// subject pipeline. Non-retryable failures (missing subject, invariant
// violations) fail immediately.
func (o *Orchestrator) processSubjectWithRetry(ctx context.Context, calc *scorecalc.Calculator, userID int64, runID string) (*subjectResult, error) {
	var result *subjectResult
	err := o.retryTransient(ctx, fmt.Sprintf("subject %d", userID), func() error {
		var err error
		result, err = o.processSubject(ctx, calc, userID, runID)
		return err
	})
	return result, err
}

func (o *Orchestrator) saveCheckpoint(ctx context.Context, offset int64, watermark time.Time, log logger.Logger) error {
	cp := models.Checkpoint{Offset: offset, Timestamp: watermark}
	err := o.retryTransient(ctx, "save checkpoint", func() error {
		cpCtx, cancel := o.ioContext(ctx)
		defer cancel()
		return o.stores.Checkpoints.SaveCheckpoint(cpCtx, cp)
	})
	if err != nil {
		log.Error("checkpoint save failed", map[string]interface{}{
			"offset": offset,
			"error":  err,
		})
		return err
	}
	log.Debug("checkpoint saved", map[string]interface{}{"offset": offset})
	return nil
}

func cloneRunMetrics(m models.RunMetrics) models.RunMetrics {
	out := m
	out.QualityWarnings = make(map[string]int, len(m.QualityWarnings))
	for kind, n := range m.QualityWarnings {
		out.QualityWarnings[kind] = n
	}
	return out
}

// retryTransient retries an operation while it fails with a retryable
// error, with fixed or exponential delay between attempts.
func (o *Orchestrator) retryTransient(ctx context.Context, operation string, op func() error) error {
	delay := time.Duration(o.batchCfg.RetryInitialDelay) * time.Millisecond
	var err error

	for attempt := 0; attempt <= o.batchCfg.MaxRetries; attempt++ {
		err = op()
		if err == nil {
			return nil
		}
		if !apperrors.IsRetryable(err) {
			return err
		}
		if attempt == o.batchCfg.MaxRetries {
			break
		}

		o.logger.Warn("transient failure, retrying", map[string]interface{}{
			"operation": operation,
			"attempt":   attempt + 1,
			"delay":     delay.String(),
			"error":     err,
		})

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return err
		}
		if o.batchCfg.RetryBackoff == "exponential" {
			delay *= 2
		}
	}
	return err
}
