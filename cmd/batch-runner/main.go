package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"jobmail-engine/internal/batch"
	"jobmail-engine/internal/common/config"
	"jobmail-engine/internal/common/database"
	"jobmail-engine/internal/common/logger"
	"jobmail-engine/internal/common/observability"
	"jobmail-engine/internal/common/validation"
	"jobmail-engine/internal/models"
	"jobmail-engine/internal/store"
)

func main() {
	fullScope := flag.Bool("full", false, "process the whole population instead of changes since the last checkpoint")
	sinceFlag := flag.String("since", "", "incremental boundary (RFC3339); overrides the checkpoint timestamp")
	onceFlag := flag.Bool("once", false, "run a single batch and exit even when schedule_interval is set")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewStructured(cfg.Logging.Level, cfg.Logging.Format)
	log.Info("starting batch runner", map[string]interface{}{
		"app":         cfg.App.Name,
		"version":     cfg.App.Version,
		"environment": cfg.App.Environment,
	})

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, obs, *fullScope, *sinceFlag, *onceFlag); err != nil {
		log.Error("batch runner exited with error", map[string]interface{}{"error": err})
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log logger.Logger, obs *observability.Observability, full bool, sinceRaw string, once bool) error {
	var since time.Time
	if sinceRaw != "" {
		parsed, err := time.Parse(time.RFC3339, sinceRaw)
		if err != nil {
			return fmt.Errorf("invalid -since value: %w", err)
		}
		since = parsed
	}

	pg, err := connectPostgres(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer pg.Close()

	rdb, err := connectRedis(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer rdb.Close()

	es, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
	if err != nil {
		return err
	}

	specs, err := loadSectionSpecs(cfg, log)
	if err != nil {
		return err
	}

	notifier, err := buildNotifier(ctx, cfg, log)
	if err != nil {
		return err
	}

	pgStore := store.NewPostgresStore(pg.DB, log)
	stores := batch.Stores{
		Users:       pgStore,
		Jobs:        pgStore,
		Secondary:   store.NewESSecondaryPool(es.Client, cfg.Database.Elasticsearch.JobIndex, log),
		Keywords:    pgStore,
		Allocations: pgStore,
		BatchJobs:   pgStore,
		Checkpoints: store.NewRedisCheckpointStore(rdb.Client),
	}

	orch, err := batch.New(cfg, specs, stores, notifier, obs, log)
	if err != nil {
		return err
	}

	startOpsListener(cfg.App.HTTPAddress, log)

	scope := models.BatchScope{Full: full, Since: since}
	if adopted, err := orch.AdoptInterrupted(ctx); err != nil {
		log.Warn("could not check for interrupted runs", map[string]interface{}{"error": err})
	} else if adopted != nil {
		scope = *adopted
	}

	interval := time.Duration(cfg.Batch.ScheduleInterval) * time.Minute
	if once || interval <= 0 {
		rec, err := orch.Run(ctx, scope)
		if err != nil {
			return err
		}
		if rec.Status == models.BatchStatusFailed {
			return fmt.Errorf("run %s failed: %s", rec.ID, rec.ErrorDetail)
		}
		return nil
	}

	return runOnSchedule(ctx, orch, scope, interval, log)
}

// runOnSchedule runs immediately, then on every tick. Later runs are
// incremental regardless of the first scope: the checkpoint timestamp
// bounds them.
func runOnSchedule(ctx context.Context, orch *batch.Orchestrator, first models.BatchScope, interval time.Duration, log logger.Logger) error {
	scope := first
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := orch.Run(ctx, scope); err != nil {
			log.Error("scheduled run failed", map[string]interface{}{"error": err})
		}
		scope = models.BatchScope{}

		select {
		case <-ctx.Done():
			log.Info("shutting down", nil)
			return nil
		case <-ticker.C:
		}
	}
}

func connectPostgres(ctx context.Context, cfg *config.Config, log logger.Logger) (*database.PostgresClient, error) {
	var client *database.PostgresClient
	err := retryWithBackoff(ctx, "postgres", log, func() error {
		c, err := database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		if err := c.Ping(ctx); err != nil {
			c.Close()
			return err
		}
		client = c
		return nil
	})
	return client, err
}

func connectRedis(ctx context.Context, cfg *config.Config, log logger.Logger) (*database.RedisClient, error) {
	var client *database.RedisClient
	err := retryWithBackoff(ctx, "redis", log, func() error {
		c, err := database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		if err := c.Ping(ctx); err != nil {
			c.Close()
			return err
		}
		client = c
		return nil
	})
	return client, err
}

// retryWithBackoff retries infrastructure connects with exponential delay.
func retryWithBackoff(ctx context.Context, name string, log logger.Logger, op func() error) error {
	const maxAttempts = 5
	delay := time.Second

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		if attempt == maxAttempts {
			break
		}
		log.Warn("connection failed, retrying", map[string]interface{}{
			"target":  name,
			"attempt": attempt,
			"delay":   delay.String(),
			"error":   err,
		})
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
	}
	return fmt.Errorf("connect %s: %w", name, err)
}

func loadSectionSpecs(cfg *config.Config, log logger.Logger) ([]models.SectionSpec, error) {
	if cfg.Allocation.SectionSpecPath == "" {
		return validation.DefaultSectionSpecs(), nil
	}
	specs, err := validation.LoadSectionSpecs(cfg.Allocation.SectionSpecPath)
	if err != nil {
		return nil, err
	}
	log.Info("loaded section specs", map[string]interface{}{
		"path":     cfg.Allocation.SectionSpecPath,
		"sections": len(specs),
	})
	return specs, nil
}

func buildNotifier(ctx context.Context, cfg *config.Config, log logger.Logger) (batch.Notifier, error) {
	if !cfg.Notifications.SNS.Enabled && !cfg.Notifications.OpsAlert.Enabled {
		return nil, nil
	}
	return batch.NewAWSNotifier(ctx, cfg.Notifications, log)
}

// startOpsListener serves /metrics and pprof. Failures are logged, never
// fatal: the batch itself does not depend on the listener.
func startOpsListener(address string, log logger.Logger) {
	if address == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	go func() {
		log.Info("ops listener starting", map[string]interface{}{"address": address})
		if err := http.ListenAndServe(address, mux); err != nil {
			log.Warn("ops listener stopped", map[string]interface{}{"error": err})
		}
	}()
}
