// internal/common/config/loader.go
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	apperrors "jobmail-engine/internal/common/errors"
)

// WeightEpsilon is the tolerance for the weight-sum check.
const WeightEpsilon = 1e-3

func Load() (*Config, error) {
	loadEnvFile()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	// Enable ENV override like DATABASE_POSTGRES_PASSWORD
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	// Zero is a meaningful value for these knobs, so their defaults live
	// at the viper layer where an explicit zero in the file wins.
	viper.SetDefault("scoring.completeness_bonus", 3.0)
	viper.SetDefault("allocation.fallback_score", 5.0)
	viper.SetDefault("allocation.diversity_floor", 4)

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// Environment-specific overrides, ignored when absent.
	viper.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = viper.MergeInConfig()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// ApplyDefaults fills unset fields with production defaults. Knobs where
// zero is a legal explicit value (completeness_bonus, fallback_score,
// diversity_floor) get their defaults in Load via viper instead.
func ApplyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "jobmail-engine"
	}
	if cfg.App.HTTPAddress == "" {
		cfg.App.HTTPAddress = ":9090"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if len(cfg.Scoring.Weights) == 0 {
		cfg.Scoring.Weights = map[string]float64{
			"location":        0.20,
			"category":        0.25,
			"salary":          0.15,
			"keyword":         0.15,
			"personalization": 0.25,
		}
	}
	if cfg.Scoring.WeightsVersion == "" {
		cfg.Scoring.WeightsVersion = "v1"
	}
	if cfg.Scoring.Strategy == "" {
		cfg.Scoring.Strategy = "weighted_average"
	}
	if cfg.Scoring.PowerMeanExponent == 0 {
		cfg.Scoring.PowerMeanExponent = 2
	}
	if cfg.Scoring.Percentile == 0 {
		cfg.Scoring.Percentile = 0.5
	}
	if cfg.Scoring.MaxKeywordMatches == 0 {
		cfg.Scoring.MaxKeywordMatches = 7
	}

	if cfg.Allocation.TotalRequired == 0 {
		cfg.Allocation.TotalRequired = 40
	}
	if cfg.Allocation.CandidatePoolSize == 0 {
		cfg.Allocation.CandidatePoolSize = 500
	}

	if cfg.Batch.BatchSize == 0 {
		cfg.Batch.BatchSize = 500
	}
	if cfg.Batch.MaxParallelWorkers == 0 {
		cfg.Batch.MaxParallelWorkers = 8
	}
	if cfg.Batch.CheckpointInterval == 0 {
		cfg.Batch.CheckpointInterval = 100
	}
	if cfg.Batch.MaxRetries == 0 {
		cfg.Batch.MaxRetries = 3
	}
	if cfg.Batch.RetryInitialDelay == 0 {
		cfg.Batch.RetryInitialDelay = 200
	}
	if cfg.Batch.RetryBackoff == "" {
		cfg.Batch.RetryBackoff = "exponential"
	}
	if cfg.Batch.IOTimeout == 0 {
		cfg.Batch.IOTimeout = 5000
	}
	if cfg.Batch.RetentionDays == 0 {
		cfg.Batch.RetentionDays = 90
	}

	if cfg.Cache.MaxEntries == 0 {
		cfg.Cache.MaxEntries = 10000
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 600
	}
}

// Validate rejects invalid configurations before any batch work starts.
func Validate(cfg *Config) error {
	sum := 0.0
	for name, w := range cfg.Scoring.Weights {
		if w < 0 {
			return apperrors.NewWeightsInvalidError(
				fmt.Sprintf("weight %q is negative: %f", name, w))
		}
		sum += w
	}
	if math.Abs(sum-1.0) > WeightEpsilon {
		return apperrors.NewWeightsInvalidError(
			fmt.Sprintf("weights sum to %f, want 1.0 +/- %g", sum, WeightEpsilon))
	}

	if cfg.Allocation.TotalRequired <= 0 {
		return apperrors.NewConfigurationError(
			fmt.Sprintf("allocation.total_required must be positive, got %d",
				cfg.Allocation.TotalRequired))
	}
	if cfg.Allocation.DiversityFloor < 0 {
		return apperrors.NewConfigurationError("allocation.diversity_floor must not be negative")
	}

	if cfg.Batch.BatchSize <= 0 {
		return apperrors.NewConfigurationError("batch.batch_size must be positive")
	}
	if cfg.Batch.MaxParallelWorkers <= 0 {
		return apperrors.NewConfigurationError("batch.max_parallel_workers must be positive")
	}
	if cfg.Batch.CheckpointInterval <= 0 {
		return apperrors.NewConfigurationError("batch.checkpoint_interval must be positive")
	}
	if cfg.Batch.MaxRetries < 0 {
		return apperrors.NewConfigurationError("batch.max_retries must not be negative")
	}
	switch cfg.Batch.RetryBackoff {
	case "fixed", "exponential":
	default:
		return apperrors.NewConfigurationError(
			fmt.Sprintf("batch.retry_backoff must be fixed or exponential, got %q",
				cfg.Batch.RetryBackoff))
	}
	if cfg.Batch.IOTimeout <= 0 {
		return apperrors.NewConfigurationError("batch.io_timeout must be positive")
	}

	return nil
}
