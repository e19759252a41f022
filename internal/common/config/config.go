// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct. It is validated once
// at load time and treated as immutable for the lifetime of a run.
type Config struct {
	App           AppConfig          `mapstructure:"app"`
	Database      DatabaseConfig     `mapstructure:"database"`
	Scoring       ScoringConfig      `mapstructure:"scoring"`
	Allocation    AllocationConfig   `mapstructure:"allocation"`
	Batch         BatchConfig        `mapstructure:"batch"`
	Cache         CacheConfig        `mapstructure:"cache"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Logging       LoggingConfig      `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	HTTPAddress string `mapstructure:"http_address"` // /metrics + pprof listener
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses  []string `mapstructure:"addresses"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	SSLEnabled bool     `mapstructure:"ssl_enabled"`
	JobIndex   string   `mapstructure:"job_index"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// --- Engine Configuration ---

// ScoringConfig drives the score calculator and aggregator.
type ScoringConfig struct {
	// Weights maps component kind to its aggregation weight. Weights must be
	// non-negative and sum to 1.0 within epsilon; validated at load time.
	Weights        map[string]float64 `mapstructure:"weights"`
	WeightsVersion string             `mapstructure:"weights_version"`
	Strategy       string             `mapstructure:"strategy"`

	// Strategy parameters; only read by the strategy that uses them.
	PowerMeanExponent   float64 `mapstructure:"power_mean_exponent"`
	Percentile          float64 `mapstructure:"percentile"`
	GateThreshold       float64 `mapstructure:"gate_threshold"`
	CompletenessBonus   float64 `mapstructure:"completeness_bonus"`
	MaxKeywordMatches   int     `mapstructure:"max_keyword_matches"`
	KeywordTableRefresh int     `mapstructure:"keyword_table_refresh"` // seconds
}

// AllocationConfig drives the section allocator and supplement engine.
type AllocationConfig struct {
	TotalRequired  int     `mapstructure:"total_required"`
	DiversityFloor int     `mapstructure:"diversity_floor"`
	FallbackScore  float64 `mapstructure:"fallback_score"`
	// CandidatePoolSize bounds the primary candidate pool fetched per
	// subject; it is unrelated to the batch chunk size.
	CandidatePoolSize int `mapstructure:"candidate_pool_size"`
	// SectionSpecPath points at the JSON section spec document; empty means
	// the built-in six defaults.
	SectionSpecPath string `mapstructure:"section_spec_path"`
}

// BatchConfig drives the orchestrator.
type BatchConfig struct {
	BatchSize          int    `mapstructure:"batch_size"`
	MaxParallelWorkers int    `mapstructure:"max_parallel_workers"`
	CheckpointInterval int    `mapstructure:"checkpoint_interval"`
	MaxRetries         int    `mapstructure:"max_retries"`
	RetryInitialDelay  int    `mapstructure:"retry_initial_delay"` // milliseconds
	RetryBackoff       string `mapstructure:"retry_backoff"`       // fixed | exponential
	IOTimeout          int    `mapstructure:"io_timeout"`          // milliseconds, per store call
	RetentionDays      int    `mapstructure:"retention_days"`      // batch job history
	ScheduleInterval   int    `mapstructure:"schedule_interval"`   // minutes, 0 = one-shot
}

// CacheConfig bounds the injected read cache.
type CacheConfig struct {
	MaxEntries int `mapstructure:"max_entries"`
	TTL        int `mapstructure:"ttl"` // seconds
}

// NotificationConfig holds the run-completion notification settings.
type NotificationConfig struct {
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
	SNS struct {
		Enabled  bool   `mapstructure:"enabled"`
		TopicARN string `mapstructure:"topic_arn"`
	} `mapstructure:"sns"`
	OpsAlert struct {
		Enabled   bool   `mapstructure:"enabled"`
		FromEmail string `mapstructure:"from_email"`
		ToEmail   string `mapstructure:"to_email"`
	} `mapstructure:"ops_alert"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
