package domain

import "time"

// Config holds the complete Finch configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines feature availability
	Tier Tier `json:"tier"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`
	Analysis   AnalysisConfig   `json:"analysis"`
	Coach      CoachConfig      `json:"coach"`
	Ledger     LedgerConfig     `json:"ledger"`
	Scheduler  SchedulerConfig  `json:"scheduler"`

	// AsyncWorker enables background refresh on ledger updates
	AsyncWorker bool `json:"asyncWorker"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string   `json:"host"`
	Port         int      `json:"port"`
	ReadTimeout  int      `json:"readTimeout"`  // seconds
	WriteTimeout int      `json:"writeTimeout"` // seconds
	CORSOrigins  []string `json:"corsOrigins"`
}

// AnalysisConfig tunes the analysis pipeline.
type AnalysisConfig struct {
	// Seed pins the isolation forest so labels are reproducible
	Seed uint64 `json:"seed"`

	// MaxWorkers bounds per-category fan-out
	MaxWorkers int `json:"maxWorkers"`

	// FixedCategories are averaged into total_monthly_fixed
	FixedCategories []string `json:"fixedCategories"`

	// RecentSpendDays is the trailing window for recent_spend
	RecentSpendDays int `json:"recentSpendDays"`

	// DigestThreshold is the nudge score that marks a digest as needing attention
	DigestThreshold float64 `json:"digestThreshold"`
}

// CoachConfig holds LLM settings.
type CoachConfig struct {
	APIKey       string `json:"-"`
	Model        string `json:"model"`
	HistoryTurns int    `json:"historyTurns"`

	// ChatRateLimit is the max chat turns per session per minute
	ChatRateLimit int `json:"chatRateLimit"`
}

// LedgerConfig controls the initial ledger load.
type LedgerConfig struct {
	SeedCSVPath   string `json:"seedCsvPath"`
	DefaultTenant string `json:"defaultTenant"`
}

// SchedulerConfig controls periodic snapshot refresh.
type SchedulerConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule"` // cron spec, e.g. "@every 1h"
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled"`
	ServiceName string `json:"serviceName"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite + channels + in-process LRU
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         5001,
			ReadTimeout:  30,
			WriteTimeout: 60,
			CORSOrigins:  []string{"*"},
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./finch.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
			SnapshotTTL:  time.Hour,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Analysis: AnalysisConfig{
			Seed:            42,
			MaxWorkers:      8,
			FixedCategories: []string{"Housing", "Utilities"},
			RecentSpendDays: 7,
			DigestThreshold: 0.6,
		},
		Coach: CoachConfig{
			Model:         "gemini-2.5-flash-lite",
			HistoryTurns:  5,
			ChatRateLimit: 20,
		},
		Ledger: LedgerConfig{
			DefaultTenant: "default_user",
		},
		Scheduler: SchedulerConfig{
			Enabled:  false,
			Schedule: "@every 1h",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "finch",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "finch",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
		SnapshotTTL:    time.Hour,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.AsyncWorker = true
	cfg.Scheduler.Enabled = true
	cfg.Tracing.Enabled = true
	return cfg
}
