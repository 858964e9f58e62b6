// Package config builds the runtime configuration from the tier presets,
// an optional .env file and FINCH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/opensource-finance/finch/internal/domain"
)

// LookupFunc resolves an environment variable.
type LookupFunc func(key string) (string, bool)

// Load reads .env (if present) and the process environment.
func Load() (*domain.Config, error) {
	if err := godotenv.Load(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("failed to load .env file", "error", err)
		}
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a configuration from the given lookup.
// FINCH_TIER selects the preset; every other variable overrides one field.
func FromEnv(lookup LookupFunc) (*domain.Config, error) {
	env := envReader{lookup: lookup}

	cfg := domain.DefaultConfig()
	if strings.EqualFold(env.str("FINCH_TIER", ""), string(domain.TierPro)) {
		cfg = domain.ProConfig()
	}

	cfg.Server.Host = env.str("FINCH_HOST", cfg.Server.Host)
	cfg.Server.Port = env.integer("FINCH_PORT", cfg.Server.Port)
	cfg.Server.CORSOrigins = env.list("FINCH_CORS_ORIGINS", cfg.Server.CORSOrigins)

	cfg.Repository.Driver = env.str("FINCH_DB_DRIVER", cfg.Repository.Driver)
	cfg.Repository.SQLitePath = env.str("FINCH_SQLITE_PATH", cfg.Repository.SQLitePath)
	cfg.Repository.PostgresHost = env.str("FINCH_POSTGRES_HOST", cfg.Repository.PostgresHost)
	cfg.Repository.PostgresPort = env.integer("FINCH_POSTGRES_PORT", cfg.Repository.PostgresPort)
	cfg.Repository.PostgresUser = env.str("FINCH_POSTGRES_USER", cfg.Repository.PostgresUser)
	cfg.Repository.PostgresPassword = env.str("FINCH_POSTGRES_PASSWORD", cfg.Repository.PostgresPassword)
	cfg.Repository.PostgresDB = env.str("FINCH_POSTGRES_DB", cfg.Repository.PostgresDB)
	cfg.Repository.PostgresSSLMode = env.str("FINCH_POSTGRES_SSLMODE", cfg.Repository.PostgresSSLMode)

	if addr := env.str("FINCH_REDIS_ADDR", ""); addr != "" {
		cfg.Cache.Type = "redis"
		cfg.Cache.RedisAddr = addr
	}
	cfg.Cache.RedisPassword = env.str("FINCH_REDIS_PASSWORD", cfg.Cache.RedisPassword)
	cfg.Cache.SnapshotTTL = env.duration("FINCH_SNAPSHOT_TTL", cfg.Cache.SnapshotTTL)

	if url := env.str("FINCH_NATS_URL", ""); url != "" {
		cfg.EventBus.Type = "nats"
		cfg.EventBus.NATSUrl = url
	}
	cfg.EventBus.NATSToken = env.str("FINCH_NATS_TOKEN", cfg.EventBus.NATSToken)

	cfg.Analysis.MaxWorkers = env.integer("FINCH_ANALYSIS_WORKERS", cfg.Analysis.MaxWorkers)
	cfg.Analysis.FixedCategories = env.list("FINCH_FIXED_CATEGORIES", cfg.Analysis.FixedCategories)
	cfg.Analysis.RecentSpendDays = env.integer("FINCH_RECENT_SPEND_DAYS", cfg.Analysis.RecentSpendDays)
	cfg.Analysis.DigestThreshold = env.number("FINCH_DIGEST_THRESHOLD", cfg.Analysis.DigestThreshold)

	cfg.Coach.APIKey = env.str("GEMINI_API_KEY", cfg.Coach.APIKey)
	cfg.Coach.Model = env.str("FINCH_GEMINI_MODEL", cfg.Coach.Model)
	cfg.Coach.ChatRateLimit = env.integer("FINCH_CHAT_RATE_LIMIT", cfg.Coach.ChatRateLimit)

	cfg.Ledger.SeedCSVPath = env.str("FINCH_LEDGER_CSV", cfg.Ledger.SeedCSVPath)
	cfg.Ledger.DefaultTenant = env.str("FINCH_DEFAULT_TENANT", cfg.Ledger.DefaultTenant)

	if schedule := env.str("FINCH_REFRESH_SCHEDULE", ""); schedule != "" {
		cfg.Scheduler.Enabled = true
		cfg.Scheduler.Schedule = schedule
	}
	cfg.AsyncWorker = env.flag("FINCH_ASYNC_WORKER", cfg.AsyncWorker)

	cfg.Logging.Level = env.str("FINCH_LOG_LEVEL", cfg.Logging.Level)
	if env.flag("FINCH_DEBUG", false) {
		cfg.Logging.Level = "debug"
	}
	cfg.Tracing.Enabled = env.flag("FINCH_TRACING", cfg.Tracing.Enabled)

	if len(env.errs) > 0 {
		return nil, errors.Join(env.errs...)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the server cannot start with.
func Validate(cfg *domain.Config) error {
	var errs []error

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", cfg.Server.Port))
	}
	switch cfg.Repository.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("unsupported database driver %q", cfg.Repository.Driver))
	}
	if cfg.Analysis.MaxWorkers <= 0 {
		errs = append(errs, errors.New("analysis workers must be positive"))
	}
	if cfg.Analysis.RecentSpendDays <= 0 {
		errs = append(errs, errors.New("recent spend window must be positive"))
	}
	if cfg.Ledger.DefaultTenant == "" {
		errs = append(errs, errors.New("default tenant is required"))
	}

	return errors.Join(errs...)
}

type envReader struct {
	lookup LookupFunc
	errs   []error
}

func (r *envReader) str(key, fallback string) string {
	if v, ok := r.lookup(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func (r *envReader) integer(key string, fallback int) int {
	v := r.str(key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return n
}

func (r *envReader) number(key string, fallback float64) float64 {
	v := r.str(key, "")
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return f
}

func (r *envReader) flag(key string, fallback bool) bool {
	v := r.str(key, "")
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return b
}

func (r *envReader) duration(key string, fallback time.Duration) time.Duration {
	v := r.str(key, "")
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return d
}

// list splits a comma-separated value, dropping empty entries.
func (r *envReader) list(key string, fallback []string) []string {
	v := r.str(key, "")
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
