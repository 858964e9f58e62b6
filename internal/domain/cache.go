package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations.
// Supports two-phase caching: local LRU (Community) + Redis (Pro).
// All methods require tenantID for strict multi-tenancy isolation.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, tenantID string, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, tenantID string, key string) error

	// GetIncomeProfile retrieves the profile computed for a ledger fingerprint.
	GetIncomeProfile(ctx context.Context, tenantID string, fingerprint string) (*IncomeProfile, error)

	// SetIncomeProfile caches the profile computed for a ledger fingerprint.
	SetIncomeProfile(ctx context.Context, tenantID string, fingerprint string, profile *IncomeProfile, ttl time.Duration) error

	// GetAnalysis retrieves the analysis computed for a ledger fingerprint.
	GetAnalysis(ctx context.Context, tenantID string, fingerprint string) (*AnalysisResult, error)

	// SetAnalysis caches the analysis computed for a ledger fingerprint.
	SetAnalysis(ctx context.Context, tenantID string, fingerprint string, result *AnalysisResult, ttl time.Duration) error

	// IncrementCounter atomically increments a counter and returns new value.
	// Used for chat rate limiting per session window.
	IncrementCounter(ctx context.Context, tenantID string, key string, window time.Duration) (int64, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local LRU cache settings (Community tier)
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings (Pro tier)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Two-phase settings
	EnableTwoPhase bool // If true, check local first, then Redis

	// SnapshotTTL bounds how long derived snapshot results stay cached
	SnapshotTTL time.Duration
}
