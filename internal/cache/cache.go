// Package cache provides the result caches behind Finch's analysis endpoints.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/finch/internal/domain"
)

// ErrTenantRequired is returned when a cache call carries no tenant.
var ErrTenantRequired = errors.New("tenantID is required")

// New creates a new cache based on configuration.
// "memory" returns an LRU cache. "redis" returns a Redis cache, wrapped
// in a local LRU when two-phase caching is enabled.
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	switch cfg.Type {
	case "memory", "":
		return NewLRUCache(cfg.LocalMaxSize), nil

	case "redis":
		if cfg.EnableTwoPhase {
			return NewTwoPhaseCache(cfg)
		}
		return NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

// byteStore is the raw key/value surface every cache layer shares.
type byteStore interface {
	Get(ctx context.Context, tenantID string, key string) ([]byte, error)
	Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error
}

func profileKey(fingerprint string) string  { return "profile:" + fingerprint }
func analysisKey(fingerprint string) string { return "analysis:" + fingerprint }

// getJSON decodes a cached JSON value into out. found is false on a miss.
func getJSON(ctx context.Context, s byteStore, tenantID, key string, out any) (found bool, err error) {
	data, err := s.Get(ctx, tenantID, key)
	if err != nil || data == nil {
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("failed to decode cached %s: %w", key, err)
	}
	return true, nil
}

func setJSON(ctx context.Context, s byteStore, tenantID, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return s.Set(ctx, tenantID, key, data, ttl)
}

func getProfile(ctx context.Context, s byteStore, tenantID, fingerprint string) (*domain.IncomeProfile, error) {
	var p domain.IncomeProfile
	found, err := getJSON(ctx, s, tenantID, profileKey(fingerprint), &p)
	if !found {
		return nil, err
	}
	return &p, nil
}

func getAnalysis(ctx context.Context, s byteStore, tenantID, fingerprint string) (*domain.AnalysisResult, error) {
	var r domain.AnalysisResult
	found, err := getJSON(ctx, s, tenantID, analysisKey(fingerprint), &r)
	if !found {
		return nil, err
	}
	return &r, nil
}

// TwoPhaseCache implements the two-phase caching strategy.
// L1: Local LRU cache for fast reads
// L2: Redis shared by every Finch instance
type TwoPhaseCache struct {
	local  *LRUCache
	remote *RedisCache
	l1TTL  time.Duration
}

// NewTwoPhaseCache creates a two-phase cache with LRU + Redis.
func NewTwoPhaseCache(cfg domain.CacheConfig) (*TwoPhaseCache, error) {
	remote, err := NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis cache: %w", err)
	}
	return newTwoPhase(NewLRUCache(cfg.LocalMaxSize), remote, cfg.LocalTTL), nil
}

func newTwoPhase(local *LRUCache, remote *RedisCache, l1TTL time.Duration) *TwoPhaseCache {
	if l1TTL == 0 {
		l1TTL = 5 * time.Minute
	}
	return &TwoPhaseCache{local: local, remote: remote, l1TTL: l1TTL}
}

// Get retrieves from L1 first, then L2. Populates L1 on L2 hit.
func (c *TwoPhaseCache) Get(ctx context.Context, tenantID string, key string) ([]byte, error) {
	val, err := c.local.Get(ctx, tenantID, key)
	if err != nil {
		return nil, err
	}
	if val != nil {
		return val, nil
	}

	val, err = c.remote.Get(ctx, tenantID, key)
	if err != nil {
		return nil, err
	}
	if val != nil {
		_ = c.local.Set(ctx, tenantID, key, val, c.l1TTL)
	}
	return val, nil
}

// Set writes to both L1 and L2. L1 keeps the shorter of the two TTLs.
func (c *TwoPhaseCache) Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error {
	if err := c.local.Set(ctx, tenantID, key, value, min(ttl, c.l1TTL)); err != nil {
		return err
	}
	return c.remote.Set(ctx, tenantID, key, value, ttl)
}

// Delete removes from both L1 and L2.
func (c *TwoPhaseCache) Delete(ctx context.Context, tenantID string, key string) error {
	if err := c.local.Delete(ctx, tenantID, key); err != nil {
		return err
	}
	return c.remote.Delete(ctx, tenantID, key)
}

func (c *TwoPhaseCache) GetIncomeProfile(ctx context.Context, tenantID string, fingerprint string) (*domain.IncomeProfile, error) {
	return getProfile(ctx, c, tenantID, fingerprint)
}

func (c *TwoPhaseCache) SetIncomeProfile(ctx context.Context, tenantID string, fingerprint string, profile *domain.IncomeProfile, ttl time.Duration) error {
	return setJSON(ctx, c, tenantID, profileKey(fingerprint), profile, ttl)
}

func (c *TwoPhaseCache) GetAnalysis(ctx context.Context, tenantID string, fingerprint string) (*domain.AnalysisResult, error) {
	return getAnalysis(ctx, c, tenantID, fingerprint)
}

func (c *TwoPhaseCache) SetAnalysis(ctx context.Context, tenantID string, fingerprint string, result *domain.AnalysisResult, ttl time.Duration) error {
	return setJSON(ctx, c, tenantID, analysisKey(fingerprint), result, ttl)
}

// IncrementCounter uses Redis so rate limits hold across instances.
func (c *TwoPhaseCache) IncrementCounter(ctx context.Context, tenantID string, key string, window time.Duration) (int64, error) {
	return c.remote.IncrementCounter(ctx, tenantID, key, window)
}

// Ping checks both L1 and L2 health.
func (c *TwoPhaseCache) Ping(ctx context.Context) error {
	if err := c.local.Ping(ctx); err != nil {
		return fmt.Errorf("L1 ping failed: %w", err)
	}
	if err := c.remote.Ping(ctx); err != nil {
		return fmt.Errorf("L2 ping failed: %w", err)
	}
	return nil
}

// Close closes both L1 and L2.
func (c *TwoPhaseCache) Close() error {
	_ = c.local.Close()
	return c.remote.Close()
}

// Stats returns L1 cache statistics.
func (c *TwoPhaseCache) Stats() (size int, capacity int) {
	return c.local.Stats()
}
