package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/opensource-finance/finch/internal/domain"
)

// incrWithExpiry starts the expiry window on the first increment only.
var incrWithExpiry = redis.NewScript(`
	local current = redis.call('INCR', KEYS[1])
	if current == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	return current
`)

// RedisCache implements Cache using Redis.
// Used as the Pro tier cache and as L2 in two-phase caching.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// Get retrieves a value from Redis. Returns nil, nil on a miss.
func (c *RedisCache) Get(ctx context.Context, tenantID string, key string) ([]byte, error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}

	val, err := c.client.Get(ctx, redisKey(tenantID, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

// Set stores a value in Redis with TTL.
func (c *RedisCache) Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error {
	if tenantID == "" {
		return ErrTenantRequired
	}
	return c.client.Set(ctx, redisKey(tenantID, key), value, ttl).Err()
}

// Delete removes a value from Redis.
func (c *RedisCache) Delete(ctx context.Context, tenantID string, key string) error {
	if tenantID == "" {
		return ErrTenantRequired
	}
	return c.client.Del(ctx, redisKey(tenantID, key)).Err()
}

func (c *RedisCache) GetIncomeProfile(ctx context.Context, tenantID string, fingerprint string) (*domain.IncomeProfile, error) {
	return getProfile(ctx, c, tenantID, fingerprint)
}

func (c *RedisCache) SetIncomeProfile(ctx context.Context, tenantID string, fingerprint string, profile *domain.IncomeProfile, ttl time.Duration) error {
	return setJSON(ctx, c, tenantID, profileKey(fingerprint), profile, ttl)
}

func (c *RedisCache) GetAnalysis(ctx context.Context, tenantID string, fingerprint string) (*domain.AnalysisResult, error) {
	return getAnalysis(ctx, c, tenantID, fingerprint)
}

func (c *RedisCache) SetAnalysis(ctx context.Context, tenantID string, fingerprint string, result *domain.AnalysisResult, ttl time.Duration) error {
	return setJSON(ctx, c, tenantID, analysisKey(fingerprint), result, ttl)
}

// IncrementCounter atomically increments a counter using INCR with PEXPIRE.
func (c *RedisCache) IncrementCounter(ctx context.Context, tenantID string, key string, window time.Duration) (int64, error) {
	if tenantID == "" {
		return 0, ErrTenantRequired
	}
	return incrWithExpiry.Run(ctx, c.client, []string{redisKey(tenantID, "counter:"+key)}, window.Milliseconds()).Int64()
}

// Ping checks Redis connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func redisKey(tenantID, key string) string {
	return "finch:" + makeKey(tenantID, key)
}
