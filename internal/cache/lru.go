package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/opensource-finance/finch/internal/domain"
)

// LRUCache is a thread-safe LRU cache with TTL support.
// Used as the Community tier cache and as L1 in two-phase caching.
type LRUCache struct {
	mu       sync.Mutex
	maxSize  int
	items    map[string]*list.Element
	order    *list.List
	counters map[string]*counterEntry
}

type cacheEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

type counterEntry struct {
	count     int64
	expiresAt time.Time
}

// NewLRUCache creates a new LRU cache with the specified max size.
func NewLRUCache(maxSize int) *LRUCache {
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &LRUCache{
		maxSize:  maxSize,
		items:    make(map[string]*list.Element),
		order:    list.New(),
		counters: make(map[string]*counterEntry),
	}
}

// Get retrieves a value from cache. Returns nil, nil on a miss.
func (c *LRUCache) Get(ctx context.Context, tenantID string, key string) ([]byte, error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}
	fullKey := makeKey(tenantID, key)

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[fullKey]
	if !ok {
		return nil, nil
	}
	entry := elem.Value.(*cacheEntry)
	if time.Now().After(entry.expiresAt) {
		c.removeElement(elem)
		return nil, nil
	}

	c.order.MoveToFront(elem)
	return entry.value, nil
}

// Set stores a value in cache with TTL, evicting the least recently used
// entries beyond capacity.
func (c *LRUCache) Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error {
	if tenantID == "" {
		return ErrTenantRequired
	}
	fullKey := makeKey(tenantID, key)
	expiresAt := time.Now().Add(ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[fullKey]; ok {
		c.order.MoveToFront(elem)
		entry := elem.Value.(*cacheEntry)
		entry.value = value
		entry.expiresAt = expiresAt
		return nil
	}

	c.items[fullKey] = c.order.PushFront(&cacheEntry{
		key:       fullKey,
		value:     value,
		expiresAt: expiresAt,
	})
	for c.order.Len() > c.maxSize {
		c.removeElement(c.order.Back())
	}
	return nil
}

// Delete removes a value from cache.
func (c *LRUCache) Delete(ctx context.Context, tenantID string, key string) error {
	if tenantID == "" {
		return ErrTenantRequired
	}
	fullKey := makeKey(tenantID, key)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[fullKey]; ok {
		c.removeElement(elem)
	}
	return nil
}

func (c *LRUCache) GetIncomeProfile(ctx context.Context, tenantID string, fingerprint string) (*domain.IncomeProfile, error) {
	return getProfile(ctx, c, tenantID, fingerprint)
}

func (c *LRUCache) SetIncomeProfile(ctx context.Context, tenantID string, fingerprint string, profile *domain.IncomeProfile, ttl time.Duration) error {
	return setJSON(ctx, c, tenantID, profileKey(fingerprint), profile, ttl)
}

func (c *LRUCache) GetAnalysis(ctx context.Context, tenantID string, fingerprint string) (*domain.AnalysisResult, error) {
	return getAnalysis(ctx, c, tenantID, fingerprint)
}

func (c *LRUCache) SetAnalysis(ctx context.Context, tenantID string, fingerprint string, result *domain.AnalysisResult, ttl time.Duration) error {
	return setJSON(ctx, c, tenantID, analysisKey(fingerprint), result, ttl)
}

// IncrementCounter increments a fixed-window counter. The window starts
// with the first increment and the count resets once it has passed.
func (c *LRUCache) IncrementCounter(ctx context.Context, tenantID string, key string, window time.Duration) (int64, error) {
	if tenantID == "" {
		return 0, ErrTenantRequired
	}
	fullKey := makeKey(tenantID, "counter:"+key)
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.counters[fullKey]
	if !ok || now.After(entry.expiresAt) {
		if !ok && len(c.counters) >= c.maxSize {
			c.pruneCounters(now)
		}
		c.counters[fullKey] = &counterEntry{count: 1, expiresAt: now.Add(window)}
		return 1, nil
	}

	entry.count++
	return entry.count, nil
}

// Ping checks cache health.
func (c *LRUCache) Ping(ctx context.Context) error {
	return nil
}

// Close empties the cache.
func (c *LRUCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order = list.New()
	c.counters = make(map[string]*counterEntry)
	return nil
}

// Stats returns cache statistics.
func (c *LRUCache) Stats() (size int, capacity int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len(), c.maxSize
}

func makeKey(tenantID, key string) string {
	return tenantID + ":" + key
}

func (c *LRUCache) removeElement(elem *list.Element) {
	c.order.Remove(elem)
	delete(c.items, elem.Value.(*cacheEntry).key)
}

// pruneCounters drops expired rate-limit windows.
func (c *LRUCache) pruneCounters(now time.Time) {
	for k, e := range c.counters {
		if now.After(e.expiresAt) {
			delete(c.counters, k)
		}
	}
}
