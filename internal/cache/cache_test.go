package cache

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/opensource-finance/finch/internal/domain"
)

func TestLRUCache(t *testing.T) {
	cache := NewLRUCache(100)
	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("SetAndGet", func(t *testing.T) {
		if err := cache.Set(ctx, tenantID, "key1", []byte("value1"), time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		val, err := cache.Get(ctx, tenantID, "key1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(val) != "value1" {
			t.Errorf("expected 'value1', got '%s'", string(val))
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		val, err := cache.Get(ctx, tenantID, "nonexistent")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Errorf("expected nil for cache miss, got: %v", val)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = cache.Set(ctx, tenantID, "key2", []byte("value2"), time.Minute)

		if err := cache.Delete(ctx, tenantID, "key2"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if val, _ := cache.Get(ctx, tenantID, "key2"); val != nil {
			t.Error("expected nil after delete")
		}
	})

	t.Run("TTLExpiration", func(t *testing.T) {
		_ = cache.Set(ctx, tenantID, "expiring", []byte("temp"), 10*time.Millisecond)

		if val, _ := cache.Get(ctx, tenantID, "expiring"); val == nil {
			t.Error("expected value before expiration")
		}

		time.Sleep(20 * time.Millisecond)

		if val, _ := cache.Get(ctx, tenantID, "expiring"); val != nil {
			t.Error("expected nil after expiration")
		}
	})

	t.Run("LRUEviction", func(t *testing.T) {
		smallCache := NewLRUCache(3)

		_ = smallCache.Set(ctx, tenantID, "a", []byte("1"), time.Minute)
		_ = smallCache.Set(ctx, tenantID, "b", []byte("2"), time.Minute)
		_ = smallCache.Set(ctx, tenantID, "c", []byte("3"), time.Minute)

		// Touch 'a' so 'b' becomes the eviction candidate.
		_, _ = smallCache.Get(ctx, tenantID, "a")
		_ = smallCache.Set(ctx, tenantID, "d", []byte("4"), time.Minute)

		if val, _ := smallCache.Get(ctx, tenantID, "b"); val != nil {
			t.Error("expected 'b' to be evicted")
		}
		if val, _ := smallCache.Get(ctx, tenantID, "a"); val == nil {
			t.Error("expected 'a' to still exist")
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		_ = cache.Set(ctx, "tenant-001", "shared-key", []byte("tenant1-value"), time.Minute)
		_ = cache.Set(ctx, "tenant-002", "shared-key", []byte("tenant2-value"), time.Minute)

		val1, _ := cache.Get(ctx, "tenant-001", "shared-key")
		val2, _ := cache.Get(ctx, "tenant-002", "shared-key")

		if string(val1) != "tenant1-value" {
			t.Errorf("expected 'tenant1-value', got '%s'", string(val1))
		}
		if string(val2) != "tenant2-value" {
			t.Errorf("expected 'tenant2-value', got '%s'", string(val2))
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		if err := cache.Set(ctx, "", "key", []byte("value"), time.Minute); !errors.Is(err, ErrTenantRequired) {
			t.Errorf("expected ErrTenantRequired, got %v", err)
		}
		if _, err := cache.Get(ctx, "", "key"); !errors.Is(err, ErrTenantRequired) {
			t.Errorf("expected ErrTenantRequired, got %v", err)
		}
		if _, err := cache.IncrementCounter(ctx, "", "chat", time.Minute); !errors.Is(err, ErrTenantRequired) {
			t.Errorf("expected ErrTenantRequired, got %v", err)
		}
	})

	t.Run("IncrementCounter", func(t *testing.T) {
		window := 100 * time.Millisecond

		count1, err := cache.IncrementCounter(ctx, tenantID, "chat:session-1", window)
		if err != nil {
			t.Fatalf("IncrementCounter failed: %v", err)
		}
		if count1 != 1 {
			t.Errorf("expected count 1, got %d", count1)
		}

		if count2, _ := cache.IncrementCounter(ctx, tenantID, "chat:session-1", window); count2 != 2 {
			t.Errorf("expected count 2, got %d", count2)
		}

		time.Sleep(150 * time.Millisecond)

		if count3, _ := cache.IncrementCounter(ctx, tenantID, "chat:session-1", window); count3 != 1 {
			t.Errorf("expected count 1 after window reset, got %d", count3)
		}
	})

	t.Run("IncomeProfile", func(t *testing.T) {
		last := "2024-03-15"
		profile := &domain.IncomeProfile{
			IncomeType:             domain.IncomeRecurring,
			EstimatedMonthlyIncome: 2174.11,
			IncomeFrequency:        domain.FrequencyBiweekly,
			LastIncomeDate:         &last,
		}

		if err := cache.SetIncomeProfile(ctx, tenantID, "fp1", profile, time.Minute); err != nil {
			t.Fatalf("SetIncomeProfile failed: %v", err)
		}

		got, err := cache.GetIncomeProfile(ctx, tenantID, "fp1")
		if err != nil {
			t.Fatalf("GetIncomeProfile failed: %v", err)
		}
		if got == nil || got.IncomeFrequency != domain.FrequencyBiweekly || got.EstimatedMonthlyIncome != 2174.11 {
			t.Fatalf("unexpected profile %+v", got)
		}
		if got.LastIncomeDate == nil || *got.LastIncomeDate != last {
			t.Errorf("expected last income date %s", last)
		}

		miss, err := cache.GetIncomeProfile(ctx, tenantID, "fp2")
		if err != nil || miss != nil {
			t.Errorf("expected a miss for another fingerprint, got %+v, %v", miss, err)
		}
	})

	t.Run("Analysis", func(t *testing.T) {
		result := &domain.AnalysisResult{
			Anomalies: []domain.AnomalyRecord{
				{ID: 9, Amount: 900, Category: "Food", Severity: domain.SeverityHigh, FlagReasons: []string{domain.ReasonExtremeValue}},
			},
			Insights: []string{"Your highest spending category is Food ($900)."},
		}
		if err := cache.SetAnalysis(ctx, tenantID, "fp1", result, time.Minute); err != nil {
			t.Fatalf("SetAnalysis failed: %v", err)
		}

		got, err := cache.GetAnalysis(ctx, tenantID, "fp1")
		if err != nil {
			t.Fatalf("GetAnalysis failed: %v", err)
		}
		if got == nil || len(got.Anomalies) != 1 || got.HighSeverityCount() != 1 {
			t.Fatalf("unexpected analysis %+v", got)
		}
		if len(got.Insights) != 1 {
			t.Errorf("expected 1 insight, got %d", len(got.Insights))
		}
	})

	t.Run("CorruptEntry", func(t *testing.T) {
		_ = cache.Set(ctx, tenantID, analysisKey("bad"), []byte("{not json"), time.Minute)
		if _, err := cache.GetAnalysis(ctx, tenantID, "bad"); err == nil {
			t.Error("expected decode error for a corrupt entry")
		}
	})

	t.Run("Stats", func(t *testing.T) {
		statsCache := NewLRUCache(50)
		_ = statsCache.Set(ctx, tenantID, "k1", []byte("v1"), time.Minute)
		_ = statsCache.Set(ctx, tenantID, "k2", []byte("v2"), time.Minute)

		size, capacity := statsCache.Stats()
		if size != 2 {
			t.Errorf("expected size 2, got %d", size)
		}
		if capacity != 50 {
			t.Errorf("expected capacity 50, got %d", capacity)
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := cache.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("Close", func(t *testing.T) {
		testCache := NewLRUCache(10)
		_ = testCache.Set(ctx, tenantID, "k", []byte("v"), time.Minute)

		if err := testCache.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
		if val, _ := testCache.Get(ctx, tenantID, "k"); val != nil {
			t.Error("expected cache to be cleared after close")
		}
	})
}

func TestLRUCounterPruning(t *testing.T) {
	cache := NewLRUCache(2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, _ = cache.IncrementCounter(ctx, "tenant-001", fmt.Sprintf("s%d", i), time.Millisecond)
	}
	time.Sleep(5 * time.Millisecond)
	_, _ = cache.IncrementCounter(ctx, "tenant-001", "fresh", time.Minute)

	cache.mu.Lock()
	n := len(cache.counters)
	cache.mu.Unlock()
	if n != 1 {
		t.Errorf("expected expired counters to be pruned, %d remain", n)
	}
}

func TestNewCache(t *testing.T) {
	t.Run("MemoryType", func(t *testing.T) {
		cache, err := New(domain.CacheConfig{Type: "memory", LocalMaxSize: 100})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer cache.Close()

		if _, ok := cache.(*LRUCache); !ok {
			t.Error("expected LRUCache for memory type")
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		if _, err := New(domain.CacheConfig{Type: "memcached"}); err == nil {
			t.Error("expected error for unsupported type")
		}
	})
}
