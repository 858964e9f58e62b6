package ledger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/opensource-finance/finch/internal/domain"
)

// Snapshot is an immutable view of one tenant's ledger. Transactions are
// ordered newest first and must not be modified by callers.
type Snapshot struct {
	TenantID     string
	Transactions []domain.Transaction
	Fingerprint  string
	LoadedAt     time.Time
}

// Store hands out ledger snapshots. A snapshot is loaded from the repository
// once and reused until the tenant's ledger is written through the store or
// explicitly invalidated.
type Store struct {
	repo domain.Repository
	bus  domain.EventBus

	mu        sync.RWMutex
	snapshots map[string]*Snapshot
	versions  map[string]uint64 // bumped on invalidate
	loads     singleflight.Group
}

// NewStore creates a snapshot store. bus may be nil, in which case writes
// are not announced.
func NewStore(repo domain.Repository, bus domain.EventBus) *Store {
	return &Store{
		repo:      repo,
		bus:       bus,
		snapshots: make(map[string]*Snapshot),
		versions:  make(map[string]uint64),
	}
}

// Snapshot returns the current snapshot for a tenant, loading it if needed.
// Concurrent loads for the same tenant share one repository query.
func (s *Store) Snapshot(ctx context.Context, tenantID string) (*Snapshot, error) {
	s.mu.RLock()
	snap, ok := s.snapshots[tenantID]
	version := s.versions[tenantID]
	s.mu.RUnlock()
	if ok {
		return snap, nil
	}

	// Shared by concurrent callers, so detached from this caller's cancellation.
	loadCtx := context.WithoutCancel(ctx)
	v, err, _ := s.loads.Do(tenantID, func() (any, error) {
		txs, err := s.repo.ListTransactions(loadCtx, tenantID)
		if err != nil {
			return nil, fmt.Errorf("failed to load ledger: %w", err)
		}
		snap := newSnapshot(tenantID, txs)

		// A write that landed during the load leaves the result uncached.
		s.mu.Lock()
		if s.versions[tenantID] == version {
			s.snapshots[tenantID] = snap
		}
		s.mu.Unlock()

		slog.Debug("ledger snapshot loaded",
			"tenant_id", tenantID,
			"transactions", len(txs),
			"fingerprint", snap.Fingerprint,
		)
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

// Save persists transactions, drops the cached snapshot and publishes a
// ledger-updated event tagged with source.
func (s *Store) Save(ctx context.Context, tenantID string, txs []domain.Transaction, source string) error {
	if err := s.repo.SaveTransactions(ctx, tenantID, txs); err != nil {
		return err
	}
	s.Invalidate(tenantID)

	if s.bus == nil {
		return nil
	}
	payload, err := json.Marshal(domain.LedgerUpdatedEvent{
		TenantID: tenantID,
		Count:    len(txs),
		Source:   source,
	})
	if err != nil {
		return err
	}
	if err := s.bus.Publish(ctx, tenantID, domain.TopicLedgerUpdated, payload); err != nil {
		slog.Warn("failed to publish ledger update",
			"tenant_id", tenantID,
			"error", err,
		)
	}
	return nil
}

// Invalidate drops the cached snapshot for a tenant.
func (s *Store) Invalidate(tenantID string) {
	s.mu.Lock()
	delete(s.snapshots, tenantID)
	s.versions[tenantID]++
	s.mu.Unlock()
	s.loads.Forget(tenantID)
}

// Tenants lists the tenants with a stored ledger.
func (s *Store) Tenants(ctx context.Context) ([]string, error) {
	return s.repo.ListTenants(ctx)
}

func newSnapshot(tenantID string, txs []domain.Transaction) *Snapshot {
	sorted := make([]domain.Transaction, len(txs))
	copy(sorted, txs)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Date.Equal(sorted[j].Date) {
			return sorted[i].Date.After(sorted[j].Date)
		}
		return sorted[i].ID > sorted[j].ID
	})

	return &Snapshot{
		TenantID:     tenantID,
		Transactions: sorted,
		Fingerprint:  Fingerprint(sorted),
		LoadedAt:     time.Now().UTC(),
	}
}

// Fingerprint hashes the ledger content (FNV-64a) in the given order.
// Equal ledgers in equal order share a fingerprint.
func Fingerprint(txs []domain.Transaction) string {
	h := fnv.New64a()
	var buf [8]byte
	for _, tx := range txs {
		binary.LittleEndian.PutUint64(buf[:], uint64(tx.ID))
		h.Write(buf[:])
		h.Write([]byte(domain.FormatDate(tx.Date)))
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(tx.Amount))
		h.Write(buf[:])
		h.Write([]byte(tx.Type))
		h.Write([]byte{0})
		h.Write([]byte(tx.Category))
		h.Write([]byte{0})
		h.Write([]byte(tx.Description))
		h.Write([]byte{0})
	}
	return strconv.FormatUint(h.Sum64(), 16)
}
