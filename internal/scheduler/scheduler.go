// Package scheduler periodically refreshes every tenant's cached results.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/opensource-finance/finch/internal/domain"
	"github.com/opensource-finance/finch/internal/ledger"
)

// SourceSchedule tags ledger-updated events raised by the scheduler.
const SourceSchedule = "schedule"

// DefaultSchedule refreshes once an hour.
const DefaultSchedule = "@every 1h"

// Scheduler drops stale ledger snapshots on a cron schedule and announces
// a ledger update per tenant so the worker recomputes cached results.
type Scheduler struct {
	cron    *cron.Cron
	store   *ledger.Store
	bus     domain.EventBus
	timeout time.Duration
}

// New creates a scheduler for a cron spec (standard 5-field or descriptors
// such as "@every 30m"). It does not start until Start is called.
func New(store *ledger.Store, bus domain.EventBus, spec string) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultSchedule
	}

	logger := slogLogger{}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		store:   store,
		bus:     bus,
		timeout: 5 * time.Minute,
	}

	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start runs the schedule in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("refresh scheduler started", "entries", len(s.cron.Entries()))
}

// Stop halts the schedule and waits for a running refresh to finish or
// ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NextRun reports when the refresh fires next. Zero before Start.
func (s *Scheduler) NextRun() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	n, err := s.RefreshAll(ctx)
	if err != nil {
		slog.Error("scheduled refresh failed", "error", err)
		return
	}
	slog.Info("scheduled refresh complete",
		"tenants", n,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// RefreshAll invalidates every tenant's snapshot and publishes a
// ledger-updated event for each. It returns how many tenants were refreshed.
func (s *Scheduler) RefreshAll(ctx context.Context) (int, error) {
	tenants, err := s.store.Tenants(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list tenants: %w", err)
	}

	refreshed := 0
	for _, tenantID := range tenants {
		if err := ctx.Err(); err != nil {
			return refreshed, err
		}

		s.store.Invalidate(tenantID)
		refreshed++

		if s.bus == nil {
			continue
		}
		payload, err := json.Marshal(domain.LedgerUpdatedEvent{
			TenantID: tenantID,
			Source:   SourceSchedule,
		})
		if err != nil {
			return refreshed, err
		}
		if err := s.bus.Publish(ctx, tenantID, domain.TopicLedgerUpdated, payload); err != nil {
			slog.Warn("failed to publish scheduled refresh",
				"tenant_id", tenantID,
				"error", err,
			)
		}
	}
	return refreshed, nil
}

// slogLogger adapts cron's logger to the default slog logger.
type slogLogger struct{}

func (slogLogger) Info(msg string, keysAndValues ...any) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (slogLogger) Error(err error, msg string, keysAndValues ...any) {
	slog.Error("cron: "+msg, append([]any{"error", err}, keysAndValues...)...)
}
