// Package worker refreshes cached analysis in the background when a
// tenant's ledger changes.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/finch/internal/domain"
	"github.com/opensource-finance/finch/internal/report"
)

// Refresher recomputes and caches a tenant's results.
type Refresher interface {
	Refresh(ctx context.Context, tenantID string) (*report.Result, error)
}

// Worker consumes ledger-updated events from the EventBus.
type Worker struct {
	bus       domain.EventBus
	refresher Refresher

	mu            sync.Mutex
	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc

	processed atomic.Int64
	failed    atomic.Int64
	alerts    atomic.Int64
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs limits the worker to these tenants (empty = all tenants)
	TenantIDs []string
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, refresher Refresher) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:       bus,
		refresher: refresher,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start subscribes to ledger updates for the configured tenants.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.TenantIDs) == 0 {
		if err := w.subscribe(domain.GlobalTenantID); err != nil {
			return err
		}
		slog.Info("global worker started", "topic", domain.TopicLedgerUpdated)
		return nil
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.subscribe(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"tenant_count", len(cfg.TenantIDs),
	)
	return nil
}

func (w *Worker) subscribe(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicLedgerUpdated, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", domain.TopicLedgerUpdated, err)
	}
	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.mu.Unlock()
	return nil
}

// handleMessage refreshes the publishing tenant's results and announces
// the outcome.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var event domain.LedgerUpdatedEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		w.failed.Add(1)
		slog.Error("failed to parse ledger update",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	tenantID := msg.TenantID
	if event.TenantID != "" {
		tenantID = event.TenantID
	}

	res, err := w.refresher.Refresh(ctx, tenantID)
	if err != nil {
		w.failed.Add(1)
		slog.Error("background refresh failed",
			"tenant_id", tenantID,
			"source", event.Source,
			"error", err,
		)
		return err
	}
	w.processed.Add(1)

	high := res.Analysis.HighSeverityCount()
	completed := domain.AnalysisCompletedEvent{
		TenantID:     tenantID,
		Fingerprint:  res.Snapshot.Fingerprint,
		AnomalyCount: len(res.Analysis.Anomalies),
		HighSeverity: high,
		IncomeType:   res.Profile.IncomeType,
		DurationMs:   time.Since(start).Milliseconds(),
	}
	w.publish(ctx, tenantID, domain.TopicAnalysisCompleted, completed)

	for _, a := range res.Analysis.Anomalies {
		if a.Severity != domain.SeverityHigh {
			continue
		}
		w.alerts.Add(1)
		w.publish(ctx, tenantID, domain.TopicAnomalyAlert, domain.AnomalyAlertEvent{
			TenantID:    tenantID,
			Fingerprint: res.Snapshot.Fingerprint,
			Anomaly:     a,
		})
	}

	slog.Info("ledger refreshed",
		"tenant_id", tenantID,
		"source", event.Source,
		"transactions", len(res.Snapshot.Transactions),
		"anomalies", completed.AnomalyCount,
		"high_severity", high,
		"duration_ms", completed.DurationMs,
	)
	return nil
}

func (w *Worker) publish(ctx context.Context, tenantID, topic string, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to marshal event", "topic", topic, "error", err)
		return
	}
	if err := w.bus.Publish(ctx, tenantID, topic, payload); err != nil {
		slog.Error("failed to publish event",
			"tenant_id", tenantID,
			"topic", topic,
			"error", err,
		)
	}
}

// Stop unsubscribes and cancels in-flight handlers.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	subs := w.subscriptions
	w.subscriptions = nil
	w.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	Processed         int64    `json:"processed"`
	Failed            int64    `json:"failed"`
	AlertsPublished   int64    `json:"alertsPublished"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	w.mu.Unlock()

	return Stats{
		SubscriptionCount: len(topics),
		Topics:            topics,
		Processed:         w.processed.Load(),
		Failed:            w.failed.Load(),
		AlertsPublished:   w.alerts.Load(),
	}
}
