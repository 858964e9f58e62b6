// Package velocity measures how fast a tenant is spending right now.
package velocity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/finch/internal/domain"
	"github.com/opensource-finance/finch/internal/stats"
)

// Service sums recent withdrawals from the repository.
type Service struct {
	repo domain.Repository
	now  func() time.Time
}

// NewService creates a new velocity service.
func NewService(repo domain.Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// RecentSpend returns the total withdrawn over the trailing windowDays
// calendar days, today included, rounded to cents.
func (s *Service) RecentSpend(ctx context.Context, tenantID string, windowDays int) (float64, error) {
	if tenantID == "" {
		return 0, errors.New("tenantID is required")
	}
	if windowDays <= 0 {
		return 0, fmt.Errorf("window must be positive, got %d days", windowDays)
	}
	if s.repo == nil {
		return 0, errors.New("no data source available")
	}

	now := s.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	since := today.AddDate(0, 0, -(windowDays - 1))

	txs, err := s.repo.GetTransactionsSince(ctx, tenantID, since)
	if err != nil {
		return 0, fmt.Errorf("failed to get transactions: %w", err)
	}

	var total float64
	for _, tx := range txs {
		if tx.IsWithdrawal() && !tx.Date.After(today) {
			total += tx.Amount
		}
	}
	return stats.Round(total, 2), nil
}

// Getter returns RecentSpend in the shape the rule engine expects.
func (s *Service) Getter() func(ctx context.Context, tenantID string, windowDays int) (float64, error) {
	return s.RecentSpend
}
