package velocity

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/opensource-finance/finch/internal/domain"
	"github.com/opensource-finance/finch/internal/repository"
)

func TestVelocityService(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "velocity-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	svc := NewService(repo)
	svc.now = func() time.Time { return time.Date(2024, 3, 20, 15, 30, 0, 0, time.UTC) }

	ctx := context.Background()
	tenantID := "tenant-001"
	day := func(d int) time.Time { return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC) }

	t.Run("EmptyDatabase", func(t *testing.T) {
		spend, err := svc.RecentSpend(ctx, tenantID, 7)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if spend != 0 {
			t.Errorf("expected 0 for empty ledger, got %.2f", spend)
		}
	})

	t.Run("WithTransactions", func(t *testing.T) {
		txs := []domain.Transaction{
			{ID: 1, Date: day(13), Amount: 50, Type: domain.TypeWithdrawal, Category: "Food"},
			{ID: 2, Date: day(14), Amount: 20.25, Type: domain.TypeWithdrawal, Category: "Food"},
			{ID: 3, Date: day(18), Amount: 10.10, Type: domain.TypeWithdrawal, Category: "Transport"},
			{ID: 4, Date: day(19), Amount: 1000, Type: domain.TypeDeposit, Category: "Income"},
			{ID: 5, Date: day(20), Amount: 4.65, Type: domain.TypeWithdrawal, Category: "Food"},
			{ID: 6, Date: day(25), Amount: 99, Type: domain.TypeWithdrawal, Category: "Food"},
		}
		if err := repo.SaveTransactions(ctx, tenantID, txs); err != nil {
			t.Fatalf("failed to save transactions: %v", err)
		}

		spend, err := svc.RecentSpend(ctx, tenantID, 7)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if spend != 35 {
			t.Errorf("expected 35.00 over 7 days, got %.2f", spend)
		}

		spend, _ = svc.RecentSpend(ctx, tenantID, 1)
		if spend != 4.65 {
			t.Errorf("expected 4.65 for today only, got %.2f", spend)
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		spend, err := svc.RecentSpend(ctx, "other-tenant", 30)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if spend != 0 {
			t.Errorf("expected 0 for different tenant, got %.2f", spend)
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		if _, err := svc.RecentSpend(ctx, "", 7); err == nil {
			t.Error("expected error for empty tenantID")
		}
	})

	t.Run("RequiresPositiveWindow", func(t *testing.T) {
		if _, err := svc.RecentSpend(ctx, tenantID, 0); err == nil {
			t.Error("expected error for empty window")
		}
	})

	t.Run("Getter", func(t *testing.T) {
		getter := svc.Getter()
		if getter == nil {
			t.Fatal("Getter returned nil")
		}
		spend, err := getter(ctx, tenantID, 7)
		if err != nil {
			t.Fatalf("getter failed: %v", err)
		}
		if spend != 35 {
			t.Errorf("expected 35.00, got %.2f", spend)
		}
	})
}

func TestNoDataSource(t *testing.T) {
	svc := &Service{now: time.Now}
	if _, err := svc.RecentSpend(context.Background(), "tenant", 7); err == nil {
		t.Error("expected error with no data source")
	}
}
