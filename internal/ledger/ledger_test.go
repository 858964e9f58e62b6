package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/finch/internal/bus"
	"github.com/opensource-finance/finch/internal/domain"
	"github.com/opensource-finance/finch/internal/repository"
)

const sampleCSV = `id,date,amount,type,category,description
1,2024-03-01,2500.00,deposit,Income,Paycheck
2,2024-03-02,42.10,withdrawal,Food,Groceries
3,not-a-date,10.00,withdrawal,Food,
4,03/05/2024,1200,withdrawal,Housing,Rent
`

func TestReadCSV(t *testing.T) {
	t.Run("ParsesRows", func(t *testing.T) {
		txs, err := ReadCSV(strings.NewReader(sampleCSV))
		if err != nil {
			t.Fatalf("ReadCSV failed: %v", err)
		}
		if len(txs) != 3 {
			t.Fatalf("expected 3 rows (bad date skipped), got %d", len(txs))
		}
		if txs[0].Type != domain.TypeDeposit || txs[0].Amount != 2500 || txs[0].Description != "Paycheck" {
			t.Errorf("unexpected first row: %+v", txs[0])
		}
		if got := domain.FormatDate(txs[2].Date); got != "2024-03-05" {
			t.Errorf("expected US date to parse as 2024-03-05, got %s", got)
		}
	})

	t.Run("ColumnOrderAndOptionalDescription", func(t *testing.T) {
		in := "category,amount,type,id,date\nFood,9.5,withdrawal,7,2024-01-01\n"
		txs, err := ReadCSV(strings.NewReader(in))
		if err != nil {
			t.Fatalf("ReadCSV failed: %v", err)
		}
		if len(txs) != 1 || txs[0].ID != 7 || txs[0].Category != "Food" || txs[0].Amount != 9.5 {
			t.Errorf("unexpected rows: %+v", txs)
		}
	})

	t.Run("MissingColumn", func(t *testing.T) {
		_, err := ReadCSV(strings.NewReader("id,date,amount,type\n1,2024-01-01,5,withdrawal\n"))
		if !errors.Is(err, ErrMalformedRecord) {
			t.Errorf("expected ErrMalformedRecord, got %v", err)
		}
	})

	t.Run("BadAmount", func(t *testing.T) {
		_, err := ReadCSV(strings.NewReader("id,date,amount,type,category\n1,2024-01-01,lots,withdrawal,Food\n"))
		if !errors.Is(err, ErrMalformedRecord) {
			t.Errorf("expected ErrMalformedRecord, got %v", err)
		}
	})

	t.Run("NegativeAmount", func(t *testing.T) {
		_, err := ReadCSV(strings.NewReader("id,date,amount,type,category\n1,2024-01-01,-3,withdrawal,Food\n"))
		if !errors.Is(err, ErrMalformedRecord) {
			t.Errorf("expected ErrMalformedRecord, got %v", err)
		}
	})

	t.Run("NonFiniteAmount", func(t *testing.T) {
		for _, amount := range []string{"NaN", "Inf", "+Inf", "-Inf", "infinity"} {
			in := "id,date,amount,type,category\n1,2024-01-01," + amount + ",withdrawal,Food\n"
			if _, err := ReadCSV(strings.NewReader(in)); !errors.Is(err, ErrMalformedRecord) {
				t.Errorf("amount %q: expected ErrMalformedRecord, got %v", amount, err)
			}
		}
	})

	t.Run("BadID", func(t *testing.T) {
		_, err := ReadCSV(strings.NewReader("id,date,amount,type,category\nx1,2024-01-01,3,withdrawal,Food\n"))
		if !errors.Is(err, ErrMalformedRecord) {
			t.Errorf("expected ErrMalformedRecord, got %v", err)
		}
	})

	t.Run("Empty", func(t *testing.T) {
		if _, err := ReadCSV(strings.NewReader("")); !errors.Is(err, ErrMalformedRecord) {
			t.Errorf("expected ErrMalformedRecord for empty input, got %v", err)
		}
	})
}

func TestReadLabeledCSV(t *testing.T) {
	in := "id,date,amount,type,category,is_anomaly\n" +
		"1,2024-01-01,20,withdrawal,Food,0\n" +
		"2,2024-01-02,3500,withdrawal,Food,1\n" +
		"3,bad,20,withdrawal,Food,1\n"

	txs, labels, err := ReadLabeledCSV(strings.NewReader(in), "is_anomaly")
	if err != nil {
		t.Fatalf("ReadLabeledCSV failed: %v", err)
	}
	if len(txs) != 2 || len(labels) != 2 {
		t.Fatalf("expected 2 labelled rows, got %d/%d", len(txs), len(labels))
	}
	if labels[0] || !labels[1] {
		t.Errorf("unexpected labels %v", labels)
	}

	if _, _, err := ReadLabeledCSV(strings.NewReader(in), "label"); !errors.Is(err, ErrMalformedRecord) {
		t.Errorf("expected ErrMalformedRecord for missing label column, got %v", err)
	}
}

func TestFingerprint(t *testing.T) {
	a := []domain.Transaction{
		{ID: 1, Date: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Amount: 10, Type: "withdrawal", Category: "Food"},
	}
	b := []domain.Transaction{a[0]}
	b[0].Amount = 10.01

	if Fingerprint(a) != Fingerprint([]domain.Transaction{a[0]}) {
		t.Error("expected equal ledgers to share a fingerprint")
	}
	if Fingerprint(a) == Fingerprint(b) {
		t.Error("expected different amounts to change the fingerprint")
	}
	if Fingerprint(nil) == Fingerprint(a) {
		t.Error("expected empty ledger to differ")
	}
}

func TestStore(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "ledger-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	repo, err := repository.New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: tmpPath})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	eventBus := bus.NewChannelBus(10)
	defer eventBus.Close()

	ctx := context.Background()
	tenantID := "tenant-001"

	events := make(chan domain.LedgerUpdatedEvent, 4)
	eventBus.Subscribe(ctx, tenantID, domain.TopicLedgerUpdated, func(ctx context.Context, msg *domain.Message) error {
		var ev domain.LedgerUpdatedEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			return err
		}
		events <- ev
		return nil
	})

	store := NewStore(repo, eventBus)

	t.Run("EmptyLedger", func(t *testing.T) {
		snap, err := store.Snapshot(ctx, tenantID)
		if err != nil {
			t.Fatalf("Snapshot failed: %v", err)
		}
		if len(snap.Transactions) != 0 {
			t.Errorf("expected empty snapshot, got %d", len(snap.Transactions))
		}
	})

	var first *Snapshot

	t.Run("SaveInvalidatesAndPublishes", func(t *testing.T) {
		txs, err := ReadCSV(strings.NewReader(sampleCSV))
		if err != nil {
			t.Fatalf("ReadCSV failed: %v", err)
		}
		if err := store.Save(ctx, tenantID, txs, "import"); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		first, err = store.Snapshot(ctx, tenantID)
		if err != nil {
			t.Fatalf("Snapshot failed: %v", err)
		}
		if len(first.Transactions) != 3 {
			t.Fatalf("expected 3 transactions, got %d", len(first.Transactions))
		}
		if first.Transactions[0].ID != 4 {
			t.Errorf("expected newest first, got id %d", first.Transactions[0].ID)
		}

		select {
		case ev := <-events:
			if ev.Count != 3 || ev.Source != "import" || ev.TenantID != tenantID {
				t.Errorf("unexpected event %+v", ev)
			}
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for ledger update event")
		}
	})

	t.Run("SnapshotIsReused", func(t *testing.T) {
		again, err := store.Snapshot(ctx, tenantID)
		if err != nil {
			t.Fatalf("Snapshot failed: %v", err)
		}
		if again != first {
			t.Error("expected the cached snapshot to be returned")
		}
	})

	t.Run("FingerprintChangesOnWrite", func(t *testing.T) {
		extra := []domain.Transaction{
			{ID: 5, Date: time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC), Amount: 15, Type: domain.TypeWithdrawal, Category: "Food"},
		}
		if err := store.Save(ctx, tenantID, extra, "api"); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		snap, err := store.Snapshot(ctx, tenantID)
		if err != nil {
			t.Fatalf("Snapshot failed: %v", err)
		}
		if snap.Fingerprint == first.Fingerprint {
			t.Error("expected a new fingerprint after a write")
		}
	})

	t.Run("LoadSurvivesCallerCancellation", func(t *testing.T) {
		store.Invalidate(tenantID)

		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		snap, err := store.Snapshot(cancelled, tenantID)
		if err != nil {
			t.Fatalf("expected the shared load to ignore caller cancellation, got %v", err)
		}
		if len(snap.Transactions) != 4 {
			t.Errorf("expected 4 transactions, got %d", len(snap.Transactions))
		}
	})

	t.Run("Tenants", func(t *testing.T) {
		tenants, err := store.Tenants(ctx)
		if err != nil {
			t.Fatalf("Tenants failed: %v", err)
		}
		if len(tenants) != 1 || tenants[0] != tenantID {
			t.Errorf("expected [%s], got %v", tenantID, tenants)
		}
	})
}
