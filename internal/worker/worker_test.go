package worker

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/consortia-finance/tally/internal/bus"
	"github.com/consortia-finance/tally/internal/cache"
	"github.com/consortia-finance/tally/internal/commission"
	"github.com/consortia-finance/tally/internal/domain"
	"github.com/consortia-finance/tally/internal/history"
	"github.com/consortia-finance/tally/internal/repository"
)

func newTestWorker(t *testing.T) (*Worker, *commission.Service, domain.EventBus) {
	t.Helper()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	eventBus := bus.NewChannelBus(100)
	t.Cleanup(func() { eventBus.Close() })

	svc := commission.NewService(repo, cache.NewLRUCache(100), eventBus, history.NewService(repo))

	w := NewWorker(eventBus, svc)
	t.Cleanup(func() { w.Stop() })

	return w, svc, eventBus
}

func seedRecord(t *testing.T, svc *commission.Service, tenantID string) *domain.CommissionRecord {
	t.Helper()

	min, max := 0.0, 50000.0
	rec, err := svc.Create(context.Background(), tenantID, &domain.CommissionRecord{
		SellerID:      "seller-1",
		ProductID:     "consorcio-auto",
		Rate:          2.5,
		MinSaleValue:  &min,
		MaxSaleValue:  &max,
		RecipientType: domain.BaseSaleValue,
	})
	if err != nil {
		t.Fatalf("failed to seed record: %v", err)
	}
	return rec
}

func TestWorkerSettlesSubmittedSale(t *testing.T) {
	w, svc, eventBus := newTestWorker(t)
	ctx := context.Background()
	tenantID := "tenant-001"

	rec := seedRecord(t, svc, tenantID)

	if err := w.Start(Config{TenantIDs: []string{tenantID}}); err != nil {
		t.Fatalf("worker start failed: %v", err)
	}

	settled := make(chan *domain.Settlement, 1)
	_, err := eventBus.Subscribe(ctx, tenantID, domain.TopicSaleSettled, func(ctx context.Context, msg *domain.Message) error {
		var s domain.Settlement
		if err := json.Unmarshal(msg.Payload, &s); err != nil {
			return err
		}
		settled <- &s
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	time.Sleep(10 * time.Millisecond)

	payload, _ := json.Marshal(SaleMessage{
		SaleID:    "sale-1",
		TenantID:  tenantID,
		SellerID:  "seller-1",
		ProductID: "consorcio-auto",
		Value:     30000,
	})
	if err := eventBus.Publish(ctx, tenantID, domain.TopicSaleSubmitted, payload); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	var s *domain.Settlement
	select {
	case s = <-settled:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for settlement")
	}

	if s.RecordID != rec.ID {
		t.Errorf("expected record %s, got %s", rec.ID, s.RecordID)
	}
	if s.CommissionAmount != 750 {
		t.Errorf("expected commission 750, got %f", s.CommissionAmount)
	}
}

func TestWorkerBlockedResolutionIsPublished(t *testing.T) {
	w, svc, eventBus := newTestWorker(t)
	ctx := context.Background()
	tenantID := "tenant-001"

	seedRecord(t, svc, tenantID)

	if err := w.Start(Config{TenantIDs: []string{tenantID}}); err != nil {
		t.Fatalf("worker start failed: %v", err)
	}

	blocked := make(chan *domain.Sale, 1)
	_, err := eventBus.Subscribe(ctx, tenantID, domain.TopicResolutionBlocked, func(ctx context.Context, msg *domain.Message) error {
		var s domain.Sale
		if err := json.Unmarshal(msg.Payload, &s); err != nil {
			return err
		}
		blocked <- &s
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	time.Sleep(10 * time.Millisecond)

	// Sale value outside the configured range
	payload, _ := json.Marshal(SaleMessage{
		SaleID:    "sale-blocked",
		TenantID:  tenantID,
		SellerID:  "seller-1",
		ProductID: "consorcio-auto",
		Value:     90000,
	})
	if err := eventBus.Publish(ctx, tenantID, domain.TopicSaleSubmitted, payload); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case s := <-blocked:
		if s.ID != "sale-blocked" {
			t.Errorf("expected blocked sale-blocked, got %s", s.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for blocked resolution")
	}
}

func TestWorkerStats(t *testing.T) {
	w, _, _ := newTestWorker(t)

	if err := w.Start(Config{TenantIDs: []string{"tenant-a", "tenant-b"}}); err != nil {
		t.Fatalf("worker start failed: %v", err)
	}

	stats := w.GetStats()
	if stats.SubscriptionCount != 2 {
		t.Errorf("expected 2 subscriptions, got %d", stats.SubscriptionCount)
	}

	if err := w.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if w.GetStats().SubscriptionCount != 0 {
		t.Error("expected no subscriptions after stop")
	}
}
