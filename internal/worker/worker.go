// Package worker provides async sale settlement for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/consortia-finance/tally/internal/commission"
	"github.com/consortia-finance/tally/internal/domain"
)

// Worker settles sales asynchronously from the EventBus. Producers
// publish submitted sales onto the bus and the worker resolves the
// applicable rate and records the settlement, so the HTTP path never
// blocks on commission resolution.
type Worker struct {
	bus     domain.EventBus
	service *commission.Service

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = global subscription)
	TenantIDs []string
}

// NewWorker creates a new async settlement worker.
func NewWorker(bus domain.EventBus, service *commission.Service) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:     bus,
		service: service,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start begins processing submitted sales for the given tenants.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.TenantIDs) == 0 {
		return w.startGlobalWorker()
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.startTenantWorker(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("settlement workers started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

// startGlobalWorker starts a worker that processes all tenants (for testing/dev).
func (w *Worker) startGlobalWorker() error {
	sub, err := w.bus.Subscribe(w.ctx, "_global", domain.TopicSaleSubmitted, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("global settlement worker started")
	return nil
}

// startTenantWorker starts a worker for a specific tenant.
func (w *Worker) startTenantWorker(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicSaleSubmitted, func(ctx context.Context, msg *domain.Message) error {
		return w.settleSale(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("tenant settlement worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicSaleSubmitted,
	)

	return nil
}

// handleMessage handles messages from the global subscription.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.settleSale(ctx, msg.TenantID, msg)
}

// SaleMessage is the message payload for async settlement.
type SaleMessage struct {
	SaleID           string  `json:"saleId"`
	TenantID         string  `json:"tenantId"`
	SellerID         string  `json:"sellerId"`
	ProductID        string  `json:"productId"`
	Value            float64 `json:"value"`
	OfficeCommission float64 `json:"officeCommission,omitempty"`
	SoldAt           string  `json:"soldAt,omitempty"`
}

// settleSale records the sale and resolves its commission.
func (w *Worker) settleSale(ctx context.Context, tenantID string, msg *domain.Message) error {
	start := time.Now()

	var saleMsg SaleMessage
	if err := json.Unmarshal(msg.Payload, &saleMsg); err != nil {
		slog.Error("failed to parse sale message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// Use message tenant if provided
	if saleMsg.TenantID != "" {
		tenantID = saleMsg.TenantID
	}

	sale := &domain.Sale{
		ID:               saleMsg.SaleID,
		TenantID:         tenantID,
		SellerID:         saleMsg.SellerID,
		ProductID:        saleMsg.ProductID,
		Value:            saleMsg.Value,
		OfficeCommission: saleMsg.OfficeCommission,
	}
	if saleMsg.SoldAt != "" {
		if soldAt, err := time.Parse(time.RFC3339, saleMsg.SoldAt); err == nil {
			sale.SoldAt = soldAt
		}
	}

	settlement, err := w.service.Settle(ctx, tenantID, sale)
	if err != nil {
		// Blocked resolutions are published by the service for operator
		// review; the sale itself is already recorded.
		if errors.Is(err, commission.ErrNoApplicableRate) {
			slog.Warn("async settlement blocked",
				"sale_id", sale.ID,
				"tenant_id", tenantID,
				"seller_id", sale.SellerID,
				"product_id", sale.ProductID,
			)
			return nil
		}
		slog.Error("async settlement failed",
			"sale_id", sale.ID,
			"tenant_id", tenantID,
			"error", err,
		)
		return err
	}

	slog.Info("sale settled",
		"sale_id", sale.ID,
		"tenant_id", tenantID,
		"record_id", settlement.RecordID,
		"rate", settlement.Rate,
		"commission_amount", settlement.CommissionAmount,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("settlement workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
