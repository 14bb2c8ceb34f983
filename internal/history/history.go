// Package history provides trailing sales aggregation for sellers.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/consortia-finance/tally/internal/domain"
)

// Service reads a seller's sales history for impact simulation.
type Service struct {
	repo domain.Repository
}

// NewService creates a new sales history service.
func NewService(repo domain.Repository) *Service {
	return &Service{repo: repo}
}

// TrailingSales returns a seller's sales over the trailing window.
// productID narrows to one product when set.
func (s *Service) TrailingSales(ctx context.Context, tenantID, sellerID, productID string, months int) ([]*domain.Sale, error) {
	if tenantID == "" || sellerID == "" {
		return nil, fmt.Errorf("tenantID and sellerID are required")
	}
	if months <= 0 {
		months = 6
	}

	since := time.Now().UTC().AddDate(0, -months, 0)

	sales, err := s.repo.GetSalesBySeller(ctx, tenantID, sellerID, productID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load sales history: %w", err)
	}
	return sales, nil
}

// TrailingStats aggregates the trailing window into the monthly volume
// and average ticket the simulator takes as input.
func (s *Service) TrailingStats(ctx context.Context, tenantID, sellerID, productID string, months int) (volume, avgTicket float64, err error) {
	if months <= 0 {
		months = 6
	}

	sales, err := s.TrailingSales(ctx, tenantID, sellerID, productID, months)
	if err != nil {
		return 0, 0, err
	}
	if len(sales) == 0 {
		return 0, 0, nil
	}

	var total float64
	for _, sale := range sales {
		total += sale.Value
	}

	volume = float64(len(sales)) / float64(months)
	avgTicket = total / float64(len(sales))
	return volume, avgTicket, nil
}
