package history

import (
	"context"
	"testing"
	"time"

	"github.com/consortia-finance/tally/internal/domain"
)

type fakeRepo struct {
	domain.Repository
	sales []*domain.Sale
}

func (f *fakeRepo) GetSalesBySeller(ctx context.Context, tenantID, sellerID, productID string, since time.Time) ([]*domain.Sale, error) {
	var out []*domain.Sale
	for _, s := range f.sales {
		if s.SellerID != sellerID {
			continue
		}
		if productID != "" && s.ProductID != productID {
			continue
		}
		if s.SoldAt.Before(since) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func TestTrailingStats(t *testing.T) {
	now := time.Now().UTC()
	repo := &fakeRepo{sales: []*domain.Sale{
		{SellerID: "seller-001", ProductID: "product-001", Value: 40000, SoldAt: now.AddDate(0, -1, 0)},
		{SellerID: "seller-001", ProductID: "product-001", Value: 60000, SoldAt: now.AddDate(0, -2, 0)},
		{SellerID: "seller-001", ProductID: "product-002", Value: 99999, SoldAt: now.AddDate(0, -1, 0)},
		{SellerID: "seller-002", ProductID: "product-001", Value: 11111, SoldAt: now.AddDate(0, -1, 0)},
	}}

	svc := NewService(repo)
	ctx := context.Background()

	t.Run("PerProduct", func(t *testing.T) {
		volume, avgTicket, err := svc.TrailingStats(ctx, "tenant-001", "seller-001", "product-001", 2)
		if err != nil {
			t.Fatalf("TrailingStats failed: %v", err)
		}
		if volume != 1.0 {
			t.Errorf("expected volume 1.0, got %.2f", volume)
		}
		if avgTicket != 50000 {
			t.Errorf("expected avg ticket 50000, got %.2f", avgTicket)
		}
	})

	t.Run("AllProducts", func(t *testing.T) {
		volume, _, err := svc.TrailingStats(ctx, "tenant-001", "seller-001", "", 3)
		if err != nil {
			t.Fatalf("TrailingStats failed: %v", err)
		}
		if volume != 1.0 {
			t.Errorf("expected volume 1.0 over 3 months, got %.2f", volume)
		}
	})

	t.Run("NoHistory", func(t *testing.T) {
		volume, avgTicket, err := svc.TrailingStats(ctx, "tenant-001", "seller-404", "", 6)
		if err != nil {
			t.Fatalf("TrailingStats failed: %v", err)
		}
		if volume != 0 || avgTicket != 0 {
			t.Errorf("expected zeros without history, got %.2f/%.2f", volume, avgTicket)
		}
	})

	t.Run("RequiresSeller", func(t *testing.T) {
		if _, _, err := svc.TrailingStats(ctx, "tenant-001", "", "", 6); err == nil {
			t.Error("expected error for empty sellerID")
		}
	})
}
