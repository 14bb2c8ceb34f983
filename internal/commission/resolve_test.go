package commission

import (
	"errors"
	"testing"
	"time"

	"github.com/consortia-finance/tally/internal/domain"
)

func defaultRecord(id string, rate float64, min, max *float64) *domain.CommissionRecord {
	rec := record(id, "", rate, min, max)
	rec.IsDefaultRate = true
	return rec
}

func TestResolveSelectsByRange(t *testing.T) {
	a := record("rec-a", "seller-001", 3.0, f(0), f(50000))
	b := record("rec-b", "seller-001", 2.0, f(50001), nil)
	records := []*domain.CommissionRecord{a, b}

	got, err := Resolve("seller-001", "product-001", 30000, records)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if got.ID != "rec-a" {
		t.Errorf("expected rec-a for value 30000, got %s", got.ID)
	}

	got, err = Resolve("seller-001", "product-001", 70000, records)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if got.ID != "rec-b" {
		t.Errorf("expected rec-b for value 70000, got %s", got.ID)
	}
}

func TestResolveFallsBackToDefault(t *testing.T) {
	d := defaultRecord("rec-d", 1.0, nil, nil)

	got, err := Resolve("seller-001", "product-001", 100, []*domain.CommissionRecord{d})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if got.ID != "rec-d" {
		t.Errorf("expected default record, got %s", got.ID)
	}
}

func TestResolveSellerSpecificWinsOverDefault(t *testing.T) {
	override := record("rec-s", "seller-001", 3.0, nil, nil)
	fallback := defaultRecord("rec-d", 1.0, nil, nil)

	got, err := Resolve("seller-001", "product-001", 25000, []*domain.CommissionRecord{fallback, override})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if got.ID != "rec-s" {
		t.Errorf("seller-specific record must win over default, got %s", got.ID)
	}
}

func TestResolveNotFound(t *testing.T) {
	a := record("rec-a", "seller-001", 3.0, f(0), f(50000))

	_, err := Resolve("seller-001", "product-001", 60000, []*domain.CommissionRecord{a})
	if !errors.Is(err, ErrNoApplicableRate) {
		t.Errorf("expected ErrNoApplicableRate, got %v", err)
	}

	_, err = Resolve("seller-001", "product-001", 100, nil)
	if !errors.Is(err, ErrNoApplicableRate) {
		t.Errorf("expected ErrNoApplicableRate for empty set, got %v", err)
	}
}

func TestResolveSkipsOtherSellersAndInactive(t *testing.T) {
	other := record("rec-o", "seller-002", 5.0, nil, nil)
	inactive := record("rec-i", "seller-001", 4.0, nil, nil)
	inactive.IsActive = false

	_, err := Resolve("seller-001", "product-001", 1000, []*domain.CommissionRecord{other, inactive})
	if !errors.Is(err, ErrNoApplicableRate) {
		t.Errorf("expected ErrNoApplicableRate, got %v", err)
	}
}

func TestResolveBoundsInclusive(t *testing.T) {
	a := record("rec-a", "seller-001", 3.0, f(0), f(50000))

	for _, value := range []float64{0, 50000} {
		got, err := Resolve("seller-001", "product-001", value, []*domain.CommissionRecord{a})
		if err != nil {
			t.Fatalf("value %.0f: resolve failed: %v", value, err)
		}
		if got.ID != "rec-a" {
			t.Errorf("value %.0f: expected rec-a, got %s", value, got.ID)
		}
	}
}

func TestResolveMultipleMatchesPicksNarrowest(t *testing.T) {
	// Overlapping records simulate a conflict introduced out of band;
	// the resolver must pick the narrowest range and not fail.
	wide := record("rec-wide", "seller-001", 3.0, f(0), f(100000))
	narrow := record("rec-narrow", "seller-001", 2.0, f(20000), f(40000))

	got, err := Resolve("seller-001", "product-001", 30000, []*domain.CommissionRecord{wide, narrow})
	if err != nil {
		t.Fatalf("resolve must not fail on a live conflict: %v", err)
	}
	if got.ID != "rec-narrow" {
		t.Errorf("expected narrowest range to win, got %s", got.ID)
	}
}

func TestResolveTieBreakMostRecentlyUpdated(t *testing.T) {
	older := record("rec-old", "seller-001", 3.0, f(0), f(50000))
	older.UpdatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := record("rec-new", "seller-001", 2.0, f(10000), f(60000))
	newer.UpdatedAt = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	got, err := Resolve("seller-001", "product-001", 30000, []*domain.CommissionRecord{older, newer})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if got.ID != "rec-new" {
		t.Errorf("expected most recently updated record on equal spans, got %s", got.ID)
	}
}

func TestResolveDeterminism(t *testing.T) {
	records := []*domain.CommissionRecord{
		record("rec-a", "seller-001", 3.0, f(0), f(50000)),
		record("rec-b", "seller-001", 2.0, f(50001), nil),
		defaultRecord("rec-d", 1.0, nil, nil),
	}

	first, err := Resolve("seller-001", "product-001", 42000, records)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	for i := 0; i < 50; i++ {
		got, err := Resolve("seller-001", "product-001", 42000, records)
		if err != nil {
			t.Fatalf("iteration %d: resolve failed: %v", i, err)
		}
		if got != first {
			t.Fatalf("iteration %d: resolution is not deterministic", i)
		}
	}
}
