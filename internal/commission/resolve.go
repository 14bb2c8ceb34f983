package commission

import (
	"errors"
	"log/slog"

	"github.com/consortia-finance/tally/internal/domain"
)

// ErrNoApplicableRate is returned when no active record matches a sale.
// The caller decides the fallback: block the sale's commission step or
// apply a system-wide default outside this core.
var ErrNoApplicableRate = errors.New("no applicable commission rate")

// Resolve selects the single commission record that applies to a sale.
// records must be pre-filtered to active records for the tenant and
// product; seller-specific records for other sellers are skipped.
//
// Precedence: a seller-specific record whose range contains saleValue
// wins over a matching product default. Multiple seller-specific matches
// should not exist when every write passed Validate; if they do, the
// resolver picks the narrowest range (tie-break: most recently updated)
// and logs a consistency warning instead of failing.
//
// Resolution is deterministic and side-effect-free apart from that log.
func Resolve(sellerID, productID string, saleValue float64, records []*domain.CommissionRecord) (*domain.CommissionRecord, error) {
	var sellerMatches []*domain.CommissionRecord
	var defaultMatch *domain.CommissionRecord

	for _, rec := range records {
		if !rec.IsActive || rec.ProductID != productID {
			continue
		}
		if !rec.Contains(saleValue) {
			continue
		}

		switch {
		case rec.SellerID == sellerID && rec.IsSellerSpecific():
			sellerMatches = append(sellerMatches, rec)
		case !rec.IsSellerSpecific() && rec.IsDefaultRate:
			if defaultMatch == nil || preferred(rec, defaultMatch) {
				defaultMatch = rec
			}
		}
	}

	if len(sellerMatches) == 1 {
		return sellerMatches[0], nil
	}

	if len(sellerMatches) > 1 {
		chosen := sellerMatches[0]
		for _, rec := range sellerMatches[1:] {
			if preferred(rec, chosen) {
				chosen = rec
			}
		}
		slog.Warn("consistency warning: multiple seller-specific records match sale",
			"seller_id", sellerID,
			"product_id", productID,
			"sale_value", saleValue,
			"matches", len(sellerMatches),
			"chosen_record", chosen.ID,
		)
		return chosen, nil
	}

	if defaultMatch != nil {
		return defaultMatch, nil
	}

	return nil, ErrNoApplicableRate
}

// preferred reports whether a should be chosen over b: narrower range
// first, most recently updated on equal spans.
func preferred(a, b *domain.CommissionRecord) bool {
	spanA, spanB := a.RangeSpan(), b.RangeSpan()
	if spanA != spanB {
		return spanA < spanB
	}
	return a.UpdatedAt.After(b.UpdatedAt)
}
