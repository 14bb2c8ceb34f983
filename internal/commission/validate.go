// Package commission implements the commission configuration core:
// overlap validation, rate resolution and impact simulation.
package commission

import (
	"fmt"
	"math"

	"github.com/consortia-finance/tally/internal/domain"
)

// Validate checks a candidate record against the existing active set for
// the same (seller, product) key. It returns human-readable validation
// errors; an empty slice means the candidate is clean. The caller decides
// whether to block the save.
//
// existing must be pre-filtered to active records for the candidate's
// (tenantID, sellerID, productID). excludeID skips the candidate's own
// prior record when validating an update.
func Validate(candidate *domain.CommissionRecord, existing []*domain.CommissionRecord, excludeID string) []string {
	var errs []string

	if candidate.Rate <= 0 || candidate.Rate > 100 {
		errs = append(errs, fmt.Sprintf("rate must be greater than 0 and at most 100, got %.2f", candidate.Rate))
	}

	if candidate.MinSaleValue != nil && candidate.MaxSaleValue != nil &&
		*candidate.MinSaleValue > *candidate.MaxSaleValue {
		errs = append(errs, fmt.Sprintf("minimum sale value %.2f is greater than maximum %.2f",
			*candidate.MinSaleValue, *candidate.MaxSaleValue))
	}

	for _, other := range existing {
		if other.ID == excludeID || other.ID == candidate.ID {
			continue
		}
		if !other.IsActive {
			continue
		}
		if Overlaps(candidate, other) {
			errs = append(errs, fmt.Sprintf("range %s overlaps active record %s with range %s",
				FormatRange(candidate), other.ID, FormatRange(other)))
		}
	}

	return errs
}

// Overlaps reports whether two records' sale-value ranges intersect.
// Absent bounds widen to ±infinity, so an unranged record overlaps every
// other record for the same key. The relation is symmetric.
func Overlaps(a, b *domain.CommissionRecord) bool {
	minA, maxA := a.Bounds()
	minB, maxB := b.Bounds()
	return minA <= maxB && minB <= maxA
}

// FormatRange renders a record's range for validation messages.
func FormatRange(rec *domain.CommissionRecord) string {
	min, max := rec.Bounds()
	if math.IsInf(min, -1) && math.IsInf(max, 1) {
		return "(unbounded)"
	}
	lower := "(unbounded"
	if !math.IsInf(min, -1) {
		lower = fmt.Sprintf("[%.2f", min)
	}
	upper := "unbounded)"
	if !math.IsInf(max, 1) {
		upper = fmt.Sprintf("%.2f]", max)
	}
	return lower + ", " + upper
}
