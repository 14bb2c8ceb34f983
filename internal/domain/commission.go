package domain

import (
	"math"
	"time"
)

// CommissionRecord is a commission rate configuration for a consortium product.
// A record with SellerID set overrides the product default for that seller,
// optionally restricted to a sale-value range.
type CommissionRecord struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`

	// SellerID is empty for product-level default rates.
	SellerID  string `json:"sellerId,omitempty"`
	ProductID string `json:"productId"`

	// Rate is a percentage in (0, 100] applied to the base amount
	// named by RecipientType.
	Rate float64 `json:"rate"`

	// Sale-value range the rate applies to. A nil bound is unbounded
	// on that side.
	MinSaleValue *float64 `json:"minSaleValue,omitempty"`
	MaxSaleValue *float64 `json:"maxSaleValue,omitempty"`

	// RecipientType names the externally supplied base amount:
	// "sale_value" or "office_commission".
	RecipientType string `json:"recipientType"`

	// Inactive records are excluded from resolution and conflict
	// checks but kept for audit history.
	IsActive bool `json:"isActive"`

	// IsDefaultRate is true only for product-level fallback records.
	IsDefaultRate bool `json:"isDefaultRate"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Base amount types for RecipientType.
const (
	BaseSaleValue        = "sale_value"
	BaseOfficeCommission = "office_commission"
)

// IsSellerSpecific reports whether the record overrides a seller's rate
// rather than acting as a product default.
func (r *CommissionRecord) IsSellerSpecific() bool {
	return r.SellerID != ""
}

// Bounds returns the effective sale-value range, with absent bounds
// widened to ±infinity.
func (r *CommissionRecord) Bounds() (min, max float64) {
	min = math.Inf(-1)
	max = math.Inf(1)
	if r.MinSaleValue != nil {
		min = *r.MinSaleValue
	}
	if r.MaxSaleValue != nil {
		max = *r.MaxSaleValue
	}
	return min, max
}

// Contains reports whether saleValue falls inside the record's range.
// Bounds are inclusive.
func (r *CommissionRecord) Contains(saleValue float64) bool {
	min, max := r.Bounds()
	return saleValue >= min && saleValue <= max
}

// RangeSpan is the width of the record's range, +Inf when either side
// is unbounded. Used by the resolver's narrowest-range tie-break.
func (r *CommissionRecord) RangeSpan() float64 {
	min, max := r.Bounds()
	return max - min
}

// CommissionPatch is a partial update to a commission record.
// Nil fields are left untouched; clearing a range bound is explicit
// so that nil never silently means "unbounded".
type CommissionPatch struct {
	Rate          *float64 `json:"rate,omitempty"`
	MinSaleValue  *float64 `json:"minSaleValue,omitempty"`
	MaxSaleValue  *float64 `json:"maxSaleValue,omitempty"`
	ClearMinValue bool     `json:"clearMinSaleValue,omitempty"`
	ClearMaxValue bool     `json:"clearMaxSaleValue,omitempty"`
	RecipientType *string  `json:"recipientType,omitempty"`
	IsActive      *bool    `json:"isActive,omitempty"`
}

// Apply merges the patch onto a copy of rec and returns it.
func (p *CommissionPatch) Apply(rec *CommissionRecord) *CommissionRecord {
	merged := *rec
	if p.Rate != nil {
		merged.Rate = *p.Rate
	}
	if p.MinSaleValue != nil {
		merged.MinSaleValue = p.MinSaleValue
	}
	if p.MaxSaleValue != nil {
		merged.MaxSaleValue = p.MaxSaleValue
	}
	if p.ClearMinValue {
		merged.MinSaleValue = nil
	}
	if p.ClearMaxValue {
		merged.MaxSaleValue = nil
	}
	if p.RecipientType != nil {
		merged.RecipientType = *p.RecipientType
	}
	if p.IsActive != nil {
		merged.IsActive = *p.IsActive
	}
	return &merged
}

// CommissionOverview is a record annotated with the consistency-check
// output of the configuration service.
type CommissionOverview struct {
	CommissionRecord

	// Conflicts lists overlap errors against sibling records. Empty
	// when validation has been enforced on every write path.
	Conflicts []string `json:"conflicts"`

	// PotentialImpact is the projected monthly commission cost for
	// this record against the seller's trailing sales.
	PotentialImpact float64 `json:"potentialImpact"`
}

// DashboardMetrics are the configuration-service aggregates, derived by
// folding over the conflict-annotated record list.
type DashboardMetrics struct {
	Total           int     `json:"total"`
	Active          int     `json:"active"`
	AvgRate         float64 `json:"avgRate"`
	Conflicts       int     `json:"conflicts"`
	PotentialImpact float64 `json:"potentialImpact"`
}
