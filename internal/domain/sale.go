package domain

import (
	"time"
)

// Sale is a consortium sale submitted for commission settlement.
type Sale struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`

	SellerID  string `json:"sellerId"`
	ProductID string `json:"productId"`

	// Value is the sale amount the commission range is matched against.
	Value float64 `json:"value"`

	// OfficeCommission is the externally computed office commission for
	// this sale, used as the base amount for office-based rates.
	OfficeCommission float64 `json:"officeCommission,omitempty"`

	SoldAt    time.Time `json:"soldAt"`
	CreatedAt time.Time `json:"createdAt"`
}

// BaseAmount returns the amount the resolved rate percentage applies to.
func (s *Sale) BaseAmount(recipientType string) float64 {
	if recipientType == BaseOfficeCommission {
		return s.OfficeCommission
	}
	return s.Value
}

// Settlement is the outcome of resolving a commission rate for a sale.
type Settlement struct {
	SaleID   string `json:"saleId"`
	TenantID string `json:"tenantId"`

	RecordID      string  `json:"recordId"`
	Rate          float64 `json:"rate"`
	RecipientType string  `json:"recipientType"`

	// CommissionAmount = base amount * rate / 100.
	CommissionAmount float64 `json:"commissionAmount"`

	ResolvedAt time.Time `json:"resolvedAt"`
}
