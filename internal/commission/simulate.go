package commission

import (
	"github.com/consortia-finance/tally/internal/domain"
)

// Risk classification thresholds. Ordered, first match wins.
const (
	highRiskRate     = 4.0
	highRiskVolume   = 18.0
	mediumRiskRate   = 2.5
	mediumRiskVolume = 12.0
)

// Recommendation thresholds. Checks are independent, not exclusive.
const (
	lowRateThreshold      = 2.0
	highVolumeThreshold   = 15.0
	highImpactThreshold   = 15000.0
)

// Simulate projects the monthly and annual financial effect of a
// candidate rate. The function is pure: it never touches persisted
// records. A zero seasonality is taken literally (no sales).
func Simulate(p domain.SimulationParams) domain.SimulationResult {
	monthlySales := p.Volume * p.Seasonality
	monthlyRevenue := monthlySales * p.AvgTicket
	monthlyImpact := monthlyRevenue * (p.Rate / 100)

	result := domain.SimulationResult{
		MonthlySales:   monthlySales,
		MonthlyRevenue: monthlyRevenue,
		MonthlyImpact:  monthlyImpact,
		AnnualImpact:   monthlyImpact * 12,
		RiskLevel:      classifyRisk(p.Rate, p.Volume),
	}
	result.Recommendations = recommendations(p, result)

	return result
}

func classifyRisk(rate, volume float64) string {
	switch {
	case rate > highRiskRate || volume > highRiskVolume:
		return domain.RiskHigh
	case rate > mediumRiskRate || volume > mediumRiskVolume:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}

func recommendations(p domain.SimulationParams, r domain.SimulationResult) []string {
	var recs []string
	if p.Rate < lowRateThreshold {
		recs = append(recs, "rate may be too low to motivate sellers")
	}
	if p.Volume > highVolumeThreshold {
		recs = append(recs, "sales target may be optimistic")
	}
	if r.MonthlyImpact > highImpactThreshold {
		recs = append(recs, "high financial impact, monitor closely")
	}
	if r.RiskLevel == domain.RiskLow {
		recs = append(recs, "balanced scenario")
	}
	return recs
}

// SimulateSales derives volume and average ticket from a seller's
// trailing sales and runs the core simulation with the candidate rate.
// The projection is forward-looking: the candidate rate is applied to
// the observed sales profile, and any rate embedded in the historical
// sales is ignored.
func SimulateSales(rate float64, sales []*domain.Sale, trailingMonths int) domain.SimulationResult {
	if trailingMonths <= 0 {
		trailingMonths = 1
	}

	var total float64
	for _, s := range sales {
		total += s.Value
	}

	params := domain.SimulationParams{
		Rate:        rate,
		Seasonality: 1.0,
	}
	if n := len(sales); n > 0 {
		params.Volume = float64(n) / float64(trailingMonths)
		params.AvgTicket = total / float64(n)
	}

	return Simulate(params)
}
