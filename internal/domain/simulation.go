package domain

// SimulationParams are the inputs to an impact simulation. The scenario
// is request-scoped: built on simulate, discarded after display.
type SimulationParams struct {
	// Rate is the candidate commission percentage.
	Rate float64 `json:"rate"`

	// Volume is the expected number of sales per month.
	Volume float64 `json:"volume"`

	// AvgTicket is the average sale value.
	AvgTicket float64 `json:"avgTicket"`

	// Seasonality scales the monthly volume; 1.0 = no adjustment.
	Seasonality float64 `json:"seasonality"`
}

// SimulationResult is the projected financial effect of a candidate rate.
type SimulationResult struct {
	MonthlySales   float64 `json:"monthlySales"`
	MonthlyRevenue float64 `json:"monthlyRevenue"`
	MonthlyImpact  float64 `json:"monthlyImpact"`
	AnnualImpact   float64 `json:"annualImpact"`

	RiskLevel       string   `json:"riskLevel"`
	Recommendations []string `json:"recommendations"`
}

// Risk tiers, ordered. Classification is first-match-wins.
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)
