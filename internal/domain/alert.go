package domain

import "time"

// AlertRule is an operator-defined alert over dashboard aggregates.
// The expression is a CEL predicate evaluated against DashboardMetrics;
// a true result triggers an alert on the event bus.
// Example: "conflicts > 0 || avg_rate > 4.0"
type AlertRule struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// Expression is a CEL predicate over the variables
	// total, active, avg_rate, conflicts and potential_impact.
	Expression string `json:"expression"`

	// Severity is advisory: "info", "warning" or "critical".
	Severity string `json:"severity"`

	Enabled bool `json:"enabled"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// Alert is a triggered alert-rule evaluation.
type Alert struct {
	RuleID   string `json:"ruleId"`
	RuleName string `json:"ruleName"`
	TenantID string `json:"tenantId"`
	Severity string `json:"severity"`
	Message  string `json:"message"`

	Metrics DashboardMetrics `json:"metrics"`

	TriggeredAt time.Time `json:"triggeredAt"`
}

// Alert severities.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)
