// Package alert provides the CEL-Go based dashboard alert engine.
package alert

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/consortia-finance/tally/internal/domain"
)

// Engine evaluates operator-defined alert expressions against dashboard
// aggregates. Rules are kept per tenant; a tenant's evaluation never
// sees another tenant's rules.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]map[string]*CompiledRule // tenantID -> ruleID
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Rule    *domain.AlertRule
	Program cel.Program
}

// NewEngine creates a new alert engine with the dashboard variables.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("total", cel.IntType),
		cel.Variable("active", cel.IntType),
		cel.Variable("avg_rate", cel.DoubleType),
		cel.Variable("conflicts", cel.IntType),
		cel.Variable("potential_impact", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:           env,
		compiledRules: make(map[string]map[string]*CompiledRule),
	}, nil
}

// ValidateRule compiles a rule without mutating the loaded set.
func (e *Engine) ValidateRule(rule *domain.AlertRule) error {
	if rule == nil {
		return fmt.Errorf("alert rule is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(rule)
	return err
}

// LoadRule compiles and loads a rule into its tenant's rule set.
func (e *Engine) LoadRule(rule *domain.AlertRule) error {
	if rule.TenantID == "" {
		return fmt.Errorf("alert rule %s: tenantID is required", rule.ID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(rule)
	if err != nil {
		return err
	}

	if e.compiledRules[rule.TenantID] == nil {
		e.compiledRules[rule.TenantID] = make(map[string]*CompiledRule)
	}
	e.compiledRules[rule.TenantID][rule.ID] = compiled
	return nil
}

// LoadRules compiles and loads multiple enabled rules.
func (e *Engine) LoadRules(rules []*domain.AlertRule) error {
	for _, rule := range rules {
		if rule.Enabled {
			if err := e.LoadRule(rule); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadRules replaces one tenant's rules with the given set. Other
// tenants' loaded rules are untouched. This enables hot-reloading of a
// tenant's rules from the database.
func (e *Engine) ReloadRules(tenantID string, rules []*domain.AlertRule) error {
	if tenantID == "" {
		return fmt.Errorf("tenantID is required")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make(map[string]*CompiledRule)
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		if rule.TenantID != tenantID {
			return fmt.Errorf("alert rule %s belongs to tenant %s, not %s", rule.ID, rule.TenantID, tenantID)
		}
		compiled, err := e.compileRule(rule)
		if err != nil {
			return err
		}
		newRules[rule.ID] = compiled
	}

	if len(newRules) == 0 {
		delete(e.compiledRules, tenantID)
		return nil
	}
	e.compiledRules[tenantID] = newRules
	return nil
}

// Evaluate runs the tenant's loaded rules against the metrics and
// returns the triggered alerts. Evaluation errors are reported as
// triggered alerts of severity critical so broken rules never fail
// silently.
func (e *Engine) Evaluate(tenantID string, metrics *domain.DashboardMetrics) []domain.Alert {
	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiledRules[tenantID]))
	for _, rule := range e.compiledRules[tenantID] {
		rules = append(rules, rule)
	}
	e.mu.RUnlock()

	if len(rules) == 0 {
		return nil
	}

	activation := map[string]any{
		"total":            int64(metrics.Total),
		"active":           int64(metrics.Active),
		"avg_rate":         metrics.AvgRate,
		"conflicts":        int64(metrics.Conflicts),
		"potential_impact": metrics.PotentialImpact,
	}

	now := time.Now().UTC()
	var alerts []domain.Alert
	for _, rule := range rules {
		out, _, err := rule.Program.Eval(activation)
		if err != nil {
			alerts = append(alerts, domain.Alert{
				RuleID:      rule.Rule.ID,
				RuleName:    rule.Rule.Name,
				TenantID:    tenantID,
				Severity:    domain.SeverityCritical,
				Message:     fmt.Sprintf("alert rule evaluation error: %v", err),
				Metrics:     *metrics,
				TriggeredAt: now,
			})
			continue
		}

		if out == types.True {
			alerts = append(alerts, domain.Alert{
				RuleID:      rule.Rule.ID,
				RuleName:    rule.Rule.Name,
				TenantID:    tenantID,
				Severity:    rule.Rule.Severity,
				Message:     rule.Rule.Description,
				Metrics:     *metrics,
				TriggeredAt: now,
			})
		}
	}

	return alerts
}

// GetLoadedRules returns the rules currently loaded for a tenant.
func (e *Engine) GetLoadedRules(tenantID string) []*domain.AlertRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.AlertRule, 0, len(e.compiledRules[tenantID]))
	for _, compiled := range e.compiledRules[tenantID] {
		rules = append(rules, compiled.Rule)
	}
	return rules
}

// RulesCount returns the number of rules loaded for a tenant.
func (e *Engine) RulesCount(tenantID string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules[tenantID])
}

// TotalRules returns the number of loaded rules across all tenants.
func (e *Engine) TotalRules() int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	total := 0
	for _, rules := range e.compiledRules {
		total += len(rules)
	}
	return total
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]map[string]*CompiledRule)
	return nil
}

func (e *Engine) compileRule(rule *domain.AlertRule) (*CompiledRule, error) {
	ast, issues := e.env.Compile(rule.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile alert rule %s: %w", rule.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("alert rule %s: expression must return bool, got %s", rule.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for alert rule %s: %w", rule.ID, err)
	}

	return &CompiledRule{
		Rule:    rule,
		Program: program,
	}, nil
}
