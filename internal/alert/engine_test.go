package alert

import (
	"testing"

	"github.com/consortia-finance/tally/internal/domain"
)

func TestEngineCreation(t *testing.T) {
	engine, err := NewEngine()
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	defer engine.Close()

	if engine.TotalRules() != 0 {
		t.Errorf("expected 0 rules, got %d", engine.TotalRules())
	}
}

func TestLoadRule(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	rule := &domain.AlertRule{
		ID:         "conflict-watch",
		TenantID:   "tenant-001",
		Name:       "Conflict Watch",
		Expression: "conflicts > 0",
		Severity:   domain.SeverityCritical,
		Enabled:    true,
	}

	if err := engine.LoadRule(rule); err != nil {
		t.Fatalf("failed to load rule: %v", err)
	}
	if engine.RulesCount("tenant-001") != 1 {
		t.Errorf("expected 1 rule, got %d", engine.RulesCount("tenant-001"))
	}

	t.Run("MissingTenant", func(t *testing.T) {
		err := engine.LoadRule(&domain.AlertRule{
			ID:         "orphan",
			Expression: "total > 0",
			Enabled:    true,
		})
		if err == nil {
			t.Error("expected error for rule without tenant")
		}
	})
}

func TestLoadInvalidRule(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	t.Run("BadSyntax", func(t *testing.T) {
		err := engine.LoadRule(&domain.AlertRule{
			ID:         "broken",
			TenantID:   "tenant-001",
			Expression: "this is not valid CEL !!!",
			Enabled:    true,
		})
		if err == nil {
			t.Error("expected error for invalid CEL expression")
		}
	})

	t.Run("NonBoolean", func(t *testing.T) {
		err := engine.LoadRule(&domain.AlertRule{
			ID:         "non-bool",
			TenantID:   "tenant-001",
			Expression: "avg_rate * 2.0",
			Enabled:    true,
		})
		if err == nil {
			t.Error("expected error for non-boolean expression")
		}
	})
}

func TestEvaluate(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	rules := []*domain.AlertRule{
		{
			ID:          "conflict-watch",
			TenantID:    "tenant-001",
			Name:        "Conflict Watch",
			Description: "live overlapping commission records",
			Expression:  "conflicts > 0",
			Severity:    domain.SeverityCritical,
			Enabled:     true,
		},
		{
			ID:         "rate-creep",
			TenantID:   "tenant-001",
			Name:       "Rate Creep",
			Expression: "avg_rate > 4.0",
			Severity:   domain.SeverityWarning,
			Enabled:    true,
		},
		{
			ID:         "disabled-rule",
			TenantID:   "tenant-001",
			Expression: "true",
			Enabled:    false,
		},
	}
	if err := engine.LoadRules(rules); err != nil {
		t.Fatalf("failed to load rules: %v", err)
	}
	if engine.RulesCount("tenant-001") != 2 {
		t.Fatalf("disabled rules must not be loaded, got %d", engine.RulesCount("tenant-001"))
	}

	t.Run("Quiet", func(t *testing.T) {
		alerts := engine.Evaluate("tenant-001", &domain.DashboardMetrics{
			Total: 5, Active: 4, AvgRate: 2.5, Conflicts: 0,
		})
		if len(alerts) != 0 {
			t.Errorf("expected no alerts, got %v", alerts)
		}
	})

	t.Run("ConflictTriggers", func(t *testing.T) {
		alerts := engine.Evaluate("tenant-001", &domain.DashboardMetrics{
			Total: 5, Active: 4, AvgRate: 2.5, Conflicts: 2,
		})
		if len(alerts) != 1 {
			t.Fatalf("expected 1 alert, got %d", len(alerts))
		}
		if alerts[0].RuleID != "conflict-watch" {
			t.Errorf("expected conflict-watch, got %s", alerts[0].RuleID)
		}
		if alerts[0].Severity != domain.SeverityCritical {
			t.Errorf("expected critical severity, got %s", alerts[0].Severity)
		}
	})

	t.Run("BothTrigger", func(t *testing.T) {
		alerts := engine.Evaluate("tenant-001", &domain.DashboardMetrics{
			Total: 5, Active: 4, AvgRate: 4.5, Conflicts: 1,
		})
		if len(alerts) != 2 {
			t.Errorf("expected 2 alerts, got %d", len(alerts))
		}
	})
}

func TestEvaluateTenantIsolation(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	err := engine.LoadRule(&domain.AlertRule{
		ID:         "rule-a",
		TenantID:   "tenant-a",
		Name:       "Conflict Watch",
		Expression: "conflicts > 0",
		Severity:   domain.SeverityCritical,
		Enabled:    true,
	})
	if err != nil {
		t.Fatalf("failed to load rule: %v", err)
	}

	metrics := &domain.DashboardMetrics{Total: 3, Active: 3, Conflicts: 3}

	if alerts := engine.Evaluate("tenant-b", metrics); len(alerts) != 0 {
		t.Errorf("tenant-a's rules must not fire for tenant-b, got %v", alerts)
	}
	if alerts := engine.Evaluate("tenant-a", metrics); len(alerts) != 1 {
		t.Errorf("expected 1 alert for tenant-a, got %d", len(alerts))
	}
	if engine.RulesCount("tenant-b") != 0 {
		t.Errorf("tenant-b must see 0 loaded rules, got %d", engine.RulesCount("tenant-b"))
	}
}

func TestReloadRules(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	engine.LoadRule(&domain.AlertRule{ID: "old", TenantID: "tenant-001", Expression: "total > 0", Enabled: true})

	err := engine.ReloadRules("tenant-001", []*domain.AlertRule{
		{ID: "new-1", TenantID: "tenant-001", Expression: "conflicts > 0", Enabled: true},
		{ID: "new-2", TenantID: "tenant-001", Expression: "potential_impact > 15000.0", Enabled: true},
	})
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}

	if engine.RulesCount("tenant-001") != 2 {
		t.Errorf("expected 2 rules after reload, got %d", engine.RulesCount("tenant-001"))
	}
	for _, rule := range engine.GetLoadedRules("tenant-001") {
		if rule.ID == "old" {
			t.Error("old rule must be gone after reload")
		}
	}

	t.Run("OtherTenantsUntouched", func(t *testing.T) {
		engine.LoadRule(&domain.AlertRule{ID: "rule-b", TenantID: "tenant-b", Expression: "active > 0", Enabled: true})

		if err := engine.ReloadRules("tenant-001", nil); err != nil {
			t.Fatalf("reload failed: %v", err)
		}

		if engine.RulesCount("tenant-001") != 0 {
			t.Errorf("expected tenant-001 emptied, got %d", engine.RulesCount("tenant-001"))
		}
		if engine.RulesCount("tenant-b") != 1 {
			t.Errorf("tenant-b's rules must survive tenant-001's reload, got %d", engine.RulesCount("tenant-b"))
		}
	})

	t.Run("ForeignRuleRejected", func(t *testing.T) {
		err := engine.ReloadRules("tenant-001", []*domain.AlertRule{
			{ID: "stray", TenantID: "tenant-b", Expression: "total > 0", Enabled: true},
		})
		if err == nil {
			t.Error("expected error reloading another tenant's rule")
		}
	})
}
