//go:build integration
// +build integration

// Package integration provides end-to-end tests for the Tally commission
// configuration service.
//
// These tests verify the COMPLETE commission pipeline:
//
//	Record → Validation → Resolution → Settlement → Dashboard
//
// Run with: go test -tags=integration -v ./tests/integration/...
//
// UNDERSTANDING THE DOMAIN:
//
// 1. COMMISSION RECORD: A rate configuration for a (seller, product)
//    pair, optionally bounded to a sale value range. A record with no
//    seller is a product-wide default.
//
// 2. VALIDATION: Two active records for the same (seller, product) may
//    never overlap in range. Unbounded records are exclusive: they
//    overlap everything for their key.
//
// 3. RESOLUTION: A sale picks the seller-specific record containing its
//    value, falling back to the product default. No match blocks the
//    settlement; commissions are never silently zero.
//
// 4. SIMULATION: monthly impact = volume * seasonality * avgTicket *
//    rate / 100, annual = monthly * 12.
//
// Tests run against a live instance with an empty tenant; each test
// uses its own tenant ID so repeated runs do not collide.
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

// TestConfig holds test environment configuration
type TestConfig struct {
	BaseURL  string
	TenantID string
}

func getTestConfig(t *testing.T) TestConfig {
	baseURL := os.Getenv("TALLY_TEST_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return TestConfig{
		BaseURL:  baseURL,
		TenantID: fmt.Sprintf("it-%s-%d", t.Name(), time.Now().UnixNano()),
	}
}

// ============================================================================
// API Request/Response Types (matching Tally's API contract)
// ============================================================================

type CommissionRequest struct {
	SellerID     string   `json:"sellerId,omitempty"`
	ProductID    string   `json:"productId"`
	Rate         float64  `json:"rate"`
	MinSaleValue *float64 `json:"minSaleValue,omitempty"`
	MaxSaleValue *float64 `json:"maxSaleValue,omitempty"`
}

type CommissionRecord struct {
	ID            string   `json:"id"`
	SellerID      string   `json:"sellerId"`
	ProductID     string   `json:"productId"`
	Rate          float64  `json:"rate"`
	MinSaleValue  *float64 `json:"minSaleValue"`
	MaxSaleValue  *float64 `json:"maxSaleValue"`
	IsActive      bool     `json:"isActive"`
	IsDefaultRate bool     `json:"isDefaultRate"`
}

type SettleResponse struct {
	SaleID           string  `json:"saleId"`
	RecordID         string  `json:"recordId"`
	Rate             float64 `json:"rate"`
	CommissionAmount float64 `json:"commissionAmount"`
}

type SimulationResult struct {
	MonthlySales    float64  `json:"monthlySales"`
	MonthlyRevenue  float64  `json:"monthlyRevenue"`
	MonthlyImpact   float64  `json:"monthlyImpact"`
	AnnualImpact    float64  `json:"annualImpact"`
	RiskLevel       string   `json:"riskLevel"`
	Recommendations []string `json:"recommendations"`
}

// ============================================================================
// Test Helper Functions
// ============================================================================

func f(v float64) *float64 { return &v }

func do(t *testing.T, config TestConfig, method, path string, body any) (int, []byte) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to marshal request: %v", err)
		}
	}

	httpReq, err := http.NewRequest(method, config.BaseURL+path, &buf)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", config.TenantID)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}

	return resp.StatusCode, respBody
}

func mustCreate(t *testing.T, config TestConfig, req CommissionRequest) CommissionRecord {
	t.Helper()

	status, body := do(t, config, "POST", "/commissions", req)
	if status != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", status, string(body))
	}

	var rec CommissionRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		t.Fatalf("Failed to unmarshal record: %v (body: %s)", err, string(body))
	}
	return rec
}

// ============================================================================
// SCENARIO 1: Non-overlapping ranges configure cleanly
// ============================================================================

func TestTieredRanges_NoConflict(t *testing.T) {
	/*
	   SCENARIO: A seller gets two tiered rates on the same product:
	   2.5% for sales up to 50k, 2.0% above.

	   EXPECTED: Both records persist; the listing reports no conflicts.
	*/
	config := getTestConfig(t)

	mustCreate(t, config, CommissionRequest{
		SellerID:  "seller-1",
		ProductID: "consorcio-auto",
		Rate:      2.5,
		MinSaleValue: f(0),
		MaxSaleValue: f(50000),
	})
	mustCreate(t, config, CommissionRequest{
		SellerID:     "seller-1",
		ProductID:    "consorcio-auto",
		Rate:         2.0,
		MinSaleValue: f(50000.01),
	})

	status, body := do(t, config, "GET", "/commissions", nil)
	if status != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", status, string(body))
	}

	var list struct {
		Commissions []struct {
			Conflicts []string `json:"conflicts"`
		} `json:"commissions"`
		Count int `json:"count"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("Failed to unmarshal listing: %v", err)
	}

	if list.Count != 2 {
		t.Fatalf("Expected 2 records, got %d", list.Count)
	}
	for _, c := range list.Commissions {
		if len(c.Conflicts) > 0 {
			t.Errorf("Expected no conflicts, got %v", c.Conflicts)
		}
	}

	t.Logf("✓ Tiered ranges configured without conflicts")
}

// ============================================================================
// SCENARIO 2: Overlapping range is rejected
// ============================================================================

func TestOverlappingRange_Rejected(t *testing.T) {
	/*
	   SCENARIO: A second record for the same seller and product overlaps
	   the first ([0, 50000] vs [30000, 80000]).

	   EXPECTED: 422 with the validation error list; nothing persisted.
	*/
	config := getTestConfig(t)

	mustCreate(t, config, CommissionRequest{
		SellerID:     "seller-1",
		ProductID:    "consorcio-auto",
		Rate:         2.5,
		MinSaleValue: f(0),
		MaxSaleValue: f(50000),
	})

	status, body := do(t, config, "POST", "/commissions", CommissionRequest{
		SellerID:     "seller-1",
		ProductID:    "consorcio-auto",
		Rate:         3.0,
		MinSaleValue: f(30000),
		MaxSaleValue: f(80000),
	})
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("Expected status 422, got %d: %s", status, string(body))
	}

	var resp struct {
		Errors []string `json:"errors"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("Failed to unmarshal error response: %v", err)
	}
	if len(resp.Errors) == 0 {
		t.Error("Expected validation errors in response body")
	}

	// Nothing persisted
	status, body = do(t, config, "GET", "/commissions", nil)
	var list struct {
		Count int `json:"count"`
	}
	json.Unmarshal(body, &list)
	if list.Count != 1 {
		t.Errorf("Expected 1 persisted record, got %d", list.Count)
	}

	t.Logf("✓ Overlapping range rejected: %v", resp.Errors)
}

// ============================================================================
// SCENARIO 3: Resolution picks the range containing the sale value
// ============================================================================

func TestResolutionAndSettlement(t *testing.T) {
	/*
	   SCENARIO: Tiered rates for one seller, plus a product default.
	   A 30k sale settles at the 2.5% tier; a 70k sale at 2.0%;
	   a sale by another seller falls back to the 1.5% default.
	*/
	config := getTestConfig(t)

	tier1 := mustCreate(t, config, CommissionRequest{
		SellerID:     "seller-1",
		ProductID:    "consorcio-auto",
		Rate:         2.5,
		MinSaleValue: f(0),
		MaxSaleValue: f(50000),
	})
	tier2 := mustCreate(t, config, CommissionRequest{
		SellerID:     "seller-1",
		ProductID:    "consorcio-auto",
		Rate:         2.0,
		MinSaleValue: f(50000.01),
	})
	def := mustCreate(t, config, CommissionRequest{
		ProductID: "consorcio-auto",
		Rate:      1.5,
	})
	if !def.IsDefaultRate {
		t.Fatal("Expected sellerless record to be a default rate")
	}

	settle := func(sellerID string, value float64) SettleResponse {
		status, body := do(t, config, "POST", "/settle", map[string]any{
			"sellerId":  sellerID,
			"productId": "consorcio-auto",
			"value":     value,
		})
		if status != http.StatusOK {
			t.Fatalf("Expected status 200, got %d: %s", status, string(body))
		}
		var s SettleResponse
		if err := json.Unmarshal(body, &s); err != nil {
			t.Fatalf("Failed to unmarshal settlement: %v", err)
		}
		return s
	}

	if s := settle("seller-1", 30000); s.RecordID != tier1.ID || s.CommissionAmount != 750 {
		t.Errorf("30k sale: expected tier1 with commission 750, got %s / %.2f", s.RecordID, s.CommissionAmount)
	}
	if s := settle("seller-1", 70000); s.RecordID != tier2.ID || s.CommissionAmount != 1400 {
		t.Errorf("70k sale: expected tier2 with commission 1400, got %s / %.2f", s.RecordID, s.CommissionAmount)
	}
	if s := settle("seller-2", 30000); s.RecordID != def.ID || s.CommissionAmount != 450 {
		t.Errorf("default sale: expected default with commission 450, got %s / %.2f", s.RecordID, s.CommissionAmount)
	}

	t.Logf("✓ Resolution picked the correct tier for each sale")
}

// ============================================================================
// SCENARIO 4: Blocked settlement is loud, not zero
// ============================================================================

func TestBlockedSettlement(t *testing.T) {
	/*
	   SCENARIO: The only record covers [0, 50000]; a 90k sale has no
	   applicable rate and no default exists.

	   EXPECTED: 422 blocked response. The sale is still recorded for
	   later remediation, but no commission amount is produced.
	*/
	config := getTestConfig(t)

	mustCreate(t, config, CommissionRequest{
		SellerID:     "seller-1",
		ProductID:    "consorcio-auto",
		Rate:         2.5,
		MinSaleValue: f(0),
		MaxSaleValue: f(50000),
	})

	status, body := do(t, config, "POST", "/settle", map[string]any{
		"sellerId":  "seller-1",
		"productId": "consorcio-auto",
		"value":     90000,
	})
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("Expected status 422, got %d: %s", status, string(body))
	}

	var resp struct {
		Status string `json:"status"`
		SaleID string `json:"saleId"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if resp.Status != "blocked" || resp.SaleID == "" {
		t.Errorf("Expected blocked status with sale ID, got %+v", resp)
	}

	t.Logf("✓ Settlement blocked loudly: sale %s", resp.SaleID)
}

// ============================================================================
// SCENARIO 5: Updating a record excludes itself from overlap checks
// ============================================================================

func TestUpdateExcludesSelf(t *testing.T) {
	/*
	   SCENARIO: Widening a record's own range must not conflict with
	   itself, but must still conflict with siblings.
	*/
	config := getTestConfig(t)

	rec := mustCreate(t, config, CommissionRequest{
		SellerID:     "seller-1",
		ProductID:    "consorcio-auto",
		Rate:         2.5,
		MinSaleValue: f(0),
		MaxSaleValue: f(50000),
	})
	mustCreate(t, config, CommissionRequest{
		SellerID:     "seller-1",
		ProductID:    "consorcio-auto",
		Rate:         2.0,
		MinSaleValue: f(60000),
		MaxSaleValue: f(90000),
	})

	// Widening within free space succeeds
	status, body := do(t, config, "PUT", "/commissions/"+rec.ID, map[string]any{
		"maxSaleValue": 55000,
	})
	if status != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", status, string(body))
	}

	// Widening into the sibling's range fails
	status, body = do(t, config, "PUT", "/commissions/"+rec.ID, map[string]any{
		"maxSaleValue": 70000,
	})
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("Expected status 422, got %d: %s", status, string(body))
	}

	t.Logf("✓ Update re-validation excludes the record itself")
}

// ============================================================================
// SCENARIO 6: Simulation formulas and dashboard aggregates
// ============================================================================

func TestSimulationAndDashboard(t *testing.T) {
	/*
	   SCENARIO: Simulate 2.5% on 10 sales/month at 50k average ticket.

	   EXPECTED:
	   - monthly impact = 10 * 50000 * 0.025 = 12500
	   - annual impact  = 150000
	   - risk stays low (rate <= 2.5, volume <= 12)
	*/
	config := getTestConfig(t)

	status, body := do(t, config, "POST", "/simulate", map[string]any{
		"rate":      2.5,
		"volume":    10,
		"avgTicket": 50000,
	})
	if status != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", status, string(body))
	}

	var result SimulationResult
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("Failed to unmarshal simulation: %v", err)
	}
	if result.MonthlyImpact != 12500 {
		t.Errorf("Expected monthly impact 12500, got %.2f", result.MonthlyImpact)
	}
	if result.AnnualImpact != 150000 {
		t.Errorf("Expected annual impact 150000, got %.2f", result.AnnualImpact)
	}
	if result.RiskLevel != "low" {
		t.Errorf("Expected low risk, got %s", result.RiskLevel)
	}

	// Dashboard aggregates over the tenant's records
	mustCreate(t, config, CommissionRequest{
		SellerID:     "seller-1",
		ProductID:    "consorcio-auto",
		Rate:         2.0,
		MinSaleValue: f(0),
		MaxSaleValue: f(50000),
	})
	mustCreate(t, config, CommissionRequest{
		SellerID:     "seller-2",
		ProductID:    "consorcio-auto",
		Rate:         3.0,
		MinSaleValue: f(0),
		MaxSaleValue: f(50000),
	})

	status, body = do(t, config, "GET", "/dashboard", nil)
	if status != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", status, string(body))
	}

	var dash struct {
		Metrics struct {
			Total   int     `json:"total"`
			Active  int     `json:"active"`
			AvgRate float64 `json:"avgRate"`
		} `json:"metrics"`
	}
	if err := json.Unmarshal(body, &dash); err != nil {
		t.Fatalf("Failed to unmarshal dashboard: %v", err)
	}
	if dash.Metrics.Total != 2 || dash.Metrics.Active != 2 {
		t.Errorf("Expected 2 total / 2 active, got %d/%d", dash.Metrics.Total, dash.Metrics.Active)
	}
	if dash.Metrics.AvgRate != 2.5 {
		t.Errorf("Expected avg rate 2.5, got %.2f", dash.Metrics.AvgRate)
	}

	t.Logf("✓ Simulation and dashboard verified: monthly=%.0f annual=%.0f", result.MonthlyImpact, result.AnnualImpact)
}
