// Replay tool for settling historical sales against a running Tally
// instance.
//
// Usage:
//   go run cmd/replay/main.go -csv /path/to/sales.csv -url http://localhost:8080
//
// This tool:
//   1. Reads a sales export (one sale per row)
//   2. Posts each sale to Tally for settlement
//   3. Tallies resolved vs blocked settlements
//   4. Reports resolution coverage, commission totals and throughput
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// SaleRow represents a row from the sales export.
type SaleRow struct {
	SaleID           string
	SellerID         string
	ProductID        string
	Value            float64
	OfficeCommission float64
	SoldAt           string
}

// SettleRequest is the Tally API request format.
type SettleRequest struct {
	SaleID           string  `json:"saleId,omitempty"`
	SellerID         string  `json:"sellerId"`
	ProductID        string  `json:"productId"`
	Value            float64 `json:"value"`
	OfficeCommission float64 `json:"officeCommission,omitempty"`
	SoldAt           string  `json:"soldAt,omitempty"`
}

// SettleResponse is the Tally API response format.
type SettleResponse struct {
	SaleID           string  `json:"saleId"`
	RecordID         string  `json:"recordId"`
	Rate             float64 `json:"rate"`
	CommissionAmount float64 `json:"commissionAmount"`
}

// Metrics tracks replay results.
type Metrics struct {
	Resolved int64 // Settled with a commission amount
	Blocked  int64 // No applicable rate (422)

	TotalProcessed int64
	TotalErrors    int64

	// CommissionCents accumulates atomically; float64 has no atomic add.
	CommissionCents  int64
	ProcessingTimeMs int64
}

func main() {
	// Parse flags
	csvPath := flag.String("csv", "", "Path to sales CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Tally base URL")
	tenantID := flag.String("tenant", "replay-test", "Tenant ID for requests")
	limit := flag.Int("limit", 0, "Maximum sales to replay (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	verbose := flag.Bool("verbose", false, "Print each settlement result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: replay -csv /path/to/sales.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║              TALLY REPLAY - Sales Settlement                  ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nCSV File:   %s\n", *csvPath)
	fmt.Printf("Tally URL:  %s\n", *baseURL)
	fmt.Printf("Tenant ID:  %s\n", *tenantID)
	fmt.Printf("Workers:    %d\n", *workers)
	fmt.Printf("Limit:      %d\n", *limit)
	fmt.Println()

	// Check Tally is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Tally not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Tally is running:")
		fmt.Println("  cd tally && go run cmd/tally/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Tally is healthy")

	// Read sales data
	fmt.Printf("\nReading sales from %s...\n", *csvPath)
	sales, err := readSalesCSV(*csvPath, *limit)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Loaded %d sales\n", len(sales))

	// Run replay
	fmt.Printf("\nReplaying with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runReplay(sales, *baseURL, *tenantID, *workers, *verbose)
	duration := time.Since(startTime)

	// Print results
	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func readSalesCSV(path string, limit int) ([]SaleRow, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	// Read header
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	// Map column indices
	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}

	for _, required := range []string{"seller_id", "product_id", "value"} {
		if _, ok := colIndex[required]; !ok {
			return nil, fmt.Errorf("missing required column %q", required)
		}
	}

	field := func(record []string, name string) string {
		idx, ok := colIndex[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	var sales []SaleRow
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		value, err := strconv.ParseFloat(field(record, "value"), 64)
		if err != nil || value <= 0 {
			continue
		}
		officeCommission, _ := strconv.ParseFloat(field(record, "office_commission"), 64)

		sales = append(sales, SaleRow{
			SaleID:           field(record, "sale_id"),
			SellerID:         field(record, "seller_id"),
			ProductID:        field(record, "product_id"),
			Value:            value,
			OfficeCommission: officeCommission,
			SoldAt:           field(record, "sold_at"),
		})

		if limit > 0 && len(sales) >= limit {
			break
		}
	}

	return sales, nil
}

func runReplay(sales []SaleRow, baseURL, tenantID string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan SaleRow, 100)
	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for sale := range work {
				start := time.Now()
				result, blocked, err := settleSale(client, baseURL, tenantID, sale)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", sale.SaleID, err)
					}
					continue
				}

				if blocked {
					atomic.AddInt64(&metrics.Blocked, 1)
				} else {
					atomic.AddInt64(&metrics.Resolved, 1)
					atomic.AddInt64(&metrics.CommissionCents, int64(math.Round(result.CommissionAmount*100)))
				}

				if verbose {
					status := "✓ resolved"
					detail := fmt.Sprintf("rate %.2f%% -> R$ %.2f", result.Rate, result.CommissionAmount)
					if blocked {
						status = "✗ blocked"
						detail = "no applicable rate"
					}
					fmt.Printf("%s | Seller: %-12s | Product: %-16s | Value: %12.2f | %s\n",
						status,
						sale.SellerID,
						sale.ProductID,
						sale.Value,
						detail,
					)
				}
			}
		}()
	}

	// Send work
	for _, sale := range sales {
		work <- sale
	}
	close(work)

	wg.Wait()
	return metrics
}

func settleSale(client *http.Client, baseURL, tenantID string, sale SaleRow) (*SettleResponse, bool, error) {
	req := SettleRequest{
		SaleID:           sale.SaleID,
		SellerID:         sale.SellerID,
		ProductID:        sale.ProductID,
		Value:            sale.Value,
		OfficeCommission: sale.OfficeCommission,
		SoldAt:           sale.SoldAt,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, false, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/settle", bytes.NewReader(body))
	if err != nil {
		return nil, false, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	// 422 means the sale was recorded but no rate applied
	if resp.StatusCode == http.StatusUnprocessableEntity {
		return nil, true, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result SettleResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, false, err
	}

	return &result, false, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                        REPLAY RESULTS                         ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 SETTLEMENT COVERAGE\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Resolved:         %d\n", m.Resolved)
	fmt.Printf("   Blocked:          %d\n", m.Blocked)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	settled := m.Resolved + m.Blocked
	if settled > 0 {
		coverage := float64(m.Resolved) / float64(settled) * 100
		fmt.Printf("\n🎯 RESOLUTION COVERAGE\n")
		fmt.Printf("   Coverage:   %.2f%%  (sales with an applicable rate)\n", coverage)
		if m.Blocked > 0 {
			fmt.Printf("   Blocked:    %d sales have no matching record ⚠️\n", m.Blocked)
		}
	}

	if m.Resolved > 0 {
		fmt.Printf("\n💰 COMMISSION TOTALS\n")
		fmt.Printf("   Total Commission:  R$ %.2f\n", float64(m.CommissionCents)/100)
		fmt.Printf("   Avg Commission:    R$ %.2f\n", float64(m.CommissionCents)/100/float64(m.Resolved))
	}

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		tps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f sales/sec\n", tps)
	}

	// Interpretation
	if settled > 0 {
		coverage := float64(m.Resolved) / float64(settled)
		fmt.Printf("\n💡 INTERPRETATION\n")
		if coverage >= 0.99 {
			fmt.Println("   ✅ Full coverage - every sale found a rate")
		} else if coverage >= 0.9 {
			fmt.Println("   ⚠️  Near-full coverage - a few gaps in the configured ranges")
		} else {
			fmt.Println("   ❌ Coverage gaps - review configured ranges and defaults")
		}
	}

	fmt.Println()
}
