// Tally - Commission configuration for consortium brokerages.
// Copyright (c) 2026 consortia.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/consortia-finance/tally/internal/alert"
	"github.com/consortia-finance/tally/internal/api"
	"github.com/consortia-finance/tally/internal/bus"
	"github.com/consortia-finance/tally/internal/cache"
	"github.com/consortia-finance/tally/internal/commission"
	"github.com/consortia-finance/tally/internal/domain"
	"github.com/consortia-finance/tally/internal/history"
	"github.com/consortia-finance/tally/internal/repository"
	"github.com/consortia-finance/tally/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Local .env is optional; real deployments set the environment
	_ = godotenv.Load()

	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("TALLY_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting tally",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("TALLY_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}
	applyEnvOverrides(cfg)

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize commission service
	hist := history.NewService(repo)
	service := commission.NewService(repo, cacheImpl, busImpl, hist)
	if cfg.Simulation.TrailingMonths > 0 {
		service.TrailingMonths = cfg.Simulation.TrailingMonths
	}
	slog.Info("commission service initialized", "trailing_months", service.TrailingMonths)

	// Initialize alert engine
	alertEngine, err := alert.NewEngine()
	if err != nil {
		slog.Error("failed to initialize alert engine", "error", err)
		os.Exit(1)
	}
	defer alertEngine.Close()

	tenantIDs := parseTenants(os.Getenv("TALLY_TENANTS"))

	// Preload alert rules for known tenants (no hardcoded defaults -
	// configure via POST /alerts/rules)
	if err := loadAlertRules(ctx, repo, alertEngine, tenantIDs); err != nil {
		slog.Error("failed to load alert rules", "error", err)
		os.Exit(1)
	}
	slog.Info("alert engine initialized", "rules_count", alertEngine.TotalRules())

	// Initialize async settlement worker (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("TALLY_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, service)

		if err := asyncWorker.Start(worker.Config{TenantIDs: tenantIDs}); err != nil {
			slog.Error("failed to start settlement worker", "error", err)
		} else {
			slog.Info("settlement worker started", "tenant_count", len(tenantIDs))
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, service, repo, cacheImpl, alertEngine, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("tally is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop settlement worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop settlement worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("tally shutdown complete")
}

// applyEnvOverrides layers TALLY_* settings over the tier defaults.
func applyEnvOverrides(cfg *domain.Config) {
	if v := os.Getenv("TALLY_SQLITE_PATH"); v != "" {
		cfg.Repository.SQLitePath = v
	}
	if v := os.Getenv("TALLY_POSTGRES_HOST"); v != "" {
		cfg.Repository.PostgresHost = v
	}
	if v := os.Getenv("TALLY_POSTGRES_USER"); v != "" {
		cfg.Repository.PostgresUser = v
	}
	if v := os.Getenv("TALLY_POSTGRES_PASSWORD"); v != "" {
		cfg.Repository.PostgresPassword = v
	}
	if v := os.Getenv("TALLY_POSTGRES_DB"); v != "" {
		cfg.Repository.PostgresDB = v
	}
	if v := os.Getenv("TALLY_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("TALLY_NATS_URL"); v != "" {
		cfg.EventBus.NATSUrl = v
	}
	if v := os.Getenv("TALLY_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("TALLY_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil && port > 0 {
			cfg.Server.Port = port
		}
	}
}

func parseTenants(env string) []string {
	if env == "" {
		return nil
	}
	var tenants []string
	for _, t := range strings.Split(env, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tenants = append(tenants, t)
		}
	}
	return tenants
}

// loadAlertRules preloads each known tenant's enabled alert rules.
// Rules added later are applied via POST /alerts/rules/reload.
func loadAlertRules(ctx context.Context, repo domain.Repository, engine *alert.Engine, tenantIDs []string) error {
	for _, tenantID := range tenantIDs {
		rules, err := repo.ListAlertRules(ctx, tenantID)
		if err != nil {
			slog.Warn("failed to list alert rules", "tenant_id", tenantID, "error", err)
			continue
		}
		if len(rules) == 0 {
			continue
		}
		if err := engine.LoadRules(rules); err != nil {
			return err
		}
		slog.Info("alert rules loaded", "tenant_id", tenantID, "count", len(rules))
	}
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               📊 TALLY                    ║")
	fmt.Println("  ║   Commission Configuration Service        ║")
	fmt.Println("  ║   Every rate accounted for.               ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /commissions           - Create a commission record")
	fmt.Println("    GET  /commissions           - List records with conflicts")
	fmt.Println("    PUT  /commissions/{id}      - Patch and re-validate")
	fmt.Println("    DELETE /commissions/{id}    - Soft-delete a record")
	fmt.Println("    POST /commissions/validate  - Dry-run validation")
	fmt.Println("    POST /resolve               - Resolve the applicable rate")
	fmt.Println("    POST /settle                - Record a sale + commission")
	fmt.Println("    POST /simulate              - Simulate rate impact")
	fmt.Println("    POST /simulate/seller       - Simulate from seller history")
	fmt.Println("    GET  /dashboard             - Aggregates + alerts")
	fmt.Println("    POST /alerts/rules          - Create an alert rule")
	fmt.Println("    POST /alerts/rules/reload   - Hot-reload alert rules")
	fmt.Println("    GET  /health                - Health check")
	fmt.Println()
}
