// Package domain defines the core interfaces and types for Tally.
package domain

import (
	"context"
	"time"
)

// RecordScope states a query's intent towards soft-deleted records.
// Every read path names its scope explicitly instead of relying on an
// implicit active-only default.
type RecordScope int

const (
	// ScopeActive returns active records only.
	ScopeActive RecordScope = iota

	// ScopeAll includes deactivated records, for audit queries.
	ScopeAll
)

// CommissionFilter narrows ListCommissions.
type CommissionFilter struct {
	// SellerID restricts to one seller's overrides when set.
	SellerID string

	// ProductID restricts to one product when set.
	ProductID string

	// DefaultsOnly restricts to product-level default records.
	DefaultsOnly bool

	Scope RecordScope
}

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Commission record operations
	SaveCommission(ctx context.Context, tenantID string, rec *CommissionRecord) error
	GetCommission(ctx context.Context, tenantID string, id string) (*CommissionRecord, error)
	ListCommissions(ctx context.Context, tenantID string, filter CommissionFilter) ([]*CommissionRecord, error)
	UpdateCommission(ctx context.Context, tenantID string, rec *CommissionRecord) error
	DeactivateCommission(ctx context.Context, tenantID string, id string) error

	// Sales history operations
	SaveSale(ctx context.Context, tenantID string, sale *Sale) error
	GetSalesBySeller(ctx context.Context, tenantID string, sellerID string, productID string, since time.Time) ([]*Sale, error)

	// Alert rule operations
	SaveAlertRule(ctx context.Context, tenantID string, rule *AlertRule) error
	ListAlertRules(ctx context.Context, tenantID string) ([]*AlertRule, error)
	DeleteAlertRule(ctx context.Context, tenantID string, ruleID string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
