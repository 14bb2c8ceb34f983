package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations.
// Supports two-phase caching: local LRU (Community) + Redis (Pro).
// All methods require tenantID for strict multi-tenancy isolation.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, tenantID string, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, tenantID string, key string) error

	// GetResolution retrieves a cached rate resolution.
	GetResolution(ctx context.Context, tenantID string, key string) (*ResolvedRate, error)

	// SetResolution caches a rate resolution for repeated settlement lookups.
	SetResolution(ctx context.Context, tenantID string, key string, rate *ResolvedRate, ttl time.Duration) error

	// IncrementCounter atomically increments a counter and returns new value.
	// Used to tally consistency warnings per tenant over a window.
	IncrementCounter(ctx context.Context, tenantID string, key string, window time.Duration) (int64, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// ResolvedRate is a cached resolver outcome for one (seller, product,
// sale value) lookup.
type ResolvedRate struct {
	RecordID      string  `json:"recordId"`
	SellerID      string  `json:"sellerId,omitempty"`
	ProductID     string  `json:"productId"`
	Rate          float64 `json:"rate"`
	RecipientType string  `json:"recipientType"`
	IsDefaultRate bool    `json:"isDefaultRate"`
	ResolvedAt    string  `json:"resolvedAt"`
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local LRU cache settings (Community tier)
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings (Pro tier)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Two-phase settings
	EnableTwoPhase bool // If true, check local first, then Redis
}
