package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching computed summaries and catalog
// lookups. Supports two-phase caching: local LRU (Community) + Redis (Pro).
// All methods require userID for strict per-user isolation; catalog-wide
// entries use the reserved "_catalog" scope.
type Cache interface {
	// Get retrieves a value from cache. Returns nil, nil if key not found.
	Get(ctx context.Context, userID string, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, userID string, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, userID string, key string) error

	// GetSummary retrieves a cached period summary for a card.
	GetSummary(ctx context.Context, userID string, cardID string, period PeriodContext) (*PeriodRewardSummary, error)

	// SetSummary caches a computed period summary. The engine is
	// idempotent, so an unchanged transaction set may be served from here.
	SetSummary(ctx context.Context, userID string, cardID string, period PeriodContext, summary *PeriodRewardSummary, ttl time.Duration) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CatalogScope is the cache scope for user-independent catalog data.
const CatalogScope = "_catalog"

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
