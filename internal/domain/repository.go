// Package domain defines the core types and interfaces for Kestrel.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence. All methods
// scoped to user data require userID for strict per-user isolation.
type Repository interface {
	// Transaction operations
	SaveTransaction(ctx context.Context, userID string, tx *CategorizedTransaction) error
	GetTransaction(ctx context.Context, userID string, txID string) (*CategorizedTransaction, error)
	ListTransactionsInPeriod(ctx context.Context, userID string, start, end string) ([]*CategorizedTransaction, error)

	// Rule set operations (one rule set per card)
	SaveRuleSet(ctx context.Context, ruleSet *CardRuleSet) error
	GetRuleSet(ctx context.Context, cardID string) (*CardRuleSet, error)
	ListRuleSets(ctx context.Context) ([]*CardRuleSet, error)

	// Card catalog operations
	SaveCardVariant(ctx context.Context, variant *CardVariant) error
	GetCardVariant(ctx context.Context, variantID string) (*CardVariant, error)
	ListCardVariants(ctx context.Context) ([]*CardVariant, error)
	DeleteCardVariant(ctx context.Context, variantID string) error

	// Computed summaries (audit history; the engine itself never persists)
	SavePeriodSummary(ctx context.Context, userID string, cardID string, summary *PeriodRewardSummary) error
	GetPeriodSummary(ctx context.Context, userID string, cardID string, period PeriodContext) (*PeriodRewardSummary, error)

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
