// Package domain defines the core interfaces and types for Shrike.
package domain

import (
	"context"
	"time"
)

// Store is the append-only record of scored transactions. Insert is
// atomic with respect to concurrent inserts of the same trans_num: the
// storage layer's unique constraint makes the existence check and the
// write indivisible.
type Store interface {
	// Insert persists a scored transaction exactly once. Returns
	// ErrDuplicateTransaction if the identifier is already recorded.
	Insert(ctx context.Context, tx *ScoredTransaction) error

	// ListRecent returns up to n records ordered by transaction
	// timestamp descending, most recent first.
	ListRecent(ctx context.Context, n int) ([]*ScoredTransaction, error)

	// ClearAll removes every record and reports how many were removed.
	// Test/demo resets only, never part of normal ingestion.
	ClearAll(ctx context.Context) (int64, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int64, error)

	// LastCardTransaction returns the unix time of the most recent
	// stored transaction for a card, or ok=false if none exists.
	LastCardTransaction(ctx context.Context, ccNum string) (int64, bool, error)

	// Rule configuration operations for operator-defined rules.
	SaveRuleConfig(ctx context.Context, rule *RuleConfig) error
	ListRuleConfigs(ctx context.Context) ([]*RuleConfig, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// StoreConfig holds configuration for store initialization.
type StoreConfig struct {
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
