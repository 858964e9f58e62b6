// Package domain defines the core interfaces and types for Finch.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Ledger operations
	SaveTransactions(ctx context.Context, tenantID string, txs []Transaction) error
	ListTransactions(ctx context.Context, tenantID string) ([]Transaction, error)
	GetTransactionsSince(ctx context.Context, tenantID string, since time.Time) ([]Transaction, error)
	ListTenants(ctx context.Context) ([]string, error)

	// Chat history
	AppendChatMessage(ctx context.Context, tenantID string, msg *ChatMessage) error
	ListChatMessages(ctx context.Context, tenantID string, sessionID string, limit int) ([]ChatMessage, error)
	CountChatMessages(ctx context.Context, tenantID string, sessionID string) (int, error)

	// Nudge rule configuration
	SaveNudgeRule(ctx context.Context, tenantID string, rule *NudgeRule) error
	GetNudgeRule(ctx context.Context, tenantID string, ruleID string) (*NudgeRule, error)
	ListNudgeRules(ctx context.Context, tenantID string) ([]*NudgeRule, error)
	DeleteNudgeRule(ctx context.Context, tenantID string, ruleID string) error

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
