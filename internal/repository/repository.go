// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-finance/finch/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveTransactions upserts a batch of ledger entries in one database
// transaction. Entries are keyed by (tenant, id).
func (r *SQLRepository) SaveTransactions(ctx context.Context, tenantID string, txs []domain.Transaction) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	for _, tx := range txs {
		if !tx.HasDate() {
			return fmt.Errorf("%w: transaction %d has no date", ErrInvalidInput, tx.ID)
		}
		if !domain.ValidAmount(tx.Amount) {
			return fmt.Errorf("%w: transaction %d has an invalid amount %v", ErrInvalidInput, tx.ID, tx.Amount)
		}
	}

	query := `
		INSERT INTO transactions (
			tenant_id, id, date, amount, type, category, description, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, id) DO UPDATE SET
			date = excluded.date,
			amount = excluded.amount,
			type = excluded.type,
			category = excluded.category,
			description = excluded.description
	`

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer dbTx.Rollback()

	stmt, err := dbTx.PrepareContext(ctx, r.rebind(query))
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC().UnixNano()
	for _, tx := range txs {
		if _, err := stmt.ExecContext(ctx,
			tenantID, tx.ID, domain.FormatDate(tx.Date), tx.Amount,
			tx.Type, tx.Category, tx.Description, now,
		); err != nil {
			return fmt.Errorf("failed to save transaction %d: %w", tx.ID, err)
		}
	}

	return dbTx.Commit()
}

// ListTransactions returns a tenant's full ledger, newest first.
func (r *SQLRepository) ListTransactions(ctx context.Context, tenantID string) ([]domain.Transaction, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, date, amount, type, category, description
		FROM transactions
		WHERE tenant_id = ?
		ORDER BY date DESC, id DESC
	`
	return r.queryTransactions(ctx, query, tenantID)
}

// GetTransactionsSince returns the ledger entries dated on or after since.
func (r *SQLRepository) GetTransactionsSince(ctx context.Context, tenantID string, since time.Time) ([]domain.Transaction, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, date, amount, type, category, description
		FROM transactions
		WHERE tenant_id = ? AND date >= ?
		ORDER BY date DESC, id DESC
	`
	return r.queryTransactions(ctx, query, tenantID, since.UTC().Format(domain.DateLayout))
}

func (r *SQLRepository) queryTransactions(ctx context.Context, query string, args ...any) ([]domain.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		var tx domain.Transaction
		var date string

		if err := rows.Scan(&tx.ID, &date, &tx.Amount, &tx.Type, &tx.Category, &tx.Description); err != nil {
			return nil, err
		}

		d, err := domain.ParseDate(date)
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", tx.ID, err)
		}
		tx.Date = d
		txs = append(txs, tx)
	}

	return txs, rows.Err()
}

// ListTenants returns every tenant that has at least one transaction.
func (r *SQLRepository) ListTenants(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT tenant_id FROM transactions ORDER BY tenant_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		tenants = append(tenants, id)
	}
	return tenants, rows.Err()
}

// AppendChatMessage stores one conversation turn.
func (r *SQLRepository) AppendChatMessage(ctx context.Context, tenantID string, msg *domain.ChatMessage) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if msg == nil || msg.ID == "" || msg.SessionID == "" {
		return fmt.Errorf("%w: message id and session are required", ErrInvalidInput)
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO chat_messages (id, tenant_id, session_id, role, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, r.rebind(query),
		msg.ID, tenantID, msg.SessionID, msg.Role, msg.Content, msg.CreatedAt.UnixNano(),
	)
	return err
}

// ListChatMessages returns the last limit turns of a session in
// chronological order. A non-positive limit returns the whole session.
func (r *SQLRepository) ListChatMessages(ctx context.Context, tenantID string, sessionID string, limit int) ([]domain.ChatMessage, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, session_id, role, content, created_at
		FROM chat_messages
		WHERE tenant_id = ? AND session_id = ?
		ORDER BY created_at DESC
	`
	args := []any{tenantID, sessionID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []domain.ChatMessage
	for rows.Next() {
		var m domain.ChatMessage
		var created int64
		if err := rows.Scan(&m.ID, &m.TenantID, &m.SessionID, &m.Role, &m.Content, &created); err != nil {
			return nil, err
		}
		m.CreatedAt = time.Unix(0, created).UTC()
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// CountChatMessages returns the number of turns stored for a session.
func (r *SQLRepository) CountChatMessages(ctx context.Context, tenantID string, sessionID string) (int, error) {
	if tenantID == "" {
		return 0, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	var n int
	err := r.db.QueryRowContext(ctx,
		r.rebind(`SELECT COUNT(*) FROM chat_messages WHERE tenant_id = ? AND session_id = ?`),
		tenantID, sessionID,
	).Scan(&n)
	return n, err
}

// SaveNudgeRule stores a nudge rule with tenant isolation.
func (r *SQLRepository) SaveNudgeRule(ctx context.Context, tenantID string, rule *domain.NudgeRule) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if rule == nil || rule.ID == "" {
		return fmt.Errorf("%w: rule id is required", ErrInvalidInput)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC().UnixNano()

	query := `
		INSERT INTO nudge_rules (
			id, tenant_id, name, description, version, expression, message, weight, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			version = excluded.version,
			expression = excluded.expression,
			message = excluded.message,
			weight = excluded.weight,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Name, rule.Description, rule.Version,
		rule.Expression, rule.Message, rule.Weight, enabled,
		now, now,
	)
	return err
}

// GetNudgeRule retrieves an enabled nudge rule with tenant isolation.
func (r *SQLRepository) GetNudgeRule(ctx context.Context, tenantID string, ruleID string) (*domain.NudgeRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, expression, message, weight, enabled
		FROM nudge_rules
		WHERE tenant_id = ? AND id = ? AND enabled = 1
	`

	rule, err := scanNudgeRule(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, ruleID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rule, nil
}

// ListNudgeRules retrieves all enabled nudge rules for a tenant.
func (r *SQLRepository) ListNudgeRules(ctx context.Context, tenantID string) ([]*domain.NudgeRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, expression, message, weight, enabled
		FROM nudge_rules
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.NudgeRule
	for rows.Next() {
		rule, err := scanNudgeRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// DeleteNudgeRule soft-deletes a nudge rule by setting enabled = 0.
func (r *SQLRepository) DeleteNudgeRule(ctx context.Context, tenantID string, ruleID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		UPDATE nudge_rules
		SET enabled = 0, updated_at = ?
		WHERE tenant_id = ? AND id = ? AND enabled = 1
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC().UnixNano(), tenantID, ruleID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNudgeRule(row rowScanner) (*domain.NudgeRule, error) {
	var rule domain.NudgeRule
	var description sql.NullString
	var enabled int

	if err := row.Scan(
		&rule.ID, &rule.TenantID, &rule.Name, &description, &rule.Version,
		&rule.Expression, &rule.Message, &rule.Weight, &enabled,
	); err != nil {
		return nil, err
	}

	rule.Description = description.String
	rule.Enabled = enabled == 1
	return &rule, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			n++
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
