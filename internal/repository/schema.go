package repository

// Schema definitions for the Finch database.
// Compatible with both SQLite and PostgreSQL. Calendar dates are stored as
// ISO text so range filters compare lexically on either driver.

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    tenant_id TEXT NOT NULL,
    id BIGINT NOT NULL,
    date TEXT NOT NULL,
    amount REAL NOT NULL,
    type TEXT NOT NULL,
    category TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    created_at BIGINT NOT NULL,
    PRIMARY KEY (tenant_id, id)
);

CREATE INDEX IF NOT EXISTS idx_transactions_date ON transactions(tenant_id, date);
CREATE INDEX IF NOT EXISTS idx_transactions_category ON transactions(tenant_id, category);
`

const schemaChatMessages = `
CREATE TABLE IF NOT EXISTS chat_messages (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    session_id TEXT NOT NULL,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chat_messages_session ON chat_messages(tenant_id, session_id, created_at);
`

const schemaNudgeRules = `
CREATE TABLE IF NOT EXISTS nudge_rules (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    expression TEXT NOT NULL,
    message TEXT NOT NULL,
    weight REAL NOT NULL DEFAULT 1.0,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at BIGINT NOT NULL,
    updated_at BIGINT NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_nudge_rules_enabled ON nudge_rules(tenant_id, enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaTransactions,
		schemaChatMessages,
		schemaNudgeRules,
	}
}
