package store

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    card_id TEXT NOT NULL,
    tx_date TEXT NOT NULL,
    amount BIGINT NOT NULL,
    currency TEXT NOT NULL,
    tx_type TEXT NOT NULL,
    merchant TEXT,
    spend_category TEXT NOT NULL,
    statement_id TEXT,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions(user_id);
CREATE INDEX IF NOT EXISTS idx_transactions_card ON transactions(user_id, card_id);
CREATE INDEX IF NOT EXISTS idx_transactions_date ON transactions(user_id, tx_date);
`

const schemaRuleSets = `
CREATE TABLE IF NOT EXISTS rule_sets (
    card_id TEXT PRIMARY KEY,
    rules TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
`

const schemaCatalog = `
CREATE TABLE IF NOT EXISTS card_variants (
    id TEXT PRIMARY KEY,
    bank TEXT NOT NULL,
    family TEXT NOT NULL,
    variant_name TEXT NOT NULL,
    payload TEXT NOT NULL,
    effective_from TEXT NOT NULL,
    effective_to TEXT,
    updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_card_variants_bank ON card_variants(bank);
`

const schemaSummaries = `
CREATE TABLE IF NOT EXISTS period_summaries (
    user_id TEXT NOT NULL,
    card_id TEXT NOT NULL,
    period_type TEXT NOT NULL,
    period_start TEXT NOT NULL,
    period_end TEXT NOT NULL,
    summary TEXT NOT NULL,
    computed_at TEXT NOT NULL,
    PRIMARY KEY (user_id, card_id, period_type, period_start, period_end)
);

CREATE INDEX IF NOT EXISTS idx_period_summaries_user ON period_summaries(user_id);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaTransactions,
		schemaRuleSets,
		schemaCatalog,
		schemaSummaries,
	}
}
