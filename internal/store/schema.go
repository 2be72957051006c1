package store

// Schema definitions for the Shrike database.
// Compatible with both SQLite and PostgreSQL.

// The primary key on trans_num is what makes Insert idempotent: the
// uniqueness invariant is enforced by the storage layer, not by a
// read-then-write in application code.
const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    trans_num TEXT PRIMARY KEY,
    trans_date_trans_time TEXT NOT NULL,
    cc_num TEXT NOT NULL,
    merchant TEXT NOT NULL,
    category TEXT NOT NULL,
    amt REAL NOT NULL,
    first TEXT NOT NULL,
    last TEXT NOT NULL,
    gender TEXT NOT NULL,
    street TEXT NOT NULL,
    city TEXT NOT NULL,
    state TEXT NOT NULL,
    zip TEXT NOT NULL,
    lat REAL NOT NULL,
    long REAL NOT NULL,
    city_pop BIGINT NOT NULL,
    job TEXT NOT NULL,
    dob TEXT NOT NULL,
    unix_time BIGINT NOT NULL,
    merch_lat REAL NOT NULL,
    merch_long REAL NOT NULL,
    fraud_score REAL NOT NULL,
    is_fraud BOOLEAN NOT NULL,
    scorer TEXT,
    label BOOLEAN,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_unix_time ON transactions(unix_time);
CREATE INDEX IF NOT EXISTS idx_transactions_cc_num ON transactions(cc_num, unix_time);
CREATE INDEX IF NOT EXISTS idx_transactions_is_fraud ON transactions(is_fraud);
`

const schemaRuleConfigs = `
CREATE TABLE IF NOT EXISTS rule_configs (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT,
    expression TEXT NOT NULL,
    weight REAL NOT NULL DEFAULT 0.1,
    reason TEXT,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rule_configs_enabled ON rule_configs(enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaTransactions,
		schemaRuleConfigs,
	}
}
