package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "breaches, updates and processed-article ledger",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS processed_articles (
    id TEXT PRIMARY KEY,
    source TEXT NOT NULL DEFAULT '',
    outcome TEXT NOT NULL,
    processed_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS breaches (
    id TEXT PRIMARY KEY,
    company TEXT,
    industry TEXT,
    country TEXT,
    discovery_date TEXT,
    records_affected INTEGER CHECK(records_affected IS NULL OR records_affected >= 0),
    breach_method TEXT,
    attack_vector TEXT,
    data_compromised TEXT NOT NULL DEFAULT '[]',
    severity TEXT,
    cve_references TEXT NOT NULL DEFAULT '[]',
    mitre_attack_techniques TEXT NOT NULL DEFAULT '[]',
    summary TEXT NOT NULL,
    lessons_learned TEXT,
    source_url TEXT NOT NULL,
    source_title TEXT NOT NULL,
    source_article_id TEXT,
    dedup_key TEXT UNIQUE,
    created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS breach_updates (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    breach_id TEXT NOT NULL REFERENCES breaches(id),
    update_type TEXT NOT NULL,
    source_url TEXT NOT NULL,
    source_title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    confidence REAL NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_breaches_discovery ON breaches(discovery_date);
CREATE INDEX IF NOT EXISTS idx_breaches_created ON breaches(created_at);
CREATE INDEX IF NOT EXISTS idx_breach_updates_breach ON breach_updates(breach_id);
CREATE INDEX IF NOT EXISTS idx_processed_outcome ON processed_articles(outcome);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
