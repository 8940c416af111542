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
		Description: "initial schema",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS candidates (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    identity_hash TEXT UNIQUE NOT NULL,
    title TEXT NOT NULL,
    company TEXT NOT NULL,
    category TEXT NOT NULL,
    event_date TEXT NOT NULL,
    event_time TEXT,
    location TEXT NOT NULL,
    latitude REAL,
    longitude REAL,
    notes TEXT,
    source_urls TEXT NOT NULL,
    source_primary_url TEXT NOT NULL,
    source_snippet TEXT,
    raw_payload TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending' CHECK(status IN ('pending', 'approved', 'rejected')),
    seen_count INTEGER NOT NULL DEFAULT 1,
    first_seen_at TEXT NOT NULL,
    last_seen_at TEXT NOT NULL,
    admin_edited INTEGER NOT NULL DEFAULT 0,
    created_at TEXT DEFAULT (datetime('now')),
    updated_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS published_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    identity_hash TEXT UNIQUE NOT NULL,
    title TEXT NOT NULL,
    company TEXT NOT NULL,
    category TEXT NOT NULL,
    event_date TEXT NOT NULL,
    location TEXT NOT NULL,
    published_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS discovery_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT UNIQUE NOT NULL,
    trigger_source TEXT NOT NULL,
    started_at TEXT NOT NULL,
    finished_at TEXT,
    runtime_limited INTEGER NOT NULL DEFAULT 0,
    queries_executed INTEGER NOT NULL DEFAULT 0,
    scanned_urls INTEGER NOT NULL DEFAULT 0,
    scraped_pages INTEGER NOT NULL DEFAULT 0,
    parsed_pages INTEGER NOT NULL DEFAULT 0,
    unique_events INTEGER NOT NULL DEFAULT 0,
    new_candidates INTEGER NOT NULL DEFAULT 0,
    updated_pending INTEGER NOT NULL DEFAULT 0,
    skipped_approved INTEGER NOT NULL DEFAULT 0,
    skipped_rejected INTEGER NOT NULL DEFAULT 0,
    skipped_missing_required INTEGER NOT NULL DEFAULT 0,
    skipped_out_of_window INTEGER NOT NULL DEFAULT 0,
    total_processed INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_candidates_hash ON candidates(identity_hash);
CREATE INDEX IF NOT EXISTS idx_candidates_status ON candidates(status);
CREATE INDEX IF NOT EXISTS idx_candidates_date ON candidates(event_date);
CREATE INDEX IF NOT EXISTS idx_published_hash ON published_events(identity_hash);
CREATE INDEX IF NOT EXISTS idx_runs_started ON discovery_runs(started_at);
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
