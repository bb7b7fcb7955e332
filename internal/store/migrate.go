package store

import (
	"database/sql"
	"fmt"
	"strings"
)

const migrationSQL = `
CREATE TABLE IF NOT EXISTS store_status (
    id {{serial}},
    store_id TEXT NOT NULL,
    status TEXT NOT NULL,
    timestamp_utc TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_store_status_store_ts ON store_status(store_id, timestamp_utc);
CREATE INDEX IF NOT EXISTS idx_store_status_ts ON store_status(timestamp_utc);
CREATE TABLE IF NOT EXISTS business_hours (
    store_id TEXT NOT NULL,
    day_of_week INTEGER NOT NULL,
    start_time_local TEXT NOT NULL,
    end_time_local TEXT NOT NULL,
    PRIMARY KEY (store_id, day_of_week)
);
CREATE TABLE IF NOT EXISTS store_timezones (
    store_id TEXT PRIMARY KEY,
    timezone_str TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS report_jobs (
    id TEXT PRIMARY KEY,
    status TEXT NOT NULL,
    trigger_type TEXT NOT NULL DEFAULT 'manual',
    created_at TEXT NOT NULL,
    completed_at TEXT,
    reference_at TEXT,
    result_location TEXT,
    total_stores INTEGER NOT NULL DEFAULT 0,
    skipped_stores INTEGER NOT NULL DEFAULT 0,
    error_msg TEXT
);
CREATE INDEX IF NOT EXISTS idx_report_jobs_created_at ON report_jobs(created_at);
`

// RunMigrations applies the database schema for the given dialect.
func RunMigrations(db *sql.DB, d dialect) error {
	ddl := strings.ReplaceAll(migrationSQL, "{{serial}}", d.serial)
	for _, stmt := range strings.Split(ddl, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
