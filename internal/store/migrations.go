package store

import (
	"database/sql"
	"fmt"
	"strings"
)

// DBSchemaVersion is the current SQLite schema version.
// Bump this when adding migrations that change the schema.
const DBSchemaVersion = 1

// downMigrations maps a version to the SQL needed to reverse it.
// Version N's entry contains statements that undo the changes introduced
// when migrating from N-1 to N. For additive-only changes (ADD COLUMN,
// CREATE TABLE IF NOT EXISTS), no reverse SQL is needed — just the
// version number reset.
var downMigrations = map[int][]string{
	// Version 1 is the baseline schema; nothing to reverse.
}

// alterColumn runs an ALTER TABLE ADD COLUMN and silently ignores
// "duplicate column name" errors, making the migration idempotent.
func alterColumn(db *sql.DB, stmt string) error {
	_, err := db.Exec(stmt)
	if err != nil && strings.Contains(err.Error(), "duplicate column name") {
		return nil
	}
	return err
}

// migrations is an ordered list of SQL statements applied to the database.
// Each statement is idempotent (uses IF NOT EXISTS where possible).
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS repositories (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		owner      TEXT NOT NULL,
		name       TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(owner, name)
	)`,

	`CREATE TABLE IF NOT EXISTS claims (
		id                 INTEGER PRIMARY KEY AUTOINCREMENT,
		repository_id      INTEGER NOT NULL REFERENCES repositories(id),
		issue_number       INTEGER NOT NULL,
		issue_title        TEXT NOT NULL DEFAULT '',
		issue_url          TEXT NOT NULL DEFAULT '',
		claimer_username   TEXT NOT NULL,
		claimer_avatar_url TEXT NOT NULL DEFAULT '',
		claim_comment_id   INTEGER NOT NULL,
		claim_comment_text TEXT NOT NULL DEFAULT '',
		claimed_at         TEXT NOT NULL,
		last_checked_at    TEXT NOT NULL,
		has_linked_pr      INTEGER NOT NULL DEFAULT 0,
		auto_release_at    TEXT NOT NULL,
		status             TEXT NOT NULL DEFAULT 'active',
		nudge_count        INTEGER NOT NULL DEFAULT 0,
		last_nudged_at     TEXT,
		created_at         TEXT NOT NULL,
		updated_at         TEXT NOT NULL,
		UNIQUE(repository_id, issue_number, claimer_username)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_claims_status ON claims(status)`,
	`CREATE INDEX IF NOT EXISTS idx_claims_repo_status ON claims(repository_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_claims_release_due ON claims(status, auto_release_at)`,

	`CREATE TABLE IF NOT EXISTS activity_log (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		claim_id   INTEGER,
		action     TEXT NOT NULL,
		payload    TEXT NOT NULL DEFAULT '{}',
		created_at TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_activity_claim ON activity_log(claim_id)`,

	`CREATE TABLE IF NOT EXISTS shame_board (
		id                INTEGER PRIMARY KEY AUTOINCREMENT,
		username          TEXT NOT NULL UNIQUE,
		total_completed   INTEGER NOT NULL DEFAULT 0,
		total_abandoned   INTEGER NOT NULL DEFAULT 0,
		reliability_score REAL NOT NULL DEFAULT 100,
		last_updated_at   TEXT NOT NULL,
		created_at        TEXT NOT NULL
	)`,
}

// alterMigrations are ALTER TABLE statements run after the main CREATE TABLE
// migrations. They use alterColumn to be idempotent. Empty at version 1.
var alterMigrations = []string{}

// OpenRawDB opens a SQLite database without running migrations or
// checking the schema version. Used by the migration tool.
func OpenRawDB(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	return db, nil
}

// ReadDBVersion returns the current schema version from the database.
func ReadDBVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

// DowngradeDB downgrades the database from its current version to the
// target version, running any reverse migrations along the way.
func DowngradeDB(db *sql.DB, current, target int) error {
	if target >= current {
		return fmt.Errorf("target version %d must be less than current version %d", target, current)
	}
	if target < 0 {
		return fmt.Errorf("target version must be >= 0")
	}

	for v := current; v > target; v-- {
		if stmts, ok := downMigrations[v]; ok {
			for _, stmt := range stmts {
				if _, err := db.Exec(stmt); err != nil {
					return fmt.Errorf("down migration v%d: %w", v, err)
				}
			}
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", target)); err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}
	return nil
}

// runMigrations applies all migration statements in order.
// It checks the database schema version and refuses to proceed if the
// database was created by a newer binary (to prevent data corruption
// on rollback).
func runMigrations(db *sql.DB) error {
	var dbVersion int
	if err := db.QueryRow("PRAGMA user_version").Scan(&dbVersion); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if dbVersion > DBSchemaVersion {
		return fmt.Errorf(
			"database schema version %d is newer than this binary supports (max %d); upgrade the binary or use a different database",
			dbVersion, DBSchemaVersion)
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}
	for _, m := range alterMigrations {
		if err := alterColumn(db, m); err != nil {
			return err
		}
	}

	if dbVersion < DBSchemaVersion {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", DBSchemaVersion)); err != nil {
			return fmt.Errorf("set schema version: %w", err)
		}
	}

	return nil
}
