package store

import (
	"database/sql"
	"strconv"
	"strings"
)

// migration is one versioned schema change. Version numbers must be
// dense and increasing starting at 1; migrate() applies every migration
// whose Version is greater than the stored schema_version.
type migration struct {
	Version int
	SQL     string
}

// migrations is the ordered list of schema migration scripts, per
// spec.md §4.3. Each targets a version; migrate() applies only the ones
// newer than the current schema_version setting.
var migrations = []migration{
	{
		Version: 1,
		SQL: `
			CREATE TABLE IF NOT EXISTS settings (
				key TEXT PRIMARY KEY,
				value TEXT NOT NULL
			);

			CREATE TABLE IF NOT EXISTS threads (
				id TEXT PRIMARY KEY,
				name TEXT,
				is_group INTEGER NOT NULL DEFAULT 0,
				prefix TEXT NOT NULL DEFAULT '!',
				language TEXT NOT NULL DEFAULT 'vi',
				enabled INTEGER NOT NULL DEFAULT 1,
				created_at INTEGER NOT NULL,
				updated_at INTEGER NOT NULL
			);

			CREATE TABLE IF NOT EXISTS users (
				id TEXT PRIMARY KEY,
				name TEXT,
				username TEXT,
				profile_pic TEXT,
				is_admin INTEGER NOT NULL DEFAULT 0,
				is_blocked INTEGER NOT NULL DEFAULT 0,
				first_seen INTEGER NOT NULL,
				updated_at INTEGER NOT NULL
			);

			CREATE TABLE IF NOT EXISTS messages (
				id TEXT PRIMARY KEY,
				thread_id TEXT NOT NULL,
				sender_id TEXT NOT NULL,
				text TEXT,
				is_e2ee INTEGER NOT NULL DEFAULT 0,
				timestamp INTEGER NOT NULL,
				created_at INTEGER NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_messages_thread_ts ON messages(thread_id, timestamp);
		`,
	},
	{
		// Separated from v1 to demonstrate the versioned-migration idiom:
		// a second pass that would, on an existing v1 database, add a
		// column. Guarded by the idempotent-error policy below.
		Version: 2,
		SQL: `
			ALTER TABLE users ADD COLUMN username TEXT;
		`,
	},
}

// idempotentErrorSubstrings identifies SQLite error text that is safe to
// log and ignore during migration (e.g. a column that already exists
// because the table was created at the target shape by a newer
// migration's CREATE TABLE), per spec.md §4.3/§7.
var idempotentErrorSubstrings = []string{
	"duplicate column",
	"already exists",
}

func isIdempotentMigrationError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, substr := range idempotentErrorSubstrings {
		if strings.Contains(msg, substr) {
			return true
		}
	}
	return false
}

// migrate reads schema_version from settings (defaulting to 0 on a
// fresh database, before the settings table even exists) and applies
// every migration with a higher version, in order. Non-idempotent
// errors abort startup (spec.md §7: StoreMigrationError is fatal unless
// "duplicate column").
func (s *Store) migrate() error {
	current, err := currentSchemaVersion(s.db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if _, err := s.db.Exec(m.SQL); err != nil {
			if !isIdempotentMigrationError(err) {
				return err
			}
			s.logger.Warn("ignoring idempotent migration error",
				"version", m.Version, "error", err)
		}
		if err := setSchemaVersion(s.db, m.Version); err != nil {
			return err
		}
	}
	return nil
}

func currentSchemaVersion(db *sql.DB) (int, error) {
	var exists int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'settings'
	`).Scan(&exists)
	if err != nil {
		return 0, err
	}
	if exists == 0 {
		return 0, nil
	}

	var raw string
	err = db.QueryRow(`SELECT value FROM settings WHERE key = 'schema_version'`).Scan(&raw)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	version, err := strconv.Atoi(raw)
	if err != nil {
		return 0, nil
	}
	return version, nil
}

func setSchemaVersion(db *sql.DB, version int) error {
	_, err := db.Exec(`
		INSERT INTO settings (key, value) VALUES ('schema_version', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, strconv.Itoa(version))
	return err
}
