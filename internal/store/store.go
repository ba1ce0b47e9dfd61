// Package store implements the single-writer embedded relational
// persistence layer for messages, threads, users, and key/value
// settings (spec.md §4.3). All platform-assigned identifiers are
// represented as ID, a decimal-string alias, so they are never coerced
// through a floating-point type (spec.md §3).
package store

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"
)

// ID is an arbitrary-precision platform identifier serialized as
// decimal digits. Never convert an ID through float64 — it may exceed
// the 53-bit range a double can represent exactly.
type ID string

// Store is the single-connection, single-writer embedded database
// described in spec.md §4.3. All exported operations are synchronous;
// callers (the dispatcher, the control plane) do not need their own
// locking because database/sql itself serializes access to the single
// underlying connection.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	stmts preparedStatements
}

// preparedStatements holds every statement prepared once at Open, per
// spec.md §4.3 ("All statements prepared once at open").
type preparedStatements struct {
	saveMessage      *sql.Stmt
	getMessages      *sql.Stmt
	ensureThread     *sql.Stmt
	getThread        *sql.Stmt
	listThreads      *sql.Stmt
	setThreadPrefix  *sql.Stmt
	setThreadEnabled *sql.Stmt
	touchThread      *sql.Stmt
	ensureUser       *sql.Stmt
	getUser          *sql.Stmt
	listUsers        *sql.Stmt
	setAdmin         *sql.Stmt
	setBlocked       *sql.Stmt
	isBlocked        *sql.Stmt
	setProfile       *sql.Stmt
	getSetting       *sql.Stmt
	setSetting       *sql.Stmt
	statsMessages    *sql.Stmt
	statsThreads     *sql.Stmt
	statsUsers       *sql.Stmt
}

// Open connects to the SQLite database at path, applying the
// concurrency pragmas from spec.md §4.3 (WAL, synchronous=NORMAL,
// foreign_keys on, cache_size=-2000, temp_store=memory), runs pending
// schema migrations, and prepares all statements.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store")

	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single writer by construction (spec.md §4.3/§5): cap the pool at
	// one connection so every statement serializes through it.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -2000",
		"PRAGMA temp_store = MEMORY",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}

	s := &Store{db: db, logger: logger}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := s.prepare(); err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare statements: %w", err)
	}
	return s, nil
}

func (s *Store) prepare() error {
	var err error
	prep := func(query string) *sql.Stmt {
		if err != nil {
			return nil
		}
		var stmt *sql.Stmt
		stmt, err = s.db.Prepare(query)
		return stmt
	}

	s.stmts.saveMessage = prep(`
		INSERT INTO messages (id, thread_id, sender_id, text, is_e2ee, timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?, strftime('%s','now'))
		ON CONFLICT(id) DO NOTHING
	`)
	s.stmts.getMessages = prep(`
		SELECT id, thread_id, sender_id, text, is_e2ee, timestamp
		FROM messages WHERE thread_id = ? ORDER BY timestamp DESC LIMIT ?
	`)
	s.stmts.ensureThread = prep(`
		INSERT INTO threads (id, name, is_group, prefix, language, enabled, created_at, updated_at)
		VALUES (?, ?, ?, '!', 'vi', 1, strftime('%s','now'), strftime('%s','now'))
		ON CONFLICT(id) DO UPDATE SET updated_at = strftime('%s','now')
	`)
	s.stmts.getThread = prep(`
		SELECT id, name, is_group, prefix, language, enabled, created_at, updated_at
		FROM threads WHERE id = ?
	`)
	s.stmts.touchThread = prep(`UPDATE threads SET updated_at = strftime('%s','now') WHERE id = ?`)
	s.stmts.ensureUser = prep(`
		INSERT INTO users (id, name, is_admin, is_blocked, first_seen, updated_at)
		VALUES (?, ?, 0, 0, strftime('%s','now'), strftime('%s','now'))
		ON CONFLICT(id) DO NOTHING
	`)
	s.stmts.getUser = prep(`
		SELECT id, name, username, profile_pic, is_admin, is_blocked, first_seen, updated_at
		FROM users WHERE id = ?
	`)
	s.stmts.getSetting = prep(`SELECT value FROM settings WHERE key = ?`)
	s.stmts.setSetting = prep(`
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`)
	s.stmts.listThreads = prep(`
		SELECT id, name, is_group, prefix, language, enabled, created_at, updated_at
		FROM threads ORDER BY updated_at DESC LIMIT ? OFFSET ?
	`)
	s.stmts.setThreadPrefix = prep(`UPDATE threads SET prefix = ?, updated_at = strftime('%s','now') WHERE id = ?`)
	s.stmts.setThreadEnabled = prep(`UPDATE threads SET enabled = ?, updated_at = strftime('%s','now') WHERE id = ?`)
	s.stmts.listUsers = prep(`
		SELECT id, name, username, profile_pic, is_admin, is_blocked, first_seen, updated_at
		FROM users ORDER BY first_seen DESC LIMIT ? OFFSET ?
	`)
	s.stmts.setAdmin = prep(`UPDATE users SET is_admin = ?, updated_at = strftime('%s','now') WHERE id = ?`)
	s.stmts.setBlocked = prep(`UPDATE users SET is_blocked = ?, updated_at = strftime('%s','now') WHERE id = ?`)
	s.stmts.isBlocked = prep(`SELECT is_blocked FROM users WHERE id = ?`)
	s.stmts.setProfile = prep(`
		UPDATE users SET name = COALESCE(?, name), username = COALESCE(?, username),
			profile_pic = COALESCE(?, profile_pic), updated_at = strftime('%s','now')
		WHERE id = ?
	`)
	s.stmts.statsMessages = prep(`SELECT COUNT(*) FROM messages`)
	s.stmts.statsThreads = prep(`SELECT COUNT(*) FROM threads`)
	s.stmts.statsUsers = prep(`SELECT COUNT(*) FROM users`)
	return err
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying *sql.DB for components (maintenance,
// migrations tests) that need direct access; regular operations should
// go through the typed methods in this package.
func (s *Store) DB() *sql.DB { return s.db }
