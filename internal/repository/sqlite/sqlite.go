// Package sqlite implements the repository interfaces using SQLite as the
// storage backend.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// mattn/go-sqlite3 uses CGo, which needs a C compiler and makes
// cross-compilation painful. modernc.org/sqlite is a pure Go translation of
// the SQLite sources — works everywhere Go works.
//
// The DB type owns the connection pool; per-domain stores (Users, Repos,
// Webhooks, Sessions) share it and each implement one repository interface.
package sqlite

import (
	"database/sql"
	"fmt"

	// Side-effect import: registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool. Use the accessor methods to get the
// per-domain stores; they all share the same pool.
type DB struct {
	conn *sql.DB
}

// New creates a SQLite database connection and runs migrations.
//
// dbPath examples:
//   - "data/echo.db" → file-based database (persistent)
//   - ":memory:"     → in-memory database (tests; lost on close)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// sql.Open doesn't actually connect — Ping forces it so a bad path
	// surfaces here instead of on the first query.
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL mode allows concurrent reads while a write is in progress —
	// important for a web server where multiple requests hit the DB.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Foreign keys are OFF by default in SQLite (backwards compatibility).
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Users returns the user store.
func (db *DB) Users() *UserStore { return &UserStore{conn: db.conn} }

// Repos returns the repository store.
func (db *DB) Repos() *RepoStore { return &RepoStore{conn: db.conn} }

// Webhooks returns the webhook store.
func (db *DB) Webhooks() *WebhookStore { return &WebhookStore{conn: db.conn} }

// Sessions returns the session store.
func (db *DB) Sessions() *SessionStore { return &SessionStore{conn: db.conn} }

// migrate creates the schema. CREATE TABLE IF NOT EXISTS keeps it idempotent
// — safe to run on every startup.
func (db *DB) migrate() error {
	stmts := []struct {
		name string
		sql  string
	}{
		{"users", `
			CREATE TABLE IF NOT EXISTS users (
				id                  TEXT PRIMARY KEY,
				email               TEXT NOT NULL UNIQUE,
				password_hash       TEXT NOT NULL DEFAULT '',
				display_name        TEXT NOT NULL DEFAULT '',
				github_id           INTEGER NOT NULL DEFAULT 0,
				github_username     TEXT NOT NULL DEFAULT '',
				github_avatar_url   TEXT NOT NULL DEFAULT '',
				github_token        TEXT NOT NULL DEFAULT '',
				email_notifications INTEGER NOT NULL DEFAULT 1,
				created_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE UNIQUE INDEX IF NOT EXISTS idx_users_github_id
				ON users(github_id) WHERE github_id != 0;
		`},
		{"repositories", `
			CREATE TABLE IF NOT EXISTS repositories (
				id                TEXT PRIMARY KEY,
				owner_id          TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				github_id         INTEGER NOT NULL,
				name              TEXT NOT NULL,
				full_name         TEXT NOT NULL,
				description       TEXT NOT NULL DEFAULT '',
				html_url          TEXT NOT NULL,
				clone_url         TEXT NOT NULL DEFAULT '',
				owner_login       TEXT NOT NULL,
				visibility        TEXT NOT NULL DEFAULT 'public',
				default_branch    TEXT NOT NULL DEFAULT 'main',
				language          TEXT NOT NULL DEFAULT '',
				stars_count       INTEGER NOT NULL DEFAULT 0,
				forks_count       INTEGER NOT NULL DEFAULT 0,
				open_issues_count INTEGER NOT NULL DEFAULT 0,
				watchers_count    INTEGER NOT NULL DEFAULT 0,
				is_active         INTEGER NOT NULL DEFAULT 1,
				last_synced_at    DATETIME,
				sync_error        TEXT NOT NULL DEFAULT '',
				github_updated_at DATETIME,
				created_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				UNIQUE(owner_id, full_name)
			);
			CREATE INDEX IF NOT EXISTS idx_repositories_owner_id ON repositories(owner_id);
			CREATE INDEX IF NOT EXISTS idx_repositories_full_name ON repositories(full_name);
		`},
		{"repository_settings", `
			CREATE TABLE IF NOT EXISTS repository_settings (
				repository_id         TEXT PRIMARY KEY REFERENCES repositories(id) ON DELETE CASCADE,
				auto_sync             INTEGER NOT NULL DEFAULT 1,
				sync_interval_minutes INTEGER NOT NULL DEFAULT 60,
				notifications_enabled INTEGER NOT NULL DEFAULT 1,
				notify_on_push        INTEGER NOT NULL DEFAULT 0,
				notify_on_pr          INTEGER NOT NULL DEFAULT 1,
				notify_on_issues      INTEGER NOT NULL DEFAULT 1,
				agent_enabled         INTEGER NOT NULL DEFAULT 1,
				auto_create_issues    INTEGER NOT NULL DEFAULT 0,
				updated_at            DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
		`},
		{"webhooks", `
			CREATE TABLE IF NOT EXISTS webhooks (
				id                   TEXT PRIMARY KEY,
				repository_id        TEXT NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
				github_hook_id       INTEGER NOT NULL DEFAULT 0,
				url                  TEXT NOT NULL,
				secret               TEXT NOT NULL,
				events               TEXT NOT NULL DEFAULT '[]',
				is_active            INTEGER NOT NULL DEFAULT 1,
				last_delivery_at     DATETIME,
				last_delivery_status TEXT NOT NULL DEFAULT '',
				created_at           DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at           DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_webhooks_repository_id ON webhooks(repository_id);
		`},
		{"user_sessions", `
			CREATE TABLE IF NOT EXISTS user_sessions (
				id                 TEXT PRIMARY KEY,
				user_id            TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				refresh_token_hash TEXT NOT NULL UNIQUE,
				user_agent         TEXT NOT NULL DEFAULT '',
				is_active          INTEGER NOT NULL DEFAULT 1,
				expires_at         DATETIME NOT NULL,
				created_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				last_active_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_user_sessions_user_id ON user_sessions(user_id);
		`},
	}

	for _, s := range stmts {
		if _, err := db.conn.Exec(s.sql); err != nil {
			return fmt.Errorf("creating %s schema: %w", s.name, err)
		}
	}

	return nil
}
