// Package audit records an append-only trail of protocol decisions
// (handshake, connect, disconnect, subscribe, unsubscribe, publish) to
// SQLite. It is strictly an observability log: sessions are never
// reloaded from it, so session-state persistence remains out of scope
// (spec §1 Non-goals) even though the process keeps this database open
// for its whole lifetime.
package audit

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/xtroce/sioux/internal/logger"
)

// DB wraps a SQLite connection carrying the audit schema, grounded on the
// teacher's internal/database/db.go Open+migrations pattern.
type DB struct {
	*sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version    TEXT PRIMARY KEY,
	applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS audit_events (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	kind       TEXT NOT NULL,
	channel    TEXT NOT NULL DEFAULT '',
	successful INTEGER NOT NULL,
	detail     TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_audit_events_session_id ON audit_events(session_id);
`

// Open opens (creating if necessary) the SQLite database at path and
// applies the audit schema.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("audit: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: apply schema: %w", err)
	}
	return &DB{db}, nil
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	return db.DB.Close()
}

// Kind enumerates the protocol decisions this trail records.
type Kind string

const (
	KindHandshake   Kind = "handshake"
	KindConnect     Kind = "connect"
	KindDisconnect  Kind = "disconnect"
	KindSubscribe   Kind = "subscribe"
	KindUnsubscribe Kind = "unsubscribe"
	KindPublish     Kind = "publish"
)

// Record appends one audit row. Failures are logged, not returned, since
// audit logging must never fail a protocol operation.
func (db *DB) Record(sessionID string, kind Kind, channel string, successful bool, detail string) {
	_, err := db.Exec(
		`INSERT INTO audit_events (id, session_id, kind, channel, successful, detail) VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), sessionID, string(kind), channel, boolToInt(successful), detail,
	)
	if err != nil {
		logger.Warnf("audit: failed to record %s event for session %s: %v", kind, sessionID, err)
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
