// Package docstore persists document envelopes and their immutable versions
// in SQLite. It is the system of record: the vector index is a projection
// that can always be rebuilt from what lives here.
package docstore

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS envelopes (
	id                   TEXT PRIMARY KEY,
	workspace_id         TEXT NOT NULL DEFAULT '',
	owner_id             TEXT NOT NULL,
	title                TEXT NOT NULL DEFAULT '',
	category             TEXT NOT NULL DEFAULT 'knowledge',
	searchable           INTEGER NOT NULL DEFAULT 0,
	published_version_id TEXT NOT NULL DEFAULT '',
	created_at           DATETIME NOT NULL,
	updated_at           DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_envelopes_owner ON envelopes(owner_id);

CREATE TABLE IF NOT EXISTS versions (
	id          TEXT PRIMARY KEY,
	envelope_id TEXT NOT NULL REFERENCES envelopes(id) ON DELETE CASCADE,
	content     TEXT NOT NULL DEFAULT '',
	metadata    TEXT NOT NULL DEFAULT '{}',
	checksum    TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_versions_envelope ON versions(envelope_id);
`

// DB wraps a sql.DB with document store operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the document database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("docstore: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("docstore: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("docstore: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
