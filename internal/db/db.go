// Package db owns the SQLite connection and schema for conversation and
// audit persistence.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB with copilot-specific helpers.
type DB struct {
	*sql.DB
	path string
}

// Open creates or opens a SQLite database at the given path.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	d := &DB{DB: sqlDB, path: path}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return d, nil
}

// OpenMemory creates an in-memory SQLite database (useful for testing).
func OpenMemory() (*DB, error) {
	sqlDB, err := sql.Open("sqlite", ":memory:?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening in-memory database: %w", err)
	}

	// Each pooled connection to :memory: would get its own database;
	// pin the pool to one connection so all callers share state.
	sqlDB.SetMaxOpenConns(1)

	d := &DB{DB: sqlDB, path: ":memory:"}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return d, nil
}

// migrate runs all schema migrations.
func (d *DB) migrate() error {
	_, err := d.Exec(schema)
	return err
}

// schema contains the full database schema. New tables are added here.
//
// audit_logs is append/update only: rows are created as pending and moved to
// exactly one terminal status, never deleted. The 'confirmed' status is the
// transient claim used by the confirmation flow between approval and
// execution outcome.
const schema = `
CREATE TABLE IF NOT EXISTS conversation_messages (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    session_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    role TEXT NOT NULL CHECK(role IN ('user','assistant','system')),
    content TEXT NOT NULL,
    tool_calls TEXT,
    created_at DATETIME NOT NULL DEFAULT (datetime('now')),
    UNIQUE(tenant_id, session_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_messages_session ON conversation_messages(tenant_id, session_id, seq);
CREATE INDEX IF NOT EXISTS idx_messages_user ON conversation_messages(tenant_id, user_id, created_at);

CREATE TABLE IF NOT EXISTS audit_logs (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    conversation_id TEXT,
    action_type TEXT NOT NULL CHECK(action_type IN ('query','tool_execution','confirmation')),
    tool_name TEXT,
    input_params TEXT NOT NULL DEFAULT '{}',
    output_result TEXT,
    status TEXT NOT NULL CHECK(status IN ('pending','confirmed','success','failed','cancelled')),
    execution_time_ms INTEGER,
    error_message TEXT,
    severity TEXT NOT NULL DEFAULT 'info' CHECK(severity IN ('info','warn','critical')),
    created_at DATETIME NOT NULL DEFAULT (datetime('now')),
    updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_audit_tenant_user ON audit_logs(tenant_id, user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_audit_conversation ON audit_logs(conversation_id);
CREATE INDEX IF NOT EXISTS idx_audit_status ON audit_logs(tenant_id, status);

CREATE TABLE IF NOT EXISTS documents (
    tenant_id TEXT NOT NULL,
    source_path TEXT NOT NULL,
    doc_type TEXT NOT NULL,
    chunk_count INTEGER NOT NULL DEFAULT 0,
    indexed_at DATETIME NOT NULL DEFAULT (datetime('now')),
    PRIMARY KEY (tenant_id, source_path)
);

CREATE INDEX IF NOT EXISTS idx_documents_tenant ON documents(tenant_id);
`
