package store

import (
	"context"
	"database/sql"
)

const ddl = `
CREATE TABLE IF NOT EXISTS vectors (
    namespace   TEXT NOT NULL,
    id          TEXT NOT NULL,
    repo_id     TEXT NOT NULL DEFAULT '',
    file_path   TEXT NOT NULL DEFAULT '',
    language    TEXT NOT NULL DEFAULT '',
    start_line  INTEGER NOT NULL DEFAULT 0,
    end_line    INTEGER NOT NULL DEFAULT 0,
    symbol_name TEXT NOT NULL DEFAULT '',
    kind        TEXT NOT NULL DEFAULT '',
    ordinal     INTEGER NOT NULL DEFAULT 0,
    content     TEXT NOT NULL,
    embedding   BLOB NOT NULL,
    PRIMARY KEY (namespace, id)
);

CREATE INDEX IF NOT EXISTS idx_vectors_namespace_path ON vectors(namespace, file_path, ordinal);

CREATE TABLE IF NOT EXISTS meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// Init creates the schema tables if they don't exist.
func Init(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, ddl)
	return err
}
