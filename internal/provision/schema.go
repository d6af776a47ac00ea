// Package provision creates the four-table schema the storage engine
// runs against: profiles, items, items_tags, config. It is a test and
// first-boot helper, never part of the hot Fetch/Insert/Scan path.
package provision

import (
	"database/sql"
	"fmt"
)

// Dialect mirrors store.Dialect without importing it, since provision
// must stay usable standalone (a deployment's init job, a test helper)
// without pulling in the whole storage engine.
type Dialect int

const (
	DialectPostgres Dialect = iota
	DialectSQLite
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS profiles (
    id        BIGSERIAL PRIMARY KEY,
    name      TEXT NOT NULL UNIQUE,
    store_key BYTEA NOT NULL
);
CREATE TABLE IF NOT EXISTS items (
    id         BIGSERIAL PRIMARY KEY,
    profile_id BIGINT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
    kind       SMALLINT NOT NULL,
    category   BYTEA NOT NULL,
    name       BYTEA NOT NULL,
    value      BYTEA NOT NULL,
    expiry     TIMESTAMPTZ,
    UNIQUE (profile_id, kind, category, name)
);
CREATE TABLE IF NOT EXISTS items_tags (
    id        BIGSERIAL PRIMARY KEY,
    item_id   BIGINT NOT NULL REFERENCES items(id) ON DELETE CASCADE,
    name      BYTEA NOT NULL,
    value     BYTEA NOT NULL,
    plaintext SMALLINT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS ix_items_tags_item_name ON items_tags (item_id, name);
CREATE TABLE IF NOT EXISTS config (
    name  TEXT PRIMARY KEY,
    value BYTEA NOT NULL
);
`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS profiles (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    name      TEXT NOT NULL UNIQUE,
    store_key BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS items (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    profile_id INTEGER NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
    kind       INTEGER NOT NULL,
    category   BLOB NOT NULL,
    name       BLOB NOT NULL,
    value      BLOB NOT NULL,
    expiry     TIMESTAMP,
    UNIQUE (profile_id, kind, category, name)
);
CREATE TABLE IF NOT EXISTS items_tags (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    item_id   INTEGER NOT NULL REFERENCES items(id) ON DELETE CASCADE,
    name      BLOB NOT NULL,
    value     BLOB NOT NULL,
    plaintext INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS ix_items_tags_item_name ON items_tags (item_id, name);
CREATE TABLE IF NOT EXISTS config (
    name  TEXT PRIMARY KEY,
    value BLOB NOT NULL
);
`

// Apply creates every table the engine needs if it doesn't already
// exist. It intentionally keeps no schema_migrations table or other
// DDL-by-DDL migration tracking — there is exactly
// one schema version here, so "CREATE TABLE IF NOT EXISTS" is sufficient
// and avoids PostgreSQL's restrictions on transactional DDL mixing with
// the engine's own runtime transactions.
func Apply(db *sql.DB, dialect Dialect) error {
	schema := sqliteSchema
	if dialect == DialectPostgres {
		schema = postgresSchema
	}
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("provision schema: %w", err)
	}
	return nil
}
