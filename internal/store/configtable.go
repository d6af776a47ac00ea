package store

import (
	"context"
	"database/sql"

	"ciphervault/internal/verrors"
)

// configTable is a tiny key/value accessor over the `config` table,
// adapted from the application-settings store the rest of the pack uses
// for arbitrary app config: here it holds exactly one well-known row,
// name='wrap_key', whose value is the active WrapKeyRef URI, so a
// process can recover which WrapKeyMethod/parameters to use on restart
// without the caller having to remember it out of band.
type configTable struct {
	db      *sql.DB
	dialect Dialect
}

func newConfigTable(db *sql.DB, dialect Dialect) *configTable {
	return &configTable{db: db, dialect: dialect}
}

// get returns the value for name, or "" with no error if unset.
func (c *configTable) get(ctx context.Context, name string) (string, error) {
	query := ReplaceArgPlaceholders(c.dialect, `SELECT value FROM config WHERE name = $$`, 1)
	var val string
	err := c.db.QueryRowContext(ctx, query, name).Scan(&val)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", verrors.Wrap(verrors.Backend, "read config", err)
	}
	return val, nil
}

// set upserts name=value. Implemented as delete-then-insert rather than a
// dialect-specific upsert since this only ever runs from Open, when the
// wrap_key row is still absent, never on the hot path (Rekey updates the
// row with its own UPDATE inside its transaction).
func (c *configTable) set(ctx context.Context, name, value string) error {
	delQuery := ReplaceArgPlaceholders(c.dialect, `DELETE FROM config WHERE name = $$`, 1)
	if _, err := c.db.ExecContext(ctx, delQuery, name); err != nil {
		return verrors.Wrap(verrors.Backend, "clear config row", err)
	}
	insQuery := ReplaceArgPlaceholders(c.dialect, `INSERT INTO config (name, value) VALUES ($$, $$)`, 1)
	if _, err := c.db.ExecContext(ctx, insQuery, name, value); err != nil {
		return verrors.Wrap(verrors.Backend, "write config", err)
	}
	return nil
}
