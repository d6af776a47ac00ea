package store

import (
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
)

// PostgresDriverName is the database/sql driver name to pass to sql.Open
// for the PostgreSQL dialect; registered by the blank pgx/v5/stdlib
// import above, which adapts the native pgx connection machinery to
// database/sql so the rest of this package can stay driver-agnostic.
const PostgresDriverName = "pgx"

// SQLiteDriverName is the database/sql driver name modernc.org/sqlite
// registers itself under.
const SQLiteDriverName = "sqlite"
