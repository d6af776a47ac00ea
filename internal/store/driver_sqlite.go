package store

import (
	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver
)
