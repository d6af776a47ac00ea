// Package storetest builds a ready-to-use in-memory SQLite store.Backend
// for tests, so every store package test isn't re-deriving pool
// construction, schema provisioning, and wrap-key setup by hand.
package storetest

import (
	"context"
	"database/sql"
	"testing"

	"ciphervault/internal/keys"
	"ciphervault/internal/logx"
	"ciphervault/internal/offload"
	"ciphervault/internal/provision"
	"ciphervault/internal/store"
)

// New opens an in-memory SQLite database, provisions its schema, and
// returns a *store.Backend keyed with a random raw wrap key. The backend
// and its connection pool are closed automatically via t.Cleanup.
func New(t *testing.T) *store.Backend {
	t.Helper()

	db, err := sql.Open("sqlite", "file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if err := provision.Apply(db, provision.DialectSQLite); err != nil {
		t.Fatalf("provision schema: %v", err)
	}

	offloadPool := offload.NewPool(2)
	t.Cleanup(offloadPool.Close)

	passKey := make([]byte, 32)
	for i := range passKey {
		passKey[i] = byte(i)
	}
	wrapKey, wrapKeyRef, err := (keys.RawWrapKeyMethod{}).Resolve(t.Context(), offloadPool, passKey)
	if err != nil {
		t.Fatalf("resolve wrap key: %v", err)
	}

	backend, err := store.Open(t.Context(), db, store.DialectSQLite, wrapKey, wrapKeyRef, offloadPool, "default", 0, 0, logx.Default("storetest"))
	if err != nil {
		t.Fatalf("open backend: %v", err)
	}
	t.Cleanup(func() { backend.Close(context.Background()) })

	if _, err := backend.CreateProfile(t.Context(), "default"); err != nil {
		t.Fatalf("create default profile: %v", err)
	}
	return backend
}
