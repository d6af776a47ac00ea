package config

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"runtime"
	"time"

	"ciphervault/internal/keys"
	"ciphervault/internal/logx"
	"ciphervault/internal/offload"
	"ciphervault/internal/provision"
	"ciphervault/internal/store"
)

// Open wires a fully loaded Config into a running store.Backend: it opens
// the SQL driver the dialect selects, applies the schema, resolves the
// configured WrapKeyMethod, and hands the result to store.Open. kmsClient
// is only consulted when WrapKey.Scheme is WrapKMS; pass nil otherwise.
func Open(ctx context.Context, cfg *Config, kmsClient keys.KMSClient, log logx.Logger) (*store.Backend, error) {
	driverName, dialect, err := driverFor(cfg.Dialect)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", cfg.Dialect, err)
	}
	db.SetMaxOpenConns(int(cfg.Pool.MaxConns))
	if cfg.Pool.MinConns > 0 {
		db.SetMaxIdleConns(int(cfg.Pool.MinConns))
	}

	provisionDialect := provision.DialectPostgres
	if dialect == store.DialectSQLite {
		provisionDialect = provision.DialectSQLite
	}
	if err := provision.Apply(db, provisionDialect); err != nil {
		db.Close()
		return nil, fmt.Errorf("config: provision schema: %w", err)
	}

	workers := cfg.OffloadWorkers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	pool := offload.NewPool(workers)

	method, passKey, err := wrapMethodFor(cfg.WrapKey, kmsClient)
	if err != nil {
		db.Close()
		return nil, err
	}
	wrapKey, wrapKeyRef, err := method.Resolve(ctx, pool, passKey)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("config: resolve wrap key: %w", err)
	}

	var reaperInterval time.Duration
	if cfg.Reaper.Enabled {
		reaperInterval = time.Duration(cfg.Reaper.IntervalSecs) * time.Second
	}

	backend, err := store.Open(ctx, db, dialect, wrapKey, wrapKeyRef, pool,
		"default", float64(cfg.Pool.AcquireRatePerS), reaperInterval, log)
	if err != nil {
		db.Close()
		return nil, err
	}
	return backend, nil
}

func driverFor(d Dialect) (driverName string, dialect store.Dialect, err error) {
	switch d {
	case DialectPostgres:
		return store.PostgresDriverName, store.DialectPostgres, nil
	case DialectSQLite:
		return store.SQLiteDriverName, store.DialectSQLite, nil
	default:
		return "", "", fmt.Errorf("config: unknown dialect %q", d)
	}
}

func wrapMethodFor(wk WrapKeyConfig, kmsClient keys.KMSClient) (keys.WrapKeyMethod, keys.PassKey, error) {
	switch wk.Scheme {
	case WrapRaw:
		raw, err := hex.DecodeString(wk.RawKeyHex)
		if err != nil {
			return nil, nil, fmt.Errorf("config: decode raw wrap key: %w", err)
		}
		return keys.RawWrapKeyMethod{}, keys.PassKey(raw), nil
	case WrapPassphrase:
		salt, err := hex.DecodeString(wk.SaltHex)
		if err != nil {
			return nil, nil, fmt.Errorf("config: decode wrap key salt: %w", err)
		}
		method := keys.PassphraseWrapKeyMethod{KDF: keys.Argon2KDF{}, Salt: salt}
		return method, keys.PassKey(wk.Passphrase), nil
	case WrapKMS:
		if kmsClient == nil {
			return nil, nil, fmt.Errorf("config: kms wrap scheme requires a KMS client")
		}
		return keys.KMSWrapKeyMethod{Client: kmsClient, KeyName: wk.KMSKeyName}, nil, nil
	default:
		return nil, nil, fmt.Errorf("config: unknown wrap key scheme %q", wk.Scheme)
	}
}
