package store

import (
	"context"
	"database/sql"
	"time"

	"ciphervault/internal/keys"
	"ciphervault/internal/logx"
	"ciphervault/internal/offload"
	"ciphervault/internal/verrors"
)

// Backend is the top-level handle to one SQL-backed store: a connection
// pool, a key cache shared by every session, and the dialect-specific
// query templates. It corresponds to the original source's
// PostgresStore/SqliteStore pair, unified here behind database/sql since
// both drivers (jackc/pgx's stdlib adapter and modernc.org/sqlite)
// register themselves with it.
type Backend struct {
	db             *sql.DB
	dialect        Dialect
	cache          *keys.KeyCache
	pool           *offload.Pool
	limiter        *acquireLimiter
	defaultProfile string
	log            logx.Logger
	reaper         *Reaper
	config         *configTable
}

// Open builds a Backend around an already-connected *sql.DB. defaultProfile
// names the profile Session/Scan use when no profile is given explicitly.
// If reaperInterval is nonzero, a background Reaper starts immediately.
// The active WrapKeyRef's URI is persisted to the config table's
// "wrap_key" row (seeded here if absent) so a restart can recover which
// method produced the current profiles' wrapping.
func Open(ctx context.Context, db *sql.DB, dialect Dialect, wrapKey *keys.WrapKey, wrapKeyRef keys.WrapKeyRef, pool *offload.Pool, defaultProfile string, acquireRatePerSecond float64, reaperInterval time.Duration, log logx.Logger) (*Backend, error) {
	cfg := newConfigTable(db, dialect)
	existing, err := cfg.get(ctx, "wrap_key")
	if err != nil {
		return nil, err
	}
	if existing == "" {
		if err := cfg.set(ctx, "wrap_key", wrapKeyRef.String()); err != nil {
			return nil, err
		}
	}

	b := &Backend{
		db:             db,
		dialect:        dialect,
		cache:          keys.NewKeyCache(wrapKey, pool),
		pool:           pool,
		limiter:        newAcquireLimiter(acquireRatePerSecond, 1),
		defaultProfile: defaultProfile,
		log:            log,
		config:         cfg,
	}
	if reaperInterval > 0 {
		b.reaper = NewReaper(db, reaperInterval, log)
	}
	return b, nil
}

// GetProfileName returns the backend's default profile.
func (b *Backend) GetProfileName() string { return b.defaultProfile }

// CreateProfile provisions a new profile with a fresh StoreKey, wrapping
// it under the backend's current WrapKey, and seeds the key cache so the
// first Session against it doesn't need a round trip.
func (b *Backend) CreateProfile(ctx context.Context, name string) (string, error) {
	if name == "" {
		name = randomProfileName()
	}
	sk, err := keys.NewStoreKey()
	if err != nil {
		return "", verrors.Wrap(verrors.Encryption, "generate store key", err)
	}
	wrapped, err := keys.EncodeStoreKey(sk, b.cache.WrapKey())
	if err != nil {
		return "", verrors.Wrap(verrors.Encryption, "wrap store key", err)
	}
	q := queriesFor(b.dialect)
	query := ReplaceArgPlaceholders(b.dialect, q.insertProfile, 1)

	var pid int64
	row := b.db.QueryRowContext(ctx, query, name, wrapped)
	if err := row.Scan(&pid); err != nil {
		if err == sql.ErrNoRows {
			return "", verrors.New(verrors.Duplicate, "duplicate profile name")
		}
		return "", verrors.Wrap(verrors.Backend, "insert profile", err)
	}
	b.cache.AddProfile(name, ProfileId(pid), sk)
	b.log.Event("profile_created", map[string]string{"profile": name})
	return name, nil
}

// RemoveProfile deletes a profile row. Its items go with it through the
// ON DELETE CASCADE foreign keys set up in internal/provision wherever the
// database enforces them; SQLite enforces foreign keys only on connections
// that enable them, and nothing in this package enables them. Returns false
// if no such profile existed.
func (b *Backend) RemoveProfile(ctx context.Context, name string) (bool, error) {
	q := queriesFor(b.dialect)
	query := ReplaceArgPlaceholders(b.dialect, q.removeProfile, 1)
	res, err := b.db.ExecContext(ctx, query, name)
	if err != nil {
		return false, verrors.Wrap(verrors.Backend, "remove profile", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, verrors.Wrap(verrors.Backend, "rows affected", err)
	}
	return n != 0, nil
}

// loadProfileKey fetches a profile's ProfileId and its still-wrapped
// StoreKey blob from the database — resolve_profile_key's database-hit
// branch. It does not unwrap the blob; KeyCache.ResolveProfile, which takes
// it as the cache-miss loader, does that through KeyCache.LoadKey.
func (b *Backend) loadProfileKey(ctx context.Context, conn *sql.Conn, name string) (ProfileId, []byte, error) {
	q := queriesFor(b.dialect)
	query := ReplaceArgPlaceholders(b.dialect, q.fetchProfile, 1)
	var pid int64
	var wrapped []byte
	row := conn.QueryRowContext(ctx, query, name)
	if err := row.Scan(&pid, &wrapped); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil, verrors.New(verrors.NotFound, "profile not found")
		}
		return 0, nil, verrors.Wrap(verrors.Backend, "fetch profile", err)
	}
	return ProfileId(pid), wrapped, nil
}

// Rekey re-wraps every profile's StoreKey blob under a freshly resolved
// WrapKey, replacing method/passKey for the backend going forward. It
// mirrors rekey_backend: resolve the new wrap key, walk every profile row
// inside one transaction, decode-then-reencode each StoreKey blob, update
// every row, commit, and only then swap the in-memory cache's WrapKey (so
// a failure partway through leaves the old key fully usable).
func (b *Backend) Rekey(ctx context.Context, method keys.WrapKeyMethod, passKey keys.PassKey) error {
	newWrapKey, newWrapKeyRef, err := method.Resolve(ctx, b.pool, passKey)
	if err != nil {
		return err
	}
	q := queriesFor(b.dialect)

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return verrors.Wrap(verrors.Backend, "begin rekey transaction", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, "SELECT id, store_key FROM profiles")
	if err != nil {
		return verrors.Wrap(verrors.Backend, "fetch profiles", err)
	}
	type row struct {
		id      int64
		wrapped []byte
	}
	var all []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.wrapped); err != nil {
			rows.Close()
			return verrors.Wrap(verrors.Backend, "scan profile row", err)
		}
		all = append(all, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return verrors.Wrap(verrors.Backend, "scan profiles", err)
	}
	rows.Close()

	updateQuery := ReplaceArgPlaceholders(b.dialect, q.updateProfileKey, 1)
	for _, r := range all {
		sk, err := keys.DecodeStoreKey(r.wrapped, b.cache.WrapKey())
		if err != nil {
			return verrors.Wrap(verrors.Encryption, "decode store key during rekey", err)
		}
		reWrapped, err := keys.EncodeStoreKey(sk, newWrapKey)
		if err != nil {
			return verrors.Wrap(verrors.Encryption, "re-wrap store key", err)
		}
		if _, err := tx.ExecContext(ctx, updateQuery, reWrapped, r.id); err != nil {
			return verrors.Wrap(verrors.Backend, "update profile store key", err)
		}
	}
	configUpdate := ReplaceArgPlaceholders(b.dialect, `UPDATE config SET value = $$ WHERE name = $$`, 1)
	res, err := tx.ExecContext(ctx, configUpdate, newWrapKeyRef.String(), "wrap_key")
	if err != nil {
		return verrors.Wrap(verrors.Backend, "update wrap key config row", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return verrors.New(verrors.Backend, "error updating wrap key config row")
	}

	if err := tx.Commit(); err != nil {
		return verrors.Wrap(verrors.Backend, "commit rekey transaction", err)
	}

	b.cache.Zeroize()
	b.cache = keys.NewKeyCache(newWrapKey, b.pool)
	b.log.Event("rekey_completed", map[string]string{"profiles": itoa(len(all))})
	return nil
}

// Session opens a new Session against profile (the backend's default
// profile if empty). transaction=true wraps the session's lifetime in a
// SQL transaction so Update is available; otherwise Update is refused and
// every other statement (RemoveAll included) auto-commits on its own.
func (b *Backend) Session(profile string, transaction bool) (*Session, error) {
	if err := b.limiter.Allow(); err != nil {
		return nil, err
	}
	if profile == "" {
		profile = b.defaultProfile
	}
	return &Session{backend: b, profileName: profile, transaction: transaction, log: b.log}, nil
}

// Scan opens a read-only, paged decryption stream over a profile's
// entries matching (kind, category, filter), honoring offset/limit.
func (b *Backend) Scan(ctx context.Context, profile string, kind EntryKind, category string, filter *TagFilter, offset, limit int64) (*Scan, error) {
	if err := b.limiter.Allow(); err != nil {
		return nil, err
	}
	if profile == "" {
		profile = b.defaultProfile
	}
	conn, err := b.db.Conn(ctx)
	if err != nil {
		return nil, verrors.Wrap(verrors.Backend, "acquire connection", err)
	}
	pid, key, err := b.cache.ResolveProfile(ctx, profile, func() (ProfileId, []byte, error) {
		return b.loadProfileKey(ctx, conn, profile)
	})
	if err != nil {
		conn.Close()
		return nil, err
	}
	encCategory, err := offload.DoScoped(ctx, b.pool, func() ([]byte, error) {
		return key.EncryptEntryCategory(category)
	})
	if err != nil {
		conn.Close()
		return nil, verrors.Wrap(verrors.Encryption, "encrypt category", err)
	}

	q := queriesFor(b.dialect)
	query := q.scan
	params := []any{pid, int16(kind), encCategory}
	if filter != nil {
		clause, fargs, err := CompileTagFilter(b.dialect, key, filter, int64(len(params)+1))
		if err != nil {
			conn.Close()
			return nil, err
		}
		query += " AND (" + clause + ")"
		params = append(params, fargs...)
	}
	query = ReplaceArgPlaceholders(b.dialect, query, 1)
	if limit > 0 {
		query += " LIMIT " + itoa64(limit)
	} else if offset > 0 && b.dialect == DialectSQLite {
		// SQLite accepts OFFSET only after a LIMIT; -1 means no limit.
		query += " LIMIT -1"
	}
	if offset > 0 {
		query += " OFFSET " + itoa64(offset)
	}

	rows, err := conn.QueryContext(ctx, query, params...)
	if err != nil {
		conn.Close()
		return nil, verrors.Wrap(verrors.Backend, "scan query", err)
	}
	return newScan(rows, conn, key, category, b.pool), nil
}

// Close releases the backend's resources: the reaper (if running), the
// key cache (zeroizing every cached StoreKey), and the connection pool.
func (b *Backend) Close(_ context.Context) error {
	if b.reaper != nil {
		b.reaper.Stop()
	}
	b.cache.Zeroize()
	return b.db.Close()
}
