package store

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"ciphervault/internal/keys"
	"ciphervault/internal/logx"
	"ciphervault/internal/offload"
	"ciphervault/internal/verrors"
)

// sessionState tracks a Session's lifecycle, mirroring the original
// source's DbSession: a session starts Pending (profile/key not yet
// resolved, no connection held), becomes Active on first use (connection
// acquired, key resolved) and, if opened for writing, ActiveTxn (inside a
// transaction). Closed is terminal; every method after Close returns
// verrors.Unexpected.
type sessionState int

const (
	sessionPending sessionState = iota
	sessionActive
	sessionActiveTxn
	sessionClosed
)

// dbConn is the subset of *sql.Conn / *sql.Tx a Session needs, letting the
// query helpers below run unchanged whether or not a transaction is open.
type dbConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Session is a single logical unit of work against one profile. It
// implements QuerySession. A Session opened with transaction=true holds
// its connection inside a SQL transaction until Close(commit) runs;
// otherwise every statement auto-commits individually.
type Session struct {
	backend     *Backend
	profileName string
	transaction bool
	state       sessionState

	conn      *sql.Conn
	tx        *sql.Tx
	profileID ProfileId
	key       *keys.StoreKey

	log logx.Logger
}

func (s *Session) connOrTx() dbConn {
	if s.tx != nil {
		return s.tx
	}
	return s.conn
}

// acquire resolves the session's profile key and connection on first use,
// lazily promoting Pending -> Active (or ActiveTxn), mirroring
// acquire_key/acquire_session/make_active in the original source.
func (s *Session) acquire(ctx context.Context) error {
	if s.state == sessionClosed {
		return verrors.New(verrors.Unexpected, "session is closed")
	}
	if s.state != sessionPending {
		return nil
	}
	conn, err := s.backend.db.Conn(ctx)
	if err != nil {
		return verrors.Wrap(verrors.Backend, "acquire connection", err)
	}
	s.conn = conn

	pid, key, err := s.backend.cache.ResolveProfile(ctx, s.profileName, func() (ProfileId, []byte, error) {
		return s.backend.loadProfileKey(ctx, conn, s.profileName)
	})
	if err != nil {
		conn.Close()
		s.conn = nil
		return err
	}
	s.profileID = pid
	s.key = key

	if s.transaction {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			conn.Close()
			s.conn = nil
			return verrors.Wrap(verrors.Backend, "begin transaction", err)
		}
		s.tx = tx
		s.state = sessionActiveTxn
	} else {
		s.state = sessionActive
	}
	return nil
}

// Count implements QuerySession.
func (s *Session) Count(ctx context.Context, kind EntryKind, category string, filter *TagFilter) (int64, error) {
	if err := s.acquire(ctx); err != nil {
		return 0, err
	}
	q := queriesFor(s.backend.dialect)
	encCategory, err := offload.DoScoped(ctx, s.backend.pool, func() ([]byte, error) {
		return s.key.EncryptEntryCategory(category)
	})
	if err != nil {
		return 0, verrors.Wrap(verrors.Encryption, "encrypt category", err)
	}
	query := q.count
	params := []any{s.profileID, int16(kind), encCategory}
	if filter != nil {
		clause, fargs, err := CompileTagFilter(s.backend.dialect, s.key, filter, int64(len(params)+1))
		if err != nil {
			return 0, err
		}
		query += " AND (" + clause + ")"
		params = append(params, fargs...)
	}
	query = ReplaceArgPlaceholders(s.backend.dialect, toAbstract(query, len(params)), 1)
	var count int64
	if err := s.connOrTx().QueryRowContext(ctx, query, params...).Scan(&count); err != nil {
		return 0, verrors.Wrap(verrors.Backend, "count query", err)
	}
	return count, nil
}

// Fetch implements QuerySession.
func (s *Session) Fetch(ctx context.Context, kind EntryKind, category, name string, forUpdate bool) (*Entry, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	q := queriesFor(s.backend.dialect)
	encCategory, err := offload.DoScoped(ctx, s.backend.pool, func() ([]byte, error) {
		return s.key.EncryptEntryCategory(category)
	})
	if err != nil {
		return nil, verrors.Wrap(verrors.Encryption, "encrypt category", err)
	}
	encName, err := offload.DoScoped(ctx, s.backend.pool, func() ([]byte, error) {
		return s.key.EncryptEntryName(name)
	})
	if err != nil {
		return nil, verrors.Wrap(verrors.Encryption, "encrypt name", err)
	}
	query := q.fetch
	if forUpdate {
		if s.backend.dialect == DialectSQLite {
			s.log.Event("for_update_ignored", map[string]string{"dialect": "sqlite"})
		} else {
			query = q.fetchForUpdate
		}
	}
	query = ReplaceArgPlaceholders(s.backend.dialect, toAbstract(query, 4), 1)

	var id int64
	var encValue []byte
	var tagsRaw sql.NullString
	row := s.connOrTx().QueryRowContext(ctx, query, s.profileID, int16(kind), encCategory, encName)
	if err := row.Scan(&id, &encValue, &tagsRaw); err != nil {
		if err == sql.ErrNoRows {
			return nil, verrors.New(verrors.NotFound, "entry not found")
		}
		return nil, verrors.Wrap(verrors.Backend, "fetch query", err)
	}
	value, err := offload.DoScoped(ctx, s.backend.pool, func() ([]byte, error) {
		return s.key.DecryptEntryValue(encValue)
	})
	if err != nil {
		return nil, verrors.Wrap(verrors.Encryption, "decrypt value", err)
	}
	tags, err := offload.DoScoped(ctx, s.backend.pool, func() ([]EntryTag, error) {
		return s.decodeTags(tagsRaw)
	})
	if err != nil {
		return nil, err
	}
	return &Entry{Category: category, Name: name, Value: value, Tags: tags}, nil
}

// FetchAll implements QuerySession.
func (s *Session) FetchAll(ctx context.Context, kind EntryKind, category string, filter *TagFilter, limit int64, forUpdate bool) ([]Entry, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	q := queriesFor(s.backend.dialect)
	encCategory, err := offload.DoScoped(ctx, s.backend.pool, func() ([]byte, error) {
		return s.key.EncryptEntryCategory(category)
	})
	if err != nil {
		return nil, verrors.Wrap(verrors.Encryption, "encrypt category", err)
	}
	query := q.scan
	params := []any{s.profileID, int16(kind), encCategory}
	if filter != nil {
		clause, fargs, err := CompileTagFilter(s.backend.dialect, s.key, filter, int64(len(params)+1))
		if err != nil {
			return nil, err
		}
		query += " AND (" + clause + ")"
		params = append(params, fargs...)
	}
	if limit > 0 {
		limitClause := fmt.Sprintf(" LIMIT $%d", len(params)+1)
		params = append(params, limit)
		query += limitClause
	}
	if forUpdate && s.backend.dialect == DialectPostgres {
		query += " FOR UPDATE"
	}
	query = ReplaceArgPlaceholders(s.backend.dialect, toAbstract(query, len(params)), 1)

	rows, err := s.connOrTx().QueryContext(ctx, query, params...)
	if err != nil {
		return nil, verrors.Wrap(verrors.Backend, "scan query", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var id int64
		var encName, encValue []byte
		var tagsRaw sql.NullString
		if err := rows.Scan(&id, &encName, &encValue, &tagsRaw); err != nil {
			return nil, verrors.Wrap(verrors.Backend, "scan row", err)
		}
		name, err := offload.DoScoped(ctx, s.backend.pool, func() (string, error) {
			return s.key.DecryptEntryName(encName)
		})
		if err != nil {
			return nil, verrors.Wrap(verrors.Encryption, "decrypt name", err)
		}
		value, err := offload.DoScoped(ctx, s.backend.pool, func() ([]byte, error) {
			return s.key.DecryptEntryValue(encValue)
		})
		if err != nil {
			return nil, verrors.Wrap(verrors.Encryption, "decrypt value", err)
		}
		tags, err := offload.DoScoped(ctx, s.backend.pool, func() ([]EntryTag, error) {
			return s.decodeTags(tagsRaw)
		})
		if err != nil {
			return nil, err
		}
		out = append(out, Entry{Category: category, Name: name, Value: value, Tags: tags})
	}
	if err := rows.Err(); err != nil {
		return nil, verrors.Wrap(verrors.Backend, "scan rows", err)
	}
	return out, nil
}

// RemoveAll implements QuerySession.
func (s *Session) RemoveAll(ctx context.Context, kind EntryKind, category string, filter *TagFilter) (int64, error) {
	if err := s.acquire(ctx); err != nil {
		return 0, err
	}
	q := queriesFor(s.backend.dialect)
	encCategory, err := offload.DoScoped(ctx, s.backend.pool, func() ([]byte, error) {
		return s.key.EncryptEntryCategory(category)
	})
	if err != nil {
		return 0, verrors.Wrap(verrors.Encryption, "encrypt category", err)
	}
	query := q.deleteAll
	params := []any{s.profileID, int16(kind), encCategory}
	if filter != nil {
		clause, fargs, err := CompileTagFilter(s.backend.dialect, s.key, filter, int64(len(params)+1))
		if err != nil {
			return 0, err
		}
		query += " AND (" + clause + ")"
		params = append(params, fargs...)
	}
	query = ReplaceArgPlaceholders(s.backend.dialect, toAbstract(query, len(params)), 1)

	res, err := s.connOrTx().ExecContext(ctx, query, params...)
	if err != nil {
		return 0, verrors.Wrap(verrors.Backend, "delete all", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, verrors.Wrap(verrors.Backend, "rows affected", err)
	}
	return n, nil
}

// Update implements QuerySession: Insert requires the row not already
// exist (Duplicate on conflict), Replace requires it already exist
// (NotFound if missing, checked with a Fetch, then the old row is deleted
// and the new one inserted), Remove deletes it (NotFound if missing, per
// perform_remove).
func (s *Session) Update(ctx context.Context, op EntryOperation, kind EntryKind, category, name string, value []byte, tags []EntryTag, expiryMs *int64) error {
	if op != OpRemove {
		if err := validateUpdate(category, name, value); err != nil {
			return err
		}
	}
	if err := s.acquire(ctx); err != nil {
		return err
	}
	if !s.transaction {
		return verrors.New(verrors.Unexpected, "Update requires a session opened with transaction=true")
	}
	q := queriesFor(s.backend.dialect)
	encCategory, err := offload.DoScoped(ctx, s.backend.pool, func() ([]byte, error) {
		return s.key.EncryptEntryCategory(category)
	})
	if err != nil {
		return verrors.Wrap(verrors.Encryption, "encrypt category", err)
	}
	encName, err := offload.DoScoped(ctx, s.backend.pool, func() ([]byte, error) {
		return s.key.EncryptEntryName(name)
	})
	if err != nil {
		return verrors.Wrap(verrors.Encryption, "encrypt name", err)
	}

	if op == OpRemove {
		query := ReplaceArgPlaceholders(s.backend.dialect, toAbstract(q.delete, 4), 1)
		res, err := s.connOrTx().ExecContext(ctx, query, s.profileID, int16(kind), encCategory, encName)
		if err != nil {
			return verrors.Wrap(verrors.Backend, "delete entry", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return verrors.New(verrors.NotFound, "entry not found")
		}
		return nil
	}

	if op == OpReplace {
		if _, err := s.Fetch(ctx, kind, category, name, false); err != nil {
			return err
		}
		delQuery := ReplaceArgPlaceholders(s.backend.dialect, toAbstract(q.delete, 4), 1)
		if _, err := s.connOrTx().ExecContext(ctx, delQuery, s.profileID, int16(kind), encCategory, encName); err != nil {
			return verrors.Wrap(verrors.Backend, "replace: delete old row", err)
		}
	}

	encValue, err := offload.DoScoped(ctx, s.backend.pool, func() ([]byte, error) {
		return s.key.EncryptEntryValue(value)
	})
	if err != nil {
		return verrors.Wrap(verrors.Encryption, "encrypt value", err)
	}
	var expiry any
	if expiryMs != nil {
		expiry = time.UnixMilli(*expiryMs).UTC()
	}
	insertQuery := ReplaceArgPlaceholders(s.backend.dialect, toAbstract(q.insert, 6), 1)
	var rowID int64
	row := s.connOrTx().QueryRowContext(ctx, insertQuery, s.profileID, int16(kind), encCategory, encName, encValue, expiry)
	if err := row.Scan(&rowID); err != nil {
		if err == sql.ErrNoRows {
			return verrors.New(verrors.Duplicate, "duplicate entry")
		}
		return verrors.Wrap(verrors.Backend, "insert entry", err)
	}

	encTags, err := offload.DoScoped(ctx, s.backend.pool, func() ([]keys.EncEntryTag, error) {
		return s.key.EncryptEntryTags(tags)
	})
	if err != nil {
		return verrors.Wrap(verrors.Encryption, "encrypt tags", err)
	}
	tagInsert := ReplaceArgPlaceholders(s.backend.dialect, toAbstract(q.tagInsert, 4), 1)
	for _, tag := range encTags {
		plaintext := 0
		if tag.Plaintext {
			plaintext = 1
		}
		if _, err := s.connOrTx().ExecContext(ctx, tagInsert, rowID, tag.Name, tag.Value, plaintext); err != nil {
			return verrors.Wrap(verrors.Backend, "insert tag", err)
		}
	}
	return nil
}

// Close implements QuerySession: commits or rolls back any open
// transaction and releases the pooled connection. Idempotent.
func (s *Session) Close(ctx context.Context, commit bool) error {
	if s.state == sessionClosed {
		return nil
	}
	var err error
	if s.tx != nil {
		if commit {
			err = s.tx.Commit()
		} else {
			err = s.tx.Rollback()
		}
	}
	if s.conn != nil {
		if cerr := s.conn.Close(); err == nil {
			err = cerr
		}
	}
	s.state = sessionClosed
	if err != nil {
		return verrors.Wrap(verrors.Backend, "close session", err)
	}
	return nil
}

// decodeTags parses the "plaintext:hex(name):hex(value)" comma-joined
// aggregate produced by the fetch/scan queries back into EncEntryTag
// values and decrypts them, mirroring decode_tags + decrypt_entry_tags.
func (s *Session) decodeTags(raw sql.NullString) ([]EntryTag, error) {
	return decodeTagsWith(s.key, raw)
}

// decodeTagsWith is the key-parameterized form shared with Scan, which has
// no Session to hang the method off of.
func decodeTagsWith(key *keys.StoreKey, raw sql.NullString) ([]EntryTag, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var enc []keys.EncEntryTag
	for _, part := range strings.Split(raw.String, ",") {
		fields := strings.SplitN(part, ":", 3)
		if len(fields) != 3 {
			return nil, verrors.New(verrors.Unexpected, "malformed tag aggregate")
		}
		plaintext := fields[0] == "1"
		name, err := hex.DecodeString(fields[1])
		if err != nil {
			return nil, verrors.Wrap(verrors.Unexpected, "decode tag name hex", err)
		}
		value, err := hex.DecodeString(fields[2])
		if err != nil {
			return nil, verrors.Wrap(verrors.Unexpected, "decode tag value hex", err)
		}
		enc = append(enc, keys.EncEntryTag{Name: name, Value: value, Plaintext: plaintext})
	}
	return key.DecryptEntryTags(enc)
}

// toAbstract is a passthrough: every template in queries_postgres.go /
// queries_sqlite.go already uses the literal "$$" token, and fragments
// spliced in afterward already carry absolute placeholder numbers: tag
// filters in the dialect's own syntax, LIMIT clauses as "$N", which
// ReplaceArgPlaceholders renders in the dialect's syntax with the number
// unchanged when start=1. It exists
// purely to document that invariant at each call site.
func toAbstract(query string, _ int) string {
	return query
}
