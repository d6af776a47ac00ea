package store

import (
	"context"
	"database/sql"
	"runtime"

	"ciphervault/internal/keys"
	"ciphervault/internal/offload"
	"ciphervault/internal/verrors"
)

// PageSize is the batch size Scan.Next returns, matching the original
// source's PAGE_SIZE constant.
const PageSize = 32

// Scan lazily decrypts and pages through a query's result set. It holds
// a pooled connection for its entire lifetime, so callers must Close it
// (directly or by draining Next to completion, which closes it
// automatically); a runtime.SetFinalizer is registered as a backstop
// against a caller that forgets, since Go has no linear-type borrow
// checker to forbid a leaked Scan statically.
type Scan struct {
	rows     *sql.Rows
	conn     *sql.Conn
	key      *keys.StoreKey
	category string
	pool     *offload.Pool
	closed   bool
}

func newScan(rows *sql.Rows, conn *sql.Conn, key *keys.StoreKey, category string, pool *offload.Pool) *Scan {
	s := &Scan{rows: rows, conn: conn, key: key, category: category, pool: pool}
	runtime.SetFinalizer(s, func(s *Scan) { _ = s.Close() })
	return s
}

// Next returns up to PageSize decrypted entries, or (nil, nil) once the
// result set is exhausted (the scan is closed automatically at that
// point).
func (s *Scan) Next(ctx context.Context) ([]Entry, error) {
	if s.closed {
		return nil, verrors.New(verrors.Unexpected, "scan is closed")
	}
	batch := make([]Entry, 0, PageSize)
	for len(batch) < PageSize {
		if !s.rows.Next() {
			if err := s.rows.Err(); err != nil {
				_ = s.Close()
				return nil, verrors.Wrap(verrors.Backend, "scan rows", err)
			}
			if len(batch) > 0 {
				// The following call finds no more rows, closes the scan
				// and returns (nil, nil).
				return batch, nil
			}
			_ = s.Close()
			return nil, nil
		}
		var id int64
		var encName, encValue []byte
		var tagsRaw sql.NullString
		if err := s.rows.Scan(&id, &encName, &encValue, &tagsRaw); err != nil {
			_ = s.Close()
			return nil, verrors.Wrap(verrors.Backend, "scan row", err)
		}
		name, err := offload.DoScoped(ctx, s.pool, func() (string, error) {
			return s.key.DecryptEntryName(encName)
		})
		if err != nil {
			_ = s.Close()
			return nil, verrors.Wrap(verrors.Encryption, "decrypt name", err)
		}
		value, err := offload.DoScoped(ctx, s.pool, func() ([]byte, error) {
			return s.key.DecryptEntryValue(encValue)
		})
		if err != nil {
			_ = s.Close()
			return nil, verrors.Wrap(verrors.Encryption, "decrypt value", err)
		}
		tags, err := offload.DoScoped(ctx, s.pool, func() ([]EntryTag, error) {
			return decodeTagsWith(s.key, tagsRaw)
		})
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		batch = append(batch, Entry{Category: s.category, Name: name, Value: value, Tags: tags})
		select {
		case <-ctx.Done():
			_ = s.Close()
			return nil, ctx.Err()
		default:
		}
	}
	return batch, nil
}

// Close releases the underlying rows and pooled connection. Safe to call
// more than once and safe to call after Next has already exhausted the
// result set.
func (s *Scan) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	runtime.SetFinalizer(s, nil)
	if s.rows != nil {
		_ = s.rows.Close()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
