/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vasayxtx/go-glob"
	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver
)

const sqlStoreSchema = `
CREATE TABLE IF NOT EXISTS ratelimit_keys (
	key TEXT NOT NULL PRIMARY KEY,
	expire_at INTEGER
);
CREATE TABLE IF NOT EXISTS ratelimit_markers (
	key TEXT NOT NULL,
	member TEXT NOT NULL,
	score INTEGER NOT NULL,
	PRIMARY KEY (key, member)
);
CREATE INDEX IF NOT EXISTS ratelimit_markers_key_score ON ratelimit_markers (key, score);
`

// SQLStore is a Store backed by a SQLite database.
// Expired keys are removed lazily by the operations touching them.
type SQLStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ Store = (*SQLStore)(nil)

// SQLStoreOpts represents options for SQLStore.
type SQLStoreOpts struct {
	// Now returns the current time used for key expiration. time.Now is used if nil.
	Now func() time.Time
}

// NewSQLStore opens (creating if needed) the SQLite database at the path and prepares the schema.
func NewSQLStore(ctx context.Context, path string, opts SQLStoreOpts) (*SQLStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite database path must not be empty")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open rate limit db: %w", err)
	}
	// SQLite allows a single writer, so all access is serialized through one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err = db.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("configure rate limit db: %w", err)
	}
	if _, err = db.ExecContext(ctx, sqlStoreSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate rate limit db: %w", err)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &SQLStore{db: db, now: opts.Now}, nil
}

func (s *SQLStore) nowMs() int64 {
	return s.now().UnixMilli()
}

// wrapErr classifies a database error. Scan failures mean malformed data, everything else is unavailability.
func (s *SQLStore) wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return storeErr
	}
	return newStoreError(op, ErrStoreUnavailable, err)
}

type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// dropIfExpired removes the key and its markers if the key has expired.
func (s *SQLStore) dropIfExpired(ctx context.Context, exec sqlExecer, key string) error {
	const expiredCond = `SELECT 1 FROM ratelimit_keys WHERE key = ? AND expire_at IS NOT NULL AND expire_at <= ?`
	now := s.nowMs()
	if _, err := exec.ExecContext(ctx,
		`DELETE FROM ratelimit_markers WHERE key = ? AND EXISTS (`+expiredCond+`)`, key, key, now); err != nil {
		return err
	}
	_, err := exec.ExecContext(ctx,
		`DELETE FROM ratelimit_keys WHERE key = ? AND expire_at IS NOT NULL AND expire_at <= ?`, key, now)
	return err
}

func (s *SQLStore) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.wrapErr(op, err)
	}
	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return s.wrapErr(op, err)
	}
	return s.wrapErr(op, tx.Commit())
}

// Add inserts the marker into the set.
func (s *SQLStore) Add(ctx context.Context, key string, marker Marker) error {
	return s.inTx(ctx, opAdd, func(tx *sql.Tx) error {
		if err := s.dropIfExpired(ctx, tx, key); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ratelimit_keys (key, expire_at) VALUES (?, NULL) ON CONFLICT (key) DO NOTHING`, key); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO ratelimit_markers (key, member, score) VALUES (?, ?, ?)
			 ON CONFLICT (key, member) DO UPDATE SET score = excluded.score`,
			key, marker.Member, marker.Score)
		return err
	})
}

// RangeByScore returns markers with min <= score <= max ordered by score.
func (s *SQLStore) RangeByScore(ctx context.Context, key string, min, max int64) ([]Marker, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT m.member, m.score FROM ratelimit_markers m
		 JOIN ratelimit_keys k ON k.key = m.key
		 WHERE m.key = ? AND m.score >= ? AND m.score <= ? AND (k.expire_at IS NULL OR k.expire_at > ?)
		 ORDER BY m.score, m.member`,
		key, min, max, s.nowMs())
	if err != nil {
		return nil, s.wrapErr(opRange, err)
	}
	defer func() { _ = rows.Close() }()

	var markers []Marker
	for rows.Next() {
		var m Marker
		if err = rows.Scan(&m.Member, &m.Score); err != nil {
			return nil, newStoreError(opRange, ErrStoreProtocol, err)
		}
		markers = append(markers, m)
	}
	if err = rows.Err(); err != nil {
		return nil, s.wrapErr(opRange, err)
	}
	return markers, nil
}

// RemoveRangeByScore removes markers with min <= score <= max. An emptied set is removed.
func (s *SQLStore) RemoveRangeByScore(ctx context.Context, key string, min, max int64) (int64, error) {
	var removed int64
	err := s.inTx(ctx, opPrune, func(tx *sql.Tx) error {
		if err := s.dropIfExpired(ctx, tx, key); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`DELETE FROM ratelimit_markers WHERE key = ? AND score >= ? AND score <= ?`, key, min, max)
		if err != nil {
			return err
		}
		if removed, err = res.RowsAffected(); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`DELETE FROM ratelimit_keys WHERE key = ? AND NOT EXISTS (SELECT 1 FROM ratelimit_markers WHERE key = ?)`,
			key, key)
		return err
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// Expire sets the time to live of an existing key.
func (s *SQLStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	now := s.nowMs()
	_, err := s.db.ExecContext(ctx,
		`UPDATE ratelimit_keys SET expire_at = ? WHERE key = ? AND (expire_at IS NULL OR expire_at > ?)`,
		now+ttl.Milliseconds(), key, now)
	return s.wrapErr(opExpire, err)
}

// Delete removes the key.
func (s *SQLStore) Delete(ctx context.Context, key string) error {
	return s.inTx(ctx, opDelete, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM ratelimit_markers WHERE key = ?`, key); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM ratelimit_keys WHERE key = ?`, key)
		return err
	})
}

// Keys returns live keys matching the glob pattern in lexicographical order.
// Expired keys found on the way are removed.
func (s *SQLStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	err := s.inTx(ctx, opKeys, func(tx *sql.Tx) error {
		now := s.nowMs()
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM ratelimit_markers WHERE key IN
			 (SELECT key FROM ratelimit_keys WHERE expire_at IS NOT NULL AND expire_at <= ?)`, now); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM ratelimit_keys WHERE expire_at IS NOT NULL AND expire_at <= ?`, now); err != nil {
			return err
		}

		rows, err := tx.QueryContext(ctx, `SELECT key FROM ratelimit_keys ORDER BY key`)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()

		match := glob.Compile(pattern)
		for rows.Next() {
			var key string
			if err = rows.Scan(&key); err != nil {
				return newStoreError(opKeys, ErrStoreProtocol, err)
			}
			if match(key) {
				keys = append(keys, key)
			}
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
