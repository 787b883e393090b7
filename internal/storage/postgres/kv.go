package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/juju/errors"
)

// KV stores string values in the kv_store table, one row per key.
type KV struct {
	db     *DB
	prefix string
}

func NewKV(db *DB, prefix string) *KV { return &KV{db: db, prefix: prefix} }

func (s *KV) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.Pool.QueryRow(ctx, "SELECT value FROM kv_store WHERE key=$1", s.prefix+key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Annotatef(err, "select %q", key)
	}
	return v, true, nil
}

// Set upserts the value; the last writer wins.
func (s *KV) Set(ctx context.Context, key, value string) error {
	const sql = `INSERT INTO kv_store (key, value, updated_at) VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`
	if _, err := s.db.Pool.Exec(ctx, sql, s.prefix+key, value); err != nil {
		return errors.Annotatef(err, "upsert %q", key)
	}
	return nil
}

func (s *KV) Ping(ctx context.Context) error { return s.db.Ping(ctx) }
