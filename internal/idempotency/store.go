// Package idempotency makes retried write requests safe to repeat: the first
// execution's response is stored under a client-supplied key and replayed for
// every retry bearing the same key.
package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Record is one stored key. ResponseBody is nil while the claiming request
// is still executing.
type Record struct {
	Key          string
	ResponseBody []byte
	CreatedAt    time.Time
	LastUsedAt   time.Time
}

// Store persists idempotency keys in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs the store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Claim atomically inserts the key. The unique constraint is the execution
// gate: only the request that wins the insert may run the underlying
// operation. Returns false when the key already exists.
func (s *Store) Claim(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, errors.New("idempotency: key required")
	}
	tag, err := s.pool.Exec(ctx, `INSERT INTO idempotency_keys (key, created_at, last_used_at)
VALUES ($1,NOW(),NOW())
ON CONFLICT (key) DO NOTHING`, key)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Get returns the record for key, reporting whether it exists.
func (s *Store) Get(ctx context.Context, key string) (Record, bool, error) {
	var rec Record
	err := s.pool.QueryRow(ctx, `SELECT key, response_body, created_at, last_used_at FROM idempotency_keys WHERE key=$1`, key).
		Scan(&rec.Key, &rec.ResponseBody, &rec.CreatedAt, &rec.LastUsedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}
	return rec, true, nil
}

// StoreResponse attaches the canonical response to a claimed key.
func (s *Store) StoreResponse(ctx context.Context, key string, body []byte) error {
	_, err := s.pool.Exec(ctx, `UPDATE idempotency_keys SET response_body=$2, last_used_at=NOW() WHERE key=$1`, key, body)
	return err
}

// Touch refreshes last_used_at on a replay.
func (s *Store) Touch(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `UPDATE idempotency_keys SET last_used_at=NOW() WHERE key=$1`, key)
	return err
}

// Release removes a claimed key whose execution failed, so a retry can run
// the operation again.
func (s *Store) Release(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE key=$1`, key)
	return err
}

// Cleanup removes keys not used since the retention window.
func (s *Store) Cleanup(ctx context.Context, retention time.Duration) error {
	cutoff := time.Now().Add(-retention)
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE last_used_at < $1`, cutoff)
	return err
}
