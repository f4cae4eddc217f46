package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists outbox events in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Enqueue writes a PENDING event through the caller's transaction. It never
// opens its own transaction: the event must commit or roll back with the
// business writes it describes.
func (s *Store) Enqueue(ctx context.Context, tx pgx.Tx, eventType string, payload any) error {
	if tx == nil {
		return errors.New("outbox: enqueue requires an open transaction")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("outbox: marshal payload: %w", err)
	}
	_, err = tx.Exec(ctx, `INSERT INTO outbox_events (id, type, payload, status, attempt_count, next_attempt_at, created_at, updated_at)
VALUES ($1,$2,$3,$4,0,NOW(),NOW(),NOW())`, uuid.New(), eventType, data, string(StatusPending))
	return err
}

// ListPending returns up to limit deliverable events, oldest first. Events
// backing off are excluded until their next attempt time has passed.
func (s *Store) ListPending(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx, `SELECT id, type, payload, status, attempt_count, next_attempt_at, last_error, created_at, updated_at
FROM outbox_events
WHERE status=$1 AND next_attempt_at <= NOW()
ORDER BY created_at ASC
LIMIT $2`, string(StatusPending), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	events := []Event{}
	for rows.Next() {
		var evt Event
		if err := rows.Scan(&evt.ID, &evt.Type, &evt.Payload, &evt.Status, &evt.AttemptCount, &evt.NextAttemptAt, &evt.LastError, &evt.CreatedAt, &evt.UpdatedAt); err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	return events, rows.Err()
}

// MarkProcessed advances a delivered event to its terminal state.
func (s *Store) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `UPDATE outbox_events SET status=$2, updated_at=NOW() WHERE id=$1`, id, string(StatusProcessed))
	return err
}

// Reschedule records a failed attempt and keeps the event PENDING until
// nextAttempt.
func (s *Store) Reschedule(ctx context.Context, id uuid.UUID, attempt int, nextAttempt time.Time, cause string) error {
	_, err := s.pool.Exec(ctx, `UPDATE outbox_events SET attempt_count=$2, next_attempt_at=$3, last_error=$4, updated_at=NOW() WHERE id=$1`, id, attempt, nextAttempt, cause)
	return err
}

// MarkFailed parks an event that exhausted its attempts.
func (s *Store) MarkFailed(ctx context.Context, id uuid.UUID, attempt int, cause string) error {
	_, err := s.pool.Exec(ctx, `UPDATE outbox_events SET status=$2, attempt_count=$3, last_error=$4, updated_at=NOW() WHERE id=$1`, id, string(StatusFailed), attempt, cause)
	return err
}
