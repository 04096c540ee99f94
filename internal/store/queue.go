package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// QueueRepo owns the inbound_queue table: a durable FIFO with claim/lease
// semantics over SKIP LOCKED row locks.
type QueueRepo struct {
	db DB
}

func NewQueueRepo(db DB) *QueueRepo {
	return &QueueRepo{db: db}
}

const queueColumns = `id, COALESCE(message_id, ''), COALESCE(wa_id, ''), payload, status, attempts, locked_at, created_at`

func scanQueueItem(row pgx.Row) (QueueItem, error) {
	var item QueueItem
	err := row.Scan(&item.ID, &item.MessageID, &item.WaID, &item.Payload, &item.Status, &item.Attempts, &item.LockedAt, &item.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return QueueItem{}, ErrNotFound
	}
	if err != nil {
		return QueueItem{}, fmt.Errorf("store: scan queue item: %w", err)
	}
	return item, nil
}

// Enqueue appends a payload. When messageID is already present the existing
// row id is returned with created=false, so duplicate webhook deliveries
// collapse onto one item.
func (r *QueueRepo) Enqueue(ctx context.Context, payload []byte, messageID, waID string) (created bool, id int64, err error) {
	if messageID != "" {
		err = r.db.QueryRow(ctx,
			`SELECT id FROM inbound_queue WHERE message_id = $1`, messageID).Scan(&id)
		if err == nil {
			return false, id, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return false, 0, fmt.Errorf("store: enqueue dedup check: %w", err)
		}
	}

	err = r.db.QueryRow(ctx,
		`INSERT INTO inbound_queue (message_id, wa_id, payload, status)
		 VALUES (NULLIF($1, ''), NULLIF($2, ''), $3, 'pending')
		 ON CONFLICT (message_id) WHERE message_id IS NOT NULL DO NOTHING
		 RETURNING id`,
		messageID, waID, payload).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		// Lost a race with a concurrent duplicate; surface the winner's id.
		err = r.db.QueryRow(ctx,
			`SELECT id FROM inbound_queue WHERE message_id = $1`, messageID).Scan(&id)
		if err != nil {
			return false, 0, fmt.Errorf("store: enqueue race lookup: %w", err)
		}
		return false, id, nil
	}
	if err != nil {
		return false, 0, fmt.Errorf("store: enqueue: %w", err)
	}
	return true, id, nil
}

// ClaimOne atomically claims the oldest workable item: pending rows, plus
// processing rows whose lease expired staleAfter ago. The claim bumps
// attempts and sets locked_at; SKIP LOCKED keeps concurrent workers from
// claiming the same row.
func (r *QueueRepo) ClaimOne(ctx context.Context, staleAfter time.Duration) (QueueItem, error) {
	var item QueueItem
	err := inTx(ctx, r.db, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`SELECT id FROM inbound_queue
			 WHERE status = 'pending'
			    OR (status = 'processing' AND locked_at < now() - $1::interval)
			 ORDER BY created_at, id
			 LIMIT 1
			 FOR UPDATE SKIP LOCKED`,
			staleAfter.String())
		var id int64
		if err := row.Scan(&id); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("store: claim select: %w", err)
		}

		var err error
		item, err = scanQueueItem(tx.QueryRow(ctx,
			`UPDATE inbound_queue
			 SET status = 'processing', attempts = attempts + 1, locked_at = now()
			 WHERE id = $1
			 RETURNING `+queueColumns,
			id))
		return err
	})
	return item, err
}

// MarkDone finalizes a processed item.
func (r *QueueRepo) MarkDone(ctx context.Context, id int64) error {
	return r.setStatus(ctx, id, QueueDone)
}

// MarkFailed parks an item permanently after attempts are exhausted.
func (r *QueueRepo) MarkFailed(ctx context.Context, id int64) error {
	return r.setStatus(ctx, id, QueueFailed)
}

// Requeue returns a claimed item to pending for another attempt.
func (r *QueueRepo) Requeue(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx,
		`UPDATE inbound_queue SET status = 'pending', locked_at = NULL WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("store: requeue: %w", err)
	}
	return nil
}

func (r *QueueRepo) setStatus(ctx context.Context, id int64, status string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE inbound_queue SET status = $2, locked_at = NULL WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("store: mark %s: %w", status, err)
	}
	return nil
}

// Depth returns the number of pending items and the age in seconds of the
// oldest one, for the queue gauges.
func (r *QueueRepo) Depth(ctx context.Context) (length int, oldestAge float64, err error) {
	err = r.db.QueryRow(ctx,
		`SELECT count(*),
		        COALESCE(EXTRACT(EPOCH FROM now() - min(created_at)), 0)
		 FROM inbound_queue WHERE status = 'pending'`).Scan(&length, &oldestAge)
	if err != nil {
		return 0, 0, fmt.Errorf("store: queue depth: %w", err)
	}
	return length, oldestAge, nil
}
