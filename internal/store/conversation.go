package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ConversationRepo owns appends to the immutable conversation log.
type ConversationRepo struct {
	db DB
}

func NewConversationRepo(db DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

// Append writes one turn. Duplicate suppression is application policy, not a
// uniqueness constraint: an identical (wa_id, role, message, date, time) row
// is skipped silently.
func (r *ConversationRepo) Append(ctx context.Context, msg ConversationMessage) error {
	var exists int
	err := r.db.QueryRow(ctx,
		`SELECT 1 FROM conversation
		 WHERE wa_id = $1 AND role = $2 AND message = $3 AND date = $4 AND time = $5
		 LIMIT 1`,
		msg.WaID, msg.Role, msg.Message, msg.Date, msg.Time).Scan(&exists)
	if err == nil {
		return nil
	}
	if err != pgx.ErrNoRows {
		return fmt.Errorf("store: conversation dedup check: %w", err)
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO conversation (wa_id, role, message, date, time)
		 VALUES ($1, $2, $3, $4, $5)`,
		msg.WaID, msg.Role, msg.Message, msg.Date, msg.Time)
	if err != nil {
		return fmt.Errorf("store: append conversation: %w", err)
	}
	return nil
}

// Retrieve returns every turn for a customer ordered by (date, time, id).
func (r *ConversationRepo) Retrieve(ctx context.Context, waID string) ([]ConversationMessage, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, wa_id, role, message, date, time FROM conversation
		 WHERE wa_id = $1
		 ORDER BY date, time, id`,
		waID)
	if err != nil {
		return nil, fmt.Errorf("store: retrieve conversation: %w", err)
	}
	defer rows.Close()

	var out []ConversationMessage
	for rows.Next() {
		var m ConversationMessage
		if err := rows.Scan(&m.ID, &m.WaID, &m.Role, &m.Message, &m.Date, &m.Time); err != nil {
			return nil, fmt.Errorf("store: scan conversation row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// RetrieveRecent returns the latest limit turns across all customers,
// newest first, for the operator dashboard.
func (r *ConversationRepo) RetrieveRecent(ctx context.Context, limit int) ([]ConversationMessage, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.db.Query(ctx,
		`SELECT id, wa_id, role, message, date, time FROM conversation
		 ORDER BY date DESC, time DESC, id DESC
		 LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("store: retrieve recent conversation: %w", err)
	}
	defer rows.Close()

	var out []ConversationMessage
	for rows.Next() {
		var m ConversationMessage
		if err := rows.Scan(&m.ID, &m.WaID, &m.Role, &m.Message, &m.Date, &m.Time); err != nil {
			return nil, fmt.Errorf("store: scan conversation row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// WordCounts aggregates word frequencies over user/assistant/secretary turns
// since the given date. Tool turns are excluded from analytics.
func (r *ConversationRepo) WordCounts(ctx context.Context, since time.Time, limit int) (map[string]int, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(ctx,
		`SELECT w, count(*) FROM (
			SELECT lower(regexp_split_to_table(message, '\s+')) AS w
			FROM conversation
			WHERE role <> 'tool' AND date >= $1
		 ) words
		 WHERE length(w) > 2
		 GROUP BY w
		 ORDER BY count(*) DESC
		 LIMIT $2`,
		since, limit)
	if err != nil {
		return nil, fmt.Errorf("store: word counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var w string
		var n int
		if err := rows.Scan(&w, &n); err != nil {
			return nil, fmt.Errorf("store: scan word count: %w", err)
		}
		counts[w] = n
	}
	return counts, rows.Err()
}
