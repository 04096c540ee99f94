package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// CustomerRepo owns all writes to the customers table.
type CustomerRepo struct {
	db DB
}

func NewCustomerRepo(db DB) *CustomerRepo {
	return &CustomerRepo{db: db}
}

const customerColumns = `wa_id, customer_name, age, age_recorded_at, is_blocked, is_favorite, created_at, updated_at`

func scanCustomer(row pgx.Row) (Customer, error) {
	var c Customer
	var name *string
	err := row.Scan(&c.WaID, &name, &c.Age, &c.AgeRecordedAt, &c.IsBlocked, &c.IsFavorite, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, ErrNotFound
	}
	if err != nil {
		return Customer{}, fmt.Errorf("store: scan customer: %w", err)
	}
	if name != nil {
		c.Name = *name
	}
	return c, nil
}

// Get loads one customer by wa_id.
func (r *CustomerRepo) Get(ctx context.Context, waID string) (Customer, error) {
	return scanCustomer(r.db.QueryRow(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE wa_id = $1`, waID))
}

// Upsert creates the customer if missing, updating the name when a non-empty
// one is supplied.
func (r *CustomerRepo) Upsert(ctx context.Context, waID, name string) (Customer, error) {
	name = strings.TrimSpace(name)
	return scanCustomer(r.db.QueryRow(ctx,
		`INSERT INTO customers (wa_id, customer_name)
		 VALUES ($1, NULLIF($2, ''))
		 ON CONFLICT (wa_id) DO UPDATE SET
			customer_name = COALESCE(NULLIF($2, ''), customers.customer_name),
			updated_at = now()
		 RETURNING `+customerColumns,
		waID, name))
}

// Rename sets the customer's display name.
func (r *CustomerRepo) Rename(ctx context.Context, waID, name string) (Customer, error) {
	return scanCustomer(r.db.QueryRow(ctx,
		`UPDATE customers SET customer_name = $2, updated_at = now()
		 WHERE wa_id = $1
		 RETURNING `+customerColumns,
		waID, strings.TrimSpace(name)))
}

// SetAge records the customer's age; nil clears it.
func (r *CustomerRepo) SetAge(ctx context.Context, waID string, age *int) (Customer, error) {
	var recordedAt *time.Time
	if age != nil {
		now := time.Now().UTC()
		recordedAt = &now
	}
	return scanCustomer(r.db.QueryRow(ctx,
		`UPDATE customers SET age = $2, age_recorded_at = $3, updated_at = now()
		 WHERE wa_id = $1
		 RETURNING `+customerColumns,
		waID, age, recordedAt))
}

// SetFlags updates the blocked/favorite flags.
func (r *CustomerRepo) SetFlags(ctx context.Context, waID string, blocked, favorite bool) (Customer, error) {
	return scanCustomer(r.db.QueryRow(ctx,
		`UPDATE customers SET is_blocked = $2, is_favorite = $3, updated_at = now()
		 WHERE wa_id = $1
		 RETURNING `+customerColumns,
		waID, blocked, favorite))
}

// MergeWaID rewrites oldWaID to newWaID across customers, conversation and
// reservations in a single transaction.
func (r *CustomerRepo) MergeWaID(ctx context.Context, oldWaID, newWaID string) error {
	return inTx(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE customers SET wa_id = $2, updated_at = now() WHERE wa_id = $1`,
			oldWaID, newWaID)
		if err != nil {
			return fmt.Errorf("store: merge customers: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		if _, err := tx.Exec(ctx,
			`UPDATE conversation SET wa_id = $2 WHERE wa_id = $1`, oldWaID, newWaID); err != nil {
			return fmt.Errorf("store: merge conversation: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`UPDATE reservations SET wa_id = $2, updated_at = now() WHERE wa_id = $1`, oldWaID, newWaID); err != nil {
			return fmt.Errorf("store: merge reservations: %w", err)
		}
		return nil
	})
}

// Search finds customers whose name or wa_id loosely matches q. Relies on
// the trigram indexes when present; ILIKE works without them.
func (r *CustomerRepo) Search(ctx context.Context, q string, limit int) ([]Customer, error) {
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + strings.ToLower(strings.TrimSpace(q)) + "%"
	rows, err := r.db.Query(ctx,
		`SELECT `+customerColumns+` FROM customers
		 WHERE lower(COALESCE(customer_name, '')) LIKE $1 OR lower(wa_id) LIKE $1
		 ORDER BY updated_at DESC
		 LIMIT $2`,
		pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("store: search customers: %w", err)
	}
	defer rows.Close()

	var out []Customer
	for rows.Next() {
		var c Customer
		var name *string
		if err := rows.Scan(&c.WaID, &name, &c.Age, &c.AgeRecordedAt, &c.IsBlocked, &c.IsFavorite, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: scan customer: %w", err)
		}
		if name != nil {
			c.Name = *name
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
