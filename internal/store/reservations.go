package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ReservationRepo owns all writes to the reservations table. Capacity checks
// run inside the same transaction as the insert/update, with the candidate
// slot's active rows locked first.
type ReservationRepo struct {
	db DB
}

func NewReservationRepo(db DB) *ReservationRepo {
	return &ReservationRepo{db: db}
}

const reservationColumns = `id, wa_id, date, time_slot, type, status, cancelled_at, created_at, updated_at`

func scanReservation(row pgx.Row) (Reservation, error) {
	var r Reservation
	err := row.Scan(&r.ID, &r.WaID, &r.Date, &r.TimeSlot, &r.Type, &r.Status, &r.CancelledAt, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Reservation{}, ErrNotFound
	}
	if err != nil {
		return Reservation{}, fmt.Errorf("store: scan reservation: %w", err)
	}
	return r, nil
}

// lockSlot locks the active rows of (date, slot) and returns their count.
// Concurrent writers to the same slot serialize here; at most one of two
// racing inserts sees the capacity check pass.
func lockSlot(ctx context.Context, tx pgx.Tx, date time.Time, slot string, excludeID int64) (int, error) {
	rows, err := tx.Query(ctx,
		`SELECT id FROM reservations
		 WHERE date = $1 AND time_slot = $2 AND status = 'active' AND id <> $3
		 FOR UPDATE`,
		date, slot, excludeID)
	if err != nil {
		return 0, fmt.Errorf("store: lock slot: %w", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		count++
	}
	return count, rows.Err()
}

// CreateWithCapacity inserts an active reservation unless the slot already
// holds capacity active rows, in which case ErrSlotFull is returned.
func (r *ReservationRepo) CreateWithCapacity(ctx context.Context, waID string, date time.Time, slot string, typ int, capacity int) (Reservation, error) {
	var created Reservation
	err := inTx(ctx, r.db, func(tx pgx.Tx) error {
		count, err := lockSlot(ctx, tx, date, slot, 0)
		if err != nil {
			return err
		}
		if count >= capacity {
			return ErrSlotFull
		}
		created, err = scanReservation(tx.QueryRow(ctx,
			`INSERT INTO reservations (wa_id, date, time_slot, type, status)
			 VALUES ($1, $2, $3, $4, 'active')
			 RETURNING `+reservationColumns,
			waID, date, slot, typ))
		return err
	})
	return created, err
}

// MoveWithCapacity updates the slot/type of an existing active reservation,
// re-checking capacity at the target while excluding the row being moved.
func (r *ReservationRepo) MoveWithCapacity(ctx context.Context, id int64, date time.Time, slot string, typ int, capacity int) (Reservation, error) {
	var moved Reservation
	err := inTx(ctx, r.db, func(tx pgx.Tx) error {
		count, err := lockSlot(ctx, tx, date, slot, id)
		if err != nil {
			return err
		}
		if count >= capacity {
			return ErrSlotFull
		}
		moved, err = scanReservation(tx.QueryRow(ctx,
			`UPDATE reservations
			 SET date = $2, time_slot = $3, type = $4, updated_at = now()
			 WHERE id = $1 AND status = 'active'
			 RETURNING `+reservationColumns,
			id, date, slot, typ))
		return err
	})
	return moved, err
}

// Reinstate flips a cancelled reservation back to active, subject to the
// capacity of its slot at reinstatement time.
func (r *ReservationRepo) Reinstate(ctx context.Context, id int64, capacity int) (Reservation, error) {
	var restored Reservation
	err := inTx(ctx, r.db, func(tx pgx.Tx) error {
		existing, err := scanReservation(tx.QueryRow(ctx,
			`SELECT `+reservationColumns+` FROM reservations WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		if existing.Status != StatusCancelled {
			return ErrDuplicate
		}
		count, err := lockSlot(ctx, tx, existing.Date, existing.TimeSlot, id)
		if err != nil {
			return err
		}
		if count >= capacity {
			return ErrSlotFull
		}
		restored, err = scanReservation(tx.QueryRow(ctx,
			`UPDATE reservations
			 SET status = 'active', cancelled_at = NULL, updated_at = now()
			 WHERE id = $1
			 RETURNING `+reservationColumns,
			id))
		return err
	})
	return restored, err
}

// Cancel soft-deletes an active reservation.
func (r *ReservationRepo) Cancel(ctx context.Context, id int64) (Reservation, error) {
	return scanReservation(r.db.QueryRow(ctx,
		`UPDATE reservations
		 SET status = 'cancelled', cancelled_at = now(), updated_at = now()
		 WHERE id = $1 AND status = 'active'
		 RETURNING `+reservationColumns,
		id))
}

// GetByID loads a reservation regardless of status.
func (r *ReservationRepo) GetByID(ctx context.Context, id int64) (Reservation, error) {
	return scanReservation(r.db.QueryRow(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE id = $1`, id))
}

// ActiveCountsForDate returns slot -> active reservation count on a date.
func (r *ReservationRepo) ActiveCountsForDate(ctx context.Context, date time.Time) (map[string]int, error) {
	rows, err := r.db.Query(ctx,
		`SELECT time_slot, count(*) FROM reservations
		 WHERE date = $1 AND status = 'active'
		 GROUP BY time_slot`,
		date)
	if err != nil {
		return nil, fmt.Errorf("store: active counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var slot string
		var n int
		if err := rows.Scan(&slot, &n); err != nil {
			return nil, fmt.Errorf("store: scan slot count: %w", err)
		}
		counts[slot] = n
	}
	return counts, rows.Err()
}

// ActiveFuture lists a customer's active reservations strictly after the
// given local date/time, soonest first.
func (r *ReservationRepo) ActiveFuture(ctx context.Context, waID string, nowDate time.Time, nowSlot string) ([]Reservation, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+reservationColumns+` FROM reservations
		 WHERE wa_id = $1 AND status = 'active'
		   AND (date > $2 OR (date = $2 AND time_slot > $3))
		 ORDER BY date, time_slot, id`,
		waID, nowDate, nowSlot)
	if err != nil {
		return nil, fmt.Errorf("store: active future: %w", err)
	}
	return collectReservations(rows)
}

// FindCancelledExact returns a cancelled row matching (wa_id, date, slot)
// exactly, used to reinstate instead of inserting a duplicate.
func (r *ReservationRepo) FindCancelledExact(ctx context.Context, waID string, date time.Time, slot string) (Reservation, error) {
	return scanReservation(r.db.QueryRow(ctx,
		`SELECT `+reservationColumns+` FROM reservations
		 WHERE wa_id = $1 AND date = $2 AND time_slot = $3 AND status = 'cancelled'
		 ORDER BY updated_at DESC
		 LIMIT 1`,
		waID, date, slot))
}

// ListForDate returns reservations on a date, optionally including cancelled.
func (r *ReservationRepo) ListForDate(ctx context.Context, date time.Time, includeCancelled bool) ([]Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE date = $1`
	if !includeCancelled {
		query += ` AND status = 'active'`
	}
	query += ` ORDER BY time_slot, id`

	rows, err := r.db.Query(ctx, query, date)
	if err != nil {
		return nil, fmt.Errorf("store: list for date: %w", err)
	}
	return collectReservations(rows)
}

// ListForWaID returns every reservation a customer has, newest first.
func (r *ReservationRepo) ListForWaID(ctx context.Context, waID string) ([]Reservation, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+reservationColumns+` FROM reservations
		 WHERE wa_id = $1
		 ORDER BY date DESC, time_slot DESC, id DESC`,
		waID)
	if err != nil {
		return nil, fmt.Errorf("store: list for wa_id: %w", err)
	}
	return collectReservations(rows)
}

// ListRange returns active reservations with date in [from, to], ordered.
func (r *ReservationRepo) ListRange(ctx context.Context, from, to time.Time) ([]Reservation, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+reservationColumns+` FROM reservations
		 WHERE status = 'active' AND date BETWEEN $1 AND $2
		 ORDER BY date, time_slot, id`,
		from, to)
	if err != nil {
		return nil, fmt.Errorf("store: list range: %w", err)
	}
	return collectReservations(rows)
}

// CountByStatus returns status -> row count for dashboard stats.
func (r *ReservationRepo) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.Query(ctx, `SELECT status, count(*) FROM reservations GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("store: count by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("store: scan status count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func collectReservations(rows pgx.Rows) ([]Reservation, error) {
	defer rows.Close()
	var out []Reservation
	for rows.Next() {
		var r Reservation
		if err := rows.Scan(&r.ID, &r.WaID, &r.Date, &r.TimeSlot, &r.Type, &r.Status, &r.CancelledAt, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: scan reservation: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
