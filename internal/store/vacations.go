package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// VacationRepo owns the vacation_periods table.
type VacationRepo struct {
	db DB
}

func NewVacationRepo(db DB) *VacationRepo {
	return &VacationRepo{db: db}
}

// List returns every vacation period ordered by start date.
func (r *VacationRepo) List(ctx context.Context) ([]VacationPeriod, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, start_date, end_date, title FROM vacation_periods ORDER BY start_date, id`)
	if err != nil {
		return nil, fmt.Errorf("store: list vacations: %w", err)
	}
	defer rows.Close()

	var out []VacationPeriod
	for rows.Next() {
		var v VacationPeriod
		if err := rows.Scan(&v.ID, &v.StartDate, &v.EndDate, &v.Title); err != nil {
			return nil, fmt.Errorf("store: scan vacation: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Create inserts a vacation period. start must not exceed end.
func (r *VacationRepo) Create(ctx context.Context, start, end time.Time, title string) (VacationPeriod, error) {
	if end.Before(start) {
		return VacationPeriod{}, errors.New("store: vacation end before start")
	}
	var v VacationPeriod
	err := r.db.QueryRow(ctx,
		`INSERT INTO vacation_periods (start_date, end_date, title)
		 VALUES ($1, $2, $3)
		 RETURNING id, start_date, end_date, title`,
		start, end, title).Scan(&v.ID, &v.StartDate, &v.EndDate, &v.Title)
	if err != nil {
		return VacationPeriod{}, fmt.Errorf("store: create vacation: %w", err)
	}
	return v, nil
}

// Update replaces a vacation period's range and title.
func (r *VacationRepo) Update(ctx context.Context, id int64, start, end time.Time, title string) (VacationPeriod, error) {
	if end.Before(start) {
		return VacationPeriod{}, errors.New("store: vacation end before start")
	}
	var v VacationPeriod
	err := r.db.QueryRow(ctx,
		`UPDATE vacation_periods SET start_date = $2, end_date = $3, title = $4
		 WHERE id = $1
		 RETURNING id, start_date, end_date, title`,
		id, start, end, title).Scan(&v.ID, &v.StartDate, &v.EndDate, &v.Title)
	if errors.Is(err, pgx.ErrNoRows) {
		return VacationPeriod{}, ErrNotFound
	}
	if err != nil {
		return VacationPeriod{}, fmt.Errorf("store: update vacation: %w", err)
	}
	return v, nil
}

// Delete removes a vacation period.
func (r *VacationRepo) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM vacation_periods WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("store: delete vacation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
