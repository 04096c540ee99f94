package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var reservationRows = []string{
	"id", "wa_id", "date", "time_slot", "type", "status", "cancelled_at", "created_at", "updated_at",
}

func TestCreateWithCapacityInserts(t *testing.T) {
	mock := newMockPool(t)
	repo := NewReservationRepo(mock)
	date := time.Date(2025, 1, 8, 0, 0, 0, 0, time.UTC)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM reservations`).
		WithArgs(date, "11:00", int64(0)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectQuery(`INSERT INTO reservations`).
		WithArgs("966500000001", date, "11:00", TypeCheckUp).
		WillReturnRows(pgxmock.NewRows(reservationRows).
			AddRow(int64(2), "966500000001", date, "11:00", TypeCheckUp, StatusActive, nil, now, now))
	mock.ExpectCommit()

	created, err := repo.CreateWithCapacity(context.Background(), "966500000001", date, "11:00", TypeCheckUp, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(2), created.ID)
	assert.Equal(t, StatusActive, created.Status)
}

func TestCreateWithCapacityRejectsFullSlot(t *testing.T) {
	mock := newMockPool(t)
	repo := NewReservationRepo(mock)
	date := time.Date(2025, 1, 8, 0, 0, 0, 0, time.UTC)

	full := pgxmock.NewRows([]string{"id"})
	for i := 1; i <= 5; i++ {
		full.AddRow(int64(i))
	}
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM reservations`).
		WithArgs(date, "11:00", int64(0)).
		WillReturnRows(full)
	mock.ExpectRollback()

	_, err := repo.CreateWithCapacity(context.Background(), "966500000001", date, "11:00", TypeCheckUp, 5)
	assert.ErrorIs(t, err, ErrSlotFull)
}

func TestMoveWithCapacityExcludesOwnRow(t *testing.T) {
	mock := newMockPool(t)
	repo := NewReservationRepo(mock)
	date := time.Date(2025, 1, 9, 0, 0, 0, 0, time.UTC)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM reservations`).
		WithArgs(date, "13:00", int64(4)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`UPDATE reservations`).
		WithArgs(int64(4), date, "13:00", TypeFollowUp).
		WillReturnRows(pgxmock.NewRows(reservationRows).
			AddRow(int64(4), "966500000001", date, "13:00", TypeFollowUp, StatusActive, nil, now, now))
	mock.ExpectCommit()

	moved, err := repo.MoveWithCapacity(context.Background(), 4, date, "13:00", TypeFollowUp, 5)
	require.NoError(t, err)
	assert.Equal(t, "13:00", moved.TimeSlot)
	assert.Equal(t, TypeFollowUp, moved.Type)
}

func TestCancelMissesInactiveRow(t *testing.T) {
	mock := newMockPool(t)
	repo := NewReservationRepo(mock)

	mock.ExpectQuery(`UPDATE reservations`).
		WithArgs(int64(9)).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.Cancel(context.Background(), 9)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReinstateRequiresCancelledRow(t *testing.T) {
	mock := newMockPool(t)
	repo := NewReservationRepo(mock)
	date := time.Date(2025, 1, 8, 0, 0, 0, 0, time.UTC)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM reservations`).
		WithArgs(int64(6)).
		WillReturnRows(pgxmock.NewRows(reservationRows).
			AddRow(int64(6), "966500000001", date, "11:00", TypeCheckUp, StatusActive, nil, now, now))
	mock.ExpectRollback()

	_, err := repo.Reinstate(context.Background(), 6, 5)
	assert.ErrorIs(t, err, ErrDuplicate)
}
