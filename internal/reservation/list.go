package reservation

import (
	"context"
	"errors"
	"fmt"

	"github.com/dahshury/clinic-whatsapp-bot/internal/calendar"
	"github.com/dahshury/clinic-whatsapp-bot/internal/i18n"
	"github.com/dahshury/clinic-whatsapp-bot/internal/store"
)

// CustomerReservations lists a customer's reservations, newest first in the
// data payload. Cancelled rows are included only on request.
func (e *Engine) CustomerReservations(ctx context.Context, waID string, includeCancelled, arabic bool) (Result, error) {
	if !ValidWaID(waID) {
		return e.fail("", "invalid_phone", "invalid_phone", arabic), nil
	}
	rows, err := e.reservations.ListForWaID(ctx, waID)
	if err != nil {
		return Result{}, fmt.Errorf("reservation: list for %s: %w", waID, err)
	}
	out := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		if !includeCancelled && r.Status != store.StatusActive {
			continue
		}
		out = append(out, reservationData(r))
	}
	return ok(map[string]any{"reservations": out}, ""), nil
}

// DateReservations lists the rows on one civil date for operator views.
func (e *Engine) DateReservations(ctx context.Context, dateStr string, hijri, includeCancelled, arabic bool) (Result, error) {
	date, err := calendar.ParseDate(dateStr, hijri, e.schedule.Location)
	if err != nil {
		return e.fail("", "invalid_date", "invalid_date", arabic, dateStr), nil
	}
	rows, err := e.reservations.ListForDate(ctx, date, includeCancelled)
	if err != nil {
		return Result{}, fmt.Errorf("reservation: list for date: %w", err)
	}
	out := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		out = append(out, reservationData(r))
	}
	return ok(map[string]any{"reservations": out}, ""), nil
}

// MoveDateReservations relocates every active reservation from one date to
// another, keeping each row's slot when it has room and falling back to the
// nearest free slot otherwise. Rows that fit nowhere are reported as skipped.
func (e *Engine) MoveDateReservations(ctx context.Context, fromStr, toStr string, hijri, arabic bool, persona Persona) (Result, error) {
	from, err := calendar.ParseDate(fromStr, hijri, e.schedule.Location)
	if err != nil {
		return e.fail("modify", "invalid_date", "invalid_date", arabic, fromStr), nil
	}
	to, err := calendar.ParseDate(toStr, hijri, e.schedule.Location)
	if err != nil {
		return e.fail("modify", "invalid_date", "invalid_date", arabic, toStr), nil
	}
	if to.Before(e.today()) {
		return e.fail("modify", "past_date", "past_date", arabic), nil
	}
	if len(e.schedule.SlotsFor(to)) == 0 {
		return e.fail("modify", "outside_working_hours", "outside_working_hours", arabic), nil
	}
	if v, covered := calendar.VacationCovering(e.loadVacations(ctx), to); covered {
		return e.fail("modify", "vacation", "vacation_closed", arabic,
			v.Start.Format("2006-01-02"), v.End.Format("2006-01-02")), nil
	}

	rows, err := e.reservations.ListForDate(ctx, from, false)
	if err != nil {
		return Result{}, fmt.Errorf("reservation: list for date: %w", err)
	}

	capacity := e.capacityFor(persona, 0)
	var moved []map[string]any
	var skipped []int64
	for _, r := range rows {
		slot := r.TimeSlot
		if !e.schedule.IsWorkingSlot(to, slot) {
			slot = ""
		}
		var res store.Reservation
		if slot != "" {
			res, err = e.reservations.MoveWithCapacity(ctx, r.ID, to, slot, r.Type, capacity)
		} else {
			err = store.ErrSlotFull
		}
		if errors.Is(err, store.ErrSlotFull) {
			near, nerr := e.nearestFreeSlot(ctx, to, r.TimeSlot, persona, 0)
			if nerr != nil {
				return Result{}, nerr
			}
			if near == "" {
				skipped = append(skipped, r.ID)
				continue
			}
			res, err = e.reservations.MoveWithCapacity(ctx, r.ID, to, near, r.Type, capacity)
			if errors.Is(err, store.ErrSlotFull) {
				skipped = append(skipped, r.ID)
				continue
			}
		}
		if err != nil {
			return Result{}, fmt.Errorf("reservation: move %d: %w", r.ID, err)
		}
		e.broadcast("updated", res)
		moved = append(moved, reservationData(res))
	}

	data := map[string]any{
		"moved":       moved,
		"skipped_ids": skipped,
		"from":        from.Format("2006-01-02"),
		"to":          to.Format("2006-01-02"),
	}
	if len(moved) == 0 && len(skipped) > 0 {
		return Result{Success: false, Data: data, Message: i18n.Get("slot_fully_booked", arabic)}, nil
	}
	return ok(data, ""), nil
}
