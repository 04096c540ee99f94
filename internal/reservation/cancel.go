package reservation

import (
	"context"
	"errors"
	"fmt"

	"github.com/dahshury/clinic-whatsapp-bot/internal/calendar"
	"github.com/dahshury/clinic-whatsapp-bot/internal/i18n"
	"github.com/dahshury/clinic-whatsapp-bot/internal/store"
)

// CancelRequest soft-deletes reservations. With ReservationID it targets one
// row, with Date every active future reservation on that date, with neither
// every active future reservation the customer holds.
type CancelRequest struct {
	WaID          string
	Date          string
	ReservationID int64
	Hijri         bool
	Arabic        bool
}

// Cancel soft-deletes active future reservations and returns their ids as
// cancelled_ids. Past reservations are never touched.
func (e *Engine) Cancel(ctx context.Context, req CancelRequest) (Result, error) {
	e.metrics.CancellationsRequested.Inc()

	if !ValidWaID(req.WaID) {
		return e.fail("cancel", "invalid_phone", "invalid_phone", req.Arabic), nil
	}

	var targets []store.Reservation

	switch {
	case req.ReservationID > 0:
		res, err := e.reservations.GetByID(ctx, req.ReservationID)
		if errors.Is(err, store.ErrNotFound) {
			return e.fail("cancel", "not_found", "reservation_not_found", req.Arabic), nil
		}
		if err != nil {
			return Result{}, fmt.Errorf("reservation: get %d: %w", req.ReservationID, err)
		}
		if res.WaID != req.WaID {
			return e.fail("cancel", "not_found", "reservation_not_found", req.Arabic), nil
		}
		if res.Status != store.StatusActive {
			return e.fail("cancel", "already_cancelled", "reservation_already_cancelled", req.Arabic), nil
		}
		if e.isPast(res) {
			return e.fail("cancel", "past", "cannot_cancel_past", req.Arabic), nil
		}
		targets = []store.Reservation{res}

	case req.Date != "":
		date, err := calendar.ParseDate(req.Date, req.Hijri, e.schedule.Location)
		if err != nil {
			return e.fail("cancel", "invalid_date", "invalid_date", req.Arabic, req.Date), nil
		}
		future, err := e.reservations.ActiveFuture(ctx, req.WaID, e.today(), e.localNow().Format("15:04"))
		if err != nil {
			return Result{}, fmt.Errorf("reservation: list future: %w", err)
		}
		for _, r := range future {
			if r.Date.Equal(date) {
				targets = append(targets, r)
			}
		}
		if len(targets) == 0 {
			return e.fail("cancel", "no_future", "no_future_reservations", req.Arabic), nil
		}

	default:
		future, err := e.reservations.ActiveFuture(ctx, req.WaID, e.today(), e.localNow().Format("15:04"))
		if err != nil {
			return Result{}, fmt.Errorf("reservation: list future: %w", err)
		}
		if len(future) == 0 {
			return e.fail("cancel", "no_future", "no_future_reservations", req.Arabic), nil
		}
		targets = future
	}

	cancelledIDs := make([]int64, 0, len(targets))
	for _, t := range targets {
		res, err := e.reservations.Cancel(ctx, t.ID)
		if errors.Is(err, store.ErrNotFound) {
			// Raced with another canceller; the row is gone from the active
			// set either way.
			continue
		}
		if err != nil {
			return Result{}, fmt.Errorf("reservation: cancel %d: %w", t.ID, err)
		}
		cancelledIDs = append(cancelledIDs, res.ID)
		e.broadcast("cancelled", res)
	}
	if len(cancelledIDs) == 0 {
		return e.fail("cancel", "already_cancelled", "reservation_already_cancelled", req.Arabic), nil
	}

	e.metrics.CancellationsSuccessful.Inc()
	return ok(map[string]any{"cancelled_ids": cancelledIDs}, i18n.Get("reservation_cancelled", req.Arabic)), nil
}

// UndoCancel reinstates a cancelled reservation, re-checking slot capacity.
func (e *Engine) UndoCancel(ctx context.Context, reservationID int64, persona Persona, arabic bool) (Result, error) {
	res, err := e.reservations.GetByID(ctx, reservationID)
	if errors.Is(err, store.ErrNotFound) {
		return e.fail("", "not_found", "reservation_not_found", arabic), nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("reservation: get %d: %w", reservationID, err)
	}
	if res.Status == store.StatusActive {
		return e.fail("", "already_active", "reservation_already_active", arabic), nil
	}

	res, err = e.reservations.Reinstate(ctx, reservationID, e.capacityFor(persona, 0))
	if errors.Is(err, store.ErrSlotFull) {
		return e.fail("", "slot_full", "slot_fully_booked", arabic), nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("reservation: reinstate %d: %w", reservationID, err)
	}

	e.broadcast("reinstated", res)
	return ok(reservationData(res), i18n.Get("reservation_reinstated", arabic)), nil
}

// UndoReserve rolls back a booking by soft-cancelling it.
func (e *Engine) UndoReserve(ctx context.Context, reservationID int64, arabic bool) (Result, error) {
	res, err := e.reservations.Cancel(ctx, reservationID)
	if errors.Is(err, store.ErrNotFound) {
		return e.fail("", "not_found", "reservation_not_found", arabic), nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("reservation: cancel %d: %w", reservationID, err)
	}

	e.broadcast("cancelled", res)
	return ok(reservationData(res), i18n.Get("reservation_cancelled", arabic)), nil
}

// isPast reports whether a reservation's slot start already elapsed.
func (e *Engine) isPast(r store.Reservation) bool {
	if r.Date.Before(e.today()) {
		return true
	}
	if !r.Date.Equal(e.today()) {
		return false
	}
	start, err := e.schedule.SlotTime(r.Date, r.TimeSlot)
	if err != nil {
		return false
	}
	return !start.After(e.localNow())
}
