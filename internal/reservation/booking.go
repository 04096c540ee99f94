package reservation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dahshury/clinic-whatsapp-bot/internal/calendar"
	"github.com/dahshury/clinic-whatsapp-bot/internal/i18n"
	"github.com/dahshury/clinic-whatsapp-bot/internal/store"
)

// ReserveRequest books a slot for a customer.
type ReserveRequest struct {
	WaID            string
	CustomerName    string
	Date            string
	Time            string
	Type            int
	Hijri           bool
	MaxReservations int
	Arabic          bool
	Persona         Persona
}

// ModifyRequest changes one or more fields of an existing reservation.
// Zero-valued fields keep their current value; NewType uses a pointer so
// type 0 (check-up) is expressible.
type ModifyRequest struct {
	WaID            string
	ReservationID   int64
	NewDate         string
	NewTime         string
	NewName         string
	NewType         *int
	MaxReservations int
	Approximate     bool
	Hijri           bool
	Arabic          bool
	Persona         Persona
}

// Reserve books a slot. A customer holding an active future reservation is
// rerouted to Modify so one wa_id never holds two upcoming appointments. An
// exactly matching cancelled row is reinstated instead of inserting a twin.
func (e *Engine) Reserve(ctx context.Context, req ReserveRequest) (Result, error) {
	e.metrics.ReservationsRequested.Inc()

	if !ValidWaID(req.WaID) {
		return e.fail("reserve", "invalid_phone", "invalid_phone", req.Arabic), nil
	}
	if strings.TrimSpace(req.CustomerName) == "" {
		return e.fail("reserve", "invalid_name", "invalid_name", req.Arabic), nil
	}
	if req.Type != store.TypeCheckUp && req.Type != store.TypeFollowUp {
		return e.fail("reserve", "invalid_type", "invalid_type", req.Arabic), nil
	}

	date, slot, failRes, err := e.validateSlot(ctx, "reserve", req.Date, req.Time, req.Hijri, req.Arabic)
	if err != nil || failRes != nil {
		if failRes != nil {
			return *failRes, nil
		}
		return Result{}, err
	}

	if e.customers != nil {
		if err := e.customers.Upsert(ctx, req.WaID, strings.TrimSpace(req.CustomerName)); err != nil {
			return Result{}, fmt.Errorf("reservation: upsert customer: %w", err)
		}
	}

	// One active future reservation per customer; a second booking becomes
	// a move of the existing one.
	existing, err := e.reservations.ActiveFuture(ctx, req.WaID, e.today(), e.localNow().Format("15:04"))
	if err != nil {
		return Result{}, fmt.Errorf("reservation: list future: %w", err)
	}
	if len(existing) > 0 {
		typ := req.Type
		return e.Modify(ctx, ModifyRequest{
			WaID:            req.WaID,
			ReservationID:   existing[0].ID,
			NewDate:         date.Format("2006-01-02"),
			NewTime:         slot,
			NewType:         &typ,
			MaxReservations: req.MaxReservations,
			Arabic:          req.Arabic,
			Persona:         req.Persona,
		})
	}

	capacity := e.capacityFor(req.Persona, req.MaxReservations)

	if prev, err := e.reservations.FindCancelledExact(ctx, req.WaID, date, slot); err == nil {
		res, err := e.reservations.Reinstate(ctx, prev.ID, capacity)
		if errors.Is(err, store.ErrSlotFull) {
			return e.fail("reserve", "slot_full", "slot_fully_booked", req.Arabic), nil
		}
		if err != nil {
			return Result{}, fmt.Errorf("reservation: reinstate: %w", err)
		}
		e.metrics.ReservationsSuccessful.Inc()
		e.broadcast("reinstated", res)
		slot12, _ := calendar.NormalizeTime(slot, false)
		return ok(reservationData(res), i18n.Get("reservation_successful", req.Arabic, res.Date.Format("2006-01-02"), slot12)), nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return Result{}, fmt.Errorf("reservation: cancelled lookup: %w", err)
	}

	res, err := e.reservations.CreateWithCapacity(ctx, req.WaID, date, slot, req.Type, capacity)
	if errors.Is(err, store.ErrSlotFull) {
		return e.fail("reserve", "slot_full", "slot_fully_booked", req.Arabic), nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("reservation: create: %w", err)
	}

	e.metrics.ReservationsSuccessful.Inc()
	e.broadcast("created", res)
	slot12, _ := calendar.NormalizeTime(slot, false)
	return ok(reservationData(res), i18n.Get("reservation_successful", req.Arabic, res.Date.Format("2006-01-02"), slot12)), nil
}

// Modify changes a reservation's date, time, type or the customer's name.
// The returned data always carries an original_data snapshot for undo.
func (e *Engine) Modify(ctx context.Context, req ModifyRequest) (Result, error) {
	e.metrics.ModificationsRequested.Inc()

	if !ValidWaID(req.WaID) {
		return e.fail("modify", "invalid_phone", "invalid_phone", req.Arabic), nil
	}
	if req.NewDate == "" && req.NewTime == "" && req.NewName == "" && req.NewType == nil {
		return e.fail("modify", "nothing_to_modify", "nothing_to_modify", req.Arabic), nil
	}
	if req.NewType != nil && *req.NewType != store.TypeCheckUp && *req.NewType != store.TypeFollowUp {
		return e.fail("modify", "invalid_type", "invalid_type", req.Arabic), nil
	}

	current, failRes, err := e.resolveTarget(ctx, "modify", req.WaID, req.ReservationID, req.Arabic)
	if err != nil || failRes != nil {
		if failRes != nil {
			return *failRes, nil
		}
		return Result{}, err
	}

	original := reservationData(current)

	var oldName string
	renamed := false
	if req.NewName != "" {
		if e.customers == nil {
			return Result{}, errors.New("reservation: no customer directory wired")
		}
		oldName, err = e.customers.Rename(ctx, req.WaID, strings.TrimSpace(req.NewName))
		if err != nil {
			return Result{}, fmt.Errorf("reservation: rename: %w", err)
		}
		original["customer_name"] = oldName
		renamed = true
	}

	targetDate := current.Date
	targetSlot := current.TimeSlot
	targetType := current.Type
	if req.NewType != nil {
		targetType = *req.NewType
	}
	if req.NewDate != "" || req.NewTime != "" {
		dateStr := req.NewDate
		if dateStr == "" {
			dateStr = current.Date.Format("2006-01-02")
			req.Hijri = false
		}
		timeStr := req.NewTime
		if timeStr == "" {
			timeStr = current.TimeSlot
		}
		date, slot, failRes, err := e.validateSlot(ctx, "modify", dateStr, timeStr, req.Hijri, req.Arabic)
		if err != nil || failRes != nil {
			if failRes != nil {
				return *failRes, nil
			}
			return Result{}, err
		}
		targetDate, targetSlot = date, slot
	}

	moved := !targetDate.Equal(current.Date) || targetSlot != current.TimeSlot || targetType != current.Type
	if !moved && !renamed {
		return e.fail("modify", "nothing_to_modify", "nothing_to_modify", req.Arabic), nil
	}

	updated := current
	if moved {
		capacity := e.capacityFor(req.Persona, req.MaxReservations)
		updated, err = e.reservations.MoveWithCapacity(ctx, current.ID, targetDate, targetSlot, targetType, capacity)
		if errors.Is(err, store.ErrSlotFull) && req.Approximate {
			targetSlot, err = e.nearestFreeSlot(ctx, targetDate, targetSlot, req.Persona, req.MaxReservations)
			if err != nil {
				return Result{}, err
			}
			if targetSlot == "" {
				return e.fail("modify", "slot_full", "slot_fully_booked", req.Arabic), nil
			}
			updated, err = e.reservations.MoveWithCapacity(ctx, current.ID, targetDate, targetSlot, targetType, capacity)
		}
		if errors.Is(err, store.ErrSlotFull) {
			return e.fail("modify", "slot_full", "slot_fully_booked", req.Arabic), nil
		}
		if err != nil {
			return Result{}, fmt.Errorf("reservation: move: %w", err)
		}
	}

	e.metrics.ModificationsSuccessful.Inc()
	e.broadcast("updated", updated)

	data := reservationData(updated)
	if renamed {
		data["customer_name"] = strings.TrimSpace(req.NewName)
	}
	data["original_data"] = original
	slot12, _ := calendar.NormalizeTime(updated.TimeSlot, false)
	return ok(data, i18n.Get("reservation_modified", req.Arabic, updated.Date.Format("2006-01-02"), slot12)), nil
}

// validateSlot parses and validates a date/time pair against working hours,
// vacations and the clock. A non-nil Result means a domain failure.
func (e *Engine) validateSlot(ctx context.Context, op, dateStr, timeStr string, hijri, arabic bool) (time.Time, string, *Result, error) {
	date, err := calendar.ParseDate(dateStr, hijri, e.schedule.Location)
	if err != nil {
		r := e.fail(op, "invalid_date", "invalid_date", arabic, dateStr)
		return time.Time{}, "", &r, nil
	}
	slot, err := calendar.NormalizeTime(timeStr, true)
	if err != nil {
		r := e.fail(op, "invalid_time", "invalid_time", arabic, timeStr)
		return time.Time{}, "", &r, nil
	}
	if date.Before(e.today()) {
		r := e.fail(op, "past_date", "past_date", arabic)
		return time.Time{}, "", &r, nil
	}
	if !e.schedule.IsWorkingSlot(date, slot) {
		r := e.fail(op, "outside_working_hours", "outside_working_hours", arabic)
		return time.Time{}, "", &r, nil
	}
	if date.Equal(e.today()) {
		start, err := e.schedule.SlotTime(date, slot)
		if err == nil && !start.After(e.localNow()) {
			r := e.fail(op, "past_date", "past_date", arabic)
			return time.Time{}, "", &r, nil
		}
	}
	vacations := e.loadVacations(ctx)
	if v, covered := calendar.VacationCovering(vacations, date); covered {
		r := e.fail(op, "vacation", "vacation_closed", arabic, v.Start.Format("2006-01-02"), v.End.Format("2006-01-02"))
		return time.Time{}, "", &r, nil
	}
	return date, slot, nil, nil
}

// resolveTarget finds the reservation an operation applies to, either by id
// with ownership verified or as the customer's single future reservation.
func (e *Engine) resolveTarget(ctx context.Context, op, waID string, id int64, arabic bool) (store.Reservation, *Result, error) {
	if id > 0 {
		res, err := e.reservations.GetByID(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			r := e.fail(op, "not_found", "reservation_not_found", arabic)
			return store.Reservation{}, &r, nil
		}
		if err != nil {
			return store.Reservation{}, nil, fmt.Errorf("reservation: get %d: %w", id, err)
		}
		if res.WaID != waID {
			r := e.fail(op, "not_found", "reservation_not_found", arabic)
			return store.Reservation{}, &r, nil
		}
		if res.Status != store.StatusActive {
			r := e.fail(op, "already_cancelled", "reservation_already_cancelled", arabic)
			return store.Reservation{}, &r, nil
		}
		return res, nil, nil
	}

	future, err := e.reservations.ActiveFuture(ctx, waID, e.today(), e.localNow().Format("15:04"))
	if err != nil {
		return store.Reservation{}, nil, fmt.Errorf("reservation: list future: %w", err)
	}
	switch len(future) {
	case 0:
		r := e.fail(op, "no_future", "no_future_reservations", arabic)
		return store.Reservation{}, &r, nil
	case 1:
		return future[0], nil, nil
	default:
		r := e.fail(op, "multiple_future", "multiple_future_reservations", arabic)
		return store.Reservation{}, &r, nil
	}
}

// nearestFreeSlot returns the free slot on date closest to want, or "" when
// the whole date is full.
func (e *Engine) nearestFreeSlot(ctx context.Context, date time.Time, want string, persona Persona, override int) (string, error) {
	free, err := e.freeSlots(ctx, date, persona, override)
	if err != nil {
		return "", err
	}
	if len(free) == 0 {
		return "", nil
	}
	wantMinutes, err := calendar.MinutesOfDay(want)
	if err != nil {
		return free[0], nil
	}
	slot, _ := closestSlot(free, wantMinutes)
	return slot, nil
}
