package reservation

import (
	"context"
	"sort"
	"time"

	"github.com/dahshury/clinic-whatsapp-bot/internal/calendar"
	"github.com/dahshury/clinic-whatsapp-bot/internal/i18n"
)

// AvailabilityRequest asks for the free slots on a single date.
type AvailabilityRequest struct {
	Date            string
	MaxReservations int
	Hijri           bool
	Arabic          bool
	Persona         Persona
}

// SearchRequest scans a window of dates for free slots, optionally ranked by
// proximity to a requested time.
type SearchRequest struct {
	StartDate       string
	TimeSlot        string
	DaysForward     int
	DaysBackward    int
	MaxReservations int
	Hijri           bool
	Arabic          bool
	Persona         Persona
}

// GetAvailableSlots lists the configured slots on a date whose active count
// is below capacity, in 12-hour form with both calendar representations.
func (e *Engine) GetAvailableSlots(ctx context.Context, req AvailabilityRequest) (Result, error) {
	date, err := calendar.ParseDate(req.Date, req.Hijri, e.schedule.Location)
	if err != nil {
		return e.fail("", "invalid_date", "invalid_date", req.Arabic, req.Date), nil
	}
	if date.Before(e.today()) {
		return e.fail("", "past_date", "past_date", req.Arabic), nil
	}

	data := map[string]any{
		"gregorian_date": date.Format("2006-01-02"),
	}
	if hijri, err := calendar.FormatDate(date, true); err == nil {
		data["hijri_date"] = hijri
	}

	vacations := e.loadVacations(ctx)
	if v, covered := calendar.VacationCovering(vacations, date); covered {
		data["time_slots"] = []map[string]any{}
		data["vacation"] = vacationInfo(v, e.today())
		msg := i18n.Get("vacation_closed", req.Arabic, v.Start.Format("2006-01-02"), v.End.Format("2006-01-02"))
		return ok(data, msg), nil
	}

	free, err := e.freeSlots(ctx, date, req.Persona, req.MaxReservations)
	if err != nil {
		return Result{}, err
	}
	if len(free) == 0 {
		data["time_slots"] = []map[string]any{}
		key := "no_slots_available"
		if e.schedule.SlotsFor(date) == nil {
			key = "outside_working_hours"
			return ok(data, i18n.Get(key, req.Arabic)), nil
		}
		return ok(data, i18n.Get(key, req.Arabic, date.Format("2006-01-02"))), nil
	}

	slots := make([]map[string]any, 0, len(free))
	for _, s := range free {
		slot12, _ := calendar.NormalizeTime(s, false)
		slots = append(slots, map[string]any{
			"time_slot":     slot12,
			"time_slot_24h": s,
		})
	}
	data["time_slots"] = slots
	return ok(data, ""), nil
}

// freeSlots returns the 24h slot starts on date still below capacity.
// For today, slots whose start already passed are excluded.
func (e *Engine) freeSlots(ctx context.Context, date time.Time, persona Persona, override int) ([]string, error) {
	slots := e.schedule.SlotsFor(date)
	if len(slots) == 0 {
		return nil, nil
	}
	counts, err := e.reservations.ActiveCountsForDate(ctx, date)
	if err != nil {
		return nil, err
	}
	capacity := e.capacityFor(persona, override)
	now := e.localNow()
	sameDay := date.Equal(e.today())

	var free []string
	for _, slot := range slots {
		if sameDay {
			start, err := e.schedule.SlotTime(date, slot)
			if err != nil || !start.After(now) {
				continue
			}
		}
		if counts[slot] < capacity {
			free = append(free, slot)
		}
	}
	return free, nil
}

// SearchAppointments walks a date window and reports availability per date.
// With a requested time, each date contributes its closest free slot and an
// is_exact flag; ties pick the earlier slot.
func (e *Engine) SearchAppointments(ctx context.Context, req SearchRequest) (Result, error) {
	if req.DaysForward <= 0 {
		req.DaysForward = 3
	}
	vacations := e.loadVacations(ctx)
	today := e.today()

	base := today
	explicitStart := req.StartDate != ""
	if explicitStart {
		parsed, err := calendar.ParseDate(req.StartDate, req.Hijri, e.schedule.Location)
		if err != nil {
			return e.fail("", "invalid_date", "invalid_date", req.Arabic, req.StartDate), nil
		}
		base = parsed
	} else if end := calendar.VacationEnd(vacations, today); end != nil {
		// The clinic is closed today; start looking from the first open day.
		base = end.AddDate(0, 0, 1)
	}

	var wantMinutes int
	haveTime := req.TimeSlot != ""
	if haveTime {
		normalized, err := calendar.NormalizeTime(req.TimeSlot, true)
		if err != nil {
			return e.fail("", "invalid_time", "invalid_time", req.Arabic, req.TimeSlot), nil
		}
		req.TimeSlot = normalized
		wantMinutes, _ = calendar.MinutesOfDay(normalized)
	}

	var results []map[string]any
	for offset := -req.DaysBackward; offset <= req.DaysForward; offset++ {
		date := base.AddDate(0, 0, offset)
		if date.Before(today) {
			continue
		}
		if _, covered := calendar.VacationCovering(vacations, date); covered {
			continue
		}
		free, err := e.freeSlots(ctx, date, req.Persona, req.MaxReservations)
		if err != nil {
			return Result{}, err
		}
		if len(free) == 0 {
			continue
		}

		entry := map[string]any{
			"gregorian_date": date.Format("2006-01-02"),
		}
		if hijri, err := calendar.FormatDate(date, true); err == nil {
			entry["hijri_date"] = hijri
		}

		if haveTime {
			slot, exact := closestSlot(free, wantMinutes)
			slot12, _ := calendar.NormalizeTime(slot, false)
			entry["time_slot"] = slot12
			entry["time_slot_24h"] = slot
			entry["is_exact"] = exact
		} else {
			slots := make([]map[string]any, 0, len(free))
			for _, s := range free {
				slot12, _ := calendar.NormalizeTime(s, false)
				slots = append(slots, map[string]any{"time_slot": slot12, "time_slot_24h": s})
			}
			entry["time_slots"] = slots
		}
		results = append(results, entry)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i]["gregorian_date"].(string) < results[j]["gregorian_date"].(string)
	})

	data := map[string]any{"results": results}
	if v, covered := calendar.VacationCovering(vacations, today); covered {
		data["vacation_info"] = vacationInfo(v, today)
	} else if v, upcoming := calendar.NextVacationWithin(vacations, today, 30); upcoming {
		data["vacation_info"] = vacationInfo(v, today)
	}

	message := ""
	if len(results) == 0 {
		message = i18n.Get("no_slots_available", req.Arabic, base.Format("2006-01-02"))
	}
	return ok(data, message), nil
}

// closestSlot picks the free slot nearest to wantMinutes; ties take the
// earlier slot. Slots arrive sorted ascending, so the first minimum wins.
func closestSlot(free []string, wantMinutes int) (slot string, exact bool) {
	best := -1
	for _, s := range free {
		m, err := calendar.MinutesOfDay(s)
		if err != nil {
			continue
		}
		d := m - wantMinutes
		if d < 0 {
			d = -d
		}
		if best < 0 || d < best {
			best = d
			slot = s
		}
	}
	return slot, best == 0
}

func vacationInfo(v calendar.Vacation, today time.Time) map[string]any {
	status := "upcoming"
	daysUntil := int(v.Start.Sub(today).Hours() / 24)
	if v.Covers(today) {
		status = "current"
		daysUntil = 0
	}
	return map[string]any{
		"status":     status,
		"start":      v.Start.Format("2006-01-02"),
		"end":        v.End.Format("2006-01-02"),
		"days_until": daysUntil,
	}
}
