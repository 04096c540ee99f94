package calendar

import (
	"time"
)

// Vacation is an inclusive closed-date range.
type Vacation struct {
	ID    int64
	Start time.Time // midnight, clinic tz
	End   time.Time // midnight, clinic tz, inclusive
	Title string
}

// Covers reports whether the civil date falls inside the vacation.
func (v Vacation) Covers(date time.Time) bool {
	d := truncateToDay(date)
	return !d.Before(truncateToDay(v.Start)) && !d.After(truncateToDay(v.End))
}

// VacationCovering returns the first vacation containing date, if any.
// Overlapping periods have union semantics, so any single hit suffices.
func VacationCovering(vacations []Vacation, date time.Time) (Vacation, bool) {
	for _, v := range vacations {
		if v.Covers(date) {
			return v, true
		}
	}
	return Vacation{}, false
}

// VacationEnd returns the last covered day reachable from date by walking
// through overlapping periods, or nil when date is not in a vacation.
func VacationEnd(vacations []Vacation, date time.Time) *time.Time {
	d := truncateToDay(date)
	var end *time.Time
	for {
		v, ok := VacationCovering(vacations, d)
		if !ok {
			return end
		}
		e := truncateToDay(v.End)
		end = &e
		d = e.AddDate(0, 0, 1)
	}
}

// NextVacationWithin finds the earliest vacation starting in (date, date+days].
func NextVacationWithin(vacations []Vacation, date time.Time, days int) (Vacation, bool) {
	d := truncateToDay(date)
	horizon := d.AddDate(0, 0, days)
	var best Vacation
	found := false
	for _, v := range vacations {
		start := truncateToDay(v.Start)
		if start.After(d) && !start.After(horizon) {
			if !found || start.Before(truncateToDay(best.Start)) {
				best = v
				found = true
			}
		}
	}
	return best, found
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
