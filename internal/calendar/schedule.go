package calendar

import (
	"time"
)

// DayHours bounds one weekday's working window. Zero value means closed.
type DayHours struct {
	Start string // "11:00"
	End   string // "17:00", exclusive
}

// Closed reports whether the day has no working window.
func (d DayHours) Closed() bool {
	return d.Start == "" || d.End == ""
}

// Schedule describes the clinic's recurring weekly hours, with an optional
// Ramadan override discovered through Hijri conversion.
type Schedule struct {
	Location    *time.Location
	Week        [7]DayHours  // indexed by time.Weekday
	RamadanWeek *[7]DayHours // applied when the date falls in Ramadan
	SlotMinutes int
}

// DefaultSchedule returns Saturday–Thursday 11:00–17:00 with two-hour slots,
// shifted to 10:00–16:00 in Ramadan. Friday is closed.
func DefaultSchedule(loc *time.Location) *Schedule {
	if loc == nil {
		loc = time.UTC
	}
	open := DayHours{Start: "11:00", End: "17:00"}
	ramadan := DayHours{Start: "10:00", End: "16:00"}
	s := &Schedule{Location: loc, SlotMinutes: 120}
	rw := [7]DayHours{}
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if wd == time.Friday {
			continue
		}
		s.Week[wd] = open
		rw[wd] = ramadan
	}
	s.RamadanWeek = &rw
	return s
}

func (s *Schedule) hoursFor(date time.Time) DayHours {
	if s.RamadanWeek != nil && IsRamadan(date) {
		return s.RamadanWeek[date.Weekday()]
	}
	return s.Week[date.Weekday()]
}

// SlotsFor lists the slot start times ("HH:MM") configured for the date's
// weekday. The last slot must start strictly before the closing time.
func (s *Schedule) SlotsFor(date time.Time) []string {
	hours := s.hoursFor(date)
	if hours.Closed() {
		return nil
	}
	start, err := MinutesOfDay(hours.Start)
	if err != nil {
		return nil
	}
	end, err := MinutesOfDay(hours.End)
	if err != nil {
		return nil
	}
	step := s.SlotMinutes
	if step <= 0 {
		step = 120
	}
	var slots []string
	for m := start; m < end; m += step {
		slots = append(slots, minutesToHHMM(m))
	}
	return slots
}

// IsWorkingSlot reports whether "HH:MM" is a configured slot start on date.
func (s *Schedule) IsWorkingSlot(date time.Time, hhmm string) bool {
	for _, slot := range s.SlotsFor(date) {
		if slot == hhmm {
			return true
		}
	}
	return false
}

// SlotTime combines a civil date with a "HH:MM" slot in the schedule's zone.
func (s *Schedule) SlotTime(date time.Time, hhmm string) (time.Time, error) {
	m, err := MinutesOfDay(hhmm)
	if err != nil {
		return time.Time{}, err
	}
	loc := s.Location
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(date.Year(), date.Month(), date.Day(), m/60, m%60, 0, 0, loc), nil
}

func minutesToHHMM(m int) string {
	t := time.Date(2000, 1, 1, m/60, m%60, 0, 0, time.UTC)
	return t.Format("15:04")
}
