package calendar

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseDate parses an explicit date string into a civil date at midnight in
// loc. Accepted forms are "YYYY-MM-DD" (Gregorian, or Hijri when hijri is
// true) and "D Month YYYY" with a Hijri month name in either transliteration
// or Arabic.
func ParseDate(s string, hijri bool, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("calendar: empty date")
	}

	if t, err := time.ParseInLocation("2006-01-02", s, loc); err == nil {
		if !hijri {
			return t, nil
		}
		return FromHijri(HijriDate{Year: t.Year(), Month: int(t.Month()), Day: t.Day()}, loc)
	}

	// "D Month YYYY" is only meaningful for Hijri dates.
	fields := strings.Fields(s)
	if len(fields) >= 3 {
		day, dayErr := strconv.Atoi(fields[0])
		year, yearErr := strconv.Atoi(fields[len(fields)-1])
		monthName := strings.Join(fields[1:len(fields)-1], " ")
		if dayErr == nil && yearErr == nil {
			if month, ok := hijriMonthByName(monthName); ok {
				return FromHijri(HijriDate{Year: year, Month: month, Day: day}, loc)
			}
		}
	}

	return time.Time{}, fmt.Errorf("calendar: unrecognized date %q", s)
}

// FormatDate renders a civil date as "YYYY-MM-DD", in the Hijri calendar when
// hijri is true.
func FormatDate(t time.Time, hijri bool) (string, error) {
	if !hijri {
		return t.Format("2006-01-02"), nil
	}
	h, err := ToHijri(t)
	if err != nil {
		return "", err
	}
	return h.String(), nil
}

// NormalizeTime canonicalizes a clock time. Accepted inputs are "HH:MM",
// "HH:MM:SS" and "h:MM AM/PM". The result is "HH:MM" when to24 is true and
// "hh:MM AM" otherwise.
func NormalizeTime(s string, to24 bool) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("calendar: empty time")
	}

	var parsed time.Time
	var err error
	for _, layout := range []string{"15:04", "15:04:05", "3:04 PM", "3:04PM", "03:04 PM"} {
		parsed, err = time.Parse(layout, strings.ToUpper(s))
		if err == nil {
			break
		}
	}
	if err != nil {
		return "", fmt.Errorf("calendar: unrecognized time %q", s)
	}

	if to24 {
		return parsed.Format("15:04"), nil
	}
	return parsed.Format("03:04 PM"), nil
}

// MinutesOfDay returns the minute offset of a "HH:MM" time within its day.
func MinutesOfDay(hhmm string) (int, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return 0, fmt.Errorf("calendar: unrecognized time %q", hhmm)
	}
	return t.Hour()*60 + t.Minute(), nil
}
