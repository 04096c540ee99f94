package calendar

import (
	"fmt"
	"strings"
	"time"
)

// HijriDate is a date in the Islamic (Umm al-Qura style tabular) calendar.
type HijriDate struct {
	Year  int
	Month int // 1..12
	Day   int // 1..30
}

// Supported conversion window. Outside it the tabular mapping drifts from
// the official Umm al-Qura announcements, so conversions are rejected.
var (
	hijriMin = HijriDate{Year: 1356, Month: 1, Day: 1}
	hijriMax = HijriDate{Year: 1500, Month: 12, Day: 30}
)

var hijriMonthNames = [12]string{
	"Muharram", "Safar", "Rabi al-Awwal", "Rabi al-Thani",
	"Jumada al-Awwal", "Jumada al-Thani", "Rajab", "Shaban",
	"Ramadan", "Shawwal", "Dhu al-Qadah", "Dhu al-Hijjah",
}

var hijriMonthNamesArabic = [12]string{
	"محرم", "صفر", "ربيع الأول", "ربيع الثاني",
	"جمادى الأولى", "جمادى الآخرة", "رجب", "شعبان",
	"رمضان", "شوال", "ذو القعدة", "ذو الحجة",
}

// MonthName returns the transliterated name of the Hijri month.
func (h HijriDate) MonthName() string {
	if h.Month < 1 || h.Month > 12 {
		return ""
	}
	return hijriMonthNames[h.Month-1]
}

func (h HijriDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", h.Year, h.Month, h.Day)
}

// gregorianToJDN converts a Gregorian calendar date to a Julian day number.
func gregorianToJDN(y, m, d int) int {
	a := (m - 14) / 12
	jdn := (1461*(y+4800+a))/4 +
		(367*(m-2-12*a))/12 -
		(3*((y+4900+a)/100))/4 +
		d - 32075
	return jdn
}

// jdnToGregorian converts a Julian day number to a Gregorian calendar date.
func jdnToGregorian(jdn int) (y, m, d int) {
	l := jdn + 68569
	n := (4 * l) / 146097
	l = l - (146097*n+3)/4
	i := (4000 * (l + 1)) / 1461001
	l = l - (1461*i)/4 + 31
	j := (80 * l) / 2447
	d = l - (2447*j)/80
	l = j / 11
	m = j + 2 - 12*l
	y = 100*(n-49) + i + l
	return y, m, d
}

// hijriToJDN converts a tabular Hijri date to a Julian day number.
func hijriToJDN(h HijriDate) int {
	return (11*h.Year+3)/30 +
		354*h.Year +
		30*h.Month -
		(h.Month-1)/2 +
		h.Day + 1948440 - 385
}

// jdnToHijri converts a Julian day number to a tabular Hijri date.
func jdnToHijri(jdn int) HijriDate {
	l := jdn - 1948440 + 10632
	n := (l - 1) / 10631
	l = l - 10631*n + 354
	j := ((10985-l)/5316)*((50*l)/17719) + (l/5670)*((43*l)/15238)
	l = l - ((30-j)/15)*((17719*j)/50) - (j/16)*((15238*j)/43) + 29
	m := (24 * l) / 709
	d := l - (709*m)/24
	y := 30*n + j - 30
	return HijriDate{Year: y, Month: m, Day: d}
}

// ToHijri converts a Gregorian civil date to its Hijri equivalent.
func ToHijri(t time.Time) (HijriDate, error) {
	h := jdnToHijri(gregorianToJDN(t.Year(), int(t.Month()), t.Day()))
	if h.before(hijriMin) || hijriMax.before(h) {
		return HijriDate{}, fmt.Errorf("calendar: %s is outside the supported Hijri range", t.Format("2006-01-02"))
	}
	return h, nil
}

// FromHijri converts a Hijri date to a Gregorian civil date in loc at midnight.
func FromHijri(h HijriDate, loc *time.Location) (time.Time, error) {
	if h.Month < 1 || h.Month > 12 || h.Day < 1 || h.Day > 30 {
		return time.Time{}, fmt.Errorf("calendar: invalid hijri date %s", h)
	}
	if h.before(hijriMin) || hijriMax.before(h) {
		return time.Time{}, fmt.Errorf("calendar: %s is outside the supported Hijri range", h)
	}
	y, m, d := jdnToGregorian(hijriToJDN(h))
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, loc), nil
}

func (h HijriDate) before(o HijriDate) bool {
	if h.Year != o.Year {
		return h.Year < o.Year
	}
	if h.Month != o.Month {
		return h.Month < o.Month
	}
	return h.Day < o.Day
}

// IsRamadan reports whether the given civil date falls in the Hijri month of
// Ramadan. Conversion failures (outside the table range) report false.
func IsRamadan(t time.Time) bool {
	h, err := ToHijri(t)
	if err != nil {
		return false
	}
	return h.Month == 9
}

// hijriMonthByName resolves a month name (transliterated or Arabic) to 1..12.
func hijriMonthByName(name string) (int, bool) {
	needle := normalizeMonthName(name)
	for i, n := range hijriMonthNames {
		if normalizeMonthName(n) == needle {
			return i + 1, true
		}
	}
	for i, n := range hijriMonthNamesArabic {
		if n == strings.TrimSpace(name) {
			return i + 1, true
		}
	}
	return 0, false
}

func normalizeMonthName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "'", "")
	s = strings.ReplaceAll(s, "-", " ")
	s = strings.Join(strings.Fields(s), " ")
	return s
}
