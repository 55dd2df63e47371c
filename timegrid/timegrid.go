// Package timegrid converts between calendar dates, "HH:MM" times of day and
// minute-aligned instants. Every conversion works on the local calendar fields
// of the value's location; nothing is normalized to UTC.
package timegrid

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	dateLayout = "2006-01-02"

	// MinutesPerDay is the exclusive upper bound of a minute-of-day value.
	MinutesPerDay = 24 * 60
)

// FormatYMD formats t as "YYYY-MM-DD" using t's own calendar fields.
func FormatYMD(t time.Time) string {
	return t.Format(dateLayout)
}

// ParseYMD parses a "YYYY-MM-DD" string as midnight in loc. A nil loc means
// time.Local. The boolean is false for unparseable input.
func ParseYMD(s string, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(dateLayout, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ParseHHMM converts a 24-hour "HH:MM" string into minutes after midnight.
func ParseHHMM(s string) (int, bool) {
	s = strings.TrimSpace(s)
	hh, mm, ok := strings.Cut(s, ":")
	if !ok || len(hh) == 0 || len(hh) > 2 || len(mm) != 2 {
		return 0, false
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}

// FormatHHMM renders minutes after midnight as a zero padded "HH:MM" string.
// Values outside a single day wrap around.
func FormatHHMM(minutes int) string {
	minutes = ((minutes % MinutesPerDay) + MinutesPerDay) % MinutesPerDay
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// To12Hour turns "13:05" into "1:05 PM". It returns "" for invalid input.
func To12Hour(hhmm string) string {
	minutes, ok := ParseHHMM(hhmm)
	if !ok {
		return ""
	}
	h, m := minutes/60, minutes%60
	suffix := "AM"
	if h >= 12 {
		suffix = "PM"
	}
	h %= 12
	if h == 0 {
		h = 12
	}
	return fmt.Sprintf("%d:%02d %s", h, m, suffix)
}

// From12Hour turns "1:05 PM" into "13:05".
func From12Hour(s string) (string, bool) {
	clock, suffix, ok := strings.Cut(strings.TrimSpace(s), " ")
	if !ok {
		return "", false
	}
	hh, mm, ok := strings.Cut(clock, ":")
	if !ok || len(mm) != 2 {
		return "", false
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 1 || h > 12 {
		return "", false
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return "", false
	}
	switch strings.ToUpper(strings.TrimSpace(suffix)) {
	case "AM":
		if h == 12 {
			h = 0
		}
	case "PM":
		if h != 12 {
			h += 12
		}
	default:
		return "", false
	}
	return FormatHHMM(h*60 + m), true
}

// StartOfDay truncates t to midnight of its own calendar day.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// At returns the instant that lies minutes after midnight on date's calendar day.
func At(date time.Time, minutes int) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, 0, minutes, 0, 0, date.Location())
}

// Combine joins a calendar date and an "HH:MM" time of day into one instant.
func Combine(date time.Time, hhmm string) (time.Time, bool) {
	minutes, ok := ParseHHMM(hhmm)
	if !ok {
		return time.Time{}, false
	}
	return At(date, minutes), true
}

// MinuteOfDay reports how many minutes after its local midnight t falls.
func MinuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// ClockOf renders the local time of day of t as "HH:MM".
func ClockOf(t time.Time) string {
	return FormatHHMM(MinuteOfDay(t))
}

// MinutesApart returns the absolute distance between a and b in whole minutes.
func MinutesApart(a, b time.Time) int {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return int(d / time.Minute)
}

// SameDay reports whether a and b fall on the same calendar day of a's location.
func SameDay(a, b time.Time) bool {
	b = b.In(a.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
