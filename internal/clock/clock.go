// Package clock holds the local-date and wall-clock helpers shared by the
// booking engine. Dates and times are business-local and carry no zone.
package clock

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (civil.Date, error) {
	d, err := civil.ParseDate(strings.TrimSpace(s))
	if err != nil {
		return civil.Date{}, fmt.Errorf("clock: invalid date %q", s)
	}
	return d, nil
}

// ParseHHMM parses a 24-hour "HH:MM" (or "HH:MM:SS") wall-clock time.
func ParseHHMM(s string) (civil.Time, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return civil.Time{}, fmt.Errorf("clock: invalid time %q", s)
	}
	h, errH := strconv.Atoi(parts[0])
	m, errM := strconv.Atoi(parts[1])
	sec := 0
	var errS error
	if len(parts) == 3 {
		sec, errS = strconv.Atoi(parts[2])
	}
	if errH != nil || errM != nil || errS != nil || len(parts[1]) != 2 {
		return civil.Time{}, fmt.Errorf("clock: invalid time %q", s)
	}
	t := civil.Time{Hour: h, Minute: m, Second: sec}
	if !t.IsValid() {
		return civil.Time{}, fmt.Errorf("clock: invalid time %q", s)
	}
	return t, nil
}

// FormatHHMM renders t as zero-padded "HH:MM".
func FormatHHMM(t civil.Time) string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Minutes returns the number of minutes since midnight.
func Minutes(t civil.Time) int {
	return t.Hour*60 + t.Minute
}

// FromMinutes converts minutes since midnight back to a wall-clock time.
// Values are clamped to the same day.
func FromMinutes(m int) civil.Time {
	if m < 0 {
		m = 0
	}
	if m > 24*60-1 {
		m = 24*60 - 1
	}
	return civil.Time{Hour: m / 60, Minute: m % 60}
}

// Location loads an IANA zone, falling back to UTC.
func Location(tz string) *time.Location {
	if tz = strings.TrimSpace(tz); tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

// At combines a local date and wall-clock time in loc.
func At(d civil.Date, t civil.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year, d.Month, d.Day, t.Hour, t.Minute, t.Second, 0, loc)
}

// Spoken renders a wall-clock time the way a receptionist says it,
// for example "9 AM" or "2:30 PM".
func Spoken(t civil.Time) string {
	suffix := "AM"
	h := t.Hour
	if h >= 12 {
		suffix = "PM"
	}
	if h == 0 {
		h = 12
	} else if h > 12 {
		h -= 12
	}
	if t.Minute == 0 {
		return fmt.Sprintf("%d %s", h, suffix)
	}
	return fmt.Sprintf("%d:%02d %s", h, t.Minute, suffix)
}

// SpokenDate renders d as "Tuesday, September 9".
func SpokenDate(d civil.Date) string {
	return d.In(time.UTC).Format("Monday, January 2")
}
