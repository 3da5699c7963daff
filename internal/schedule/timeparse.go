// Package schedule derives a day's arrival/departure timetable from its start
// time, stay durations, segment durations and ticket-fixed times.
package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MinutesPerDay is the length of a day in minutes.
const MinutesPerDay = 24 * 60

// DefaultStartTime is used when a day has no (or an unparsable) start time.
const DefaultStartTime = "08:00"

// ErrInvalidTime is returned when a time string cannot be resolved.
var ErrInvalidTime = errors.New("invalid time string")

// Accepted layouts for absolute timestamps, most specific first.
var absoluteLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

// Instant is a resolved time string. Minutes is always the minute-of-day of
// the clock portion; At is only set when the string carried a date.
type Instant struct {
	Minutes int
	At      time.Time
	HasDate bool
}

// ParseHM parses an "HH:MM" clock string into minutes since midnight.
// Hours up to 47 are accepted so that next-day times survive a round trip
// through FormatHM without the suffix.
func ParseHM(s string) (int, error) {
	s = strings.TrimSpace(s)
	h, m, ok := strings.Cut(s, ":")
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}

	hours, err := strconv.Atoi(h)
	if err != nil || hours < 0 || hours > 47 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	minutes, err := strconv.Atoi(m)
	if err != nil || minutes < 0 || minutes > 59 || len(m) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}

	return hours*60 + minutes, nil
}

// Resolve interprets a boundary time string. "HH:MM" resolves to same-day
// minutes; a dated string resolves to the minute-of-day of its own date and
// keeps the absolute value for duration arithmetic.
func Resolve(s string) (Instant, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Instant{}, fmt.Errorf("%w: empty", ErrInvalidTime)
	}

	if m, err := ParseHM(s); err == nil {
		return Instant{Minutes: m}, nil
	}

	for _, layout := range absoluteLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		return Instant{
			Minutes: t.Hour()*60 + t.Minute(),
			At:      t,
			HasDate: true,
		}, nil
	}

	return Instant{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
}

// ResolveMinutes is Resolve reduced to minutes since midnight.
func ResolveMinutes(s string) (int, bool) {
	in, err := Resolve(s)
	if err != nil {
		return 0, false
	}
	return in.Minutes, true
}

// TicketDurationMinutes returns arrival minus departure. When both strings
// carry a date the absolute difference is used. Clock-only pairs whose arrival
// precedes the departure are treated as overnight.
func TicketDurationMinutes(departure, arrival string) (int, bool) {
	dep, err := Resolve(departure)
	if err != nil {
		return 0, false
	}
	arr, err := Resolve(arrival)
	if err != nil {
		return 0, false
	}

	if dep.HasDate && arr.HasDate {
		d := int(arr.At.Sub(dep.At) / time.Minute)
		if d < 0 {
			return 0, false
		}
		return d, true
	}

	d := arr.Minutes - dep.Minutes
	if d < 0 {
		d += MinutesPerDay
	}
	return d, true
}

// FormatHM renders minutes since midnight as "HH:MM", appending "+N" when the
// value falls N days after the reference day.
func FormatHM(minutes int) string {
	day := 0
	for minutes < 0 {
		minutes += MinutesPerDay
		day--
	}
	day += minutes / MinutesPerDay
	minutes %= MinutesPerDay

	out := fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
	if day > 0 {
		out += fmt.Sprintf("+%d", day)
	} else if day < 0 {
		out += fmt.Sprintf("%d", day)
	}
	return out
}
