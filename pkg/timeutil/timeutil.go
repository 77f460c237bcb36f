// Package timeutil holds time helpers shared by the attendance hub: parsing of
// upstream timestamps, campus-local month boundaries and the text formats used
// in class records.
package timeutil

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultZone is the campus timezone used when nothing else is configured.
// Kazakhstan has no DST, so a fixed offset is exact.
var DefaultZone = time.FixedZone("Asia/Almaty", 5*60*60)

const (
	DateLayout      = "2006-01-02"
	ClockLayout     = "15:04"
	TimeRangeLayout = ClockLayout + "-" + ClockLayout
)

// ErrEmptyTimestamp is returned by ParseUpstream for blank input.
var ErrEmptyTimestamp = errors.New("empty timestamp")

// upstreamLayouts are tried in order. Layouts without an offset are read in the
// caller's location.
var upstreamLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// LoadLocation resolves an IANA name, falling back to DefaultZone when the name
// is empty or the tz database is unavailable.
func LoadLocation(name string) *time.Location {
	if strings.TrimSpace(name) == "" {
		return DefaultZone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return DefaultZone
	}
	return loc
}

// ParseUpstream parses a timestamp as sent by the school API.
func ParseUpstream(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, ErrEmptyTimestamp
	}
	if loc == nil {
		loc = DefaultZone
	}
	for _, layout := range upstreamLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", value)
}

// FormatTimeRange renders "09:00-10:30" in loc.
func FormatTimeRange(start, end time.Time, loc *time.Location) string {
	if loc == nil {
		loc = DefaultZone
	}
	return start.In(loc).Format(ClockLayout) + "-" + end.In(loc).Format(ClockLayout)
}

// FormatDate renders a calendar date in loc.
func FormatDate(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = DefaultZone
	}
	return t.In(loc).Format(DateLayout)
}

// MinutesBetween returns the length of [start, end] in minutes, never negative.
func MinutesBetween(start, end time.Time) float64 {
	d := end.Sub(start)
	if d < 0 {
		return 0
	}
	return d.Minutes()
}

// EndOfDay returns 23:59:59 of the given date in loc.
func EndOfDay(year int, month time.Month, day int, loc *time.Location) time.Time {
	if loc == nil {
		loc = DefaultZone
	}
	return time.Date(year, month, day, 23, 59, 59, 0, loc)
}
