// Package timeutil implements the ISO 8601 date/time/duration handling and
// the operational-day rule used throughout serviceinfo.
package timeutil

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// ServiceDateCutoffHour is the hour below which a wall-clock instant is
// considered to belong to the previous operational day.
const ServiceDateCutoffHour = 4

// ParseISODateTime parses an RFC 3339 timestamp, preserving the supplied
// offset. An empty string returns the zero instant with ok=false.
func ParseISODateTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}

	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		// Some upstream feeds emit sub-second precision without a colon in
		// the offset; fall back to a more permissive layout.
		t, err = time.Parse("2006-01-02T15:04:05.999999999Z0700", s)
		if err != nil {
			return time.Time{}, false
		}
	}
	return t, true
}

// DateTimeToISO is the inverse of ParseISODateTime. A zero instant (ok=false)
// returns "" so round trips through ParseISODateTime behave symmetrically.
func DateTimeToISO(t time.Time, ok bool) string {
	if !ok {
		return ""
	}
	return t.Format(time.RFC3339)
}

// ParseISODelay parses an ISO 8601 duration (e.g. "PT4M30S") into whole
// minutes, rounding seconds to the nearest minute (half-up). An empty or
// unparsable string yields 0: absent delay means no delay.
func ParseISODelay(s string) int {
	if s == "" {
		return 0
	}

	d, ok := parseISODuration(s)
	if !ok {
		return 0
	}

	minutes := d.Minutes()
	whole := math.Floor(minutes)
	frac := minutes - whole
	if frac >= 0.5 {
		whole++
	}
	if whole < 0 {
		return 0
	}
	return int(whole)
}

// parseISODuration parses the subset of ISO 8601 durations that appears in
// ArrivalTimeDelay/DepartureTimeDelay fields: a "P" prefix, optional days,
// then after "T" hours, minutes and fractional seconds. Years and months are
// not parsed.
func parseISODuration(s string) (time.Duration, bool) {
	if !strings.HasPrefix(s, "P") {
		return 0, false
	}
	s = s[1:]

	var datePart, timePart string
	if idx := strings.IndexByte(s, 'T'); idx >= 0 {
		datePart, timePart = s[:idx], s[idx+1:]
	} else {
		datePart = s
	}

	var total time.Duration

	if datePart != "" {
		days, ok := numberBefore(datePart, 'D')
		if ok {
			total += time.Duration(days) * 24 * time.Hour
		}
	}

	if timePart != "" {
		if hours, ok := numberBefore(timePart, 'H'); ok {
			total += time.Duration(hours * float64(time.Hour))
			timePart = afterUnit(timePart, 'H')
		}
		if minutes, ok := numberBefore(timePart, 'M'); ok {
			total += time.Duration(minutes * float64(time.Minute))
			timePart = afterUnit(timePart, 'M')
		}
		if seconds, ok := numberBefore(timePart, 'S'); ok {
			total += time.Duration(seconds * float64(time.Second))
		}
	}

	return total, true
}

func numberBefore(s string, unit byte) (float64, bool) {
	idx := strings.IndexByte(s, unit)
	if idx < 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(s[:idx], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func afterUnit(s string, unit byte) string {
	idx := strings.IndexByte(s, unit)
	if idx < 0 {
		return s
	}
	return s[idx+1:]
}

// CombineLocal adds a day-offset duration (which may exceed 24h) to local
// midnight of date as wall-clock time, then localizes the result in loc. A
// non-existent civil time (DST spring-forward gap) advances to the first
// valid instant, the start of the gap's later zone period.
func CombineLocal(date time.Time, offset time.Duration, loc *time.Location) time.Time {
	civil := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC).Add(offset)
	t := time.Date(civil.Year(), civil.Month(), civil.Day(), civil.Hour(), civil.Minute(),
		civil.Second(), civil.Nanosecond(), loc)
	if t.Hour() != civil.Hour() || t.Minute() != civil.Minute() {
		// time.Date moved a civil time inside a gap past it; step back to
		// the instant the gap ends.
		t, _ = t.ZoneBounds()
	}
	return t
}

// GetServiceDate applies the operational-day rule: instants before 04:00
// local time belong to the previous calendar day.
func GetServiceDate(t time.Time) time.Time {
	local := t
	if local.Hour() < ServiceDateCutoffHour {
		local = local.AddDate(0, 0, -1)
	}
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location())
}

// ServiceDateString formats a service date as YYYY-MM-DD.
func ServiceDateString(t time.Time) string {
	return t.Format("2006-01-02")
}
