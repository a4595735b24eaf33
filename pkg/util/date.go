package util

import (
	"strconv"
	"time"
)

// Unix timestamps above this are treated as milliseconds. Trade feeds mix
// second and millisecond precision.
const msThreshold = 1_000_000_000_000

// ParseTime accepts RFC3339, RFC3339Nano, and unix seconds or milliseconds.
// Returns (t, true) if any form parsed.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	ts, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ts <= 0 {
		return time.Time{}, false
	}
	if ts >= msThreshold {
		return time.UnixMilli(ts), true
	}
	return time.Unix(ts, 0), true
}

// ParseTimeDefault parses a time or falls back to def when empty or invalid.
func ParseTimeDefault(s string, def time.Time) time.Time {
	if t, ok := ParseTime(s); ok {
		return t
	}
	return def
}
