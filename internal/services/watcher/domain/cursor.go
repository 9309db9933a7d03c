package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EffectiveCursor returns the point catch-up has to look back to. Entries
// older than the cache TTL have already expired, so the stored cursor is
// clamped to now-ttl; a missing cursor starts there too.
func EffectiveCursor(stored time.Time, found bool, now time.Time, ttl time.Duration) time.Time {
	floor := now.Add(-ttl)
	if !found || stored.Before(floor) {
		return floor
	}
	return stored
}

// FormatCursor encodes a cursor as integer epoch seconds.
func FormatCursor(at time.Time) string {
	return strconv.FormatInt(at.Unix(), 10)
}

// ParseCursor decodes an integer epoch-seconds cursor.
func ParseCursor(value string) (time.Time, error) {
	seconds, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cursor %q: %w", value, err)
	}
	return time.Unix(seconds, 0).UTC(), nil
}
