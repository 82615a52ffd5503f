package database

import "time"

// Timestamps are stored as unix milliseconds so both dialects compare them
// with plain integer arithmetic.

// Millis converts t to the stored representation. The zero time maps to 0.
func Millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// FromMillis converts a stored timestamp back into UTC time.
func FromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
