package domain

import "time"

// Clock supplies wall-clock timestamps for all duration math.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the system time in UTC, truncated to whole seconds
// so stored timestamps round-trip through RFC3339 unchanged.
type SystemClock struct{}

// Now implements Clock
func (SystemClock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

// DateOf returns t's calendar date at midnight UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
