package transform

import "time"

// Clock stamps artifacts that arrive without a timestamp
type Clock func() time.Time

// SystemClock reports the current time in UTC
func SystemClock() time.Time {
	return time.Now().UTC()
}

// FixedClock always reports t
func FixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}
