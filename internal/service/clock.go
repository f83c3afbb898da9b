package service

import "time"

// Clock supplies the current time. Tests inject a fixed clock.
type Clock func() time.Time

// SystemClock returns the wall clock in UTC.
func SystemClock() time.Time {
	return time.Now().UTC()
}

func (c Clock) orDefault() Clock {
	if c == nil {
		return SystemClock
	}
	return c
}
