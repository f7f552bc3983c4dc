// Package system provides a real clock implementation.
package system

import "time"

// Clock implements scraper.Clock and the scheduler's timer source using the
// wall clock.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// After waits for d to elapse and then sends the current time on the
// returned channel. Non-positive durations fire immediately.
func (Clock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}
