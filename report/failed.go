package report

import "time"

// Failed wraps a Report with the time its last delivery attempt was made, so
// the retry queue can compute how long to wait before trying again.
type Failed struct {
	LastTry  time.Time
	Original Report
}

// RetryAfter computes the duration to wait before the next retry attempt,
// floored at the configured minimum so an overdue retry fires almost
// immediately rather than busy-looping.
func (f Failed) RetryAfter(now time.Time, timeout, floor time.Duration) time.Duration {
	d := timeout - now.Sub(f.LastTry)
	if d < floor {
		return floor
	}
	return d
}
