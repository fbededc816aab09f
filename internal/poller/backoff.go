package poller

import "time"

// fallbackDelay is used when a Schedule has no entries.
const fallbackDelay = 5 * time.Second

// Schedule maps a zero-based attempt index to the delay before the next
// poll attempt.
//
// A Schedule is a pure lookup table: attempt n gets the nth entry, and
// attempts past the end of the table get the last entry. There is no jitter
// and no randomization; the cadence is fully deterministic.
type Schedule []time.Duration

// DefaultSchedule escalates quickly for the first attempts, where most
// payments confirm, then settles into a flat 5 second cadence.
func DefaultSchedule() Schedule {
	return Schedule{
		1 * time.Second,
		2 * time.Second,
		3 * time.Second,
		5 * time.Second,
	}
}

// Delay returns the delay before the poll attempt that follows attempt n.
//
// Negative attempt indices are treated as 0. An empty schedule falls back
// to a flat 5 second delay.
func (s Schedule) Delay(attempt int) time.Duration {
	if len(s) == 0 {
		return fallbackDelay
	}
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= len(s) {
		return s[len(s)-1]
	}
	return s[attempt]
}
