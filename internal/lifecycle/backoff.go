// Package lifecycle supervises the transport connection and runs the
// periodic sweeps: inactivity cleanup, follow-up reminders and the memory
// watchdog.
package lifecycle

import "time"

// Reconnection defaults.
var defaultReconnectDelays = []time.Duration{
	5 * time.Second,
	10 * time.Second,
	15 * time.Second,
	30 * time.Second,
	60 * time.Second,
}

// DefaultMaxReconnectAttempts is the number of reconnect attempts before the
// process gives up and exits for an external restart.
const DefaultMaxReconnectAttempts = 10

// BackoffPolicy maps a reconnect attempt number to a wait delay. Delays walk
// a fixed table and stay at the last entry once past its end.
type BackoffPolicy struct {
	delays      []time.Duration
	maxAttempts int
}

// NewBackoffPolicy builds a policy over the given delay table. Nil or empty
// delays fall back to the default table; a non-positive maxAttempts falls
// back to DefaultMaxReconnectAttempts.
func NewBackoffPolicy(delays []time.Duration, maxAttempts int) BackoffPolicy {
	if len(delays) == 0 {
		delays = defaultReconnectDelays
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxReconnectAttempts
	}
	return BackoffPolicy{delays: delays, maxAttempts: maxAttempts}
}

// DefaultBackoffPolicy returns the stock reconnect policy.
func DefaultBackoffPolicy() BackoffPolicy {
	return NewBackoffPolicy(nil, 0)
}

// Delay returns the wait before the given 1-based attempt.
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > len(p.delays) {
		return p.delays[len(p.delays)-1]
	}
	return p.delays[attempt-1]
}

// Exhausted reports whether the given 1-based attempt exceeds the budget.
func (p BackoffPolicy) Exhausted(attempt int) bool {
	return attempt > p.maxAttempts
}

// MaxAttempts returns the attempt budget.
func (p BackoffPolicy) MaxAttempts() int {
	return p.maxAttempts
}
