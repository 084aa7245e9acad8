package engine

import "time"

// maxBackoffShift caps the exponent so durations never overflow.
const maxBackoffShift = 30

// BackoffPolicy returns the wait after the given zero-based failed attempt.
type BackoffPolicy func(attempt int) time.Duration

// ExponentialBackoff waits base * 2^attempt.
func ExponentialBackoff(base time.Duration) BackoffPolicy {
	return func(attempt int) time.Duration {
		if attempt < 0 {
			attempt = 0
		}
		if attempt > maxBackoffShift {
			attempt = maxBackoffShift
		}
		return base * time.Duration(1<<uint(attempt))
	}
}

// UserBackoff is the wait applied before refusing a recipient that reached
// its daily cap: min(limit, 2^failures seconds).
func UserBackoff(failures uint, limit time.Duration) time.Duration {
	if failures > maxBackoffShift {
		return limit
	}
	wait := time.Duration(1<<failures) * time.Second
	if wait > limit {
		return limit
	}
	return wait
}
