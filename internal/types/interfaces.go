package types

import "time"

// Clock abstracts time for testability. Components that compare against
// "now" (webhook freshness, idempotency expiry, billing due dates) take a
// Clock so tests can advance time deterministically instead of sleeping.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system time (always UTC).
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }
