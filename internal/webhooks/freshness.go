package webhooks

import (
	"strconv"
	"time"
)

// FreshnessResult classifies an event timestamp header against the skew
// window.
type FreshnessResult int

const (
	FreshnessOK FreshnessResult = iota
	FreshnessMissing
	FreshnessStale
	FreshnessFuture
)

// String returns a human-readable name for logging.
func (r FreshnessResult) String() string {
	switch r {
	case FreshnessOK:
		return "ok"
	case FreshnessMissing:
		return "missing"
	case FreshnessStale:
		return "stale"
	case FreshnessFuture:
		return "future"
	default:
		return "unknown"
	}
}

// CheckFreshness validates the event timestamp header (epoch milliseconds)
// against [now-skew, now+skew]. Both directions are equally invalid: a stale
// timestamp bounds replay of old-but-validly-signed deliveries, and a future
// one indicates a clock problem or forgery. A missing or unparseable header
// is an authentication failure of the same severity as a bad signature.
func CheckFreshness(timestampHeader string, now time.Time, skew time.Duration) FreshnessResult {
	if timestampHeader == "" {
		return FreshnessMissing
	}

	millis, err := strconv.ParseInt(timestampHeader, 10, 64)
	if err != nil {
		return FreshnessMissing
	}

	eventTime := time.UnixMilli(millis)
	switch {
	case eventTime.Before(now.Add(-skew)):
		return FreshnessStale
	case eventTime.After(now.Add(skew)):
		return FreshnessFuture
	default:
		return FreshnessOK
	}
}
