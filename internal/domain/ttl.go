// Package domain ttl.go contains expiry and view-limit validation helpers.
package domain

import (
	"math"
	"time"
)

// ValidateTTL checks that ttl is positive and no larger than maxTTL.
// A zero maxTTL disables the upper bound. Returns ErrTTLInvalid on violation.
func ValidateTTL(ttl, maxTTL time.Duration) error {
	if ttl <= 0 {
		return ErrTTLInvalid
	}
	if maxTTL > 0 && ttl > maxTTL {
		return ErrTTLInvalid
	}
	return nil
}

// ValidateMaxViews checks that n is at least one and no larger than limit.
// A zero limit disables the upper bound.
func ValidateMaxViews(n, limit int) error {
	if n < 1 {
		return ErrMaxViewsInvalid
	}
	if limit > 0 && n > limit {
		return ErrMaxViewsInvalid
	}
	return nil
}

// TTLFromMinutes converts an optional minute count to a duration, falling back
// to def when minutes is nil. A count too large for time.Duration yields
// ErrTTLInvalid rather than a wrapped value.
func TTLFromMinutes(minutes *int, def time.Duration) (time.Duration, error) {
	if minutes == nil {
		return def, nil
	}
	if int64(*minutes) > math.MaxInt64/int64(time.Minute) || int64(*minutes) < math.MinInt64/int64(time.Minute) {
		return 0, ErrTTLInvalid
	}
	return time.Duration(*minutes) * time.Minute, nil
}

// ExpiresAt returns the absolute expiry for a record created at now.
func ExpiresAt(now time.Time, ttl time.Duration) time.Time { return now.Add(ttl).UTC() }
