// Package domain record.go defines the persisted secret entity.
package domain

import "time"

// SecretRecord is the persisted form of a shared secret. Only the store
// mutates it; ViewCount moves forward one step per successful consume.
type SecretRecord struct {
	ID         SecretID
	Ciphertext []byte
	Nonce      []byte
	ExpiresAt  time.Time
	MaxViews   int
	ViewCount  int
	CreatedAt  time.Time
}

// Expired reports whether the record is past its expiry at now.
func (r SecretRecord) Expired(now time.Time) bool { return now.After(r.ExpiresAt) }

// Exhausted reports whether no views remain.
func (r SecretRecord) Exhausted() bool { return r.ViewCount >= r.MaxViews }

// Remaining returns the number of views left after the current count.
func (r SecretRecord) Remaining() int {
	if r.ViewCount >= r.MaxViews {
		return 0
	}
	return r.MaxViews - r.ViewCount
}
