// Package domain id.go contains functions to generate, parse, and validate IDs
package domain

import (
	"crypto/rand"
	"encoding/hex"
	"io"
)

// idBytes is the entropy carried by every SecretID.
const idBytes = 16

// SecretID is the canonical identifier for a stored secret: 128 random bits
// encoded as 32 lowercase hex characters.
type SecretID string

// IDSource produces new secret IDs. The store takes one so tests can force
// collisions.
type IDSource func() (SecretID, error)

// NewID generates a SecretID from crypto/rand.
func NewID() (SecretID, error) { return NewIDFrom(rand.Reader) }

// NewIDFrom reads idBytes from r and hex-encodes them.
func NewIDFrom(r io.Reader) (SecretID, error) {
	var b [idBytes]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return "", err
	}
	return SecretID(hex.EncodeToString(b[:])), nil
}

// ParseID validates s and returns it as a SecretID, or ErrInvalidID.
func ParseID(s string) (SecretID, error) {
	if !isValidID(s) {
		return "", ErrInvalidID
	}
	return SecretID(s), nil
}

// String returns the string form of the SecretID.
func (id SecretID) String() string { return string(id) }

// Valid reports whether the ID satisfies the same rules as ParseID.
func (id SecretID) Valid() bool { return isValidID(string(id)) }

// Prefix returns the first eight characters, enough to correlate log lines
// without making the full id recoverable from logs.
func (id SecretID) Prefix() string {
	if len(id) <= 8 {
		return string(id)
	}
	return string(id[:8])
}

func isValidID(s string) bool {
	if len(s) != 2*idBytes {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}
