package domain

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseID(t *testing.T) {
	valid, err := ParseID("0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !valid.Valid() {
		t.Fatalf("Valid() returned false for a valid id")
	}

	cases := []string{"", "short", "XYZ", "0123456789ABCDEF0123456789ABCDEF", "0123456789abcdef0123456789abcdeg", "0123456789abcdef0123456789abcdef0"}
	for _, c := range cases {
		if _, err := ParseID(c); err != ErrInvalidID {
			t.Errorf("expected ErrInvalidID for %q, got %v", c, err)
		}
	}
}

// TestNewIDUnique draws a large sample and checks for collisions and format.
func TestNewIDUnique(t *testing.T) {
	const n = 20000
	seen := make(map[SecretID]struct{}, n)
	for i := 0; i < n; i++ {
		id, err := NewID()
		if err != nil {
			t.Fatalf("NewID error: %v", err)
		}
		if !id.Valid() {
			t.Fatalf("generated id invalid: %s", id)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id generated after %d draws: %s", i, id)
		}
		seen[id] = struct{}{}
	}
}

func TestNewIDFromDeterministic(t *testing.T) {
	src := bytes.NewReader(bytes.Repeat([]byte{0xab}, 16))
	id, err := NewIDFrom(src)
	if err != nil {
		t.Fatalf("NewIDFrom: %v", err)
	}
	if want := SecretID(strings.Repeat("ab", 16)); id != want {
		t.Fatalf("got %s want %s", id, want)
	}
	// Short reader must fail rather than return a low-entropy id.
	if _, err := NewIDFrom(bytes.NewReader([]byte{1, 2, 3})); err == nil {
		t.Fatalf("expected error from short reader")
	}
}

func TestSecretIDPrefix(t *testing.T) {
	id := SecretID("0123456789abcdef0123456789abcdef")
	if id.Prefix() != "01234567" {
		t.Fatalf("prefix mismatch: %s", id.Prefix())
	}
	if SecretID("abc").Prefix() != "abc" {
		t.Fatalf("short prefix mismatch")
	}
}
