package domain

import (
	"errors"
	"testing"
)

func TestErrorKinds(t *testing.T) {
	cause := errors.New("disk on fire")
	err := Storage("sqlite.insert", cause)
	if !errors.Is(err, ErrStorage) {
		t.Fatalf("expected ErrStorage kind")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be reachable")
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatalf("storage error must not match ErrNotFound")
	}
	if !Retryable(err) {
		t.Fatalf("storage errors are retryable")
	}
	if got := err.Error(); got != "sqlite.insert: storage error: disk on fire" {
		t.Fatalf("unexpected message %q", got)
	}

	v := Validation("share", ErrTTLInvalid)
	if !errors.Is(v, ErrValidation) || !errors.Is(v, ErrTTLInvalid) {
		t.Fatalf("validation error lost its kind or cause")
	}
	if Retryable(v) {
		t.Fatalf("validation errors are terminal")
	}

	if Storage("noop", nil) != nil {
		t.Fatalf("Storage(nil) should be nil")
	}

	c := Crypto("", nil)
	if c.Error() != ErrCrypto.Error() {
		t.Fatalf("bare crypto error message: %q", c.Error())
	}
	var de *Error
	if !errors.As(c, &de) || de.Kind != ErrCrypto {
		t.Fatalf("errors.As should expose *Error")
	}
}
