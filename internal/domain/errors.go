// Package domain errors.go contains the error taxonomy shared by every layer.
package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Callers test membership with errors.Is; the concrete cause is
// kept behind the kind so transport layers can map without string matching.
var (
	// ErrNotFound covers absent, expired and exhausted secrets alike.
	ErrNotFound = errors.New("secret not found")
	// ErrValidation reports caller-supplied or stored input that is malformed.
	ErrValidation = errors.New("validation failed")
	// ErrCrypto reports an AEAD authentication or decoding failure.
	ErrCrypto = errors.New("decryption failed")
	// ErrStorage reports an unavailable backend or a violated constraint.
	ErrStorage = errors.New("storage error")
)

// Sentinel causes reused by higher layers.
var (
	ErrInvalidID       = errors.New("invalid secret id")
	ErrTTLInvalid      = errors.New("ttl invalid")
	ErrMaxViewsInvalid = errors.New("max views invalid")
	ErrIDCollision     = errors.New("secret id collision")
	ErrNotText         = errors.New("plaintext is not valid utf-8")
)

// Error is a classified error. Kind is one of the exported kind sentinels.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return e.Kind.Error()
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Validation wraps err as an ErrValidation.
func Validation(op string, err error) error { return &Error{Kind: ErrValidation, Op: op, Err: err} }

// Storage wraps err as an ErrStorage. A nil err yields nil.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: ErrStorage, Op: op, Err: err}
}

// Crypto wraps err as an ErrCrypto.
func Crypto(op string, err error) error { return &Error{Kind: ErrCrypto, Op: op, Err: err} }

// Retryable reports whether the caller may retry the operation. Only storage
// failures qualify; validation, crypto and not-found outcomes are terminal.
func Retryable(err error) bool { return errors.Is(err, ErrStorage) }
