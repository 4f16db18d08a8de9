// Package store defines the persistence port that concrete backends (SQLite,
// Redis, in-memory) implement, and the Store that runs the secret lifecycle
// on top of it. Callers outside this package interact only with the
// app.SecretStore implementation, not these internal details.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/haukened/vanish/internal/domain"
)

// Mutation is the change a ConsumeFunc asks the backend to apply.
type Mutation int

const (
	// MutationIncrement persists view_count+1.
	MutationIncrement Mutation = iota + 1
	// MutationDelete removes the record.
	MutationDelete
)

func (m Mutation) String() string {
	switch m {
	case MutationIncrement:
		return "increment"
	case MutationDelete:
		return "delete"
	}
	return "unknown"
}

// ConsumeFunc inspects a loaded record and decides what happens to it. A
// non-nil error aborts the unit with no mutation and is returned to the
// caller unchanged. Backends using optimistic concurrency may invoke it more
// than once per Consume, so it must not have side effects beyond its return
// values.
type ConsumeFunc func(rec domain.SecretRecord) (Mutation, error)

// Backend abstracts the single secrets table/collection.
type Backend interface {
	// Insert stores a new record. An existing id must produce an error
	// wrapping domain.ErrIDCollision; it is never overwritten.
	Insert(ctx context.Context, rec domain.SecretRecord) error

	// Consume loads the record for id, passes it to fn and applies the
	// returned mutation as one atomic unit with respect to other Consume and
	// DeleteExpired calls on the same id. Returns domain.ErrNotFound when the
	// record is absent.
	Consume(ctx context.Context, id domain.SecretID, fn ConsumeFunc) error

	// DeleteExpired removes up to limit records whose expiry is strictly
	// before the given instant and returns how many were removed. A limit
	// <= 0 removes all of them.
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
}

// ErrConflict is the cause reported when a backend could not apply a
// mutation because the record changed underneath it.
var ErrConflict = errors.New("concurrent modification")
