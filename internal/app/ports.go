// Package app defines the application layer "ports" (interfaces) and simple
// data contracts that the core use-cases depend upon. It follows a hexagonal
// (ports & adapters) design: this package declares what the core needs, while
// adapter packages (storage backends, HTTP layer, janitor) provide concrete
// implementations. No I/O, SQL, or network concerns belong here.
package app

import (
	"context"
	"time"

	"github.com/haukened/vanish/internal/domain"
)

// Clock abstracts time to enable deterministic testing of expiry logic.
type Clock interface {
	// Now returns the current wall-clock time.
	Now() time.Time
}

// SecretStore is the lifecycle port for secrets. Implementations encrypt on
// create and enforce expiry and the view budget on consume.
type SecretStore interface {
	// Create encrypts and persists plaintext, returning the new id and its
	// absolute expiry. ttl and maxViews must be positive.
	Create(ctx context.Context, plaintext string, ttl time.Duration, maxViews int) (domain.SecretID, time.Time, error)

	// Consume atomically spends one view of id and returns the plaintext and
	// the views remaining afterwards. Absent, expired and exhausted secrets
	// all yield domain.ErrNotFound. No two callers can together succeed more
	// than max_views times.
	Consume(ctx context.Context, id domain.SecretID) (plaintext string, remaining int, err error)

	// PurgeExpired removes every secret past its expiry and returns the
	// count removed. Safe to run concurrently with Consume.
	PurgeExpired(ctx context.Context) (int, error)

	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error
}

// Recorder receives metric events. *metrics.Manager satisfies it.
type Recorder interface {
	Inc(name string, delta int64)
	Observe(name string, value int64)
}
