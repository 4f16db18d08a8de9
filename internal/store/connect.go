package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Connect calls ping until it succeeds, making at most attempts tries and
// doubling the wait between them starting from backoff. It gives up early if
// ctx is done.
func Connect(ctx context.Context, attempts int, backoff time.Duration, ping func(context.Context) error, log *slog.Logger) error {
	if attempts < 1 {
		attempts = 1
	}
	if log == nil {
		log = slog.Default()
	}
	var err error
	for i := 1; i <= attempts; i++ {
		if err = ping(ctx); err == nil {
			if i > 1 {
				log.Info("store reachable", "domain", "store", "attempt", i)
			}
			return nil
		}
		if i == attempts {
			break
		}
		log.Warn("store unreachable, retrying", "domain", "store", "attempt", i, "wait", backoff, "error", err)
		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		backoff *= 2
	}
	return fmt.Errorf("store unreachable after %d attempts: %w", attempts, err)
}
