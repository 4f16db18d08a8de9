// Package storetest is a conformance suite for store.Backend implementations.
// Each backend's tests call Run with a constructor; the suite drives the
// backend through store.Store with a real cipher and a controllable clock.
package storetest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/haukened/vanish/internal/crypto"
	"github.com/haukened/vanish/internal/domain"
	"github.com/haukened/vanish/internal/store"
)

// Clock is a settable app.Clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a Clock fixed at t.
func NewClock(t time.Time) *Clock { return &Clock{now: t} }

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Factory returns a fresh, empty backend for one subtest.
type Factory func(t *testing.T) store.Backend

// Run executes the full conformance suite against backends built by newBackend.
func Run(t *testing.T, newBackend Factory) {
	t.Helper()
	tests := []struct {
		name string
		fn   func(t *testing.T, newBackend Factory)
	}{
		{"ViewBudget", testViewBudget},
		{"UnknownID", testUnknownID},
		{"LazyExpiry", testLazyExpiry},
		{"ConcurrentLastView", testConcurrentLastView},
		{"ConcurrentMultiView", testConcurrentMultiView},
		{"PurgeExpired", testPurgeExpired},
		{"PurgeBatches", testPurgeBatches},
		{"IDCollision", testIDCollision},
		{"DecryptFailureLeavesRecord", testDecryptFailureLeavesRecord},
		{"ExhaustedLeftoverDeleted", testExhaustedLeftover},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) { tc.fn(t, newBackend) })
	}
}

func newCipher(t *testing.T) *crypto.Service {
	t.Helper()
	c, err := crypto.New(crypto.AES256GCM)
	if err != nil {
		t.Fatalf("crypto.New: %v", err)
	}
	return c
}

var epoch = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

func testViewBudget(t *testing.T, newBackend Factory) {
	ctx := context.Background()
	for _, views := range []int{1, 2, 5} {
		clk := NewClock(epoch)
		st := store.New(newBackend(t), newCipher(t), clk, store.Options{})
		id, exp, err := st.Create(ctx, "pässwörd ✓", 10*time.Minute, views)
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if !exp.Equal(epoch.Add(10 * time.Minute)) {
			t.Fatalf("expiry %v want %v", exp, epoch.Add(10*time.Minute))
		}
		for i := 1; i <= views; i++ {
			clk.Advance(time.Second)
			pt, remaining, err := st.Consume(ctx, id)
			if err != nil {
				t.Fatalf("views=%d consume %d: %v", views, i, err)
			}
			if pt != "pässwörd ✓" {
				t.Fatalf("plaintext mismatch %q", pt)
			}
			if remaining != views-i {
				t.Fatalf("views=%d consume %d: remaining %d want %d", views, i, remaining, views-i)
			}
		}
		if _, _, err := st.Consume(ctx, id); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("views=%d: consume past budget: expected ErrNotFound, got %v", views, err)
		}
	}
}

func testUnknownID(t *testing.T, newBackend Factory) {
	st := store.New(newBackend(t), newCipher(t), NewClock(epoch), store.Options{})
	id, _ := domain.NewID()
	if _, _, err := st.Consume(context.Background(), id); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testLazyExpiry(t *testing.T, newBackend Factory) {
	ctx := context.Background()
	clk := NewClock(epoch)
	b := newBackend(t)
	st := store.New(b, newCipher(t), clk, store.Options{})
	id, _, err := st.Create(ctx, "soon gone", time.Minute, 3)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	clk.Advance(time.Minute + time.Second)
	if _, _, err := st.Consume(ctx, id); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after expiry, got %v", err)
	}
	// The lazy path must have removed the row: a purge finds nothing.
	n, err := st.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("PurgeExpired: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected lazy delete to have removed the record, purge removed %d", n)
	}
}

func testConcurrentLastView(t *testing.T, newBackend Factory) {
	ctx := context.Background()
	st := store.New(newBackend(t), newCipher(t), NewClock(epoch), store.Options{})
	id, _, err := st.Create(ctx, "only once", time.Hour, 1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	const n = 32
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		notFound  atomic.Int32
		start     = make(chan struct{})
		errs      = make(chan error, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			pt, remaining, err := st.Consume(ctx, id)
			switch {
			case err == nil:
				if pt != "only once" || remaining != 0 {
					errs <- errors.New("bad successful result")
				}
				successes.Add(1)
			case errors.Is(err, domain.ErrNotFound):
				notFound.Add(1)
			default:
				errs <- err
			}
		}()
	}
	close(start)
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("unexpected consume error: %v", err)
	}
	if successes.Load() != 1 || notFound.Load() != n-1 {
		t.Fatalf("successes=%d notFound=%d, want 1/%d", successes.Load(), notFound.Load(), n-1)
	}
}

func testConcurrentMultiView(t *testing.T, newBackend Factory) {
	ctx := context.Background()
	st := store.New(newBackend(t), newCipher(t), NewClock(epoch), store.Options{})
	const views = 5
	id, _, err := st.Create(ctx, "five times", time.Hour, views)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	const n = 40
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		seen    = map[int]int{}
		start   = make(chan struct{})
		failErr atomic.Value
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, remaining, err := st.Consume(ctx, id)
			if err != nil {
				if !errors.Is(err, domain.ErrNotFound) {
					failErr.Store(err)
				}
				return
			}
			mu.Lock()
			seen[remaining]++
			mu.Unlock()
		}()
	}
	close(start)
	wg.Wait()
	if v := failErr.Load(); v != nil {
		t.Fatalf("unexpected consume error: %v", v)
	}
	if len(seen) != views {
		t.Fatalf("expected %d successful views, got %v", views, seen)
	}
	for r := 0; r < views; r++ {
		if seen[r] != 1 {
			t.Fatalf("remaining=%d observed %d times (%v)", r, seen[r], seen)
		}
	}
}

func testPurgeExpired(t *testing.T, newBackend Factory) {
	ctx := context.Background()
	clk := NewClock(epoch)
	st := store.New(newBackend(t), newCipher(t), clk, store.Options{})
	const k = 7
	// Backdate by creating in the past and then moving the clock forward.
	for i := 0; i < k; i++ {
		if _, _, err := st.Create(ctx, "old", time.Minute, 1); err != nil {
			t.Fatalf("Create old: %v", err)
		}
	}
	clk.Advance(2 * time.Minute)
	var live []domain.SecretID
	for i := 0; i < 3; i++ {
		id, _, err := st.Create(ctx, "live", time.Hour, 2)
		if err != nil {
			t.Fatalf("Create live: %v", err)
		}
		live = append(live, id)
	}
	n, err := st.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("PurgeExpired: %v", err)
	}
	if n != k {
		t.Fatalf("purged %d want %d", n, k)
	}
	// Idempotent: a second sweep removes nothing and is not an error.
	if n, err := st.PurgeExpired(ctx); err != nil || n != 0 {
		t.Fatalf("second purge = %d, %v", n, err)
	}
	for _, id := range live {
		if _, remaining, err := st.Consume(ctx, id); err != nil || remaining != 1 {
			t.Fatalf("live record %s disturbed: remaining=%d err=%v", id.Prefix(), remaining, err)
		}
	}
}

func testPurgeBatches(t *testing.T, newBackend Factory) {
	ctx := context.Background()
	clk := NewClock(epoch)
	st := store.New(newBackend(t), newCipher(t), clk, store.Options{PurgeBatch: 3})
	const k = 10
	for i := 0; i < k; i++ {
		if _, _, err := st.Create(ctx, "old", time.Minute, 1); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	clk.Advance(time.Hour)
	n, err := st.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("PurgeExpired: %v", err)
	}
	if n != k {
		t.Fatalf("batched purge removed %d want %d", n, k)
	}
}

func testIDCollision(t *testing.T, newBackend Factory) {
	ctx := context.Background()
	fixed := domain.SecretID("00112233445566778899aabbccddeeff")
	ids := func() (domain.SecretID, error) { return fixed, nil }
	st := store.New(newBackend(t), newCipher(t), NewClock(epoch), store.Options{IDs: ids})
	if _, _, err := st.Create(ctx, "first", time.Hour, 1); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	_, _, err := st.Create(ctx, "second", time.Hour, 1)
	if !errors.Is(err, domain.ErrIDCollision) || !errors.Is(err, domain.ErrStorage) {
		t.Fatalf("expected storage error wrapping ErrIDCollision, got %v", err)
	}
	pt, _, err := st.Consume(ctx, fixed)
	if err != nil || pt != "first" {
		t.Fatalf("original record overwritten: %q %v", pt, err)
	}
}

func testDecryptFailureLeavesRecord(t *testing.T, newBackend Factory) {
	ctx := context.Background()
	b := newBackend(t)
	clk := NewClock(epoch)
	writer := store.New(b, newCipher(t), clk, store.Options{})
	id, _, err := writer.Create(ctx, "sealed", time.Hour, 2)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	// A store with a different key simulates a restarted process.
	reader := store.New(b, newCipher(t), clk, store.Options{})
	_, _, err = reader.Consume(ctx, id)
	if !errors.Is(err, domain.ErrCrypto) {
		t.Fatalf("expected ErrCrypto, got %v", err)
	}
	if errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("decrypt failure must not look like not-found")
	}
	// The original key still sees both views.
	for want := 1; want >= 0; want-- {
		_, remaining, err := writer.Consume(ctx, id)
		if err != nil || remaining != want {
			t.Fatalf("view budget changed by failed decrypt: remaining=%d err=%v", remaining, err)
		}
	}
}

// testExhaustedLeftover inserts a row whose view budget is already spent,
// as an older writer might have left behind, and checks it is removed.
func testExhaustedLeftover(t *testing.T, newBackend Factory) {
	ctx := context.Background()
	b := newBackend(t)
	c := newCipher(t)
	ct, nonce, err := c.Encrypt("leftover")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	id, _ := domain.NewID()
	rec := domain.SecretRecord{ID: id, Ciphertext: ct, Nonce: nonce, ExpiresAt: epoch.Add(time.Hour), MaxViews: 2, ViewCount: 2, CreatedAt: epoch}
	if err := b.Insert(ctx, rec); err != nil {
		// Backends that enforce view_count < max_views at the storage layer
		// reject the row outright, which is equally acceptable.
		if errors.Is(err, domain.ErrStorage) {
			return
		}
		t.Fatalf("Insert: %v", err)
	}
	st := store.New(b, c, NewClock(epoch), store.Options{})
	if _, _, err := st.Consume(ctx, id); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for exhausted row, got %v", err)
	}
	err = b.Consume(ctx, id, func(domain.SecretRecord) (store.Mutation, error) {
		return 0, errors.New("record should be gone")
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("exhausted row not deleted: %v", err)
	}
}
