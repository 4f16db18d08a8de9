package store

import (
	"context"
	"errors"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/haukened/vanish/internal/app"
	"github.com/haukened/vanish/internal/domain"
	"github.com/haukened/vanish/internal/metrics"
)

// Cipher is the subset of crypto.Service the store needs.
type Cipher interface {
	Encrypt(plaintext string) (ciphertext, nonce []byte, err error)
	Decrypt(ciphertext, nonce []byte) (string, error)
}

// DefaultPurgeBatch bounds a single purge delete statement.
const DefaultPurgeBatch = 500

// Options tunes a Store. The zero value is usable.
type Options struct {
	PurgeBatch int             // rows per purge batch; <= 0 uses DefaultPurgeBatch
	IDs        domain.IDSource // id generator; nil uses domain.NewID
	Recorder   app.Recorder    // optional metrics sink
	Logger     *slog.Logger    // optional; defaults to slog.Default()
}

// Store runs the secret lifecycle over a Backend and satisfies
// app.SecretStore.
type Store struct {
	backend Backend
	cipher  Cipher
	clock   app.Clock
	batch   int
	newID   domain.IDSource
	rec     app.Recorder
	log     *slog.Logger
}

var _ app.SecretStore = (*Store)(nil)

// New returns a Store. backend, cipher and clock are required.
func New(backend Backend, cipher Cipher, clock app.Clock, opts Options) *Store {
	if opts.PurgeBatch <= 0 {
		opts.PurgeBatch = DefaultPurgeBatch
	}
	if opts.IDs == nil {
		opts.IDs = domain.NewID
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Store{
		backend: backend,
		cipher:  cipher,
		clock:   clock,
		batch:   opts.PurgeBatch,
		newID:   opts.IDs,
		rec:     opts.Recorder,
		log:     opts.Logger.With("domain", "store"),
	}
}

var errNotInitialized = errors.New("store not properly initialized")

// Create encrypts plaintext and persists it with a fresh id, an expiry of
// now+ttl and view_count 0.
func (s *Store) Create(ctx context.Context, plaintext string, ttl time.Duration, maxViews int) (domain.SecretID, time.Time, error) {
	if s == nil || s.backend == nil || s.cipher == nil || s.clock == nil {
		return "", time.Time{}, errNotInitialized
	}
	if err := domain.ValidateTTL(ttl, 0); err != nil {
		return "", time.Time{}, domain.Validation("create", err)
	}
	if err := domain.ValidateMaxViews(maxViews, 0); err != nil {
		return "", time.Time{}, domain.Validation("create", err)
	}
	// Decrypt only returns text, so only text may be sealed.
	if !utf8.ValidString(plaintext) {
		return "", time.Time{}, domain.Validation("create", domain.ErrNotText)
	}
	id, err := s.newID()
	if err != nil {
		return "", time.Time{}, err
	}
	ct, nonce, err := s.cipher.Encrypt(plaintext)
	if err != nil {
		return "", time.Time{}, domain.Crypto("create", err)
	}
	now := s.clock.Now().UTC()
	rec := domain.SecretRecord{
		ID:         id,
		Ciphertext: ct,
		Nonce:      nonce,
		ExpiresAt:  domain.ExpiresAt(now, ttl),
		MaxViews:   maxViews,
		CreatedAt:  now,
	}
	if err := s.backend.Insert(ctx, rec); err != nil {
		return "", time.Time{}, err
	}
	s.inc(metrics.CounterSecretsCreated, 1)
	return id, rec.ExpiresAt, nil
}

// deletion reasons, shared by lazy deletion and purge so both paths account
// identically.
type deleteReason int

const (
	reasonExpired deleteReason = iota
	reasonExhausted
)

// Consume returns the plaintext for id and the views left after this one.
// Expired or exhausted records found here are deleted and reported as
// domain.ErrNotFound. A decrypt failure leaves the record as it was.
func (s *Store) Consume(ctx context.Context, id domain.SecretID) (string, int, error) {
	if s == nil || s.backend == nil || s.cipher == nil || s.clock == nil {
		return "", 0, errNotInitialized
	}
	now := s.clock.Now()
	var (
		plaintext string
		remaining int
		gone      bool
		reason    deleteReason
		final     bool
	)
	err := s.backend.Consume(ctx, id, func(rec domain.SecretRecord) (Mutation, error) {
		plaintext, remaining, gone, final = "", 0, false, false
		if rec.Expired(now) {
			gone, reason = true, reasonExpired
			return MutationDelete, nil
		}
		if rec.Exhausted() {
			gone, reason = true, reasonExhausted
			return MutationDelete, nil
		}
		pt, err := s.cipher.Decrypt(rec.Ciphertext, rec.Nonce)
		if err != nil {
			return 0, err
		}
		next := rec.ViewCount + 1
		plaintext, remaining = pt, rec.MaxViews-next
		if next >= rec.MaxViews {
			final = true
			return MutationDelete, nil
		}
		return MutationIncrement, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
		case errors.Is(err, domain.ErrStorage):
			s.log.Error("consume", "id", id.Prefix(), "error_kind", kindOf(err))
		default:
			// Decrypt failures are logged without the id.
			s.log.Error("consume", "error_kind", kindOf(err))
		}
		return "", 0, err
	}
	if gone {
		s.noteDeleted(reason, 1)
		s.log.Debug("lazy delete", "id", id.Prefix(), "reason", reason.String())
		return "", 0, domain.ErrNotFound
	}
	s.inc(metrics.CounterSecretsConsumed, 1)
	if final {
		s.noteDeleted(reasonExhausted, 1)
	}
	return plaintext, remaining, nil
}

// PurgeExpired deletes every record whose expiry is before now, in batches of
// at most the configured size, and returns the total removed.
func (s *Store) PurgeExpired(ctx context.Context) (int, error) {
	if s == nil || s.backend == nil || s.clock == nil {
		return 0, errNotInitialized
	}
	now := s.clock.Now()
	total := 0
	for {
		n, err := s.backend.DeleteExpired(ctx, now, s.batch)
		total += n
		if err != nil {
			s.noteDeleted(reasonExpired, total)
			return total, err
		}
		if n < s.batch {
			break
		}
		if err := ctx.Err(); err != nil {
			s.noteDeleted(reasonExpired, total)
			return total, err
		}
	}
	s.noteDeleted(reasonExpired, total)
	return total, nil
}

// Ping reports backend reachability.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.backend == nil {
		return errNotInitialized
	}
	return s.backend.Ping(ctx)
}

func (s *Store) noteDeleted(reason deleteReason, n int) {
	if n <= 0 {
		return
	}
	switch reason {
	case reasonExpired:
		s.inc(metrics.CounterSecretsExpiredDelete, int64(n))
	case reasonExhausted:
		s.inc(metrics.CounterSecretsExhausted, int64(n))
	}
}

func (s *Store) inc(name string, delta int64) {
	if s.rec != nil {
		s.rec.Inc(name, delta)
	}
}

func (r deleteReason) String() string {
	if r == reasonExhausted {
		return "exhausted"
	}
	return "expired"
}

// kindOf names the taxonomy class of err for logs without exposing its text.
func kindOf(err error) string {
	switch {
	case errors.Is(err, domain.ErrCrypto):
		return "crypto"
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case errors.Is(err, domain.ErrStorage):
		return "storage"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "context"
	}
	return "unknown"
}
