// Package app contains the application orchestration layer. It applies
// request defaults and limits, then delegates to the SecretStore port without
// performing any I/O itself.
package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/haukened/vanish/internal/domain"
)

// Defaults applied when a share request leaves a field unset.
const (
	DefaultTTL      = 60 * time.Minute
	DefaultMaxViews = 1
)

// ShareInput is a request to store a secret. Nil fields take the service
// defaults.
type ShareInput struct {
	Secret        string
	ExpireMinutes *int
	MaxViews      *int
}

// ShareResult describes a stored secret. It never carries the plaintext.
type ShareResult struct {
	ID        domain.SecretID
	URL       string
	ExpiresAt time.Time
	MaxViews  int
}

// RetrieveResult is one successful view of a secret.
type RetrieveResult struct {
	Secret         string
	RemainingViews int
}

// Service orchestrates sharing and retrieval using the injected store.
type Service struct {
	Store           SecretStore
	DefaultTTL      time.Duration // applied when ExpireMinutes is nil
	DefaultMaxViews int           // applied when MaxViews is nil
	MaxTTL          time.Duration // 0 disables the bound
	MaxViewsLimit   int           // 0 disables the bound
	PublicURL       string        // base for share links, e.g. https://vanish.example
}

var errNoStore = errors.New("service has no store")

// Share validates the request, applies defaults and stores the secret.
func (s *Service) Share(ctx context.Context, in ShareInput) (ShareResult, error) {
	if s.Store == nil {
		return ShareResult{}, errNoStore
	}
	def := s.DefaultTTL
	if def <= 0 {
		def = DefaultTTL
	}
	ttl, err := domain.TTLFromMinutes(in.ExpireMinutes, def)
	if err == nil {
		err = domain.ValidateTTL(ttl, s.MaxTTL)
	}
	if err != nil {
		return ShareResult{}, domain.Validation("share", err)
	}
	views := s.DefaultMaxViews
	if views <= 0 {
		views = DefaultMaxViews
	}
	if in.MaxViews != nil {
		views = *in.MaxViews
	}
	if err := domain.ValidateMaxViews(views, s.MaxViewsLimit); err != nil {
		return ShareResult{}, domain.Validation("share", err)
	}
	id, expiresAt, err := s.Store.Create(ctx, in.Secret, ttl, views)
	if err != nil {
		return ShareResult{}, err
	}
	return ShareResult{ID: id, URL: s.ShareURL(id), ExpiresAt: expiresAt, MaxViews: views}, nil
}

// Retrieve spends one view of the secret identified by idStr. Malformed ids
// are reported exactly like unknown ones.
func (s *Service) Retrieve(ctx context.Context, idStr string) (RetrieveResult, error) {
	if s.Store == nil {
		return RetrieveResult{}, errNoStore
	}
	id, err := domain.ParseID(idStr)
	if err != nil {
		return RetrieveResult{}, domain.ErrNotFound
	}
	pt, remaining, err := s.Store.Consume(ctx, id)
	if err != nil {
		return RetrieveResult{}, err
	}
	return RetrieveResult{Secret: pt, RemainingViews: remaining}, nil
}

// Purge removes expired secrets. It is the entry point for the janitor.
func (s *Service) Purge(ctx context.Context) (int, error) {
	if s.Store == nil {
		return 0, errNoStore
	}
	return s.Store.PurgeExpired(ctx)
}

// ShareURL formats the public link for id. An empty PublicURL yields "".
func (s *Service) ShareURL(id domain.SecretID) string {
	if s.PublicURL == "" {
		return ""
	}
	return strings.TrimRight(s.PublicURL, "/") + "/secret/" + id.String()
}
