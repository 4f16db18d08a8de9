// Package httpx contains the HTTP delivery layer (chi router and net/http
// handlers) for the vanish service. It maps JSON requests to the application
// service while enforcing request validation, security headers, CORS and
// error translation.
// Handlers are split across files (share.go, retrieve.go, health.go, errors.go).
package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/haukened/vanish/internal/app"
)

// ServicePort abstracts the subset of app.Service used by the HTTP layer.
// It is satisfied by *app.Service in production and mocked in tests.
type ServicePort interface {
	Share(ctx context.Context, in app.ShareInput) (app.ShareResult, error)
	Retrieve(ctx context.Context, id string) (app.RetrieveResult, error)
}

// ShareRequest is the body of POST /api/share. Omitted numeric fields take
// the service defaults.
type ShareRequest struct {
	Secret        *string `json:"secret" validate:"required"`
	ExpireMinutes *int    `json:"expire_minutes,omitempty" validate:"omitempty,gt=0"`
	MaxViews      *int    `json:"max_views,omitempty" validate:"omitempty,gt=0"`
}

// ShareResponse is returned with 201 Created.
type ShareResponse struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
	MaxViews  int       `json:"max_views"`
}

// RetrieveResponse is returned by GET /api/secret/{id}.
type RetrieveResponse struct {
	Secret         string `json:"secret"`
	RemainingViews int    `json:"remaining_views"`
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Handler wires HTTP endpoints to the application service.
// It is safe for concurrent use. Zero-value is not valid; construct via New.
type Handler struct {
	Service   ServicePort
	Readiness func(context.Context) error // backend ping behind /readyz; nil means always ready
	Metrics   http.Handler                // optional, mounted at /metrics
}

// New returns a configured Handler.
// svc: application service port implementation.
// readiness: backend ping run by /readyz, usually the store's Ping.
func New(svc ServicePort, readiness func(context.Context) error) *Handler {
	return &Handler{Service: svc, Readiness: readiness}
}

// Router constructs and returns an http.Handler with all routes mounted and
// the middleware chain applied.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(CorrelationIDMiddleware)
	r.Use(h.secureHeaders)
	r.Use(h.cors)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		h.writeError(r.Context(), w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		h.writeError(r.Context(), w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/share", h.handleShare)
		r.Get("/secret/{id}", h.handleRetrieve)
	})
	r.Get("/healthz", h.handleHealth)
	r.Get("/readyz", h.handleReady)
	if h.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.Metrics)
	}
	return r
}
