package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/haukened/vanish/internal/domain"
)

// writeJSON writes v as a JSON body with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error body with given status code.
func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, ErrorResponse{Error: msg})
	if cid, ok := GetCorrelationID(ctx); ok {
		slog.Debug("wrote error response", "cid", cid, "status", code, "msg", msg)
	}
}

// mapServiceError maps domain/service errors to HTTP responses. Only request
// validation is reported to the client; decrypt-time validation, crypto and
// storage failures all collapse to 500 "internal".
func (h *Handler) mapServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	cid, _ := GetCorrelationID(ctx)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		slog.Info("service error", "cid", cid, "code", "not_found")
		h.writeError(ctx, w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrTTLInvalid):
		slog.Warn("service error", "cid", cid, "code", "ttl_invalid")
		h.writeError(ctx, w, http.StatusBadRequest, "ttl invalid")
	case errors.Is(err, domain.ErrMaxViewsInvalid):
		slog.Warn("service error", "cid", cid, "code", "max_views_invalid")
		h.writeError(ctx, w, http.StatusBadRequest, "max views invalid")
	case errors.Is(err, domain.ErrNotText):
		slog.Warn("service error", "cid", cid, "code", "not_text")
		h.writeError(ctx, w, http.StatusBadRequest, "secret must be text")
	default:
		// Do not log the raw error string; it may carry ids.
		slog.Error("unhandled service error", "cid", cid, "code", "internal", "kind", errorKind(err), "retryable", domain.Retryable(err))
		h.writeError(ctx, w, http.StatusInternalServerError, "internal")
	}
}

// errorKind names the taxonomy class of err for logs.
func errorKind(err error) string {
	switch {
	case errors.Is(err, domain.ErrStorage):
		return "storage"
	case errors.Is(err, domain.ErrCrypto):
		return "crypto"
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	}
	return "unknown"
}
