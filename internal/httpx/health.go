package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/haukened/vanish/internal/domain"
)

// pingTimeout bounds one backend round trip made on behalf of /readyz.
const pingTimeout = 2 * time.Second

// handleHealth answers 200 while the process serves requests. It never
// touches the storage backend.
func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReady pings the storage backend and answers 503 "not ready" when the
// ping fails or outlives pingTimeout. A Handler built without a backend ping
// is always ready.
func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	if h.Readiness != nil {
		ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
		err := h.Readiness(ctx)
		cancel()
		if err != nil {
			cid, _ := GetCorrelationID(r.Context())
			slog.Warn("backend ping failed", "cid", cid, "kind", errorKind(err), "retryable", domain.Retryable(err))
			h.writeError(r.Context(), w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
