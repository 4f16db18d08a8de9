package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleRetrieve implements GET /api/secret/{id}. Each successful call spends
// one view.
func (h *Handler) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	res, err := h.Service.Retrieve(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.mapServiceError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, RetrieveResponse{
		Secret:         res.Secret,
		RemainingViews: res.RemainingViews,
	})
}
