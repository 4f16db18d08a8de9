package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/haukened/vanish/internal/app"
)

var validate = newValidator()

// newValidator reports field errors by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// handleShare implements POST /api/share.
func (h *Handler) handleShare(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req ShareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, http.StatusBadRequest, "invalid json body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		h.writeError(ctx, w, http.StatusBadRequest, requestErrorMessage(err))
		return
	}
	res, err := h.Service.Share(ctx, app.ShareInput{
		Secret:        *req.Secret,
		ExpireMinutes: req.ExpireMinutes,
		MaxViews:      req.MaxViews,
	})
	if err != nil {
		h.mapServiceError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ShareResponse{
		ID:        res.ID.String(),
		URL:       res.URL,
		ExpiresAt: res.ExpiresAt,
		MaxViews:  res.MaxViews,
	})
}

// requestErrorMessage turns the first validation failure into a client message.
func requestErrorMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "gt":
		return fe.Field() + " must be positive"
	}
	return fe.Field() + " is invalid"
}
