package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func TestCorrelationIDMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		inbound  string
		wantSame bool
	}{
		{name: "generate when header missing"},
		{name: "reuse inbound header", inbound: "abc123", wantSame: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ctxID string
			final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				id, ok := GetCorrelationID(r.Context())
				if !ok {
					t.Errorf("expected correlation ID in context")
				}
				ctxID = id
			})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.inbound != "" {
				req.Header.Set(CorrelationIDHeader, tt.inbound)
			}
			rr := httptest.NewRecorder()
			CorrelationIDMiddleware(final).ServeHTTP(rr, req)

			got := rr.Result().Header.Get(CorrelationIDHeader)
			switch {
			case got == "":
				t.Fatalf("expected response header %s to be set", CorrelationIDHeader)
			case tt.wantSame && got != tt.inbound:
				t.Errorf("expected inbound value %q, got %q", tt.inbound, got)
			case !tt.wantSame:
				if _, err := uuid.Parse(got); err != nil {
					t.Errorf("generated correlation ID %q is not a UUID: %v", got, err)
				}
			}
			if ctxID != got {
				t.Errorf("context ID %q != response header %q", ctxID, got)
			}
		})
	}
}

func TestGetCorrelationIDAbsent(t *testing.T) {
	if id, ok := GetCorrelationID(context.Background()); ok || id != "" {
		t.Fatalf("expected no correlation id, got %q", id)
	}
}

// Error responses carry the same correlation id the client sees.
func TestCorrelationIDOnErrorResponse(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/does-not-exist", nil)
	req.Header.Set(CorrelationIDHeader, "trace-1")
	New(nil, nil).Router().ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rr.Code)
	}
	if rr.Header().Get(CorrelationIDHeader) != "trace-1" {
		t.Fatalf("correlation id not echoed: %q", rr.Header().Get(CorrelationIDHeader))
	}
}
