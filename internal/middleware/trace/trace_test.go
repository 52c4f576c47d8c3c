package trace

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	applog "centsible/internal/log"
)

func TestMiddleware_RequestID(t *testing.T) {
	m := NewMiddleware(func(r *http.Request) string { return "127.0.0.1" }, applog.Discard())

	var seen string
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	incoming := uuid.NewString()
	tests := []struct {
		name   string
		header string
		reuse  bool
	}{
		{"generated", "", false},
		{"valid incoming id", incoming, true},
		{"garbage incoming id", "not-a-uuid", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set(HeaderRequestID, tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if _, err := uuid.Parse(seen); err != nil {
				t.Fatalf("request id %q is not a uuid", seen)
			}
			if got := rec.Header().Get(HeaderRequestID); got != seen {
				t.Fatalf("response header %q, context %q", got, seen)
			}
			if tt.reuse && seen != tt.header {
				t.Fatalf("incoming id not reused: %q", seen)
			}
			if !tt.reuse && seen == tt.header {
				t.Fatalf("invalid id reused")
			}
		})
	}

	if got := m.GetMetrics().TotalRequests; got != 3 {
		t.Fatalf("TotalRequests = %d", got)
	}
}

func TestMiddleware_CountsServerErrors(t *testing.T) {
	m := NewMiddleware(nil, applog.Discard())
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.WriteHeader(http.StatusOK)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if got := m.GetMetrics().ServerErrors; got != 1 {
		t.Fatalf("ServerErrors = %d", got)
	}
}

func TestGetRequestID_Empty(t *testing.T) {
	if id := GetRequestID(httptest.NewRequest(http.MethodGet, "/", nil).Context()); id != "" {
		t.Fatalf("id = %q", id)
	}
}
