package myMiddleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type stubValidator struct{}

func (stubValidator) ValidateToken(_ context.Context, token string) (int, string, error) {
	if token != "good" {
		return 0, "", errors.New("invalid session token")
	}
	return 5, "alice", nil
}

func protectedHandler(t *testing.T) http.Handler {
	t.Helper()
	return NewAuthMiddleware(stubValidator{}).Handle(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := r.Context().Value(UserKey); id != 5 {
			t.Errorf("UserKey = %v, want 5", id)
		}
		if name := r.Context().Value(UsernameKey); name != "alice" {
			t.Errorf("UsernameKey = %v, want alice", name)
		}
		w.WriteHeader(http.StatusOK)
	}))
}

func TestAuthMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		decorate func(*http.Request)
		want     int
	}{
		{"no token", func(r *http.Request) {}, http.StatusUnauthorized},
		{"cookie", func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: "session_token", Value: "good"})
		}, http.StatusOK},
		{"bearer header", func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer good")
		}, http.StatusOK},
		{"query param", func(r *http.Request) {
			q := r.URL.Query()
			q.Set("token", "good")
			r.URL.RawQuery = q.Encode()
		}, http.StatusOK},
		{"bad token", func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: "session_token", Value: "stale"})
		}, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/chats", nil)
			tt.decorate(req)
			rec := httptest.NewRecorder()
			protectedHandler(t).ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
