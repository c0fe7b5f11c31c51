package myMiddleware

import (
	"context"
	"net/http"
	"strings"
)

// Context keys (exported so other packages can read them)
type contextKey string

const (
	UserKey     contextKey = "user_id"
	UsernameKey contextKey = "username"
)

// TokenValidator is what we need from the user service.
// This interface decouples 'middleware' from 'user'.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (int, string, error)
}

type AuthMiddleware struct {
	validator TokenValidator
}

func NewAuthMiddleware(v TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{validator: v}
}

// Handle resolves the session token (cookie, then Authorization header, then
// query param) and injects the user into the request context.
func (am *AuthMiddleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := ""

		if c, err := r.Cookie("session_token"); err == nil {
			tokenString = c.Value
		}

		if tokenString == "" {
			authHeader := r.Header.Get("Authorization")
			if authHeader != "" {
				parts := strings.Split(authHeader, " ")
				if len(parts) == 2 {
					tokenString = parts[1]
				}
			}
		}

		if tokenString == "" {
			tokenString = r.URL.Query().Get("token")
		}

		if tokenString == "" {
			http.Error(w, "Missing session token", http.StatusUnauthorized)
			return
		}

		userID, username, err := am.validator.ValidateToken(r.Context(), tokenString)
		if err != nil {
			http.Error(w, "Invalid session", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), UserKey, userID)
		ctx = context.WithValue(ctx, UsernameKey, username)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
