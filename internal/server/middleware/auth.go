package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/alanyoungcy/predictd/internal/domain"
)

// userContextKey is the context key under which the authenticated user is
// stored. Unexported type prevents collisions with other packages.
type userContextKey struct{}

// UserLookup resolves an API token to a user record. Satisfied by
// domain.UserStore.
type UserLookup interface {
	GetByToken(ctx context.Context, token string) (domain.User, error)
}

// Auth returns middleware that authenticates requests by bearer token.
// A missing or malformed Authorization header yields 401 "Unauthorized";
// a token that resolves to no user yields 401 "Invalid token". On success
// the resolved user is attached to the request context.
func Auth(users UserLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeUnauthorized(w, "Unauthorized")
				return
			}

			user, err := users.GetByToken(r.Context(), token)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					writeUnauthorized(w, "Invalid token")
					return
				}
				// Store failure: do not leak details, fail closed.
				writeUnauthorized(w, "Invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), userContextKey{}, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserFrom extracts the authenticated user from the request context. The
// second return is false on routes that did not pass through Auth.
func UserFrom(ctx context.Context) (domain.User, bool) {
	user, ok := ctx.Value(userContextKey{}).(domain.User)
	return user, ok
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header. It returns "" for any other shape.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// writeUnauthorized sends a 401 response with a JSON error body.
func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
