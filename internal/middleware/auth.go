package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/drosic/taskman/internal/auth"
	"github.com/drosic/taskman/internal/httpx"
	"github.com/drosic/taskman/internal/models"
)

type ctxKey int

const sessionKey ctxKey = iota

// Session is the authenticated identity attached to the request context:
// the loaded user plus the exact token that authenticated this request, so
// logout can revoke that token and no other.
type Session struct {
	User  *models.User
	Token string
}

// RequireAuth validates the bearer token and injects the session into the
// request context. Requests without a valid token never reach the handler.
func RequireAuth(issuer *auth.Issuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add("Vary", "Authorization")
			header := r.Header.Get("Authorization")
			parts := strings.Fields(header)
			if len(parts) != 2 || parts[0] != "Bearer" {
				httpx.Error(w, http.StatusUnauthorized, "please authenticate")
				return
			}

			user, err := issuer.Verify(r.Context(), parts[1])
			if err != nil {
				httpx.Error(w, http.StatusUnauthorized, "please authenticate")
				return
			}

			ctx := context.WithValue(r.Context(), sessionKey, &Session{User: user, Token: parts[1]})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionFrom returns the session attached by RequireAuth, or nil on
// unauthenticated routes.
func SessionFrom(r *http.Request) *Session {
	s, _ := r.Context().Value(sessionKey).(*Session)
	return s
}
