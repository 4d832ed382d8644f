package sso

import (
	"context"
	"net/http"
)

// contextKey is a custom type for context keys
type contextKey string

// UserContextKey is the key used to store the identity in the request context
const UserContextKey contextKey = "user"

// AuthMiddleware is a middleware that checks if the user is authenticated
type AuthMiddleware struct {
	SessionManager SessionManager
	// Optional redirect URL for unauthenticated users
	RedirectURL string
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(sessionManager SessionManager, redirectURL string) *AuthMiddleware {
	return &AuthMiddleware{
		SessionManager: sessionManager,
		RedirectURL:    redirectURL,
	}
}

// RequireAuth is a middleware that requires authentication
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := m.SessionManager.GetSession(r)
		if err != nil {
			if m.RedirectURL != "" {
				http.Redirect(w, r, m.RedirectURL, http.StatusTemporaryRedirect)
				return
			}
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), identity)))
	})
}

// OptionalAuth adds the identity to the context when a valid session exists
// but doesn't require one
func (m *AuthMiddleware) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if identity, err := m.SessionManager.GetSession(r); err == nil {
			r = r.WithContext(WithUser(r.Context(), identity))
		}
		next.ServeHTTP(w, r)
	})
}

// WithUser returns a copy of ctx carrying identity.
func WithUser(ctx context.Context, identity *CanonicalIdentity) context.Context {
	return context.WithValue(ctx, UserContextKey, identity)
}

// GetUserFromContext retrieves the identity from the request context
func GetUserFromContext(ctx context.Context) *CanonicalIdentity {
	user, ok := ctx.Value(UserContextKey).(*CanonicalIdentity)
	if !ok {
		return nil
	}
	return user
}
