package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/almacen-pos/almacen/internal/shared"
)

// Middleware guards routes behind bearer tokens and role checks.
type Middleware struct {
	Tokens *shared.TokenManager
	Logger *slog.Logger
}

// BearerToken extracts the token from the Authorization header.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// RequireToken resolves the bearer token and stores the identity in context.
// Missing or expired tokens answer 401 so the client can redirect to login.
func (m Middleware) RequireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := m.Tokens.Resolve(r.Context(), BearerToken(r))
		if err != nil {
			status := shared.ErrorStatus(err)
			if status == http.StatusInternalServerError {
				m.Logger.Error("resolve token", slog.Any("error", err))
			}
			shared.WriteError(w, status, shared.ErrSessionExpired.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithIdentity(r.Context(), id)))
	})
}

// RequireRole rejects authenticated users whose role is not in the allow list.
func (m Middleware) RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := shared.IdentityFromContext(r.Context())
			if id == nil {
				shared.WriteError(w, http.StatusUnauthorized, shared.ErrSessionExpired.Error())
				return
			}
			if _, ok := allowed[id.Role]; !ok {
				shared.WriteError(w, http.StatusForbidden, shared.ErrPermissionDenied.Error())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
