package auth

import (
	"net/http"
	"strings"

	"github.com/bensupplier/catalog/internal/platform/httpx"
	"github.com/bensupplier/catalog/internal/shared"
)

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// RequireOperator rejects API requests that carry neither a signed-in
// session nor a valid bearer token.
func (s *Service) RequireOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token, ok := BearerToken(r); ok {
			if !s.AuthenticateToken(token) {
				httpx.Error(w, http.StatusUnauthorized, "invalid API token")
				return
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithOperator(r.Context(), APITokenOperator)))
			return
		}
		sess := shared.SessionFromContext(r.Context())
		if sess == nil || sess.User() == "" {
			httpx.Error(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithOperator(r.Context(), sess.User())))
	})
}

// RequireOperatorPage redirects anonymous browsers to the login page.
func RequireOperatorPage(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		if sess == nil || sess.User() == "" {
			http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithOperator(r.Context(), sess.User())))
	})
}
