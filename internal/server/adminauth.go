package server

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/tjfontaine/polyglot-intent-router/internal/core/domain"
)

// AdminAuthMiddleware guards supervisor endpoints with a static bearer token.
// An empty token disables the endpoints entirely.
func AdminAuthMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				writeError(w, r, domain.ErrNotFound("admin endpoints are disabled"))
				return
			}

			header := r.Header.Get("Authorization")
			if header == "" {
				http.Error(w, "Missing Authorization header", http.StatusUnauthorized)
				return
			}
			presented, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				http.Error(w, "Invalid admin token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
