package middleware

import (
	"net/http"
)

// ReadOnlyMiddleware blocks rule mutations while the service runs in
// maintenance mode. Ingestion stays open so the engine keeps processing.
func ReadOnlyMiddleware(readOnly bool) func(http.Handler) http.Handler {
	allowedPosts := map[string]bool{
		"/api/transactions/ingest": true,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if readOnly && r.Method != http.MethodGet {
				if r.Method == http.MethodPost && allowedPosts[r.URL.Path] {
					next.ServeHTTP(w, r)
					return
				}
				http.Error(w, "Read-only mode: only GET requests are allowed", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
