package api

import (
	"crypto/subtle"
	"log"
	"net/http"
	"strings"
)

// RequireBearer returns middleware that gates a route group behind a
// static bearer token. Comparison is constant time so the token cannot
// be probed byte by byte.
//
// The server refuses to mount admin routes at all when the token is
// empty, so an empty token never reaches this middleware in production
// wiring; the guard here is for misuse from tests.
func RequireBearer(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				writeError(w, "Admin disabled", http.StatusForbidden)
				return
			}

			got := bearerToken(r)
			if got == "" {
				w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
				writeError(w, "Authorization required", http.StatusUnauthorized)
				return
			}

			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				log.Printf("⚠️ Rejected admin request from %s: bad token", GetClientIP(r))
				RecordConnectionRejected("auth")
				writeError(w, "Invalid token", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken extracts the token from an Authorization header, or ""
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	const prefix = "Bearer "
	if len(h) < len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}
