// Package middleware provides HTTP middleware for the mailsmith API.
package middleware

import (
	"net/http"
	"strings"
)

var (
	allowedHeaders = strings.Join([]string{"Content-Type", "Accept", "X-Mailsmith-Session-ID"}, ", ")
	exposedHeaders = strings.Join([]string{"X-Vercel-AI-Data-Stream", "Content-Disposition"}, ", ")
)

// CORS returns middleware that handles CORS headers.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			w.Header().Add("Vary", "Origin")

			allowed, explicit := matchOrigin(allowedOrigins, origin)
			if allowed && origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", allowedHeaders)
				w.Header().Set("Access-Control-Expose-Headers", exposedHeaders)
				// Credentials only for explicit origins; echoing a wildcard with
				// credentials enables CSRF.
				if explicit {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func matchOrigin(allowedOrigins []string, origin string) (allowed, explicit bool) {
	for _, o := range allowedOrigins {
		if o == origin && o != "*" {
			return true, true
		}
		if o == "*" {
			allowed = true
		}
	}
	return allowed, false
}
