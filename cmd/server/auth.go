package main

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// authMiddleware enforces the static API token on every route except the
// health probe. An empty configured token disables authentication entirely
// (local single-user deployments behind no network boundary).
//
// The token is accepted either as a bearer token or in X-Api-Token.
func (s *server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiToken == "" || r.URL.Path == "/api/health" {
			next.ServeHTTP(w, r)
			return
		}

		if !validToken(requestToken(r), s.apiToken) {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"ok": false, "error": "invalid or missing API token"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return token
		}
	}
	return r.Header.Get("X-Api-Token")
}

func validToken(provided, expected string) bool {
	if provided == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}
