// ABOUTME: HTTP middleware for JWT authentication on operator API endpoints
// ABOUTME: Reads a bearer token from the Authorization header or access_token query parameter

package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// QueryTokenParam carries the token for clients that cannot set headers, such as EventSource.
const QueryTokenParam = "access_token"

// extractToken returns the request's token and an error message (empty if successful).
func extractToken(r *http.Request) (string, string) {
	header := r.Header.Get("Authorization")
	if header == "" {
		if token := strings.TrimSpace(r.URL.Query().Get(QueryTokenParam)); token != "" {
			return token, ""
		}
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg, "code": "unauthorized"})
}

// HTTPAuthMiddleware verifies the request's token and attaches the identity.
// A nil verifier runs in anonymous mode: every request gets the Anonymous identity.
func HTTPAuthMiddleware(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if verifier == nil {
				anon := Anonymous
				next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), &anon)))
				return
			}

			token, errMsg := extractToken(r)
			if errMsg != "" {
				writeUnauthorized(w, errMsg)
				return
			}
			id, err := verifier.Verify(token)
			if err != nil {
				msg := "invalid token"
				if errors.Is(err, ErrExpiredToken) {
					msg = "token expired"
				}
				writeUnauthorized(w, msg)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}
