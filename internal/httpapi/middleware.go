// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeWatch Contributors

package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/codewatch/codewatch/internal/auth"
)

type contextKey struct{}

var principalKey contextKey

// WithPrincipal returns a context carrying the authenticated
// principal.
func WithPrincipal(ctx context.Context, p auth.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext extracts the authenticated principal from the
// request context.
func PrincipalFromContext(ctx context.Context) (auth.Principal, bool) {
	p, ok := ctx.Value(principalKey).(auth.Principal)
	return p, ok
}

// extractBearerToken extracts a bearer token from the Authorization
// header. Returns the token and an error message (empty if
// successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// requirePrincipal wraps a handler with bearer-token authentication.
// The principal is derived from token claims alone; the credential
// store is not consulted on this path.
func (s *Server) requirePrincipal(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
		if errMsg != "" {
			s.writeJSON(w, http.StatusUnauthorized, envelope{
				Success: false,
				Message: errMsg,
				Code:    "AUTH_UNAUTHORIZED",
			})
			return
		}

		principal, err := s.service.PrincipalFromToken(token)
		if err != nil {
			s.writeError(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
	}
}

// requireRole wraps a handler with a role check. Must be composed
// inside requirePrincipal.
func (s *Server) requireRole(role auth.Role, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := PrincipalFromContext(r.Context())
		if !ok {
			s.writeJSON(w, http.StatusUnauthorized, envelope{
				Success: false,
				Message: "not authenticated",
				Code:    "AUTH_UNAUTHORIZED",
			})
			return
		}

		if _, err := auth.RequireRole(principal, role); err != nil {
			s.writeError(w, err)
			return
		}

		next.ServeHTTP(w, r)
	}
}
