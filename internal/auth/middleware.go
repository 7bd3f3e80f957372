// Campuswatch - Campus Network Security Dashboard
// Copyright 2026 Campuswatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/campuswatch/campuswatch

package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/campuswatch/campuswatch/internal/logging"
)

type contextKey string

const subjectContextKey contextKey = "auth_subject"

// Subject is the authenticated identity attached to a request context.
type Subject struct {
	Username string
	Role     string
}

// GetSubject returns the authenticated subject from the context, or nil
// when the request did not pass through the auth middleware.
func GetSubject(ctx context.Context) *Subject {
	subject, ok := ctx.Value(subjectContextKey).(*Subject)
	if !ok {
		return nil
	}
	return subject
}

// WithSubject returns a context carrying the given subject. Exposed for
// handler tests.
func WithSubject(ctx context.Context, subject *Subject) context.Context {
	return context.WithValue(ctx, subjectContextKey, subject)
}

// Middleware validates bearer tokens and attaches the token's subject
// to the request context.
type Middleware struct {
	jwtManager *JWTManager
}

// NewMiddleware creates auth middleware backed by the given token manager.
func NewMiddleware(jwtManager *JWTManager) *Middleware {
	return &Middleware{jwtManager: jwtManager}
}

// RequireAuth rejects requests without a valid bearer token. The token
// may arrive in the Authorization header or, for websocket upgrades
// where custom headers are unavailable, in the "token" query parameter.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := extractToken(r)
		if tokenString == "" {
			http.Error(w, "Unauthorized: missing token", http.StatusUnauthorized)
			return
		}

		claims, err := m.jwtManager.ValidateToken(tokenString)
		if err != nil {
			logging.Debug().Err(err).Str("path", r.URL.Path).Msg("Token validation failed")
			http.Error(w, "Unauthorized: invalid token", http.StatusUnauthorized)
			return
		}

		subject := &Subject{
			Username: claims.Username,
			Role:     claims.Role,
		}
		next.ServeHTTP(w, r.WithContext(WithSubject(r.Context(), subject)))
	})
}

func extractToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
