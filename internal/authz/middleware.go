// Campuswatch - Campus Network Security Dashboard
// Copyright 2026 Campuswatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/campuswatch/campuswatch

package authz

import (
	"net/http"

	"github.com/campuswatch/campuswatch/internal/auth"
	"github.com/campuswatch/campuswatch/internal/logging"
)

// Middleware enforces authorization decisions on HTTP routes. It must
// run after auth.Middleware so the request context carries a subject.
type Middleware struct {
	enforcer *Enforcer
}

// NewMiddleware creates authorization middleware.
func NewMiddleware(enforcer *Enforcer) *Middleware {
	return &Middleware{enforcer: enforcer}
}

// Require returns middleware that allows the request only when the
// subject's role grants the action on the object.
func (m *Middleware) Require(object, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject := auth.GetSubject(r.Context())
			if subject == nil {
				http.Error(w, "Forbidden: no authentication context", http.StatusForbidden)
				return
			}

			allowed, err := m.enforcer.EnforceRole(subject.Role, object, action)
			if err != nil {
				logging.Error().Err(err).
					Str("user", subject.Username).
					Str("object", object).
					Str("action", action).
					Msg("Authorization error")
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}

			if !allowed {
				logging.Debug().
					Str("user", subject.Username).
					Str("role", subject.Role).
					Str("object", object).
					Str("action", action).
					Msg("Authorization denied")
				http.Error(w, "Forbidden: insufficient permissions", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
