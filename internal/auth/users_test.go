// Campuswatch - Campus Network Security Dashboard
// Copyright 2026 Campuswatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/campuswatch/campuswatch

package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func newTestStore(t *testing.T) *UserStore {
	t.Helper()
	store, err := NewUserStore()
	if err != nil {
		t.Fatalf("NewUserStore: %v", err)
	}
	return store
}

func TestAuthenticate(t *testing.T) {
	store := newTestStore(t)
	if err := store.AddUser("alice", "correct-horse", "admin"); err != nil {
		t.Fatalf("AddUser: %v", err)
	}

	tests := []struct {
		name     string
		username string
		password string
		wantRole string
		wantErr  error
	}{
		{"valid credentials", "alice", "correct-horse", "admin", nil},
		{"wrong password", "alice", "wrong", "", ErrInvalidCredentials},
		{"unknown user", "mallory", "correct-horse", "", ErrInvalidCredentials},
		{"empty password", "alice", "", "", ErrInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			role, err := store.Authenticate(tt.username, tt.password)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Authenticate error = %v, want %v", err, tt.wantErr)
			}
			if role != tt.wantRole {
				t.Errorf("role = %q, want %q", role, tt.wantRole)
			}
		})
	}
}

func TestAddUserValidation(t *testing.T) {
	store := newTestStore(t)

	if err := store.AddUser("", "longenough", "viewer"); err == nil {
		t.Error("expected error for empty username")
	}
	if err := store.AddUser("bob", "short", "viewer"); err == nil {
		t.Error("expected error for short password")
	}
	if store.Count() != 0 {
		t.Errorf("Count = %d, want 0", store.Count())
	}
}

func TestAddUserDefaultsToViewer(t *testing.T) {
	store := newTestStore(t)
	if err := store.AddUser("carol", "password123", ""); err != nil {
		t.Fatalf("AddUser: %v", err)
	}
	role, err := store.Authenticate("carol", "password123")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if role != "viewer" {
		t.Errorf("role = %q, want viewer", role)
	}
}

func TestAddUserHash(t *testing.T) {
	store := newTestStore(t)

	hash, err := bcrypt.GenerateFromPassword([]byte("from-config"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	if err := store.AddUserHash("dave", string(hash), "analyst"); err != nil {
		t.Fatalf("AddUserHash: %v", err)
	}

	role, err := store.Authenticate("dave", "from-config")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if role != "analyst" {
		t.Errorf("role = %q, want analyst", role)
	}

	if err := store.AddUserHash("eve", "plaintext-not-hash", "viewer"); err == nil {
		t.Error("expected error for non-bcrypt hash")
	}
}

func TestRequireAuthMiddleware(t *testing.T) {
	manager, err := NewJWTManager("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}
	middleware := NewMiddleware(manager)

	var gotSubject *Subject
	handler := middleware.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSubject = GetSubject(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	token, err := manager.GenerateToken("alice", "analyst")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	tests := []struct {
		name       string
		header     string
		query      string
		wantStatus int
	}{
		{"valid bearer token", "Bearer " + token, "", http.StatusOK},
		{"token via query param", "", token, http.StatusOK},
		{"missing token", "", "", http.StatusUnauthorized},
		{"invalid token", "Bearer garbage", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotSubject = nil
			target := "/api/v1/dashboard/stats"
			if tt.query != "" {
				target += "?token=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK {
				if gotSubject == nil || gotSubject.Username != "alice" || gotSubject.Role != "analyst" {
					t.Errorf("subject = %+v, want alice/analyst", gotSubject)
				}
			}
		})
	}
}
