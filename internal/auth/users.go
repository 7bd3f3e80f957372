// Campuswatch - Campus Network Security Dashboard
// Copyright 2026 Campuswatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/campuswatch/campuswatch

package auth

import (
	"crypto/subtle"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// bcryptCost balances verification latency against brute-force resistance.
const bcryptCost = 12

// ErrInvalidCredentials is returned for any failed login attempt. The
// message is deliberately identical for unknown users and wrong
// passwords so responses do not leak which usernames exist.
var ErrInvalidCredentials = fmt.Errorf("invalid username or password")

// UserAccount describes a single dashboard login.
type UserAccount struct {
	Username     string
	PasswordHash []byte
	Role         string
}

// UserStore holds dashboard accounts in memory. Accounts are loaded
// once at startup from configuration.
type UserStore struct {
	mu    sync.RWMutex
	users map[string]UserAccount

	// dummyHash is compared against when the username is unknown so
	// lookup misses cost the same as a real bcrypt verification.
	dummyHash []byte
}

// NewUserStore creates an empty account store.
func NewUserStore() (*UserStore, error) {
	dummy, err := bcrypt.GenerateFromPassword([]byte("campuswatch-dummy"), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize user store: %w", err)
	}
	return &UserStore{
		users:     make(map[string]UserAccount),
		dummyHash: dummy,
	}, nil
}

// AddUser registers an account with a plaintext password, hashing it
// immediately. Passwords shorter than 8 characters are rejected.
func (s *UserStore) AddUser(username, password, role string) error {
	if strings.TrimSpace(username) == "" {
		return fmt.Errorf("username is required")
	}
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}
	if role == "" {
		role = "viewer"
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[username] = UserAccount{
		Username:     username,
		PasswordHash: hash,
		Role:         role,
	}
	return nil
}

// AddUserHash registers an account with a pre-computed bcrypt hash, as
// stored in configuration files.
func (s *UserStore) AddUserHash(username, passwordHash, role string) error {
	if strings.TrimSpace(username) == "" {
		return fmt.Errorf("username is required")
	}
	if !strings.HasPrefix(passwordHash, "$2") {
		return fmt.Errorf("password hash for %q is not a bcrypt hash", username)
	}
	if role == "" {
		role = "viewer"
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[username] = UserAccount{
		Username:     username,
		PasswordHash: []byte(passwordHash),
		Role:         role,
	}
	return nil
}

// Authenticate verifies a username and password and returns the
// account's role. Every path performs exactly one bcrypt comparison.
func (s *UserStore) Authenticate(username, password string) (string, error) {
	s.mu.RLock()
	account, ok := s.users[username]
	dummy := s.dummyHash
	s.mu.RUnlock()

	hash := dummy
	if ok {
		hash = account.PasswordHash
	}

	err := bcrypt.CompareHashAndPassword(hash, []byte(password))
	nameMatch := subtle.ConstantTimeCompare([]byte(username), []byte(account.Username)) == 1

	if !ok || err != nil || !nameMatch {
		return "", ErrInvalidCredentials
	}
	return account.Role, nil
}

// Count returns the number of registered accounts.
func (s *UserStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}
