// Package session holds the ambient sign-in state: the bearer token the
// gateway attaches to requests, and the caller identity read from it.
//
// The role and user ID come from unverified JWT claims. That is deliberate:
// they gate UI affordances only, and the server remains the authority on
// every request.
package session

import (
	"sync"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the caller identity carried by the session token.
type Claims struct {
	UserID string
	Role   string
}

// Store is a process-wide session holder. It implements the gateway's
// TokenSource.
type Store struct {
	mu     sync.RWMutex
	token  string
	claims Claims
}

// NewStore creates an empty (signed-out) store.
func NewStore() *Store {
	return &Store{}
}

// SetToken installs a bearer token and re-derives the caller identity
// from its claims.
func (s *Store) SetToken(token string) {
	claims := parseClaims(token)

	s.mu.Lock()
	s.token = token
	s.claims = claims
	s.mu.Unlock()
}

// Clear signs the session out.
func (s *Store) Clear() {
	s.mu.Lock()
	s.token = ""
	s.claims = Claims{}
	s.mu.Unlock()
}

// Token returns the current bearer token, or "" when signed out.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Claims returns the caller identity derived from the current token.
func (s *Store) Claims() Claims {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.claims
}

// UserID returns the caller's user ID, or "" when unknown.
func (s *Store) UserID() string {
	return s.Claims().UserID
}

// Role returns the caller's role string, or "" when unknown.
func (s *Store) Role() string {
	return s.Claims().Role
}

// parseClaims extracts identity claims without verifying the signature.
// Verification happens server-side; a malformed token simply yields empty
// claims.
func parseClaims(token string) Claims {
	if token == "" {
		return Claims{}
	}

	mapClaims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, mapClaims); err != nil {
		return Claims{}
	}

	claims := Claims{}
	if sub, err := mapClaims.GetSubject(); err == nil {
		claims.UserID = sub
	}
	if role, ok := mapClaims["role"].(string); ok {
		claims.Role = role
	}
	return claims
}
