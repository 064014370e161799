// Package user fetches the signed-in user from the record store.
// Many widgets request the current user on mount; the orchestration layer
// collapses those into a single network call.
package user

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dinehall/datalayer/internal/api"
	"github.com/dinehall/datalayer/pkg/logger"
)

// User is the signed-in user record.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Service performs user reads.
type Service struct {
	client *api.Client
	log    *logger.Logger
}

// NewService creates a user service on top of the orchestrating client.
func NewService(client *api.Client, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("user")
	}
	return &Service{client: client, log: log}
}

// Current fetches the signed-in user. The read opts into retry; concurrent
// callers share one network call through the in-flight registry.
func (s *Service) Current(ctx context.Context) (*User, error) {
	raw, err := s.client.Get(ctx, "/users/me", api.Options{Retry: true})
	if err != nil {
		return nil, err
	}

	var u User
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("decode current user: %w", err)
	}
	return &u, nil
}
