package auth

import (
	"context"
	"crypto/subtle"

	"golang.org/x/crypto/bcrypt"

	"github.com/bensupplier/catalog/internal/shared"
)

// Service wraps operator authentication rules.
type Service struct {
	repo     Repository
	apiToken []byte
}

// NewService constructs a Service. An empty apiToken disables bearer access.
func NewService(repo Repository, apiToken string) *Service {
	return &Service{repo: repo, apiToken: []byte(apiToken)}
}

// Authenticate validates username/password credentials.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*Operator, error) {
	op, err := s.repo.FindOperator(ctx, username)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return op, nil
}

// AuthenticateToken reports whether token equals the configured API token.
func (s *Service) AuthenticateToken(token string) bool {
	if len(s.apiToken) == 0 || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), s.apiToken) == 1
}
