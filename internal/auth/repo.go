package auth

import (
	"context"
	"crypto/subtle"

	"github.com/bensupplier/catalog/internal/shared"
)

// Repository looks up operators by username.
type Repository interface {
	FindOperator(ctx context.Context, username string) (*Operator, error)
}

// StaticRepository serves the single operator configured through the
// environment.
type StaticRepository struct {
	operator Operator
}

// NewStaticRepository constructs a repository holding one operator.
func NewStaticRepository(username, passwordHash string) *StaticRepository {
	return &StaticRepository{operator: Operator{Username: username, PasswordHash: passwordHash}}
}

// FindOperator returns the operator when username matches.
func (r *StaticRepository) FindOperator(ctx context.Context, username string) (*Operator, error) {
	if subtle.ConstantTimeCompare([]byte(username), []byte(r.operator.Username)) != 1 {
		return nil, shared.ErrInvalidCredentials
	}
	op := r.operator
	return &op, nil
}

var _ Repository = (*StaticRepository)(nil)
