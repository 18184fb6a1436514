package auth

import (
	"context"
	"errors"

	"github.com/threadline/shop-backend/internal/modules/user"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// LoginResult carries the issued token together with the authenticated user.
type LoginResult struct {
	AccessToken string     `json:"accessToken"`
	User        *user.User `json:"user"`
}

// Service defines the interface for authentication-related business logic.
type Service interface {
	Login(ctx context.Context, email, password string) (*LoginResult, error)
}
