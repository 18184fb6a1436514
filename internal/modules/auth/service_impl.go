package auth

import (
	"context"
	"time"

	"github.com/dgrijalva/jwt-go"
	"golang.org/x/crypto/bcrypt"

	"github.com/threadline/shop-backend/internal/modules/user"
)

// Claims are the JWT claims issued at login: subject is the user id and
// Role mirrors the user's role at issue time.
type Claims struct {
	Role string `json:"role"`
	jwt.StandardClaims
}

type service struct {
	userRepo user.Repository
	secret   []byte
	tokenTTL time.Duration
}

// NewService creates a new auth service.
func NewService(userRepo user.Repository, secret string, tokenTTL time.Duration) Service {
	return &service{userRepo: userRepo, secret: []byte(secret), tokenTTL: tokenTTL}
}

func (s *service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	u, err := s.userRepo.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	claims := &Claims{
		Role: string(u.Role),
		StandardClaims: jwt.StandardClaims{
			Subject:   u.ID.String(),
			IssuedAt:  time.Now().Unix(),
			ExpiresAt: time.Now().Add(s.tokenTTL).Unix(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return nil, err
	}

	return &LoginResult{AccessToken: tokenString, User: u}, nil
}
