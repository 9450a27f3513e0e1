package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"hearth/internal/auth"
	"hearth/internal/core"
	"hearth/internal/storage"
)

// AuthService handles registration and login.
type AuthService struct {
	storage *storage.SQLiteRepository
	tokens  *auth.JWTManager
}

func NewAuthService(storage *storage.SQLiteRepository, tokens *auth.JWTManager) *AuthService {
	return &AuthService{
		storage: storage,
		tokens:  tokens,
	}
}

// Register creates an account and returns the user with a session token.
func (s *AuthService) Register(ctx context.Context, email, fullName, password string) (*core.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, "", fmt.Errorf("%w: invalid email", core.ErrValidation)
	}
	if strings.TrimSpace(fullName) == "" {
		return nil, "", fmt.Errorf("%w: full name is required", core.ErrValidation)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, "", err
	}

	user := &core.User{
		Email:          email,
		FullName:       strings.TrimSpace(fullName),
		HashedPassword: hash,
	}
	if err := s.storage.CreateUser(ctx, user); err != nil {
		return nil, "", err
	}

	token, err := s.tokens.Generate(user.ID, user.Email)
	if err != nil {
		return nil, "", fmt.Errorf("issue token: %w", err)
	}

	slog.InfoContext(ctx, "User registered", "user_id", user.ID)
	return user, token, nil
}

// Login verifies credentials and returns the user with a session token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*core.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.storage.GetUserByEmail(ctx, email)
	if err != nil {
		// Same error for unknown email and bad password.
		return nil, "", auth.ErrInvalidCredentials
	}
	if err := auth.CheckPassword(user.HashedPassword, password); err != nil {
		return nil, "", auth.ErrInvalidCredentials
	}

	token, err := s.tokens.Generate(user.ID, user.Email)
	if err != nil {
		return nil, "", fmt.Errorf("issue token: %w", err)
	}
	return user, token, nil
}
