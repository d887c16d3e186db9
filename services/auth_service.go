package services

import (
	"chat-relay/auth"
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
)

type IAuthService interface {
	Register(ctx context.Context, username, password string) (domain.User, error)
	Login(ctx context.Context, username, password string) (Session, error)
}

type Token string

func (t Token) String() string {
	return string(t)
}

// Session is what a successful login hands back to the client.
type Session struct {
	Token Token
	User  domain.User
}

type AuthService struct {
	store  contract.Store
	tokens *auth.TokenManager
	log    *slog.Logger
}

func NewAuthService(store contract.Store, tokens *auth.TokenManager, log *slog.Logger) *AuthService {
	return &AuthService{store: store, tokens: tokens, log: log}
}

func (s *AuthService) Register(ctx context.Context, username, password string) (domain.User, error) {
	// Cheap checks before any expensive cryptographic operation
	if err := auth.ValidateRegister(auth.RegisterRequest{Username: username, Password: password}); err != nil {
		return domain.User{}, err
	}

	// The store never sees a plain password
	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hashing failed: %w", err)
	}

	user, err := s.store.CreateUser(ctx, username, hashedPassword)
	if err != nil {
		return domain.User{}, err
	}
	s.log.Info("User registered", "user_id", user.ID, "username", user.Username)
	return user, nil
}

func (s *AuthService) Login(ctx context.Context, username, password string) (Session, error) {
	user, err := s.store.GetUserByUsername(ctx, username)
	if stderrors.Is(err, errors.ErrUserNotFound) {
		// Same answer as a wrong password, no user enumeration
		return Session{}, errors.ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}

	match, err := auth.ComparePassword(password, user.PasswordHash)
	if err != nil || !match {
		return Session{}, errors.ErrInvalidCredentials
	}

	token, err := s.tokens.GenerateToken(user.ID, user.Username)
	if err != nil {
		return Session{}, errors.ErrTokenGeneration
	}
	return Session{Token: Token(token), User: user}, nil
}
