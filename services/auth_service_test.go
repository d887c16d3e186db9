package services

import (
	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/mocks"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestAuthService_Register(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	mockStore := mocks.NewMockStore(ctrl)
	tokens := auth.NewTokenManager("secret", time.Hour)
	svc := NewAuthService(mockStore, tokens, logs.GetLoggerFromLevel(slog.LevelDebug))

	t.Run("should register successfully when input is valid", func(t *testing.T) {
		req := require.New(t)
		password := "ComplexPass123!"
		var storedHash string

		// The store receives a hash, never the plain password
		mockStore.EXPECT().
			CreateUser(gomock.Any(), "alice", gomock.Not(password)).
			DoAndReturn(func(_ context.Context, username, hash string) (domain.User, error) {
				storedHash = hash
				return domain.User{ID: 1, Username: username, PasswordHash: hash}, nil
			}).
			Times(1)

		user, err := svc.Register(ctx, "alice", password)

		req.NoError(err)
		req.Equal(domain.UserID(1), user.ID)
		match, err := auth.ComparePassword(password, storedHash)
		req.NoError(err)
		req.True(match)
	})

	t.Run("should fail when password complexity is not met", func(t *testing.T) {
		req := require.New(t)

		mockStore.EXPECT().CreateUser(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		_, err := svc.Register(ctx, "alice", "simple")

		req.ErrorIs(err, errors.ErrInvalidPassword)
	})

	t.Run("should fail when username is not alphanumeric", func(t *testing.T) {
		req := require.New(t)

		mockStore.EXPECT().CreateUser(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		_, err := svc.Register(ctx, "al ice", "ComplexPass123!")

		req.ErrorIs(err, errors.ErrInvalidUsername)
	})

	t.Run("should fail when user already exists in store", func(t *testing.T) {
		req := require.New(t)

		mockStore.EXPECT().
			CreateUser(gomock.Any(), "bob", gomock.Any()).
			Return(domain.User{}, errors.ErrUserAlreadyExists).
			Times(1)

		_, err := svc.Register(ctx, "bob", "ComplexPass123!")

		req.ErrorIs(err, errors.ErrUserAlreadyExists)
	})
}

func TestAuthService_Login(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	mockStore := mocks.NewMockStore(ctrl)
	tokens := auth.NewTokenManager("secret", time.Hour)
	svc := NewAuthService(mockStore, tokens, logs.GetLoggerFromLevel(slog.LevelDebug))

	hashedPassword, err := auth.HashPassword("Secret123456!")
	require.NoError(t, err)
	storedUser := domain.User{ID: 7, Username: "alice", PasswordHash: hashedPassword}

	t.Run("should login successfully with correct credentials", func(t *testing.T) {
		req := require.New(t)

		mockStore.EXPECT().
			GetUserByUsername(gomock.Any(), "alice").
			Return(storedUser, nil).
			Times(1)

		session, err := svc.Login(ctx, "alice", "Secret123456!")

		req.NoError(err)
		req.Equal(storedUser, session.User)
		claims, err := tokens.ValidateToken(session.Token.String())
		req.NoError(err)
		req.Equal(storedUser.ID, claims.UserID)
		req.Equal("alice", claims.Username)
	})

	t.Run("should return invalid credentials when password matches nothing", func(t *testing.T) {
		req := require.New(t)

		mockStore.EXPECT().
			GetUserByUsername(gomock.Any(), "alice").
			Return(storedUser, nil).
			Times(1)

		_, err := svc.Login(ctx, "alice", "WrongPassword123!")

		req.ErrorIs(err, errors.ErrInvalidCredentials)
	})

	t.Run("should return invalid credentials when user is not found", func(t *testing.T) {
		req := require.New(t)

		mockStore.EXPECT().
			GetUserByUsername(gomock.Any(), "ghost").
			Return(domain.User{}, errors.ErrUserNotFound).
			Times(1)

		_, err := svc.Login(ctx, "ghost", "anyPassword")

		req.ErrorIs(err, errors.ErrInvalidCredentials)
	})
}
