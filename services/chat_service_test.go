package services

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/mocks"
	"chat-relay/moderation"
	"context"
	stderrors "errors"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestChatService_Persist(t *testing.T) {
	ctx := context.Background()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("first message creates the conversation of the pair", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		mockStore := mocks.NewMockStore(ctrl)
		svc := NewChatService(mockStore, nil, log)

		conversation := domain.Conversation{ID: 10, UserA: 1, UserB: 2}
		expected := domain.Message{ID: 1, ConversationID: 10, SenderID: 2, Content: "yo", Timestamp: at}
		gomock.InOrder(
			mockStore.EXPECT().CreateOrGetConversation(gomock.Any(), domain.UserID(2), domain.UserID(1)).Return(conversation, nil),
			mockStore.EXPECT().AppendMessage(gomock.Any(), domain.ConversationID(10), domain.UserID(2), "yo").Return(expected, nil),
		)

		message, err := svc.Persist(ctx, 2, domain.InboundFrame{To: 1, Content: "yo"})
		req.NoError(err)
		req.Equal(expected, message)
	})

	t.Run("explicit conversation must hold both users", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		mockStore := mocks.NewMockStore(ctrl)
		svc := NewChatService(mockStore, nil, log)

		mockStore.EXPECT().
			GetConversation(gomock.Any(), domain.ConversationID(10)).
			Return(domain.Conversation{ID: 10, UserA: 1, UserB: 3}, nil)
		mockStore.EXPECT().AppendMessage(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		_, err := svc.Persist(ctx, 2, domain.InboundFrame{To: 1, Content: "yo", ConversationID: lo.ToPtr(domain.ConversationID(10))})
		req.ErrorIs(err, errors.ErrNotParticipant)
		req.True(IsRejection(err))
	})

	t.Run("explicit conversation is used as is", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		mockStore := mocks.NewMockStore(ctrl)
		svc := NewChatService(mockStore, nil, log)

		mockStore.EXPECT().
			GetConversation(gomock.Any(), domain.ConversationID(10)).
			Return(domain.Conversation{ID: 10, UserA: 1, UserB: 2}, nil)
		mockStore.EXPECT().
			AppendMessage(gomock.Any(), domain.ConversationID(10), domain.UserID(1), "hi").
			Return(domain.Message{ID: 4, ConversationID: 10, SenderID: 1, Content: "hi", Timestamp: at}, nil)

		message, err := svc.Persist(ctx, 1, domain.InboundFrame{To: 2, Content: "hi", ConversationID: lo.ToPtr(domain.ConversationID(10))})
		req.NoError(err)
		req.Equal(domain.MessageID(4), message.ID)
	})

	t.Run("storage failure is not a rejection", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		mockStore := mocks.NewMockStore(ctrl)
		svc := NewChatService(mockStore, nil, log)
		boom := stderrors.New("disk full")

		mockStore.EXPECT().
			CreateOrGetConversation(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(domain.Conversation{ID: 10, UserA: 1, UserB: 2}, nil)
		mockStore.EXPECT().
			AppendMessage(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(domain.Message{}, boom)

		_, err := svc.Persist(ctx, 1, domain.InboundFrame{To: 2, Content: "hi"})
		req.ErrorIs(err, boom)
		req.False(IsRejection(err))
	})

	t.Run("unknown recipient is a rejection", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		mockStore := mocks.NewMockStore(ctrl)
		svc := NewChatService(mockStore, nil, log)

		mockStore.EXPECT().
			CreateOrGetConversation(gomock.Any(), domain.UserID(1), domain.UserID(99)).
			Return(domain.Conversation{}, errors.ErrUserNotFound)

		_, err := svc.Persist(ctx, 1, domain.InboundFrame{To: 99, Content: "hi"})
		req.True(IsRejection(err))
	})

	t.Run("content is censored before it is stored", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		mockStore := mocks.NewMockStore(ctrl)
		moderator, err := moderation.NewModerator([]string{"badger"}, '*', log)
		req.NoError(err)
		svc := NewChatService(mockStore, moderator, log)

		mockStore.EXPECT().
			CreateOrGetConversation(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(domain.Conversation{ID: 10, UserA: 1, UserB: 2}, nil)
		mockStore.EXPECT().
			AppendMessage(gomock.Any(), domain.ConversationID(10), domain.UserID(1), "a ****** here").
			Return(domain.Message{ID: 1, Content: "a ****** here"}, nil)

		message, err := svc.Persist(ctx, 1, domain.InboundFrame{To: 2, Content: "a badger here"})
		req.NoError(err)
		req.Equal("a ****** here", message.Content)
	})
}

func TestChatService_ReadPaths(t *testing.T) {
	ctx := context.Background()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	conversation := domain.Conversation{ID: 10, UserA: 1, UserB: 2}

	t.Run("users only list their own conversations", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		mockStore := mocks.NewMockStore(ctrl)
		svc := NewChatService(mockStore, nil, log)

		mockStore.EXPECT().ListConversations(gomock.Any(), domain.UserID(1)).Return([]domain.Conversation{conversation}, nil)

		conversations, err := svc.ListConversations(ctx, 1, 1)
		req.NoError(err)
		req.Len(conversations, 1)

		_, err = svc.ListConversations(ctx, 3, 1)
		req.ErrorIs(err, errors.ErrNotParticipant)
	})

	t.Run("messages are restricted to participants", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		mockStore := mocks.NewMockStore(ctrl)
		svc := NewChatService(mockStore, nil, log)

		mockStore.EXPECT().GetConversation(gomock.Any(), domain.ConversationID(10)).Return(conversation, nil).Times(2)
		mockStore.EXPECT().ListMessages(gomock.Any(), domain.ConversationID(10)).Return([]domain.Message{{ID: 1}}, nil)

		messages, err := svc.ListMessages(ctx, 2, 10)
		req.NoError(err)
		req.Len(messages, 1)

		_, err = svc.ListMessages(ctx, 3, 10)
		req.ErrorIs(err, errors.ErrNotParticipant)
	})

	t.Run("unknown conversation", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		mockStore := mocks.NewMockStore(ctrl)
		svc := NewChatService(mockStore, nil, log)

		mockStore.EXPECT().GetConversation(gomock.Any(), domain.ConversationID(11)).Return(domain.Conversation{}, errors.ErrConversationNotFound)

		err := svc.DeleteConversation(ctx, 1, 11)
		req.ErrorIs(err, errors.ErrConversationNotFound)
	})

	t.Run("participants delete conversations", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		mockStore := mocks.NewMockStore(ctrl)
		svc := NewChatService(mockStore, nil, log)

		mockStore.EXPECT().GetConversation(gomock.Any(), domain.ConversationID(10)).Return(conversation, nil)
		mockStore.EXPECT().DeleteConversation(gomock.Any(), domain.ConversationID(10)).Return(nil)

		req.NoError(svc.DeleteConversation(ctx, 1, 10))
	})

	t.Run("search trims the query", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		mockStore := mocks.NewMockStore(ctrl)
		svc := NewChatService(mockStore, nil, log)

		mockStore.EXPECT().SearchUsers(gomock.Any(), "ali").Return([]domain.User{{ID: 1, Username: "alice"}}, nil)

		users, err := svc.SearchUsers(ctx, "  ali ")
		req.NoError(err)
		req.Len(users, 1)
	})
}
