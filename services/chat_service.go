package services

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
)

type IChatService interface {
	Persist(ctx context.Context, sender domain.UserID, frame domain.InboundFrame) (domain.Message, error)
	ListConversations(ctx context.Context, requester, user domain.UserID) ([]domain.Conversation, error)
	ListMessages(ctx context.Context, requester domain.UserID, conversation domain.ConversationID) ([]domain.Message, error)
	DeleteConversation(ctx context.Context, requester domain.UserID, conversation domain.ConversationID) error
	SearchUsers(ctx context.Context, query string) ([]domain.User, error)
}

// ChatService resolves conversations and persists messages on behalf of the relay,
// and serves the read paths of the HTTP API.
type ChatService struct {
	store  contract.Store
	censor contract.Censor
	log    *slog.Logger
}

// NewChatService builds the service. A nil censor disables moderation.
func NewChatService(store contract.Store, censor contract.Censor, log *slog.Logger) *ChatService {
	return &ChatService{store: store, censor: censor, log: log}
}

// Persist resolves the conversation between sender and the frame recipient and
// appends the message to it. An explicit conversation id must exist and hold both users,
// otherwise the pair's conversation is created on first use.
func (s *ChatService) Persist(ctx context.Context, sender domain.UserID, frame domain.InboundFrame) (domain.Message, error) {
	conversation, err := s.resolveConversation(ctx, sender, frame)
	if err != nil {
		return domain.Message{}, err
	}

	content := frame.Content
	if s.censor != nil {
		var words []string
		if content, words = s.censor.Censor(content); len(words) > 0 {
			s.log.Info("Message censored",
				"user_id", sender,
				"conversation_id", conversation.ID,
				"words", strings.Join(words, ","))
		}
	}

	message, err := s.store.AppendMessage(ctx, conversation.ID, sender, content)
	if err != nil {
		return domain.Message{}, fmt.Errorf("append message: %w", err)
	}
	return message, nil
}

func (s *ChatService) resolveConversation(ctx context.Context, sender domain.UserID, frame domain.InboundFrame) (domain.Conversation, error) {
	if frame.ConversationID == nil {
		return s.store.CreateOrGetConversation(ctx, sender, frame.To)
	}
	conversation, err := s.store.GetConversation(ctx, *frame.ConversationID)
	if err != nil {
		return domain.Conversation{}, err
	}
	if !conversation.Has(sender) || !conversation.Has(frame.To) {
		return domain.Conversation{}, errors.ErrNotParticipant
	}
	return conversation, nil
}

// IsRejection tells whether err comes from a frame addressing a conversation that
// cannot hold the message, as opposed to a storage failure.
func IsRejection(err error) bool {
	return stderrors.Is(err, errors.ErrConversationNotFound) ||
		stderrors.Is(err, errors.ErrNotParticipant) ||
		stderrors.Is(err, errors.ErrUserNotFound)
}

// ListConversations only lets users list their own conversations.
func (s *ChatService) ListConversations(ctx context.Context, requester, user domain.UserID) ([]domain.Conversation, error) {
	if requester != user {
		return nil, errors.ErrNotParticipant
	}
	return s.store.ListConversations(ctx, user)
}

func (s *ChatService) ListMessages(ctx context.Context, requester domain.UserID, conversation domain.ConversationID) ([]domain.Message, error) {
	if _, err := s.participantOf(ctx, requester, conversation); err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, conversation)
}

func (s *ChatService) DeleteConversation(ctx context.Context, requester domain.UserID, conversation domain.ConversationID) error {
	if _, err := s.participantOf(ctx, requester, conversation); err != nil {
		return err
	}
	if err := s.store.DeleteConversation(ctx, conversation); err != nil {
		return err
	}
	s.log.Info("Conversation deleted", "user_id", requester, "conversation_id", conversation)
	return nil
}

func (s *ChatService) SearchUsers(ctx context.Context, query string) ([]domain.User, error) {
	return s.store.SearchUsers(ctx, strings.TrimSpace(query))
}

func (s *ChatService) participantOf(ctx context.Context, requester domain.UserID, id domain.ConversationID) (domain.Conversation, error) {
	conversation, err := s.store.GetConversation(ctx, id)
	if err != nil {
		return domain.Conversation{}, err
	}
	if !conversation.Has(requester) {
		return domain.Conversation{}, errors.ErrNotParticipant
	}
	return conversation, nil
}
