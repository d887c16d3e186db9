package repositories

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	stderrors "errors"
	"fmt"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
)

type messageRecord struct {
	ID             int64  `json:"id"`
	ConversationID int64  `json:"conversation_id"`
	SenderID       int64  `json:"sender_id"`
	Content        string `json:"content"`
	Timestamp      int64  `json:"timestamp"`
}

// AppendMessage stamps the message with an identifier and a server timestamp
// and persists it. Once it returns, the message is durable and readable.
func (s *Store) AppendMessage(
	ctx context.Context,
	conversation domain.ConversationID,
	sender domain.UserID,
	content string,
) (domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, err
	}
	id, err := nextID(s.messageSeq)
	if err != nil {
		return domain.Message{}, err
	}
	message := domain.Message{
		ID:             domain.MessageID(id),
		ConversationID: conversation,
		SenderID:       sender,
		Content:        content,
		Timestamp:      s.nextTimestamp(),
	}

	err = s.update(func(txn *badger.Txn) error {
		if _, err := txn.Get(conversationKey(conversation)); err != nil {
			return err
		}
		return setJSON(txn, messageKey(message), fromMessage(message))
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return domain.Message{}, errors.ErrConversationNotFound
	}
	if err != nil {
		return domain.Message{}, err
	}
	return message, nil
}

// ListMessages returns the history of a conversation in ascending timestamp order.
// When a limit is configured only the latest messages are kept.
func (s *Store) ListMessages(ctx context.Context, conversation domain.ConversationID) ([]domain.Message, error) {
	messages := make([]domain.Message, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := messagePrefix(conversation)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		// Start past the newest possible key and walk back in time
		seekKey := append(slices.Clone(prefix), []byte("9999999999999999999")...)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if s.limitMessages != nil && len(messages) == *s.limitMessages {
				s.log.Debug(fmt.Sprintf("Maximum of %d message reached", *s.limitMessages))
				break
			}
			var record messageRecord
			if err := getItemJSON(it.Item(), &record); err != nil {
				return err
			}
			messages = append(messages, toMessage(record))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Reverse(messages)
	return messages, nil
}

func fromMessage(message domain.Message) messageRecord {
	return messageRecord{
		ID:             int64(message.ID),
		ConversationID: int64(message.ConversationID),
		SenderID:       int64(message.SenderID),
		Content:        message.Content,
		Timestamp:      message.Timestamp.UnixNano(),
	}
}

func toMessage(record messageRecord) domain.Message {
	return domain.Message{
		ID:             domain.MessageID(record.ID),
		ConversationID: domain.ConversationID(record.ConversationID),
		SenderID:       domain.UserID(record.SenderID),
		Content:        record.Content,
		Timestamp:      time.Unix(0, record.Timestamp).UTC(),
	}
}
