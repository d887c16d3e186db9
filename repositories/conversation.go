package repositories

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	stderrors "errors"
	"strconv"

	"github.com/dgraph-io/badger/v4"
)

type conversationRecord struct {
	ID    int64 `json:"id"`
	UserA int64 `json:"user_a"`
	UserB int64 `json:"user_b"`
}

// CreateOrGetConversation returns the single conversation of the unordered
// pair {a, b}, creating it on first use. Concurrent callers racing on the
// same pair end up with the same conversation: the loser of the write
// conflict retries and reads the winner's record.
func (s *Store) CreateOrGetConversation(ctx context.Context, a, b domain.UserID) (domain.Conversation, error) {
	a, b = domain.CanonicalPair(a, b)
	for _, user := range []domain.UserID{a, b} {
		if _, err := s.GetUser(ctx, user); err != nil {
			return domain.Conversation{}, err
		}
	}

	existing, found, err := s.findPair(a, b)
	if err != nil || found {
		return existing, err
	}

	id, err := nextID(s.conversationSeq)
	if err != nil {
		return domain.Conversation{}, err
	}

	var conversation domain.Conversation
	err = s.update(func(txn *badger.Txn) error {
		current, found, err := readPair(txn, a, b)
		if err != nil {
			return err
		}
		if found {
			conversation = current
			return nil
		}
		conversation = domain.Conversation{ID: domain.ConversationID(id), UserA: a, UserB: b}
		if err = setJSON(txn, conversationKey(conversation.ID), fromConversation(conversation)); err != nil {
			return err
		}
		if err = txn.Set(pairKey(a, b), []byte(strconv.FormatInt(id, 10))); err != nil {
			return err
		}
		if err = txn.Set(memberKey(a, conversation.ID), nil); err != nil {
			return err
		}
		return txn.Set(memberKey(b, conversation.ID), nil)
	})
	if err != nil {
		return domain.Conversation{}, err
	}
	return conversation, nil
}

func (s *Store) findPair(a, b domain.UserID) (conversation domain.Conversation, found bool, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		conversation, found, err = readPair(txn, a, b)
		return err
	})
	return conversation, found, err
}

func readPair(txn *badger.Txn, a, b domain.UserID) (domain.Conversation, bool, error) {
	item, err := txn.Get(pairKey(a, b))
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return domain.Conversation{}, false, nil
	}
	if err != nil {
		return domain.Conversation{}, false, err
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return domain.Conversation{}, false, err
	}
	id, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return domain.Conversation{}, false, err
	}
	var record conversationRecord
	if err = getJSON(txn, conversationKey(domain.ConversationID(id)), &record); err != nil {
		return domain.Conversation{}, false, err
	}
	return toConversation(record), true, nil
}

func (s *Store) GetConversation(ctx context.Context, id domain.ConversationID) (domain.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return domain.Conversation{}, err
	}
	var record conversationRecord
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, conversationKey(id), &record)
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return domain.Conversation{}, errors.ErrConversationNotFound
	}
	if err != nil {
		return domain.Conversation{}, err
	}
	return toConversation(record), nil
}

// ListConversations returns the conversations user takes part in, oldest first.
func (s *Store) ListConversations(ctx context.Context, user domain.UserID) ([]domain.Conversation, error) {
	conversations := make([]domain.Conversation, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := memberPrefix(user)
		options := badger.DefaultIteratorOptions
		options.Prefix = prefix
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			id, err := strconv.ParseInt(string(it.Item().Key()[len(prefix):]), 10, 64)
			if err != nil {
				return err
			}
			var record conversationRecord
			if err = getJSON(txn, conversationKey(domain.ConversationID(id)), &record); err != nil {
				return err
			}
			conversations = append(conversations, toConversation(record))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return conversations, nil
}

// DeleteConversation removes the conversation and its whole history.
// Metadata goes first in a single transaction so the conversation
// disappears atomically, messages are then dropped in a write batch.
func (s *Store) DeleteConversation(ctx context.Context, id domain.ConversationID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.update(func(txn *badger.Txn) error {
		var record conversationRecord
		if err := getJSON(txn, conversationKey(id), &record); err != nil {
			return err
		}
		conversation := toConversation(record)
		keys := [][]byte{
			conversationKey(id),
			pairKey(conversation.UserA, conversation.UserB),
			memberKey(conversation.UserA, id),
			memberKey(conversation.UserB, id),
		}
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return errors.ErrConversationNotFound
	}
	if err != nil {
		return err
	}
	return s.dropMessages(id)
}

func (s *Store) dropMessages(id domain.ConversationID) error {
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := messagePrefix(id)
		options := badger.DefaultIteratorOptions
		options.Prefix = prefix
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return err
	}

	batch := s.db.NewWriteBatch()
	defer batch.Cancel()
	for _, key := range keys {
		if err = batch.Delete(key); err != nil {
			return err
		}
	}
	if err = batch.Flush(); err != nil {
		return err
	}
	s.log.Debug("Conversation history dropped", "conversation_id", id, "messages", len(keys))
	return nil
}

func fromConversation(conversation domain.Conversation) conversationRecord {
	return conversationRecord{
		ID:    int64(conversation.ID),
		UserA: int64(conversation.UserA),
		UserB: int64(conversation.UserB),
	}
}

func toConversation(record conversationRecord) domain.Conversation {
	return domain.Conversation{
		ID:    domain.ConversationID(record.ID),
		UserA: domain.UserID(record.UserA),
		UserB: domain.UserID(record.UserB),
	}
}
