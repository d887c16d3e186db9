package repositories

import (
	"chat-relay/contract"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const (
	sequenceBandwidth  = 100
	maxConflictRetries = 5
)

// Store persists users, conversations and messages in BadgerDB.
//
// Key layout:
//
//	user:id:{user}                   -> userRecord
//	user:name:{lower(username)}      -> user id
//	conv:id:{conversation}           -> conversationRecord
//	conv:pair:{userA}:{userB}        -> conversation id
//	conv:member:{user}:{conversation}
//	msg:{conversation}:{timestamp}:{message} -> messageRecord
//
// Every number is zero padded to 19 digits so that lexicographical
// order is numerical order.
type Store struct {
	db            *badger.DB
	index         *UserIndex
	log           *slog.Logger
	limitMessages *int

	userSeq         *badger.Sequence
	conversationSeq *badger.Sequence
	messageSeq      *badger.Sequence

	clockMu       sync.Mutex
	lastTimestamp time.Time
	now           func() time.Time
}

var _ contract.Store = (*Store)(nil)

func NewStore(db *badger.DB, index *UserIndex, log *slog.Logger, limitMessages *int) (*Store, error) {
	userSeq, err := db.GetSequence([]byte("seq:user"), sequenceBandwidth)
	if err != nil {
		return nil, fmt.Errorf("user sequence: %w", err)
	}
	conversationSeq, err := db.GetSequence([]byte("seq:conv"), sequenceBandwidth)
	if err != nil {
		return nil, fmt.Errorf("conversation sequence: %w", err)
	}
	messageSeq, err := db.GetSequence([]byte("seq:msg"), sequenceBandwidth)
	if err != nil {
		return nil, fmt.Errorf("message sequence: %w", err)
	}
	return &Store{
		db:              db,
		index:           index,
		log:             log,
		limitMessages:   limitMessages,
		userSeq:         userSeq,
		conversationSeq: conversationSeq,
		messageSeq:      messageSeq,
		now:             time.Now,
	}, nil
}

// Close releases the unused part of the leased sequences.
// The database itself belongs to the caller.
func (s *Store) Close() error {
	return errors.Join(
		s.userSeq.Release(),
		s.conversationSeq.Release(),
		s.messageSeq.Release(),
	)
}

// nextTimestamp hands out strictly increasing server timestamps,
// even if the wall clock stalls or goes backwards.
func (s *Store) nextTimestamp() time.Time {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()

	now := s.now().UTC()
	if !now.After(s.lastTimestamp) {
		now = s.lastTimestamp.Add(time.Nanosecond)
	}
	s.lastTimestamp = now
	return now
}

// nextID turns a zero based badger sequence into a positive identifier.
func nextID(seq *badger.Sequence) (int64, error) {
	n, err := seq.Next()
	if err != nil {
		return 0, err
	}
	return int64(n) + 1, nil
}

// update retries transactions that lost a write conflict.
func (s *Store) update(fn func(txn *badger.Txn) error) error {
	for attempt := 0; ; attempt++ {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) || attempt == maxConflictRetries {
			return err
		}
		s.log.Debug("Badger transaction conflict, retrying", "attempt", attempt+1)
	}
}

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return getItemJSON(item, v)
}

func getItemJSON(item *badger.Item, v any) error {
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	return txn.Set(key, data)
}
