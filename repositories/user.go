package repositories

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	stderrors "errors"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const searchLimit = 50

type userRecord struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
	CreatedAt    int64  `json:"created_at"`
}

// CreateUser persists a new account. Usernames are unique regardless of case.
func (s *Store) CreateUser(ctx context.Context, username, passwordHash string) (domain.User, error) {
	if err := ctx.Err(); err != nil {
		return domain.User{}, err
	}
	id, err := nextID(s.userSeq)
	if err != nil {
		return domain.User{}, err
	}
	user := domain.User{
		ID:           domain.UserID(id),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}

	err = s.update(func(txn *badger.Txn) error {
		_, err := txn.Get(usernameKey(username))
		switch {
		case err == nil:
			return errors.ErrUserAlreadyExists
		case !stderrors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		if err = txn.Set(usernameKey(username), []byte(user.ID.String())); err != nil {
			return err
		}
		return setJSON(txn, userKey(user.ID), fromUser(user))
	})
	if err != nil {
		return domain.User{}, err
	}

	if err = s.index.Index(user); err != nil {
		s.log.Warn("Unable to index user, search may miss it", "user_id", user.ID, "error", err)
	}
	return user, nil
}

func (s *Store) GetUser(ctx context.Context, id domain.UserID) (domain.User, error) {
	if err := ctx.Err(); err != nil {
		return domain.User{}, err
	}
	var record userRecord
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, userKey(id), &record)
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return domain.User{}, errors.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, err
	}
	return toUser(record), nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	if err := ctx.Err(); err != nil {
		return domain.User{}, err
	}
	var record userRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(usernameKey(username))
		if err != nil {
			return err
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		id, err := strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return err
		}
		return getJSON(txn, userKey(domain.UserID(id)), &record)
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return domain.User{}, errors.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, err
	}
	return toUser(record), nil
}

// SearchUsers returns the users whose username contains query, ordered by id.
// An empty query lists everybody, up to searchLimit.
func (s *Store) SearchUsers(ctx context.Context, query string) ([]domain.User, error) {
	ids, err := s.index.Search(ctx, query, searchLimit)
	if err != nil {
		return nil, err
	}
	users := make([]domain.User, 0, len(ids))
	for _, id := range ids {
		user, err := s.GetUser(ctx, id)
		if stderrors.Is(err, errors.ErrUserNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, nil
}

// ReindexUsers feeds every stored user to the search index.
// It lets a lost or fresh index catch up with Badger at boot.
func (s *Store) ReindexUsers(ctx context.Context) (int, error) {
	var records []userRecord
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte("user:id:")
		options := badger.DefaultIteratorOptions
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var record userRecord
			if err := getItemJSON(it.Item(), &record); err != nil {
				return err
			}
			records = append(records, record)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	for _, record := range records {
		if err = s.index.Index(toUser(record)); err != nil {
			return 0, err
		}
	}
	return len(records), nil
}

func fromUser(user domain.User) userRecord {
	return userRecord{
		ID:           int64(user.ID),
		Username:     user.Username,
		PasswordHash: user.PasswordHash,
		CreatedAt:    user.CreatedAt.Unix(),
	}
}

func toUser(record userRecord) domain.User {
	return domain.User{
		ID:           domain.UserID(record.ID),
		Username:     record.Username,
		PasswordHash: record.PasswordHash,
		CreatedAt:    time.Unix(record.CreatedAt, 0).UTC(),
	}
}
