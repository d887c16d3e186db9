package repositories

import (
	"chat-relay/domain"
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/blugelabs/bluge"
)

const usernameField = "username"

// UserIndex backs the username substring search with a Bluge index.
// Badger stays the source of truth, the index only resolves ids.
type UserIndex struct {
	writer *bluge.Writer
}

func NewUserIndex(writer *bluge.Writer) *UserIndex {
	return &UserIndex{writer: writer}
}

// Index inserts or replaces the document of a user.
func (i *UserIndex) Index(user domain.User) error {
	doc := bluge.NewDocument(user.ID.String()).
		AddField(bluge.NewKeywordField(usernameField, strings.ToLower(user.Username)).StoreValue())
	return i.writer.Update(doc.ID(), doc)
}

// Search returns the ids of the users whose username contains query,
// case-insensitively, in ascending order.
func (i *UserIndex) Search(ctx context.Context, query string, limit int) ([]domain.UserID, error) {
	term := sanitizeTerm(query)
	if term == "" && strings.TrimSpace(query) != "" {
		return nil, nil
	}

	reader, err := i.writer.Reader()
	if err != nil {
		return nil, fmt.Errorf("unable to open index reader: %w", err)
	}
	defer reader.Close()

	var q bluge.Query = bluge.NewMatchAllQuery()
	if term != "" {
		q = bluge.NewWildcardQuery("*" + term + "*").SetField(usernameField)
	}

	matches, err := reader.Search(ctx, bluge.NewTopNSearch(limit, q))
	if err != nil {
		return nil, err
	}

	var ids []domain.UserID
	match, err := matches.Next()
	for err == nil && match != nil {
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			if field == "_id" {
				if id, parseErr := strconv.ParseInt(string(value), 10, 64); parseErr == nil {
					ids = append(ids, domain.UserID(id))
				}
			}
			return true
		})
		if err != nil {
			return nil, err
		}
		match, err = matches.Next()
	}
	if err != nil {
		return nil, err
	}
	slices.Sort(ids)
	return ids, nil
}

// sanitizeTerm keeps letters and digits only, usernames never hold anything
// else and it keeps wildcard metacharacters out of the query.
func sanitizeTerm(query string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return -1
	}, query)
}
