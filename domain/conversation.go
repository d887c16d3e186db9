package domain

import "strconv"

type ConversationID int64

func (id ConversationID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// Conversation links exactly two users.
// UserA <= UserB always holds, see CanonicalPair.
type Conversation struct {
	ID    ConversationID
	UserA UserID
	UserB UserID
}

// CanonicalPair orders a pair of users so that the same two users
// always resolve to the same conversation whatever the sender is.
func CanonicalPair(a, b UserID) (UserID, UserID) {
	if a <= b {
		return a, b
	}
	return b, a
}

// Has reports whether the user takes part in the conversation.
func (c Conversation) Has(user UserID) bool {
	return c.UserA == user || c.UserB == user
}

// Peer returns the other participant.
func (c Conversation) Peer(user UserID) UserID {
	if c.UserA == user {
		return c.UserB
	}
	return c.UserA
}
