package domain

import (
	"time"
)

type MessageID int64

// Message represents an immutable chat message.
// Timestamp is assigned by the store when the message is persisted.
type Message struct {
	ID             MessageID
	ConversationID ConversationID
	SenderID       UserID
	Content        string
	Timestamp      time.Time
}
