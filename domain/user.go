// Package domain contains core concepts of the chat system:
// users, two-party conversations, persisted messages and the frames
// exchanged with connected clients.
package domain

import (
	"strconv"
	"time"
)

// UserID identifies an authenticated principal.
type UserID int64

func (id UserID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

type User struct {
	ID           UserID
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}
