package domain

import (
	"bytes"
	"chat-relay/errors"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

const (
	ErrorCodePersistence          = "persistence_failed"
	ErrorCodeConversationRejected = "conversation_rejected"
)

// InboundFrame is what an authenticated client sends to relay a message.
type InboundFrame struct {
	To             UserID          `json:"to" validate:"required,gt=0"`
	Content        string          `json:"content" validate:"required"`
	ConversationID *ConversationID `json:"conversation_id,omitempty" validate:"omitempty,gt=0"`
}

// OutboundFrame is pushed to the recipient and echoed to the sender.
// Both receive the exact same bytes.
type OutboundFrame struct {
	ConversationID ConversationID `json:"conversation_id"`
	SenderID       UserID         `json:"sender_id"`
	Content        string         `json:"content"`
	Timestamp      string         `json:"timestamp"`
	MessageID      MessageID      `json:"message_id"`
}

// ErrorFrame is only ever sent back to the session that caused it.
type ErrorFrame struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type authFrame struct {
	Token string `json:"token"`
}

// ParseInbound decodes and validates a raw inbound frame.
// Every failure wraps errors.ErrMalformedFrame.
// A maxContentLength <= 0 disables the length check.
func ParseInbound(raw []byte, maxContentLength int) (InboundFrame, error) {
	var frame InboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return InboundFrame{}, fmt.Errorf("%w: %v", errors.ErrMalformedFrame, err)
	}
	if err := validate.Struct(frame); err != nil {
		return InboundFrame{}, fmt.Errorf("%w: %v", errors.ErrMalformedFrame, err)
	}
	if maxContentLength > 0 && utf8.RuneCountInString(frame.Content) > maxContentLength {
		return InboundFrame{}, fmt.Errorf("%w: content exceeds %d characters",
			errors.ErrMalformedFrame, maxContentLength)
	}
	return frame, nil
}

// ParseCredential extracts a bearer token sent as the first frame,
// either raw or as {"token": "..."}.
func ParseCredential(raw []byte) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var frame authFrame
		if err := json.Unmarshal(trimmed, &frame); err != nil {
			return ""
		}
		return frame.Token
	}
	return string(trimmed)
}

func NewOutboundFrame(message Message) OutboundFrame {
	return OutboundFrame{
		ConversationID: message.ConversationID,
		SenderID:       message.SenderID,
		Content:        message.Content,
		Timestamp:      FormatTimestamp(message.Timestamp),
		MessageID:      message.ID,
	}
}

// FormatTimestamp is the single textual representation of server timestamps.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
