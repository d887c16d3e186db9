package repositories

import (
	"chat-relay/domain"
	"fmt"
	"strings"
)

func userKey(id domain.UserID) []byte {
	return []byte(fmt.Sprintf("user:id:%019d", id))
}

func usernameKey(username string) []byte {
	return []byte("user:name:" + strings.ToLower(username))
}

func conversationKey(id domain.ConversationID) []byte {
	return []byte(fmt.Sprintf("conv:id:%019d", id))
}

func pairKey(a, b domain.UserID) []byte {
	return []byte(fmt.Sprintf("conv:pair:%019d:%019d", a, b))
}

func memberPrefix(user domain.UserID) []byte {
	return []byte(fmt.Sprintf("conv:member:%019d:", user))
}

func memberKey(user domain.UserID, id domain.ConversationID) []byte {
	return []byte(fmt.Sprintf("conv:member:%019d:%019d", user, id))
}

func messagePrefix(conversation domain.ConversationID) []byte {
	return []byte(fmt.Sprintf("msg:%019d:", conversation))
}

// messageKey sorts messages by server timestamp, the message id breaking
// ties between messages persisted at the same nanosecond.
func messageKey(message domain.Message) []byte {
	return []byte(fmt.Sprintf("msg:%019d:%019d:%019d",
		message.ConversationID,
		message.Timestamp.UnixNano(),
		message.ID,
	))
}
