//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-relay/domain"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Authenticator turns a bearer credential into a user identity.
type Authenticator interface {
	Verify(credential string) (domain.UserID, bool)
}

// Censor masks forbidden words and reports the ones it found.
type Censor interface {
	Censor(content string) (string, []string)
}

// Store is the durable source of truth for users, conversations and messages.
type Store interface {
	CreateUser(ctx context.Context, username, passwordHash string) (domain.User, error)
	GetUser(ctx context.Context, id domain.UserID) (domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)
	SearchUsers(ctx context.Context, query string) ([]domain.User, error)

	CreateOrGetConversation(ctx context.Context, a, b domain.UserID) (domain.Conversation, error)
	GetConversation(ctx context.Context, id domain.ConversationID) (domain.Conversation, error)
	ListConversations(ctx context.Context, user domain.UserID) ([]domain.Conversation, error)
	DeleteConversation(ctx context.Context, id domain.ConversationID) error

	AppendMessage(ctx context.Context, conversation domain.ConversationID,
		sender domain.UserID, content string) (domain.Message, error)
	ListMessages(ctx context.Context, conversation domain.ConversationID) ([]domain.Message, error)
}

// Handle is one live client connection.
// Implementations must be comparable (pointer types) since the registry
// compares handles by identity.
type Handle interface {
	// Send writes one frame. Safe for concurrent use.
	Send(payload []byte) error
	Close(code int, reason string) error
}

type IRegistry interface {
	Register(id domain.UserID, handle Handle) Handle
	Unregister(id domain.UserID, handle Handle) bool
	Lookup(id domain.UserID) (Handle, bool)
	Len() int
}
