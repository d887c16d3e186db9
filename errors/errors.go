package errors

import "fmt"

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")
	ErrEmptyWords  = fmt.Errorf("no words have been found")

	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	ErrInvalidPassword    = fmt.Errorf("invalid password")
	ErrInvalidUsername    = fmt.Errorf("invalid username")
	ErrUserAlreadyExists  = fmt.Errorf("user already exists")
	ErrUserNotFound       = fmt.Errorf("user not found")
	ErrTokenGeneration    = fmt.Errorf("token generation failed")

	ErrConversationNotFound = fmt.Errorf("conversation not found")
	ErrNotParticipant       = fmt.Errorf("user is not a participant of the conversation")
	ErrMalformedFrame       = fmt.Errorf("malformed frame")
	ErrMalformedHash        = fmt.Errorf("malformed password hash")
)
