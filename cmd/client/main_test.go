package main

import (
	"chat-relay/domain"
	"testing"

	"github.com/gookit/color"
	"github.com/stretchr/testify/require"
)

func TestParseLine(t *testing.T) {
	req := require.New(t)

	frame, err := parseLine("@42 hello there")
	req.NoError(err)
	req.Equal(domain.UserID(42), frame.To)
	req.Equal("hello there", frame.Content)
	req.Nil(frame.ConversationID)

	for _, line := range []string{"hello", "@42", "@42   ", "@abc hi", "@0 hi", "@-3 hi"} {
		_, err = parseLine(line)
		req.ErrorIs(err, errBadLine, line)
	}
}

func TestWebsocketURL(t *testing.T) {
	req := require.New(t)

	u, err := websocketURL("http://localhost:8080")
	req.NoError(err)
	req.Equal("ws://localhost:8080/ws", u)

	u, err = websocketURL("https://chat.example.com/relay/")
	req.NoError(err)
	req.Equal("wss://chat.example.com/relay/ws", u)
}

func TestRender(t *testing.T) {
	req := require.New(t)
	color.Enable = false
	defer func() { color.Enable = true }()

	line := render([]byte(`{"error":"persistence_failed","message":"boom"}`), 1)
	req.Equal("! persistence_failed boom", line)

	line = render([]byte(`{"conversation_id":3,"sender_id":2,"content":"hi","timestamp":"bad","message_id":9}`), 1)
	req.Equal("[bad] #2 (conversation 3) hi", line)

	req.Equal("not json", render([]byte("not json"), 1))
}
