package httpapi

import (
	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/errors"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/samber/lo"
)

const maxBodySize = 1 << 20

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type userResponse struct {
	ID       domain.UserID `json:"id"`
	Username string        `json:"username"`
}

type loginResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	User        userResponse `json:"user"`
}

type conversationResponse struct {
	ID    domain.ConversationID `json:"id"`
	UserA domain.UserID         `json:"user_a"`
	UserB domain.UserID         `json:"user_b"`
}

type messageResponse struct {
	ID             domain.MessageID      `json:"id"`
	ConversationID domain.ConversationID `json:"conversation_id"`
	SenderID       domain.UserID         `json:"sender_id"`
	Content        string                `json:"content"`
	Timestamp      string                `json:"timestamp"`
}

type healthResponse struct {
	Status string `json:"status"`
	Online int    `json:"online"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body credentialsRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	user, err := s.authService.Register(r.Context(), body.Username, body.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserResponse(user))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body credentialsRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	session, err := s.authService.Login(r.Context(), body.Username, body.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: session.Token.String(),
		TokenType:   "bearer",
		User:        toUserResponse(session.User),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Online: s.registry.Len()})
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	requester, _ := auth.UserIDFromContext(r.Context())
	user, ok := pathID(w, r, "user_id")
	if !ok {
		return
	}
	conversations, err := s.chatService.ListConversations(r.Context(), requester, domain.UserID(user))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lo.Map(conversations, func(c domain.Conversation, _ int) conversationResponse {
		return conversationResponse{ID: c.ID, UserA: c.UserA, UserB: c.UserB}
	}))
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	requester, _ := auth.UserIDFromContext(r.Context())
	conversation, ok := pathID(w, r, "conversation_id")
	if !ok {
		return
	}
	messages, err := s.chatService.ListMessages(r.Context(), requester, domain.ConversationID(conversation))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lo.Map(messages, func(m domain.Message, _ int) messageResponse {
		return messageResponse{
			ID:             m.ID,
			ConversationID: m.ConversationID,
			SenderID:       m.SenderID,
			Content:        m.Content,
			Timestamp:      domain.FormatTimestamp(m.Timestamp),
		}
	}))
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	requester, _ := auth.UserIDFromContext(r.Context())
	conversation, ok := pathID(w, r, "conversation_id")
	if !ok {
		return
	}
	if err := s.chatService.DeleteConversation(r.Context(), requester, domain.ConversationID(conversation)); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSearchUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.chatService.SearchUsers(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lo.Map(users, func(u domain.User, _ int) userResponse {
		return toUserResponse(u)
	}))
}

func toUserResponse(user domain.User) userResponse {
	return userResponse{ID: user.ID, Username: user.Username}
}

// writeError is the single place mapping domain errors to status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case stderrors.Is(err, errors.ErrInvalidUsername), stderrors.Is(err, errors.ErrInvalidPassword):
		status = http.StatusBadRequest
	case stderrors.Is(err, errors.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case stderrors.Is(err, errors.ErrNotParticipant):
		status = http.StatusForbidden
	case stderrors.Is(err, errors.ErrConversationNotFound), stderrors.Is(err, errors.ErrUserNotFound):
		status = http.StatusNotFound
	case stderrors.Is(err, errors.ErrUserAlreadyExists):
		status = http.StatusConflict
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		s.log.Error("Request failed", "error", err)
		message = "internal error"
	}
	writeJSON(w, status, map[string]string{"error": message})
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err := decoder.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
