// Package httpapi exposes accounts, history and user search over a JSON HTTP API.
package httpapi

import (
	"chat-relay/auth"
	"chat-relay/contract"
	"chat-relay/services"
	"log/slog"
	"net/http"
)

type Server struct {
	authService   services.IAuthService
	chatService   services.IChatService
	authenticator contract.Authenticator
	registry      contract.IRegistry
	log           *slog.Logger
}

func NewServer(
	authService services.IAuthService,
	chatService services.IChatService,
	authenticator contract.Authenticator,
	registry contract.IRegistry,
	log *slog.Logger,
) *Server {
	return &Server{
		authService:   authService,
		chatService:   chatService,
		authenticator: authenticator,
		registry:      registry,
		log:           log,
	}
}

// Handler builds the full HTTP surface. mounts lets other components,
// such as the websocket relay, add their own routes to the same mux.
func (s *Server) Handler(origins []string, mounts ...func(*http.ServeMux)) http.Handler {
	mux := http.NewServeMux()
	protected := auth.RequireBearer(s.authenticator)

	mux.HandleFunc("POST /register", s.handleRegister)
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.Handle("GET /conversations/{user_id}", protected(http.HandlerFunc(s.handleListConversations)))
	mux.Handle("GET /messages/{conversation_id}", protected(http.HandlerFunc(s.handleListMessages)))
	mux.Handle("DELETE /conversation/{conversation_id}", protected(http.HandlerFunc(s.handleDeleteConversation)))
	mux.Handle("GET /search-users", protected(http.HandlerFunc(s.handleSearchUsers)))

	for _, mount := range mounts {
		mount(mux)
	}
	return chainMiddlewares(mux, withCORS(origins), withLogging(s.log))
}
