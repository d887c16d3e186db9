// Package websocket relays chat frames between authenticated websocket clients.
package websocket

import (
	"chat-relay/contract"
	"chat-relay/services"
	"context"
	stderrors "errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"syscall"
	"time"

	gorilla "github.com/gorilla/websocket"
)

type Config struct {
	MaxFrameSize      int64
	MaxContentLength  int
	WriteTimeout      time.Duration
	PongTimeout       time.Duration
	AuthTimeout       time.Duration
	RateLimitBurst    int
	RateLimitInterval time.Duration
	AllowedOrigins    []string
}

// RelayServer upgrades HTTP requests and runs one Session per connection.
// It owns nothing but the set of live sessions, the registry is injected.
type RelayServer struct {
	registry      contract.IRegistry
	authenticator contract.Authenticator
	chat          services.IChatService
	log           *slog.Logger
	config        Config
	upgrader      gorilla.Upgrader

	mu       sync.Mutex
	sessions map[*Session]struct{}
	closing  bool
	wg       sync.WaitGroup
}

func NewRelayServer(
	registry contract.IRegistry,
	authenticator contract.Authenticator,
	chat services.IChatService,
	log *slog.Logger,
	config Config,
) *RelayServer {
	policy := newOriginPolicy(config.AllowedOrigins)
	s := &RelayServer{
		registry:      registry,
		authenticator: authenticator,
		chat:          chat,
		log:           log,
		config:        config,
		sessions:      make(map[*Session]struct{}),
	}
	s.upgrader = gorilla.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if policy.check(r) {
				return true
			}
			log.Warn("Blocked websocket connection from disallowed origin", "origin", r.Header.Get("Origin"))
			return false
		},
	}
	return s
}

// Routes mounts the relay on mux. The token may travel in the path or in the first frame.
func (s *RelayServer) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", s.ServeWS)
	mux.HandleFunc("GET /ws/{token}", s.ServeWS)
}

func (s *RelayServer) ServeWS(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already answered the client
		s.log.Debug("Websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	session := newSession(s, ws)
	if !s.track(session) {
		_ = session.conn.Close(gorilla.CloseGoingAway, "server shutting down")
		_ = session.conn.release()
		return
	}
	defer s.untrack(session)

	session.log.Debug("Connection accepted", "remote_addr", r.RemoteAddr)
	session.run(context.WithoutCancel(r.Context()), r.PathValue("token"))
}

func (s *RelayServer) track(session *Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.sessions[session] = struct{}{}
	return true
}

func (s *RelayServer) untrack(session *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, session)
}

// Sessions is the number of live sessions, authenticated or not.
func (s *RelayServer) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Shutdown refuses new connections, asks every live session to go away
// and waits for them to finish. When ctx expires first the remaining
// sockets are torn down.
func (s *RelayServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	live := make([]*Session, 0, len(s.sessions))
	for session := range s.sessions {
		live = append(live, session)
	}
	s.mu.Unlock()

	s.log.Info("Closing websocket sessions", "count", len(live))
	for _, session := range live {
		if err := session.conn.Close(gorilla.CloseGoingAway, "server shutting down"); err != nil {
			s.log.Debug("Unable to send close frame", "session_id", session.id, "error", err)
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		for _, session := range live {
			_ = session.conn.release()
		}
		return ctx.Err()
	}
}

func isExpectedCloseError(err error) bool {
	return err == nil ||
		stderrors.Is(err, net.ErrClosed) ||
		stderrors.Is(err, gorilla.ErrCloseSent) ||
		stderrors.Is(err, syscall.EPIPE)
}
