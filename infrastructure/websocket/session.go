package websocket

import (
	"chat-relay/domain"
	"chat-relay/services"
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	gorilla "github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const persistenceFailedMessage = "message could not be stored"

// Session drives one client connection from authentication to close.
// Frames of a session are handled one at a time, in read order.
type Session struct {
	id      string
	server  *RelayServer
	conn    *Conn
	log     *slog.Logger
	limiter *rate.Limiter
	state   atomic.Int32
	user    domain.UserID
}

func newSession(server *RelayServer, ws *gorilla.Conn) *Session {
	id := uuid.NewString()
	ws.SetReadLimit(server.config.MaxFrameSize)
	return &Session{
		id:      id,
		server:  server,
		conn:    newConn(ws, server.config.WriteTimeout),
		log:     server.log.With("session_id", id),
		limiter: rate.NewLimiter(rate.Every(server.config.RateLimitInterval), server.config.RateLimitBurst),
	}
}

func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(state State) {
	s.state.Store(int32(state))
}

// run blocks until the connection is gone. credential is the token taken from the
// handshake path, empty when the client authenticates with its first frame.
func (s *Session) run(ctx context.Context, credential string) {
	defer s.finish()

	s.setState(StateAuthenticating)
	user, ok := s.authenticate(credential)
	if !ok {
		_ = s.conn.Close(gorilla.ClosePolicyViolation, "authentication failed")
		s.drain()
		return
	}
	s.user = user
	s.log = s.log.With("user_id", user)

	if previous := s.server.registry.Register(user, s.conn); previous != nil {
		s.log.Info("Connection superseded by a newer login")
	}
	s.setState(StateActive)
	s.log.Info("Session active")

	pingCtx, stopPinger := context.WithCancel(ctx)
	defer stopPinger()
	go s.keepAlive(pingCtx)

	s.readLoop(ctx)

	s.setState(StateDraining)
	if s.server.registry.Unregister(user, s.conn) {
		s.log.Info("Session unregistered")
	} else {
		s.log.Debug("Session was already superseded, registry left untouched")
	}
}

// authenticate resolves the user, reading the credential from the first frame when needed.
func (s *Session) authenticate(credential string) (domain.UserID, bool) {
	if credential == "" {
		_ = s.conn.ws.SetReadDeadline(time.Now().Add(s.server.config.AuthTimeout))
		_, raw, err := s.conn.ws.ReadMessage()
		if err != nil {
			s.log.Debug("No credential received", "error", err)
			return 0, false
		}
		credential = domain.ParseCredential(raw)
	}
	user, ok := s.server.authenticator.Verify(credential)
	if !ok {
		s.log.Info("Authentication failed")
	}
	return user, ok
}

func (s *Session) readLoop(ctx context.Context) {
	pongTimeout := s.server.config.PongTimeout
	_ = s.conn.ws.SetReadDeadline(time.Now().Add(pongTimeout))
	s.conn.ws.SetPongHandler(func(string) error {
		if s.conn.isClosing() {
			return nil
		}
		return s.conn.ws.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		messageType, raw, err := s.conn.ws.ReadMessage()
		if err != nil {
			s.logReadError(err)
			return
		}
		if messageType != gorilla.TextMessage {
			s.log.Debug("Non text frame dropped")
			continue
		}
		if !s.limiter.Allow() {
			s.log.Debug("Rate limit exceeded, frame dropped")
			continue
		}
		frame, err := domain.ParseInbound(raw, s.server.config.MaxContentLength)
		if err != nil {
			s.log.Debug("Malformed frame dropped", "error", err)
			continue
		}
		s.handleFrame(ctx, frame)
	}
}

// handleFrame persists the message then relays it. The outbound frame is encoded
// once so the recipient and the sender's echo receive the same bytes.
func (s *Session) handleFrame(ctx context.Context, frame domain.InboundFrame) {
	message, err := s.server.chat.Persist(ctx, s.user, frame)
	if err != nil {
		if services.IsRejection(err) {
			s.log.Warn("Frame rejected", "to", frame.To, "error", err)
			s.sendError(domain.ErrorCodeConversationRejected, err.Error())
			return
		}
		// Storage errors stay in the logs
		s.log.Error("Unable to persist message", "to", frame.To, "error", err)
		s.sendError(domain.ErrorCodePersistence, persistenceFailedMessage)
		return
	}

	payload, err := json.Marshal(domain.NewOutboundFrame(message))
	if err != nil {
		s.log.Error("Unable to encode outbound frame", "error", err)
		return
	}

	if frame.To != s.user {
		if recipient, ok := s.server.registry.Lookup(frame.To); ok {
			// A failed delivery only affects the recipient, the message is already durable
			if err = recipient.Send(payload); err != nil {
				s.log.Warn("Delivery to recipient failed", "to", frame.To, "error", err)
			}
		}
	}
	if err = s.conn.Send(payload); err != nil {
		s.log.Warn("Echo to sender failed", "error", err)
	}
}

func (s *Session) sendError(code, message string) {
	payload, err := json.Marshal(domain.ErrorFrame{Error: code, Message: message})
	if err != nil {
		return
	}
	if err = s.conn.Send(payload); err != nil {
		s.log.Warn("Unable to send error frame", "error", err)
	}
}

// keepAlive pings the peer until ctx is done or a ping fails.
func (s *Session) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(s.server.config.PongTimeout * 9 / 10)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.conn.ping(); err != nil {
				s.log.Debug("Ping failed", "error", err)
				return
			}
		}
	}
}

// drain waits for the peer to acknowledge a close frame that was already sent.
func (s *Session) drain() {
	for {
		if _, _, err := s.conn.ws.NextReader(); err != nil {
			return
		}
	}
}

func (s *Session) finish() {
	if err := s.conn.release(); err != nil && !isExpectedCloseError(err) {
		s.log.Debug("Error releasing connection", "error", err)
	}
	s.setState(StateClosed)
	s.log.Debug("Session closed")
}

func (s *Session) logReadError(err error) {
	switch {
	case stderrors.Is(err, gorilla.ErrReadLimit):
		s.log.Info("Frame exceeded maximum size", "limit", s.server.config.MaxFrameSize)
	case gorilla.IsCloseError(err, gorilla.CloseNormalClosure, gorilla.CloseGoingAway, gorilla.CloseNoStatusReceived):
		s.log.Info("Client disconnected")
	case stderrors.Is(err, io.EOF), s.conn.isClosing(), isExpectedCloseError(err):
		s.log.Debug("Connection closed", "error", err)
	default:
		s.log.Warn("Unexpected read error", "error", err)
	}
}
