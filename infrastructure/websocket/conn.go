package websocket

import (
	"chat-relay/contract"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	gorilla "github.com/gorilla/websocket"
)

// closeGrace bounds how long a closing connection waits for the peer's close frame.
const closeGrace = time.Second

var ErrConnClosed = fmt.Errorf("connection closed")

// Conn is the registry handle of one websocket connection.
// gorilla allows a single concurrent writer, sendMu serializes data frames
// coming from the owning session and from the sessions relaying to it.
type Conn struct {
	ws           *gorilla.Conn
	writeTimeout time.Duration
	sendMu       sync.Mutex
	closing      atomic.Bool
	closeOnce    sync.Once
}

var _ contract.Handle = (*Conn)(nil)

func newConn(ws *gorilla.Conn, writeTimeout time.Duration) *Conn {
	return &Conn{ws: ws, writeTimeout: writeTimeout}
}

// Send writes one text frame within the write timeout.
func (c *Conn) Send(payload []byte) error {
	if c.closing.Load() {
		return ErrConnClosed
	}
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(gorilla.TextMessage, payload)
}

// ping goes through WriteControl which is safe next to a concurrent writer.
func (c *Conn) ping() error {
	return c.ws.WriteControl(gorilla.PingMessage, nil, time.Now().Add(c.writeTimeout))
}

// Close starts the closing handshake: it sends a close frame once and lets the
// reader drain until the peer answers or closeGrace elapses. The owning session
// releases the socket when its read loop ends.
func (c *Conn) Close(code int, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		message := gorilla.FormatCloseMessage(code, reason)
		err = c.ws.WriteControl(gorilla.CloseMessage, message, time.Now().Add(c.writeTimeout))
		_ = c.ws.SetReadDeadline(time.Now().Add(closeGrace))
	})
	return err
}

func (c *Conn) isClosing() bool {
	return c.closing.Load()
}

// release tears the underlying socket down, unblocking any pending read.
func (c *Conn) release() error {
	c.closing.Store(true)
	return c.ws.Close()
}
