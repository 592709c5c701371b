// Package session implements the duplex framed channel abstraction
// shared by client↔server and server↔server links: one WebSocket frame
// per message record, FIFO within a session, idempotent close. Frames
// are passed up unparsed; dropping malformed ones is left to callers.
package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"olafchat/internal/logging"
	"olafchat/internal/protoerr"

	"go.uber.org/zap"
)

// Session wraps one *websocket.Conn. Reads happen on the caller's
// goroutine via Receive; writes are serialized internally so concurrent
// Senders don't interleave frames (websocket.Conn forbids concurrent
// writes).
type Session struct {
	conn *websocket.Conn
	id   string

	writeMu sync.Mutex
	closeMu sync.Mutex
	closed  bool
}

// New wraps an established WebSocket connection. id is a human-readable
// label used only for logging (remote address, fingerprint, host:port).
func New(conn *websocket.Conn, id string) *Session {
	return &Session{conn: conn, id: id}
}

// ID returns the session's logging label.
func (s *Session) ID() string { return s.id }

// Send writes one frame. May block under transport backpressure.
func (s *Session) Send(raw []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		return fmt.Errorf("%w: %v", protoerr.ErrTransport, err)
	}
	return nil
}

// Receive blocks for the next frame. Returns protoerr.ErrTransport on
// socket failure (caller should close the session); callers are expected
// to treat malformed frames as the caller's concern, not this layer's —
// Receive itself never inspects the payload, only the transport.
func (s *Session) Receive() ([]byte, error) {
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", protoerr.ErrTransport, err)
	}
	return data, nil
}

// Close is idempotent: the first call closes the underlying connection,
// subsequent calls are no-ops.
func (s *Session) Close() error {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.conn.Close(); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		logging.Debug("session close", zap.String("session", s.id), zap.Error(err))
		return err
	}
	return nil
}
