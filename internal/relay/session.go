// Package relay manages individual WebSocket sessions, handling read/write
// pumps, command processing, and lifecycle control for each connection.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fluxchat/relay/internal/registry"
	"github.com/fluxchat/relay/internal/wire"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second

	sendBufferSize = 256
)

var (
	// ErrSessionClosed is returned by Deliver after the session shut down.
	ErrSessionClosed = errors.New("session closed")
	// ErrSlowConsumer is returned by Deliver when the session's send
	// buffer is full; the message is dropped for this connection only.
	ErrSlowConsumer = errors.New("send buffer full")
)

// Session is the state machine behind one authenticated WebSocket
// connection. It processes join/leave/message commands in arrival order
// and delivers broadcasts queued by the dispatcher. Once the transport
// closes, for any reason, the session removes itself from every room it
// joined.
type Session struct {
	conn      *websocket.Conn
	send      chan []byte
	identity  wire.Identity
	registry  *registry.Registry
	publisher Publisher
	limiter   *rateLimiter
	logger    *slog.Logger

	done      chan struct{}
	closeOnce sync.Once
}

func newSession(conn *websocket.Conn, identity wire.Identity, srv *Server) *Session {
	conn.SetReadLimit(srv.cfg.MaxMessageSize)

	return &Session{
		conn:      conn,
		send:      make(chan []byte, sendBufferSize),
		identity:  identity,
		registry:  srv.registry,
		publisher: srv.publisher,
		limiter:   newRateLimiter(srv.cfg.RateLimit.Burst, srv.cfg.RateLimit.RefillInterval),
		logger:    srv.logger.With("addr", conn.RemoteAddr().String(), "user", identity.ID),
		done:      make(chan struct{}),
	}
}

// run drives the session until the connection closes. It blocks in the
// read pump; the write pump runs alongside it.
func (s *Session) run() {
	go s.writePump()
	s.readPump()
}

// Deliver queues a broadcast frame for this connection. It never blocks:
// a full buffer or a closed session surfaces as an error the dispatcher
// logs and moves past.
func (s *Session) Deliver(payload []byte) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}

	select {
	case s.send <- payload:
		return nil
	default:
		return ErrSlowConsumer
	}
}

// close tears the session down exactly once: membership cleanup first, so
// no broadcast can target the dying connection, then the transport.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.registry.RemoveConnection(s)
		if err := s.conn.Close(); err != nil && !isExpectedCloseError(err) {
			s.logger.Debug("error closing connection", "error", err)
		}
	})
}

func (s *Session) readPump() {
	defer s.close()

	if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		s.logger.Warn("error setting read deadline", "error", err)
	}
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			s.logReadEnd(err)
			return
		}

		if !s.limiter.allow() {
			s.logger.Warn("rate limit exceeded, discarding message")
			continue
		}

		s.handleCommand(raw)
	}
}

func (s *Session) logReadEnd(err error) {
	switch {
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		s.logger.Info("client disconnected")
	case errors.Is(err, websocket.ErrReadLimit):
		s.logger.Warn("message exceeded read limit, closing connection")
	case errors.Is(err, io.EOF), isExpectedCloseError(err):
		s.logger.Info("connection closed")
	default:
		s.logger.Warn("read error", "error", err)
	}
}

// handleCommand processes one client command. Protocol errors are logged
// and ignored; they never terminate the connection.
func (s *Session) handleCommand(raw []byte) {
	cmd, err := wire.ParseCommand(raw)
	if err != nil {
		s.logger.Warn("ignoring malformed command", "error", err)
		return
	}

	switch cmd.Type {
	case wire.CommandJoin:
		s.registry.Join(cmd.RoomID, s, s.identity)
		s.logger.Info("joined room", "room", cmd.RoomID)
		s.announce(wire.SubjectRoomJoined, cmd.RoomID)

	case wire.CommandLeave:
		s.registry.Leave(cmd.RoomID, s)
		s.logger.Info("left room", "room", cmd.RoomID)
		s.announce(wire.SubjectRoomLeft, cmd.RoomID)

	case wire.CommandMessage:
		s.submit(cmd)
	}
}

// announce publishes a join/leave event for observability. Failures are
// logged, not fatal: room state already changed locally.
func (s *Session) announce(subject, roomID string) {
	payload, err := json.Marshal(wire.RoomEvent{RoomID: roomID, User: s.identity})
	if err != nil {
		s.logger.Error("error encoding room event", "error", err)
		return
	}
	if err := s.publisher.Publish(context.Background(), subject, payload); err != nil {
		s.logger.Warn("room event publish failed", "subject", subject, "room", roomID, "error", err)
	}
}

// submit publishes a new message for ingestion. The sender gets no echo;
// its own message arrives through the broadcast path once persisted, and
// the client reconciles on clientGeneratedId.
func (s *Session) submit(cmd wire.Command) {
	inbound := wire.InboundMessage{
		RoomID:            cmd.RoomID,
		Content:           cmd.Content,
		User:              s.identity,
		ClientGeneratedID: cmd.ClientID,
		CreatedAt:         time.Now().UTC(),
	}

	payload, err := json.Marshal(inbound)
	if err != nil {
		s.logger.Error("error encoding inbound message", "error", err)
		return
	}

	if err := s.publisher.Publish(context.Background(), wire.SubjectMessageNew, payload); err != nil {
		// The send is lost for this attempt; the connection stays open
		// and the client's delivery timeout handles the retry UX.
		s.logger.Warn("message publish failed", "room", cmd.RoomID, "error", err)
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.close()
	}()

	for {
		select {
		case <-s.done:
			return

		case message := <-s.send:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				s.logger.Warn("error setting write deadline", "error", err)
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				if !isExpectedCloseError(err) {
					s.logger.Warn("write error", "error", err)
				}
				return
			}

		case <-ticker.C:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				s.logger.Warn("error setting write deadline for ping", "error", err)
				return
			}
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
