// Package relay exposes the HTTP surface: WebSocket upgrades, connect-time
// authentication, health checks, and server lifecycle helpers.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fluxchat/relay/internal/auth"
	"github.com/fluxchat/relay/internal/config"
	"github.com/fluxchat/relay/internal/registry"
	"github.com/fluxchat/relay/internal/wire"
)

// Close codes sent before terminating an unauthenticated connection.
// Clients use the distinction to decide between prompting a re-login
// (invalid) and retrying after attaching a credential (missing).
const (
	CloseMissingToken = 4001
	CloseInvalidToken = 4002
)

// Publisher is the broker surface sessions publish on.
type Publisher interface {
	Publish(ctx context.Context, subject string, payload []byte) error
}

// TokenVerifier validates a connection-time credential.
type TokenVerifier interface {
	Verify(token string) (wire.Identity, error)
}

// Server owns the relay's client-facing state: the room registry, the
// WebSocket upgrader, and the verifier consulted before any room state is
// touched.
type Server struct {
	cfg       config.Config
	verifier  TokenVerifier
	registry  *registry.Registry
	publisher Publisher
	logger    *slog.Logger
	upgrader  websocket.Upgrader
}

// NewServer wires the relay's handler dependencies together.
func NewServer(cfg config.Config, verifier TokenVerifier, reg *registry.Registry, publisher Publisher, logger *slog.Logger) *Server {
	origins := newOriginChecker(cfg.AllowedOrigins, logger)
	return &Server{
		cfg:       cfg,
		verifier:  verifier,
		registry:  reg,
		publisher: publisher,
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.check,
		},
	}
}

// Routes returns the relay's HTTP mux: health check and the WebSocket
// endpoint.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.HealthHandler)
	mux.HandleFunc("/ws", s.WebSocketHandler)
	return mux
}

// HealthHandler reports that the relay process is up.
func (s *Server) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "chat relay is running")
}

// WebSocketHandler upgrades the connection, authenticates the credential
// supplied as the token query parameter, and runs the session until the
// transport closes. Missing and invalid credentials terminate the
// connection with distinct close codes before any room state is touched.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "WebSocket endpoint only accepts GET requests", http.StatusMethodNotAllowed)
		return
	}

	token := r.URL.Query().Get("token")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", "addr", r.RemoteAddr, "error", err)
		return
	}

	identity, err := s.verifier.Verify(token)
	if err != nil {
		code := CloseInvalidToken
		reason := "invalid token"
		if errors.Is(err, auth.ErrMissingToken) {
			code = CloseMissingToken
			reason = "missing token"
		}
		s.logger.Warn("rejecting unauthenticated connection",
			"addr", r.RemoteAddr, "reason", reason)
		s.closeWithCode(conn, code, reason)
		return
	}

	s.logger.Info("client connected", "addr", r.RemoteAddr, "user", identity.ID)
	newSession(conn, identity, s).run()
}

func (s *Server) closeWithCode(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(writeWait)
	msg := websocket.FormatCloseMessage(code, reason)
	if err := conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil && !isExpectedCloseError(err) {
		s.logger.Debug("error writing close message", "error", err)
	}
	if err := conn.Close(); err != nil && !isExpectedCloseError(err) {
		s.logger.Debug("error closing connection", "error", err)
	}
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}

// NewHTTPServer creates an HTTP server with production timeout settings.
// The timeouts govern the initial HTTP exchange only; upgraded WebSocket
// connections manage their own deadlines in the session pumps.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// ShutdownHTTPServer gracefully shuts the server down, waiting for active
// connections up to timeout.
func ShutdownHTTPServer(server *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return server.Shutdown(ctx)
}
