// Package api implements the account and room management HTTP routes:
// registration, login, room creation and listing, room join authorization,
// and paginated message history. It runs as its own process next to the
// relay and shares nothing with it but the database and the token secret.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/fluxchat/relay/internal/auth"
	"github.com/fluxchat/relay/internal/store"
	"github.com/fluxchat/relay/internal/wire"
)

// Store is the persistence surface the API depends on.
type Store interface {
	CreateUser(ctx context.Context, username, passwordHash string) (store.User, error)
	UserByUsername(ctx context.Context, username string) (store.User, error)
	CreateRoom(ctx context.Context, name string, isPrivate bool, password, createdBy string) (store.Room, error)
	ListRooms(ctx context.Context) ([]store.Room, error)
	RoomByID(ctx context.Context, roomID string) (store.Room, error)
	AddRoomMember(ctx context.Context, roomID, userID string) error
	RoomMessages(ctx context.Context, roomID string, page, pageSize int) ([]wire.StoredMessage, error)
}

// Server holds the API's handler dependencies.
type Server struct {
	store    Store
	signer   *auth.Signer
	verifier *auth.Verifier
	logger   *slog.Logger
}

// NewServer wires the API handlers together.
func NewServer(st Store, signer *auth.Signer, verifier *auth.Verifier, logger *slog.Logger) *Server {
	return &Server{store: st, signer: signer, verifier: verifier, logger: logger}
}

// Routes returns the API mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/register", s.handleRegister)
	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("POST /rooms", s.requireAuth(s.handleCreateRoom))
	mux.HandleFunc("GET /rooms", s.requireAuth(s.handleListRooms))
	mux.HandleFunc("POST /rooms/{roomId}/join", s.requireAuth(s.handleJoinRoom))
	mux.HandleFunc("GET /rooms/{roomId}/messages", s.requireAuth(s.handleRoomMessages))
	return mux
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type userResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type tokenResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username & password required")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.internalError(w, "hashing password", err)
		return
	}

	user, err := s.store.CreateUser(r.Context(), req.Username, hash)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			writeError(w, http.StatusConflict, "username taken")
			return
		}
		s.internalError(w, "creating user", err)
		return
	}

	s.issueToken(w, user)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username & password required")
		return
	}

	user, err := s.store.UserByUsername(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		s.internalError(w, "loading user", err)
		return
	}

	if !auth.CheckPassword(req.Password, user.PasswordHash) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	s.issueToken(w, user)
}

func (s *Server) issueToken(w http.ResponseWriter, user store.User) {
	identity := wire.Identity{ID: user.ID, Username: user.Username}
	token, err := s.signer.Sign(identity)
	if err != nil {
		s.internalError(w, "signing token", err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{
		Token: token,
		User:  userResponse{ID: user.ID, Username: user.Username},
	})
}

type createRoomRequest struct {
	Name      string `json:"name"`
	IsPrivate bool   `json:"is_private"`
	Password  string `json:"password"`
}

type roomResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsPrivate bool   `json:"is_private"`
	CreatedAt string `json:"created_at"`
}

func toRoomResponse(r store.Room) roomResponse {
	return roomResponse{
		ID:        r.ID,
		Name:      r.Name,
		IsPrivate: r.IsPrivate,
		CreatedAt: r.CreatedAt.Format(time.RFC3339),
	}
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request, identity wire.Identity) {
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, "room name required")
		return
	}

	room, err := s.store.CreateRoom(r.Context(), req.Name, req.IsPrivate, req.Password, identity.ID)
	if err != nil {
		s.internalError(w, "creating room", err)
		return
	}
	writeJSON(w, http.StatusOK, toRoomResponse(room))
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request, _ wire.Identity) {
	rooms, err := s.store.ListRooms(r.Context())
	if err != nil {
		s.internalError(w, "listing rooms", err)
		return
	}

	out := make([]roomResponse, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, toRoomResponse(room))
	}
	writeJSON(w, http.StatusOK, out)
}

type joinRoomRequest struct {
	Password string `json:"password"`
}

// handleJoinRoom is the authorization gate that runs before a join command
// ever reaches the relay: membership and private-room passwords are
// checked here, not in the WebSocket session.
func (s *Server) handleJoinRoom(w http.ResponseWriter, r *http.Request, identity wire.Identity) {
	roomID := r.PathValue("roomId")

	var req joinRoomRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	room, err := s.store.RoomByID(r.Context(), roomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "room not found")
			return
		}
		s.internalError(w, "loading room", err)
		return
	}

	if room.IsPrivate && room.Password != req.Password {
		writeError(w, http.StatusForbidden, "invalid room password")
		return
	}

	if err := s.store.AddRoomMember(r.Context(), roomID, identity.ID); err != nil {
		s.internalError(w, "adding room member", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type historyResponse struct {
	Page     int                  `json:"page"`
	PageSize int                  `json:"pageSize"`
	Messages []wire.StoredMessage `json:"messages"`
}

func (s *Server) handleRoomMessages(w http.ResponseWriter, r *http.Request, _ wire.Identity) {
	roomID := r.PathValue("roomId")
	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "pageSize", 20)

	messages, err := s.store.RoomMessages(r.Context(), roomID, page, pageSize)
	if err != nil {
		s.internalError(w, "loading history", err)
		return
	}
	if messages == nil {
		messages = []wire.StoredMessage{}
	}
	writeJSON(w, http.StatusOK, historyResponse{Page: page, PageSize: pageSize, Messages: messages})
}

func (s *Server) internalError(w http.ResponseWriter, action string, err error) {
	s.logger.Error("internal error", "action", action, "error", err)
	writeError(w, http.StatusInternalServerError, "internal")
}

func queryInt(r *http.Request, key string, defaultValue int) int {
	if parsed, err := strconv.Atoi(r.URL.Query().Get(key)); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
