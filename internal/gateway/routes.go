package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"cardarena/internal/history"
	"cardarena/internal/matchmaking"
	"cardarena/internal/models"
)

// Server is the HTTP surface of the gateway: matchmaking, session WebSocket
// upgrades, presence lookups and the finished-session archive.
type Server struct {
	connections *ConnectionManager
	matchmaker  *matchmaking.Service
	archive     *history.Repository
	presence    PresenceReader
}

// PresenceReader answers online-flag lookups.
type PresenceReader interface {
	IsOnline(ctx context.Context, uid string) (bool, error)
}

// NewServer creates the gateway HTTP server.
func NewServer(connections *ConnectionManager, matchmaker *matchmaking.Service, archive *history.Repository, presence PresenceReader) *Server {
	return &Server{
		connections: connections,
		matchmaker:  matchmaker,
		archive:     archive,
		presence:    presence,
	}
}

// Handler builds the full route set wrapped with CORS.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	mux.HandleFunc("POST /v1/matchmake", s.handleMatchmake)
	mux.HandleFunc("GET /v1/sessions/{kind}/{id}/ws", s.handleSessionSocket)
	mux.HandleFunc("GET /v1/presence/{uid}", s.handlePresence)
	mux.HandleFunc("GET /v1/history", s.handleHistoryList)
	mux.HandleFunc("GET /v1/history/{id}", s.handleHistoryGet)
	mux.HandleFunc("GET /v1/stats", s.handleStats)
	setupHealthCheck(mux)

	return c.Handler(mux)
}

type matchmakeRequest struct {
	GameKind    models.GameKind `json:"game_kind"`
	UserID      string          `json:"user_id"`
	DisplayName string          `json:"display_name"`
	PhotoURL    string          `json:"photo_url,omitempty"`
}

type matchmakeResponse struct {
	SessionID string `json:"session_id"`
}

func (s *Server) handleMatchmake(w http.ResponseWriter, r *http.Request) {
	var req matchmakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || !req.GameKind.Valid() {
		http.Error(w, "user_id and a valid game_kind are required", http.StatusBadRequest)
		return
	}

	user := models.User{ID: req.UserID, DisplayName: req.DisplayName, PhotoURL: req.PhotoURL}
	sessionID, err := s.matchmaker.FindOrCreateSession(r.Context(), user, req.GameKind)
	if err != nil {
		log.Error().Err(err).Str("user_id", req.UserID).Msg("matchmaking failed")
		http.Error(w, "could not start or find a session", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, matchmakeResponse{SessionID: sessionID})
}

func (s *Server) handleSessionSocket(w http.ResponseWriter, r *http.Request) {
	kind := models.GameKind(r.PathValue("kind"))
	sessionID := r.PathValue("id")
	userID := r.URL.Query().Get("user_id")
	if userID == "" || !kind.Valid() {
		http.Error(w, "user_id and a valid game kind are required", http.StatusBadRequest)
		return
	}

	if err := s.connections.UpgradeConnection(w, r, userID, kind, sessionID); err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			http.Error(w, "session not found", http.StatusNotFound)
		case errors.Is(err, models.ErrAccessDenied):
			http.Error(w, "access denied", http.StatusForbidden)
		default:
			http.Error(w, "could not attach to session", http.StatusInternalServerError)
		}
	}
}

func (s *Server) handlePresence(w http.ResponseWriter, r *http.Request) {
	uid := r.PathValue("uid")
	online, err := s.presence.IsOnline(r.Context(), uid)
	if err != nil {
		log.Error().Err(err).Str("user_id", uid).Msg("presence lookup failed")
		http.Error(w, "could not read presence", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": uid, "online": online})
}

func (s *Server) handleHistoryList(w http.ResponseWriter, r *http.Request) {
	uid := r.URL.Query().Get("user_id")
	if uid == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	sessions, err := s.archive.ListForUser(r.Context(), uid, limit)
	if err != nil {
		log.Error().Err(err).Str("user_id", uid).Msg("failed to list session history")
		http.Error(w, "could not load history", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleHistoryGet(w http.ResponseWriter, r *http.Request) {
	archived, err := s.archive.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Msg("failed to load archived session")
		http.Error(w, "could not load session", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, archived)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.connections.GetConnectionStats())
}

func setupHealthCheck(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Warn().Err(err).Msg("failed to write health check response")
		}
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("failed to encode response")
	}
}
