// Package gateway exposes the Parley HTTP surface: the session REST
// endpoints and the per-session websocket upgrade.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/parleyhq/parley/internal/gateway/ws"
	"github.com/parleyhq/parley/internal/sessions"
)

const defaultListLimit = 20

// Server is the Parley gateway HTTP server.
type Server struct {
	httpServer *http.Server
	store      sessions.Store
	wsHandler  *ws.Handler
}

// NewServer builds the router and binds it to the store and the websocket
// handler.
func NewServer(store sessions.Store, wsHandler *ws.Handler, host string, port int) *Server {
	s := &Server{
		store:     store,
		wsHandler: wsHandler,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Post("/api/sessions", s.handleCreateSession)
	r.Get("/api/sessions", s.handleListSessions)
	r.Get("/api/sessions/{id}", s.handleGetSession)
	r.Get("/api/sessions/{id}/messages", s.handleSessionMessages)
	r.Get("/api/health", s.handleHealth)
	r.Get("/ws/session/{id}", s.handleSession)

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", host, port),
		Handler: r,
	}

	return s
}

// Start begins listening. It blocks until the server is stopped.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	slog.Info("Parley gateway listening", "addr", ln.Addr().String())
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type createSessionRequest struct {
	UserID string `json:"user_id"`
}

type createSessionResponse struct {
	SessionID    string `json:"session_id"`
	WebsocketURL string `json:"websocket_url"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	// A missing or malformed body means an anonymous session.
	json.NewDecoder(r.Body).Decode(&req)
	if req.UserID == "" {
		req.UserID = "anonymous"
	}

	id := uuid.NewString()
	if _, err := sessions.Start(r.Context(), s.store, id, req.UserID); err != nil {
		slog.Error("create session failed", "user_id", req.UserID, "error", err)
		http.Error(w, "failed to create session", http.StatusInternalServerError)
		return
	}
	slog.Info("session created", "session_id", id, "user_id", req.UserID)

	writeJSON(w, http.StatusCreated, createSessionResponse{
		SessionID:    id,
		WebsocketURL: "/ws/session/" + id,
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	list, err := s.store.ListSessions(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*sessions.Session{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"sessions": list})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, sessions.ErrNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

type messageJSON struct {
	Type      string `json:"type"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

func (s *Server) handleSessionMessages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	events, err := s.store.Events(r.Context(), id,
		sessions.EventUserMessage, sessions.EventAiResponse)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	messages := make([]messageJSON, len(events))
	for i, e := range events {
		messages[i] = messageJSON{
			Type:      string(e.Type),
			Content:   e.Content,
			Timestamp: e.Timestamp.Format(time.RFC3339Nano),
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	s.wsHandler.Serve(w, r, chi.URLParam(r, "id"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
