package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bowerhall/kindly/internal/conversation"
	"github.com/bowerhall/kindly/internal/logger"
)

// maxBodySize bounds request bodies; a 1000 character message fits easily.
const maxBodySize = 64 * 1024

// Server exposes the conversation service over HTTP.
type Server struct {
	svc  *conversation.Service
	opts Options
	ws   *WSHandler
}

func NewServer(svc *conversation.Service, opts Options) *Server {
	return &Server{
		svc:  svc,
		opts: opts,
		ws:   NewWSHandler(svc, opts.CORS.AllowedOrigins),
	}
}

// Handler returns the routed handler wrapped in the CORS middleware.
func (s *Server) Handler() http.Handler {
	p := strings.TrimSuffix(s.opts.Prefix, "/")

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET "+p+"/health", s.handleHealth)

	mux.HandleFunc("POST "+p+"/conversations/start", s.handleStart)
	mux.HandleFunc("GET "+p+"/conversations/debug/sessions", s.handleDebug)
	mux.HandleFunc("POST "+p+"/conversations/{session_id}/messages", s.handleMessage)
	mux.HandleFunc("GET "+p+"/conversations/{session_id}", s.handleHistory)
	mux.HandleFunc("DELETE "+p+"/conversations/{session_id}", s.handleEnd)

	mux.Handle("GET /ws", s.ws)

	return withCORS(s.opts.CORS, mux)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	p := strings.TrimSuffix(s.opts.Prefix, "/")

	writeJSON(w, http.StatusOK, map[string]any{
		"message": appName + " is running!",
		"version": s.opts.Version,
		"endpoints": []string{
			"GET " + p + "/health",
			"POST " + p + "/conversations/start",
			"POST " + p + "/conversations/{session_id}/messages",
			"GET " + p + "/conversations/{session_id}",
			"DELETE " + p + "/conversations/{session_id}",
			"GET " + p + "/conversations/debug/sessions",
			"GET /ws",
		},
	})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	res, err := s.svc.Start(r.Context(), req.Language)
	if err != nil {
		logger.Error("failed to start conversation", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to start conversation")
		return
	}

	writeJSON(w, http.StatusOK, StartResponse{
		SessionID: res.SessionID,
		Message:   res.Message,
		Success:   true,
	})
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")

	var req MessageRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err := validateMessage(req.Message); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	reply, err := s.svc.Send(r.Context(), sessionID, *req.Message)
	if errors.Is(err, conversation.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Session '%s' not found", sessionID))
		return
	}
	if err != nil {
		logger.Error("failed to process message", "session", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to process message")
		return
	}

	confidence := reply.Confidence
	writeJSON(w, http.StatusOK, MessageResponse{
		SessionID:  reply.SessionID,
		Message:    reply.Message,
		Confidence: &confidence,
		Timestamp:  reply.Timestamp,
		Success:    true,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")

	h, err := s.svc.History(r.Context(), sessionID)
	if errors.Is(err, conversation.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Session '%s' not found", sessionID))
		return
	}
	if err != nil {
		logger.Error("failed to read history", "session", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to read history")
		return
	}

	turns := make([]TurnView, len(h.Turns))
	for i, t := range h.Turns {
		turns[i] = TurnView{Timestamp: t.Timestamp, UserMessage: t.UserMessage, BotResponse: t.BotResponse}
	}

	writeJSON(w, http.StatusOK, HistoryResponse{SessionID: h.SessionID, Language: h.Language, History: turns})
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")

	ok, err := s.svc.End(r.Context(), sessionID)
	if err != nil {
		logger.Error("failed to end conversation", "session", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to end conversation")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Session '%s' not found", sessionID))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDebug(w http.ResponseWriter, r *http.Request) {
	info, err := s.svc.Debug(r.Context())
	if err != nil {
		logger.Error("failed to list sessions", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to get debug info")
		return
	}

	writeJSON(w, http.StatusOK, DebugResponse{TotalSessions: info.TotalSessions, SessionIDs: info.SessionIDs})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.svc.SessionCount(r.Context())
	status := "healthy"
	if err != nil {
		logger.Warn("health check could not count sessions", "error", err)
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Version:   s.opts.Version,
		Sessions:  sessions,
		Host:      hostStatus(r.Context()),
	})
}

// decodeBody decodes a JSON body into v. An empty body leaves v at its zero value.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func validateMessage(message *string) error {
	if message == nil {
		return errors.New("message: field required")
	}

	n := utf8.RuneCountInString(*message)
	if n < 1 {
		return errors.New("message: must contain at least 1 character")
	}
	if n > maxMessageLength {
		return fmt.Errorf("message: must contain at most %d characters", maxMessageLength)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, ErrorResponse{Detail: detail})
}
