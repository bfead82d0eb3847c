package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/gorilla/websocket"

	"github.com/bowerhall/kindly/internal/conversation"
	"github.com/bowerhall/kindly/internal/logger"
)

// WSHandler runs a conversation over a WebSocket. A client may resume an
// existing session with ?session_id=; otherwise one is started with ?language=.
type WSHandler struct {
	svc            *conversation.Service
	allowedOrigins []string
	upgrader       websocket.Upgrader
}

func NewWSHandler(svc *conversation.Service, allowedOrigins []string) *WSHandler {
	h := &WSHandler{svc: svc, allowedOrigins: allowedOrigins}
	h.upgrader = websocket.Upgrader{CheckOrigin: h.checkOrigin}
	return h
}

func (h *WSHandler) checkOrigin(r *http.Request) bool {
	if len(h.allowedOrigins) == 0 || slices.Contains(h.allowedOrigins, "*") {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true // non-browser clients
	}
	return slices.Contains(h.allowedOrigins, origin)
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))

	var greeting string
	if sessionID == "" {
		res, err := h.svc.Start(ctx, r.URL.Query().Get("language"))
		if err != nil {
			logger.Error("websocket start failed", "error", err)
			conn.WriteJSON(wsResponse{Type: "error", Text: "Failed to start conversation"})
			return
		}
		sessionID, greeting = res.SessionID, res.Message
	} else if _, err := h.svc.History(ctx, sessionID); err != nil {
		conn.WriteJSON(wsResponse{Type: "error", Text: "Session not found"})
		return
	}

	if err := conn.WriteJSON(wsResponse{Type: "connected", SessionID: sessionID, Text: greeting}); err != nil {
		logger.Warn("failed to send connected message", "error", err)
		return
	}

	logger.Info("websocket connected", "session", sessionID)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocket closed unexpectedly", "session", sessionID, "error", err)
			}
			return
		}

		var incoming wsIncoming
		if err := json.Unmarshal(message, &incoming); err != nil {
			conn.WriteJSON(wsResponse{Type: "error", Text: "Invalid message format. Send JSON with a 'text' field."})
			continue
		}

		if incoming.Text == "" {
			continue
		}
		if utf8.RuneCountInString(incoming.Text) > maxMessageLength {
			conn.WriteJSON(wsResponse{Type: "error", Text: "Message is too long."})
			continue
		}

		reply, err := h.svc.Send(ctx, sessionID, incoming.Text)
		if errors.Is(err, conversation.ErrSessionNotFound) {
			conn.WriteJSON(wsResponse{Type: "error", Text: "Session expired. Reconnect to start a new conversation."})
			return
		}
		if err != nil {
			logger.Error("websocket message failed", "session", sessionID, "error", err)
			conn.WriteJSON(wsResponse{Type: "error", Text: "Sorry, I'm having trouble processing your message. Please try again."})
			continue
		}

		confidence := reply.Confidence
		if err := conn.WriteJSON(wsResponse{Type: "message", Text: reply.Message, Confidence: &confidence}); err != nil {
			logger.Warn("failed to write to websocket", "session", sessionID, "error", err)
			return
		}
	}
}
