package api

import (
	"time"

	"github.com/bowerhall/kindly/internal/config"
)

const (
	maxMessageLength = 1000

	appName = "Kindly Chatbot"
)

type Options struct {
	Prefix  string
	Version string
	CORS    config.CORSConfig
}

type StartRequest struct {
	Language string `json:"language"`
}

type StartResponse struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	Success   bool   `json:"success"`
}

type MessageRequest struct {
	Message *string `json:"message"`
}

type MessageResponse struct {
	SessionID  string    `json:"session_id"`
	Message    string    `json:"message"`
	Confidence *float64  `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
	Success    bool      `json:"success"`
}

type DebugResponse struct {
	TotalSessions int      `json:"total_sessions"`
	SessionIDs    []string `json:"session_ids"`
}

type HistoryResponse struct {
	SessionID string     `json:"session_id"`
	Language  string     `json:"language"`
	History   []TurnView `json:"history"`
}

type TurnView struct {
	Timestamp   time.Time `json:"timestamp"`
	UserMessage string    `json:"user_message"`
	BotResponse string    `json:"bot_response"`
}

type HealthResponse struct {
	Status    string     `json:"status"`
	Timestamp time.Time  `json:"timestamp"`
	Version   string     `json:"version"`
	Sessions  int        `json:"sessions"`
	Host      HostStatus `json:"host"`
}

type HostStatus struct {
	MemUsedPercent float64 `json:"mem_used_percent"`
	CPUCount       int     `json:"cpu_count"`
}

type ErrorResponse struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code,omitempty"`
}

// wsIncoming is what a WebSocket client sends.
type wsIncoming struct {
	Text string `json:"text"`
}

// wsResponse is what the server sends over a WebSocket.
type wsResponse struct {
	Type       string   `json:"type"`
	SessionID  string   `json:"session_id,omitempty"`
	Text       string   `json:"text,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}
