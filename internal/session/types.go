package session

import (
	"slices"
	"time"
)

// Turn is one exchange in a conversation.
type Turn struct {
	Timestamp   time.Time `json:"timestamp"`
	UserMessage string    `json:"user_message"`
	BotResponse string    `json:"bot_response"`
}

// Session is the server-side state of one conversation. Values returned by a
// Store are copies; mutating them does not affect the store.
type Session struct {
	ID           string    `json:"id"`
	Language     string    `json:"language"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	History      []Turn    `json:"history"`
}

func (s *Session) clone() *Session {
	c := *s
	c.History = slices.Clone(s.History)
	return &c
}

// Patch holds the fields Update merges into a session. Nil fields are left alone.
type Patch struct {
	Language *string
	History  []Turn
}

func (p Patch) empty() bool {
	return p.Language == nil && p.History == nil
}
