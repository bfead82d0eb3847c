package conversation

import (
	"time"

	"github.com/bowerhall/kindly/internal/matcher"
	"github.com/bowerhall/kindly/internal/session"
)

// Responder picks replies. *matcher.Engine satisfies it.
type Responder interface {
	Match(message, lang string) matcher.Result
	Greeting(lang string) string
}

type StartResult struct {
	SessionID string
	Language  string
	Message   string
}

type Reply struct {
	SessionID  string
	Message    string
	Confidence float64
	Source     string
	Timestamp  time.Time
}

// DebugInfo is a point-in-time view of the live sessions.
type DebugInfo struct {
	TotalSessions int
	SessionIDs    []string
}

type History struct {
	SessionID string
	Language  string
	Turns     []session.Turn
}
