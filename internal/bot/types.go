package bot

import (
	"context"

	"github.com/bowerhall/kindly/internal/conversation"
)

// Bot is a chat channel that forwards messages to the conversation service.
type Bot interface {
	Start(ctx context.Context) error
	Name() string
}

// Conversations is the part of conversation.Service the channels use.
type Conversations interface {
	Start(ctx context.Context, language string) (conversation.StartResult, error)
	Send(ctx context.Context, sessionID, message string) (conversation.Reply, error)
	End(ctx context.Context, sessionID string) (bool, error)
}

type Config struct {
	Provider string
	Token    string
	// Language is used when the platform does not report the user's language.
	Language string
}
