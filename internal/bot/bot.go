package bot

import (
	"fmt"
)

func New(cfg Config, conv Conversations) (Bot, error) {
	switch cfg.Provider {
	case "telegram":
		return NewTelegram(cfg.Token, conv, cfg.Language)
	case "discord":
		return NewDiscord(cfg.Token, conv, cfg.Language)
	default:
		return nil, fmt.Errorf("unknown bot provider: %s", cfg.Provider)
	}
}

func NewTelegram(token string, conv Conversations, language string) (Bot, error) {
	return newTelegram(token, newRouter(conv, language))
}

func NewDiscord(token string, conv Conversations, language string) (Bot, error) {
	return newDiscord(token, newRouter(conv, language))
}
