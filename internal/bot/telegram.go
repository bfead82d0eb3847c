package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/bowerhall/kindly/internal/logger"
)

type telegram struct {
	api    *tgbotapi.BotAPI
	router *router
}

func newTelegram(token string, router *router) (Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	return &telegram{api: api, router: router}, nil
}

func (t *telegram) Name() string {
	return "telegram"
}

func (t *telegram) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := t.api.GetUpdatesChan(u)
	defer t.api.StopReceivingUpdates()

	logger.Info("telegram bot started", "username", t.api.Self.UserName)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update := <-updates:
			if update.Message == nil || update.Message.Text == "" {
				continue
			}

			go t.handleMessage(ctx, update.Message)
		}
	}
}

func (t *telegram) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatKey := fmt.Sprintf("telegram:%d", msg.Chat.ID)

	var from, language string
	if msg.From != nil {
		from = msg.From.UserName
		// Telegram reports IETF tags such as "nb-NO"
		language, _, _ = strings.Cut(strings.ToLower(msg.From.LanguageCode), "-")
	}

	logger.Info("message received", "chat", chatKey, "from", from, "text", truncate(msg.Text, 50))

	response := t.router.handle(ctx, chatKey, language, msg.Text)

	reply := tgbotapi.NewMessage(msg.Chat.ID, response)
	reply.ReplyToMessageID = msg.MessageID

	if _, err := t.api.Send(reply); err != nil {
		logger.Error("send failed", "error", err)
	} else {
		logger.Info("reply sent", "chars", len(response))
	}
}
