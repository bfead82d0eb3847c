package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/bowerhall/kindly/internal/logger"
)

type discord struct {
	session *discordgo.Session
	router  *router
	ctx     context.Context
}

func newDiscord(token string, router *router) (Bot, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentMessageContent

	d := &discord{
		session: session,
		router:  router,
		ctx:     context.Background(),
	}

	session.AddHandler(d.handleMessage)

	return d, nil
}

func (d *discord) Name() string {
	return "discord"
}

func (d *discord) Start(ctx context.Context) error {
	d.ctx = ctx

	if err := d.session.Open(); err != nil {
		return err
	}

	logger.Info("discord bot started")

	<-ctx.Done()
	return d.session.Close()
}

func (d *discord) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || (s.State.User != nil && m.Author.ID == s.State.User.ID) {
		return
	}
	if strings.TrimSpace(m.Content) == "" {
		return
	}

	chatKey := fmt.Sprintf("discord:%s", m.ChannelID)
	logger.Info("message received", "chat", chatKey, "from", m.Author.Username, "text", truncate(m.Content, 50))

	response := d.router.handle(d.ctx, chatKey, "", m.Content)

	if _, err := s.ChannelMessageSendReply(m.ChannelID, response, m.Reference()); err != nil {
		logger.Error("discord reply failed", "error", err)
	} else {
		logger.Info("reply sent", "chars", len(response))
	}
}
