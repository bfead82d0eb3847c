package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/bowerhall/kindly/internal/conversation"
	"github.com/bowerhall/kindly/internal/logger"
)

const (
	replyFailed = "Something went wrong."
	replyEnded  = "Conversation ended. Send /start to begin again."
)

var (
	startCommands = []string{"/start", "/restart"}
	endCommands   = []string{"/stop", "/end"}
)

// router maps chat keys such as "telegram:123" to conversation sessions.
// A chat whose session expired gets a fresh one without noticing. Messages of
// one chat are handled one at a time so a chat never owns two sessions.
type router struct {
	conv     Conversations
	language string

	mu       sync.Mutex
	sessions map[string]string
	chats    map[string]*sync.Mutex
}

func newRouter(conv Conversations, language string) *router {
	return &router{
		conv:     conv,
		language: language,
		sessions: make(map[string]string),
		chats:    make(map[string]*sync.Mutex),
	}
}

// chatLock returns the mutex serializing messages of chatKey.
func (r *router) chatLock(chatKey string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.chats[chatKey]
	if !ok {
		m = &sync.Mutex{}
		r.chats[chatKey] = m
	}
	return m
}

// handle returns the reply to send back to the chat.
func (r *router) handle(ctx context.Context, chatKey, language, text string) string {
	if language == "" {
		language = r.language
	}

	lock := r.chatLock(chatKey)
	lock.Lock()
	defer lock.Unlock()

	switch {
	case isCommand(text, startCommands):
		r.forget(ctx, chatKey)
		res, err := r.start(ctx, chatKey, language)
		if err != nil {
			return replyFailed
		}
		return res.Message

	case isCommand(text, endCommands):
		r.forget(ctx, chatKey)
		return replyEnded
	}

	sessionID, err := r.session(ctx, chatKey, language)
	if err != nil {
		return replyFailed
	}

	reply, err := r.conv.Send(ctx, sessionID, text)
	if errors.Is(err, conversation.ErrSessionNotFound) {
		logger.Info("chat session expired, starting a new one", "chat", chatKey)
		r.drop(chatKey, sessionID)

		if sessionID, err = r.session(ctx, chatKey, language); err != nil {
			return replyFailed
		}
		reply, err = r.conv.Send(ctx, sessionID, text)
	}
	if err != nil {
		logger.Error("chat message failed", "chat", chatKey, "error", err)
		return replyFailed
	}

	return reply.Message
}

// session returns the chat's session id, starting one if needed.
func (r *router) session(ctx context.Context, chatKey, language string) (string, error) {
	r.mu.Lock()
	id, ok := r.sessions[chatKey]
	r.mu.Unlock()

	if ok {
		return id, nil
	}

	res, err := r.start(ctx, chatKey, language)
	return res.SessionID, err
}

func (r *router) start(ctx context.Context, chatKey, language string) (conversation.StartResult, error) {
	res, err := r.conv.Start(ctx, language)
	if err != nil {
		logger.Error("failed to start chat session", "chat", chatKey, "error", err)
		return res, err
	}

	r.mu.Lock()
	r.sessions[chatKey] = res.SessionID
	r.mu.Unlock()

	return res, nil
}

// forget ends the chat's current session, if any.
func (r *router) forget(ctx context.Context, chatKey string) {
	r.mu.Lock()
	id, ok := r.sessions[chatKey]
	delete(r.sessions, chatKey)
	r.mu.Unlock()

	if !ok {
		return
	}

	if _, err := r.conv.End(ctx, id); err != nil {
		logger.Warn("failed to end chat session", "chat", chatKey, "error", err)
	}
}

// drop removes the mapping only if it still points at sessionID.
func (r *router) drop(chatKey, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sessions[chatKey] == sessionID {
		delete(r.sessions, chatKey)
	}
}

// isCommand matches "/start" as well as "/start@kindly_bot".
func isCommand(text string, commands []string) bool {
	word, _, _ := strings.Cut(strings.TrimSpace(text), " ")
	word, _, _ = strings.Cut(strings.ToLower(word), "@")
	for _, c := range commands {
		if word == c {
			return true
		}
	}
	return false
}

// truncate shortens s to at most limit bytes without splitting a rune.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}

	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}

	return s[:cut] + "..."
}
