package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/bowerhall/kindly/internal/conversation"
)

type fakeConversations struct {
	mu       sync.Mutex
	next     int
	live     map[string]string // session id -> language
	sent     []string
	started  int
	startErr error
	delay    time.Duration
}

func newFakeConversations() *fakeConversations {
	return &fakeConversations{live: make(map[string]string)}
}

func (f *fakeConversations) Start(ctx context.Context, language string) (conversation.StartResult, error) {
	time.Sleep(f.delay)

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.startErr != nil {
		return conversation.StartResult{}, f.startErr
	}

	f.next++
	f.started++
	id := fmt.Sprintf("s%d", f.next)
	f.live[id] = language
	return conversation.StartResult{SessionID: id, Language: language, Message: "greeting:" + language}, nil
}

func (f *fakeConversations) Send(ctx context.Context, sessionID, message string) (conversation.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.live[sessionID]; !ok {
		return conversation.Reply{}, conversation.ErrSessionNotFound
	}

	f.sent = append(f.sent, sessionID+":"+message)
	return conversation.Reply{SessionID: sessionID, Message: "echo:" + message}, nil
}

func (f *fakeConversations) End(ctx context.Context, sessionID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, ok := f.live[sessionID]
	delete(f.live, sessionID)
	return ok, nil
}

func (f *fakeConversations) expire(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.live, sessionID)
}

func TestRouterStartsSessionOnFirstMessage(t *testing.T) {
	conv := newFakeConversations()
	r := newRouter(conv, "en")

	if got := r.handle(context.Background(), "telegram:1", "", "hello"); got != "echo:hello" {
		t.Errorf("unexpected reply %q", got)
	}

	if got := r.handle(context.Background(), "telegram:1", "", "again"); got != "echo:again" {
		t.Errorf("unexpected reply %q", got)
	}

	if len(conv.live) != 1 {
		t.Errorf("expected one session for the chat, got %d", len(conv.live))
	}
	if conv.live["s1"] != "en" {
		t.Errorf("expected default language, got %q", conv.live["s1"])
	}
}

func TestRouterSeparatesChats(t *testing.T) {
	conv := newFakeConversations()
	r := newRouter(conv, "en")

	r.handle(context.Background(), "telegram:1", "nb", "hei")
	r.handle(context.Background(), "discord:abc", "", "hi")

	if len(conv.live) != 2 {
		t.Fatalf("expected two sessions, got %d", len(conv.live))
	}
	if conv.live["s1"] != "nb" {
		t.Errorf("expected chat language nb, got %q", conv.live["s1"])
	}
}

func TestRouterStartCommandRestarts(t *testing.T) {
	conv := newFakeConversations()
	r := newRouter(conv, "en")
	ctx := context.Background()

	r.handle(ctx, "telegram:1", "", "hello")

	if got := r.handle(ctx, "telegram:1", "nb", "/start@kindly_bot"); got != "greeting:nb" {
		t.Errorf("expected greeting, got %q", got)
	}

	if _, ok := conv.live["s1"]; ok {
		t.Error("old session should be ended on /start")
	}

	r.handle(ctx, "telegram:1", "", "next")
	if last := conv.sent[len(conv.sent)-1]; last != "s2:next" {
		t.Errorf("message went to the wrong session: %s", last)
	}
}

func TestRouterEndCommand(t *testing.T) {
	conv := newFakeConversations()
	r := newRouter(conv, "en")
	ctx := context.Background()

	r.handle(ctx, "telegram:1", "", "hello")

	if got := r.handle(ctx, "telegram:1", "", "/stop"); got != replyEnded {
		t.Errorf("unexpected reply %q", got)
	}
	if len(conv.live) != 0 {
		t.Error("session should be ended")
	}
}

func TestRouterRecreatesExpiredSession(t *testing.T) {
	conv := newFakeConversations()
	r := newRouter(conv, "en")
	ctx := context.Background()

	r.handle(ctx, "telegram:1", "", "hello")
	conv.expire("s1")

	if got := r.handle(ctx, "telegram:1", "", "still there?"); got != "echo:still there?" {
		t.Errorf("unexpected reply %q", got)
	}

	if last := conv.sent[len(conv.sent)-1]; last != "s2:still there?" {
		t.Errorf("expected message in new session, got %s", last)
	}
}

func TestRouterConcurrentFirstMessagesShareSession(t *testing.T) {
	conv := newFakeConversations()
	conv.delay = 20 * time.Millisecond
	r := newRouter(conv, "en")

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.handle(context.Background(), "telegram:1", "", fmt.Sprintf("msg %d", i))
		}(i)
	}
	wg.Wait()

	if conv.started != 1 {
		t.Errorf("expected one session for the chat, started %d", conv.started)
	}
	if len(conv.sent) != 5 {
		t.Fatalf("expected 5 messages delivered, got %d", len(conv.sent))
	}
	for _, s := range conv.sent {
		if s[:3] != "s1:" {
			t.Errorf("message went to another session: %s", s)
		}
	}
}

func TestRouterStartFailure(t *testing.T) {
	conv := newFakeConversations()
	conv.startErr = errors.New("store down")
	r := newRouter(conv, "en")

	if got := r.handle(context.Background(), "telegram:1", "", "hello"); got != replyFailed {
		t.Errorf("expected failure reply, got %q", got)
	}
}

func TestIsCommand(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"/start", true},
		{"  /START  ", true},
		{"/start@kindly_bot", true},
		{"/start now", true},
		{"start", false},
		{"/started", false},
		{"please /start", false},
	}

	for _, tt := range tests {
		if got := isCommand(tt.text, startCommands); got != tt.want {
			t.Errorf("isCommand(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	if _, err := New(Config{Provider: "irc"}, newFakeConversations()); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("unexpected %q", got)
	}
	if got := truncate("a long message", 6); got != "a long..." {
		t.Errorf("unexpected %q", got)
	}

	got := truncate("blåbær", 3)
	if got != "bl..." || !utf8.ValidString(got) {
		t.Errorf("truncate split a rune: %q", got)
	}
}
