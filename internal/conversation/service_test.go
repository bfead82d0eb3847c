package conversation

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bowerhall/kindly/internal/knowledge"
	"github.com/bowerhall/kindly/internal/matcher"
	"github.com/bowerhall/kindly/internal/session"
)

const corpus = `
greetings:
  - id: greet
    replies:
      en: ["Hello! I am a chatbot!", "Hi there!"]
      nb: ["Hei! Jeg er en chatbot!"]
fallbacks:
  - id: fallback
    replies:
      en: ["I'm sorry, I didn't understand that."]
      nb: ["Beklager, jeg forstod ikke det."]
dialogues:
  - id: hours
    samples:
      en: ["What are your opening hours"]
      nb: ["Når har dere åpent"]
    replies:
      en: ["We are open from 9 to 17."]
      nb: ["Vi har åpent fra 9 til 17."]
`

func newService(t *testing.T) *Service {
	t.Helper()

	kb, err := knowledge.Parse([]byte(corpus), []string{"en", "nb"})
	require.NoError(t, err)

	engine := matcher.New(kb, matcher.Options{
		Languages:       []string{"en", "nb"},
		DefaultLanguage: "en",
		Threshold:       matcher.DefaultThreshold,
	})

	store, err := session.NewStore(session.StoreTypeMemory, session.WithLanguages("en", "en", "nb"))
	require.NoError(t, err)

	return NewService(store, engine)
}

func TestConversationEndToEnd(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	greetings := []string{"Hello! I am a chatbot!", "Hi there!"}

	start, err := svc.Start(ctx, "en")
	require.NoError(t, err)
	assert.NotEmpty(t, start.SessionID)
	assert.Equal(t, "en", start.Language)
	assert.Contains(t, greetings, start.Message)

	reply, err := svc.Send(ctx, start.SessionID, "hello")
	require.NoError(t, err)
	assert.Contains(t, greetings, reply.Message)
	assert.Equal(t, matcher.SourceGreeting, reply.Source)

	reply, err = svc.Send(ctx, start.SessionID, "zqxj vbnm wpt")
	require.NoError(t, err)
	assert.Equal(t, "I'm sorry, I didn't understand that.", reply.Message)
	assert.Equal(t, matcher.SourceFallback, reply.Source)

	reply, err = svc.Send(ctx, start.SessionID, "What are your opening hours")
	require.NoError(t, err)
	assert.Equal(t, "We are open from 9 to 17.", reply.Message)
	assert.Equal(t, 1.0, reply.Confidence)
	assert.False(t, reply.Timestamp.IsZero())

	_, err = svc.Send(ctx, "not-a-session", "hello")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	history, err := svc.History(ctx, start.SessionID)
	require.NoError(t, err)
	require.Len(t, history.Turns, 3)
	assert.Equal(t, "hello", history.Turns[0].UserMessage)
	assert.Equal(t, "What are your opening hours", history.Turns[2].UserMessage)
	assert.Equal(t, "We are open from 9 to 17.", history.Turns[2].BotResponse)
}

func TestSendUsesSessionLanguage(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	start, err := svc.Start(ctx, "nb")
	require.NoError(t, err)
	assert.Equal(t, "Hei! Jeg er en chatbot!", start.Message)

	reply, err := svc.Send(ctx, start.SessionID, "når har dere åpent?")
	require.NoError(t, err)
	assert.Equal(t, "Vi har åpent fra 9 til 17.", reply.Message)
}

func TestStartCoercesUnknownLanguage(t *testing.T) {
	svc := newService(t)

	start, err := svc.Start(context.Background(), "fr")
	require.NoError(t, err)
	assert.Equal(t, "en", start.Language)
}

func TestEndAndDebug(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	a, err := svc.Start(ctx, "en")
	require.NoError(t, err)
	b, err := svc.Start(ctx, "nb")
	require.NoError(t, err)

	info, err := svc.Debug(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, info.TotalSessions)
	assert.ElementsMatch(t, []string{a.SessionID, b.SessionID}, info.SessionIDs)

	ended, err := svc.End(ctx, a.SessionID)
	require.NoError(t, err)
	assert.True(t, ended)

	ended, err = svc.End(ctx, a.SessionID)
	require.NoError(t, err)
	assert.False(t, ended)

	_, err = svc.Send(ctx, a.SessionID, "hello")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = svc.History(ctx, a.SessionID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	n, err := svc.SessionCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestConcurrentSendsKeepEveryTurn(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	start, err := svc.Start(ctx, "en")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Send(ctx, start.SessionID, "What are your opening hours"); err != nil {
				t.Errorf("Send: %v", err)
			}
		}()
	}
	wg.Wait()

	history, err := svc.History(ctx, start.SessionID)
	require.NoError(t, err)
	assert.Len(t, history.Turns, 50)
}
