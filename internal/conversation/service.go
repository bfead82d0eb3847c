package conversation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/bowerhall/kindly/internal/logger"
	"github.com/bowerhall/kindly/internal/session"
)

// ErrSessionNotFound is returned for ids that were never issued, were ended,
// or have expired.
var ErrSessionNotFound = errors.New("session not found")

// Service ties the session store to the responder for each request.
type Service struct {
	store     session.Store
	responder Responder
	now       func() time.Time
}

func NewService(store session.Store, responder Responder) *Service {
	return &Service{store: store, responder: responder, now: time.Now}
}

// Start opens a session and greets in its language.
func (s *Service) Start(ctx context.Context, language string) (StartResult, error) {
	id, err := s.store.Create(ctx, language)
	if err != nil {
		return StartResult{}, fmt.Errorf("start conversation: %w", err)
	}

	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return StartResult{}, fmt.Errorf("start conversation: %w", err)
	}
	if sess == nil {
		// evicted between create and read; only possible under a tiny cap
		return StartResult{}, fmt.Errorf("start conversation: %w", ErrSessionNotFound)
	}

	logger.Info("conversation started", "session", id, "language", sess.Language)

	return StartResult{
		SessionID: id,
		Language:  sess.Language,
		Message:   s.responder.Greeting(sess.Language),
	}, nil
}

// Send answers message in the session's language and records the turn.
func (s *Service) Send(ctx context.Context, sessionID, message string) (Reply, error) {
	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return Reply{}, fmt.Errorf("send message: %w", err)
	}
	if sess == nil {
		logger.Info("message for unknown session", "session", sessionID)
		return Reply{}, ErrSessionNotFound
	}

	res := s.responder.Match(message, sess.Language)

	ok, err := s.store.AppendMessage(ctx, sessionID, message, res.Reply)
	if err != nil {
		return Reply{}, fmt.Errorf("record message: %w", err)
	}
	if !ok {
		// ended or evicted while the reply was being computed
		return Reply{}, ErrSessionNotFound
	}

	logger.Debug("message answered", "session", sessionID, "source", res.Source, "confidence", res.Confidence)

	return Reply{
		SessionID:  sessionID,
		Message:    res.Reply,
		Confidence: res.Confidence,
		Source:     res.Source,
		Timestamp:  s.now().UTC(),
	}, nil
}

// End deletes the session. It reports whether the session existed.
func (s *Service) End(ctx context.Context, sessionID string) (bool, error) {
	ok, err := s.store.Delete(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("end conversation: %w", err)
	}
	if ok {
		logger.Info("conversation ended", "session", sessionID)
	}
	return ok, nil
}

// History returns the recorded turns of a session.
func (s *Service) History(ctx context.Context, sessionID string) (History, error) {
	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return History{}, fmt.Errorf("history: %w", err)
	}
	if sess == nil {
		return History{}, ErrSessionNotFound
	}

	return History{SessionID: sess.ID, Language: sess.Language, Turns: sess.History}, nil
}

// Debug lists live session ids, oldest first.
func (s *Service) Debug(ctx context.Context) (DebugInfo, error) {
	all, err := s.store.ListAll(ctx)
	if err != nil {
		return DebugInfo{}, fmt.Errorf("debug sessions: %w", err)
	}

	ids := make([]string, 0, len(all))
	for id := range all {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := all[ids[i]], all[ids[j]]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return ids[i] < ids[j]
	})

	return DebugInfo{TotalSessions: len(ids), SessionIDs: ids}, nil
}

// SessionCount reports the number of live sessions.
func (s *Service) SessionCount(ctx context.Context) (int, error) {
	return s.store.Len(ctx)
}
