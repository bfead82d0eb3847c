package session

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/bowerhall/kindly/internal/logger"
)

const defaultShards = 32

type shard struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// memoryStore spreads sessions over shards so operations on different ids
// rarely contend. Each read-modify-write holds only its shard's lock.
type memoryStore struct {
	cfg    *storeConfig
	shards []*shard
	count  atomic.Int64

	// capMu serializes size-cap enforcement.
	capMu sync.Mutex
}

func newMemoryStore(cfg *storeConfig) *memoryStore {
	s := &memoryStore{cfg: cfg, shards: make([]*shard, cfg.shards)}
	for i := range s.shards {
		s.shards[i] = &shard{sessions: make(map[string]*Session)}
	}
	return s
}

func (s *memoryStore) shardFor(id string) *shard {
	return s.shards[xxhash.Sum64String(id)%uint64(len(s.shards))]
}

func (s *memoryStore) Create(ctx context.Context, language string) (string, error) {
	language = s.cfg.language(language)

	for {
		id := uuid.NewString()
		sh := s.shardFor(id)

		sh.mu.Lock()
		if _, taken := sh.sessions[id]; taken {
			sh.mu.Unlock()
			continue
		}
		sh.sessions[id] = newSession(id, language, s.cfg.now())
		sh.mu.Unlock()

		n := s.count.Add(1)
		logger.Debug("session created", "id", id, "language", language, "total", n)

		if limit := s.cfg.maxSessions; limit > 0 && n > int64(limit) {
			s.enforceCap(id)
		}

		return id, nil
	}
}

func (s *memoryStore) Get(ctx context.Context, id string) (*Session, error) {
	if blankID(id) {
		return nil, nil
	}

	var out *Session
	s.withSession(id, func(sess *Session) bool {
		touch(sess, s.cfg.now())
		out = sess.clone()
		return true
	})

	return out, nil
}

func (s *memoryStore) Update(ctx context.Context, id string, patch Patch) (bool, error) {
	if blankID(id) || patch.empty() {
		return false, nil
	}

	return s.withSession(id, func(sess *Session) bool {
		applyPatch(sess, patch, s.cfg)
		touch(sess, s.cfg.now())
		return true
	}), nil
}

func (s *memoryStore) AppendMessage(ctx context.Context, id, userMessage, botResponse string) (bool, error) {
	if blankID(id) {
		return false, nil
	}

	return s.withSession(id, func(sess *Session) bool {
		now := s.cfg.now()
		sess.History = append(sess.History, Turn{
			Timestamp:   now,
			UserMessage: userMessage,
			BotResponse: botResponse,
		})
		touch(sess, now)
		return true
	}), nil
}

func (s *memoryStore) Delete(ctx context.Context, id string) (bool, error) {
	sh := s.shardFor(id)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	sess, ok := sh.sessions[id]
	if !ok {
		return false, nil
	}

	delete(sh.sessions, id)
	s.count.Add(-1)

	// an idle session was already gone as far as callers are concerned
	return !s.cfg.expired(sess, s.cfg.now()), nil
}

func (s *memoryStore) ListAll(ctx context.Context) (map[string]*Session, error) {
	out := make(map[string]*Session, s.count.Load())
	now := s.cfg.now()

	for _, sh := range s.shards {
		sh.mu.Lock()
		for id, sess := range sh.sessions {
			if !s.cfg.expired(sess, now) {
				out[id] = sess.clone()
			}
		}
		sh.mu.Unlock()
	}

	return out, nil
}

func (s *memoryStore) EvictExpired(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := s.cfg.now().Add(-maxAge)
	removed := 0

	for _, sh := range s.shards {
		sh.mu.Lock()
		for id, sess := range sh.sessions {
			if sess.LastActivity.Before(cutoff) {
				delete(sh.sessions, id)
				removed++
			}
		}
		sh.mu.Unlock()
	}

	s.count.Add(int64(-removed))
	return removed, nil
}

// Len counts live sessions. Sessions past their TTL that no sweep or access
// has removed yet are not counted.
func (s *memoryStore) Len(ctx context.Context) (int, error) {
	if s.cfg.ttl <= 0 {
		return int(s.count.Load()), nil
	}

	now := s.cfg.now()
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for _, sess := range sh.sessions {
			if !s.cfg.expired(sess, now) {
				n++
			}
		}
		sh.mu.Unlock()
	}

	return n, nil
}

func (s *memoryStore) Close() error {
	return nil
}

// withSession runs fn on the live session under its shard lock. A session past
// its TTL is removed instead and reported as absent.
func (s *memoryStore) withSession(id string, fn func(*Session) bool) bool {
	sh := s.shardFor(id)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	sess, ok := sh.sessions[id]
	if !ok {
		return false
	}

	if s.cfg.expired(sess, s.cfg.now()) {
		delete(sh.sessions, id)
		s.count.Add(-1)
		logger.Debug("session expired on access", "id", id)
		return false
	}

	return fn(sess)
}

type activity struct {
	id   string
	last time.Time
}

// enforceCap evicts the least recently active sessions, never keep, until the
// store is back under its cap.
func (s *memoryStore) enforceCap(keep string) {
	s.capMu.Lock()
	defer s.capMu.Unlock()

	excess := int(s.count.Load()) - s.cfg.maxSessions
	if excess <= 0 {
		return
	}

	var all []activity
	for _, sh := range s.shards {
		sh.mu.Lock()
		for id, sess := range sh.sessions {
			if id != keep {
				all = append(all, activity{id: id, last: sess.LastActivity})
			}
		}
		sh.mu.Unlock()
	}

	sort.Slice(all, func(i, j int) bool { return all[i].last.Before(all[j].last) })

	evicted := 0
	for _, a := range all {
		if evicted >= excess {
			break
		}

		sh := s.shardFor(a.id)
		sh.mu.Lock()
		// skip sessions touched since the snapshot
		if sess, ok := sh.sessions[a.id]; ok && sess.LastActivity.Equal(a.last) {
			delete(sh.sessions, a.id)
			s.count.Add(-1)
			evicted++
		}
		sh.mu.Unlock()
	}

	logger.Info("session cap reached, evicted oldest", "evicted", evicted, "max", s.cfg.maxSessions)
}
