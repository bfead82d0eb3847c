package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/bowerhall/kindly/internal/logger"
)

const (
	sessionKeyPrefix = "session:"
	// activityKey is a sorted set of session ids scored by last activity (unix ms).
	activityKey  = "sessions:activity"
	maxTxRetries = 8
)

// ErrConflict is returned when a session kept changing under an optimistic
// transaction until the retries ran out.
var ErrConflict = errors.New("session modified concurrently")

// redisStore keeps each session as a JSON value with a key TTL equal to the
// session TTL. Read-modify-write runs under WATCH/MULTI/EXEC.
type redisStore struct {
	cfg    *storeConfig
	client *redis.Client
}

func newRedisStore(cfg *storeConfig) *redisStore {
	return &redisStore{cfg: cfg, client: cfg.redisClient}
}

func (s *redisStore) key(id string) string {
	return sessionKeyPrefix + id
}

func score(t time.Time) float64 {
	return float64(t.UnixMilli())
}

func (s *redisStore) Create(ctx context.Context, language string) (string, error) {
	language = s.cfg.language(language)

	for {
		id := uuid.NewString()
		sess := newSession(id, language, s.cfg.now())

		val, err := json.Marshal(sess)
		if err != nil {
			return "", err
		}

		created, err := s.client.SetNX(ctx, s.key(id), val, s.cfg.ttl).Result()
		if err != nil {
			return "", fmt.Errorf("create session: %w", err)
		}
		if !created {
			continue
		}

		if err := s.client.ZAdd(ctx, activityKey, redis.Z{Score: score(sess.LastActivity), Member: id}).Err(); err != nil {
			return "", fmt.Errorf("index session: %w", err)
		}

		if s.cfg.maxSessions > 0 {
			if err := s.enforceCap(ctx, id); err != nil {
				logger.Error("session cap enforcement failed", "error", err)
			}
		}

		return id, nil
	}
}

func (s *redisStore) Get(ctx context.Context, id string) (*Session, error) {
	if blankID(id) {
		return nil, nil
	}

	return s.mutate(ctx, id, func(sess *Session) {
		touch(sess, s.cfg.now())
	})
}

func (s *redisStore) Update(ctx context.Context, id string, patch Patch) (bool, error) {
	if blankID(id) || patch.empty() {
		return false, nil
	}

	sess, err := s.mutate(ctx, id, func(sess *Session) {
		applyPatch(sess, patch, s.cfg)
		touch(sess, s.cfg.now())
	})
	return sess != nil, err
}

func (s *redisStore) AppendMessage(ctx context.Context, id, userMessage, botResponse string) (bool, error) {
	if blankID(id) {
		return false, nil
	}

	sess, err := s.mutate(ctx, id, func(sess *Session) {
		now := s.cfg.now()
		sess.History = append(sess.History, Turn{Timestamp: now, UserMessage: userMessage, BotResponse: botResponse})
		touch(sess, now)
	})
	return sess != nil, err
}

func (s *redisStore) Delete(ctx context.Context, id string) (bool, error) {
	var del *redis.IntCmd

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, s.key(id))
		pipe.ZRem(ctx, activityKey, id)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}

	return del.Val() > 0, nil
}

func (s *redisStore) ListAll(ctx context.Context) (map[string]*Session, error) {
	ids, err := s.client.ZRange(ctx, activityKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	out := make(map[string]*Session, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}

	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	var stale []any
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}

		var sess Session
		if err := json.Unmarshal([]byte(raw), &sess); err != nil {
			logger.Warn("skipping undecodable session", "id", ids[i], "error", err)
			continue
		}
		out[ids[i]] = &sess
	}

	// keys that expired through their TTL leave their index entry behind
	if len(stale) > 0 {
		s.client.ZRem(ctx, activityKey, stale...)
	}

	return out, nil
}

func (s *redisStore) EvictExpired(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := s.cfg.now().Add(-maxAge)

	ids, err := s.client.ZRangeByScore(ctx, activityKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("scan expired sessions: %w", err)
	}

	removed := 0
	for _, id := range ids {
		ok, err := s.removeIf(ctx, id, func(sess *Session) bool {
			return sess.LastActivity.Before(cutoff)
		})
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}

	return removed, nil
}

// Len counts sessions active within the TTL. Index entries of keys that
// expired through redis are not counted.
func (s *redisStore) Len(ctx context.Context) (int, error) {
	if s.cfg.ttl <= 0 {
		n, err := s.client.ZCard(ctx, activityKey).Result()
		return int(n), err
	}

	from := strconv.FormatInt(s.cfg.now().Add(-s.cfg.ttl).UnixMilli(), 10)
	n, err := s.client.ZCount(ctx, activityKey, from, "+inf").Result()
	return int(n), err
}

func (s *redisStore) Close() error {
	return s.client.Close()
}

// mutate applies fn to the stored session inside an optimistic transaction and
// returns the updated copy, or nil when the session does not exist.
func (s *redisStore) mutate(ctx context.Context, id string, fn func(*Session)) (*Session, error) {
	key := s.key(id)
	var out *Session

	txf := func(tx *redis.Tx) error {
		out = nil

		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}

		var sess Session
		if err := json.Unmarshal(raw, &sess); err != nil {
			return err
		}

		fn(&sess)

		val, err := json.Marshal(&sess)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, val, s.cfg.ttl)
			pipe.ZAdd(ctx, activityKey, redis.Z{Score: score(sess.LastActivity), Member: id})
			return nil
		})
		if err != nil {
			return err
		}

		out = &sess
		return nil
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("session %s: %w", id, err)
		}

		if out == nil {
			s.client.ZRem(ctx, activityKey, id)
		}
		return out, nil
	}

	return nil, fmt.Errorf("session %s: %w", id, ErrConflict)
}

// removeIf deletes the session when cond holds for its stored value. A
// dangling index entry is removed as well and reported as a removal.
func (s *redisStore) removeIf(ctx context.Context, id string, cond func(*Session) bool) (bool, error) {
	key := s.key(id)
	var removed bool

	txf := func(tx *redis.Tx) error {
		removed = false

		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.ZRem(ctx, activityKey, id)
				return nil
			})
			removed = err == nil
			return err
		}
		if err != nil {
			return err
		}

		var sess Session
		if err := json.Unmarshal(raw, &sess); err != nil {
			return err
		}
		if !cond(&sess) {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.ZRem(ctx, activityKey, id)
			return nil
		})
		removed = err == nil
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("evict session %s: %w", id, err)
		}
		return removed, nil
	}

	return false, fmt.Errorf("evict session %s: %w", id, ErrConflict)
}

// enforceCap evicts the least recently active sessions other than keep.
func (s *redisStore) enforceCap(ctx context.Context, keep string) error {
	n, err := s.client.ZCard(ctx, activityKey).Result()
	if err != nil {
		return err
	}

	excess := int(n) - s.cfg.maxSessions
	if excess <= 0 {
		return nil
	}

	oldest, err := s.client.ZRangeWithScores(ctx, activityKey, 0, int64(excess)).Result()
	if err != nil {
		return err
	}

	evicted := 0
	for _, z := range oldest {
		if evicted >= excess {
			break
		}

		id, _ := z.Member.(string)
		if id == "" || id == keep {
			continue
		}

		last := z.Score
		ok, err := s.removeIf(ctx, id, func(sess *Session) bool {
			return score(sess.LastActivity) <= last
		})
		if err != nil {
			return err
		}
		if ok {
			evicted++
		}
	}

	logger.Info("session cap reached, evicted oldest", "evicted", evicted, "max", s.cfg.maxSessions)
	return nil
}
