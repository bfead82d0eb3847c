package session

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bowerhall/kindly/internal/logger"
)

// StoreType selects a Store driver.
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeRedis  StoreType = "redis"
)

var (
	ErrInvalidStoreType = errors.New("invalid session store type")
	ErrInvalidConfig    = errors.New("invalid session store configuration")
)

// Store is a keyed set of sessions with TTL and size-cap eviction. Absence is
// never an error: Get returns nil and the boolean methods return false.
type Store interface {
	// Create starts an empty session and returns its id. An unsupported
	// language is replaced by the default one.
	Create(ctx context.Context, language string) (string, error)

	// Get returns a copy of the session and marks it active.
	Get(ctx context.Context, id string) (*Session, error)

	// Update merges patch into the session and marks it active.
	Update(ctx context.Context, id string, patch Patch) (bool, error)

	Delete(ctx context.Context, id string) (bool, error)

	// AppendMessage adds a turn to the history as one atomic step.
	AppendMessage(ctx context.Context, id, userMessage, botResponse string) (bool, error)

	// ListAll returns a snapshot of every live session.
	ListAll(ctx context.Context) (map[string]*Session, error)

	// EvictExpired removes sessions idle for longer than maxAge.
	EvictExpired(ctx context.Context, maxAge time.Duration) (int, error)

	Len(ctx context.Context) (int, error)

	Close() error
}

// StoreOption configures a Store.
type StoreOption func(*storeConfig)

type storeConfig struct {
	languages       []string
	defaultLanguage string
	maxSessions     int
	ttl             time.Duration
	shards          int
	now             func() time.Time
	redisClient     *redis.Client
}

// WithLanguages sets the supported languages and the default used for anything else.
func WithLanguages(defaultLanguage string, supported ...string) StoreOption {
	return func(c *storeConfig) {
		c.defaultLanguage = defaultLanguage
		c.languages = supported
	}
}

// WithMaxSessions caps the number of live sessions. Zero means no cap.
func WithMaxSessions(n int) StoreOption {
	return func(c *storeConfig) {
		c.maxSessions = n
	}
}

// WithTTL sets the idle time after which a session is treated as gone.
func WithTTL(ttl time.Duration) StoreOption {
	return func(c *storeConfig) {
		c.ttl = ttl
	}
}

func WithShards(n int) StoreOption {
	return func(c *storeConfig) {
		c.shards = n
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) StoreOption {
	return func(c *storeConfig) {
		c.now = now
	}
}

// WithRedisClient sets the client used by the redis driver.
func WithRedisClient(client *redis.Client) StoreOption {
	return func(c *storeConfig) {
		c.redisClient = client
	}
}

// NewStore builds a Store of the given type.
func NewStore(storeType StoreType, opts ...StoreOption) (Store, error) {
	cfg := &storeConfig{
		defaultLanguage: "en",
		shards:          defaultShards,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.shards <= 0 || cfg.maxSessions < 0 {
		return nil, ErrInvalidConfig
	}

	switch storeType {
	case StoreTypeMemory:
		return newMemoryStore(cfg), nil

	case StoreTypeRedis:
		if cfg.redisClient == nil {
			return nil, ErrInvalidConfig
		}
		return newRedisStore(cfg), nil

	default:
		return nil, ErrInvalidStoreType
	}
}

// language coerces an unsupported code to the default language.
func (c *storeConfig) language(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang == "" {
		return c.defaultLanguage
	}
	if len(c.languages) > 0 && !slices.Contains(c.languages, lang) {
		logger.Warn("unsupported language, using default", "language", lang, "default", c.defaultLanguage)
		return c.defaultLanguage
	}
	return lang
}

func (c *storeConfig) expired(s *Session, now time.Time) bool {
	return c.ttl > 0 && now.Sub(s.LastActivity) > c.ttl
}

func blankID(id string) bool {
	return strings.TrimSpace(id) == ""
}

func newSession(id, language string, now time.Time) *Session {
	return &Session{
		ID:           id,
		Language:     language,
		CreatedAt:    now,
		LastActivity: now,
		History:      []Turn{},
	}
}

func applyPatch(s *Session, patch Patch, c *storeConfig) {
	if patch.Language != nil {
		s.Language = c.language(*patch.Language)
	}
	if patch.History != nil {
		s.History = slices.Clone(patch.History)
	}
}

// touch advances LastActivity without letting it fall behind CreatedAt.
func touch(s *Session, now time.Time) {
	if now.Before(s.CreatedAt) {
		now = s.CreatedAt
	}
	s.LastActivity = now
}
