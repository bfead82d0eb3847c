package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/bowerhall/kindly/internal/config"
	"github.com/bowerhall/kindly/internal/knowledge"
	"github.com/bowerhall/kindly/internal/logger"
	"github.com/bowerhall/kindly/internal/matcher"
	"github.com/bowerhall/kindly/internal/session"
	"github.com/bowerhall/kindly/internal/storage"
)

// app holds what both commands need: configuration, the corpus source and
// the matching engine built from it.
type app struct {
	cfg     *config.Config
	objects knowledge.ObjectStore
	engine  *matcher.Engine
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	a := &app{cfg: cfg}

	if cfg.Storage.Enabled {
		client, err := storage.NewClient(storage.Config{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			UseSSL:    cfg.Storage.UseSSL,
		})
		if err != nil {
			return nil, err
		}
		a.objects = client
		logger.Debug("object storage configured", "endpoint", cfg.Storage.Endpoint)
	}

	kb, err := a.loadKnowledge(ctx)
	if err != nil {
		return nil, err
	}

	picker, err := knowledge.NewPicker(cfg.Matcher.ReplyPolicy, cfg.Matcher.ReplySeed)
	if err != nil {
		return nil, err
	}

	a.engine = matcher.New(kb, matcher.Options{
		Languages:       cfg.Matcher.SupportedLanguages,
		DefaultLanguage: cfg.Matcher.DefaultLanguage,
		Threshold:       cfg.Matcher.Threshold,
		Picker:          picker,
	})

	return a, nil
}

func (a *app) loadKnowledge(ctx context.Context) (*knowledge.KnowledgeBase, error) {
	return knowledge.Load(ctx, a.cfg.Knowledge.Source, knowledge.Options{
		Languages: a.cfg.Matcher.SupportedLanguages,
		Objects:   a.objects,
	})
}

// reload rebuilds the engine's indexes. A load error leaves the current
// corpus in service.
func (a *app) reload(ctx context.Context) error {
	kb, err := a.loadKnowledge(ctx)
	if err != nil {
		return err
	}

	a.engine.Reload(kb)
	return nil
}

func (a *app) newSessionStore(ctx context.Context) (session.Store, error) {
	sc := a.cfg.Session

	opts := []session.StoreOption{
		session.WithLanguages(a.cfg.Matcher.DefaultLanguage, a.cfg.Matcher.SupportedLanguages...),
		session.WithMaxSessions(sc.MaxSessions),
		session.WithTTL(sc.TTL),
	}

	if sc.Store == config.StoreRedis {
		redisOpts, err := redis.ParseURL(sc.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}

		client := redis.NewClient(redisOpts)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}

		opts = append(opts, session.WithRedisClient(client))
	}

	store, err := session.NewStore(session.StoreType(sc.Store), opts...)
	if err != nil {
		return nil, err
	}

	logger.Info("session store ready", "type", sc.Store, "ttl", sc.TTL, "max", sc.MaxSessions)
	return store, nil
}
