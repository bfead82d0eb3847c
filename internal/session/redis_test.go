package session

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// newRedisTestStore needs a disposable Redis: the database is flushed.
func newRedisTestStore(t *testing.T, opts ...StoreOption) Store {
	t.Helper()

	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}

	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("parse REDIS_URL: %v", err)
	}

	client := redis.NewClient(redisOpts)
	if err := client.FlushDB(context.Background()).Err(); err != nil {
		t.Fatalf("flush redis: %v", err)
	}

	opts = append([]StoreOption{WithRedisClient(client), WithLanguages("en", "en", "nb")}, opts...)
	store, err := NewStore(StoreTypeRedis, opts...)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	t.Cleanup(func() { store.Close() })
	return store
}

func TestRedisLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newRedisTestStore(t, WithTTL(time.Hour))

	id := mustCreate(t, store, "de")

	sess, err := store.Get(ctx, id)
	if err != nil || sess == nil {
		t.Fatalf("Get: %v, %v", sess, err)
	}
	if sess.Language != "en" {
		t.Errorf("expected coerced language en, got %s", sess.Language)
	}

	for i := 0; i < 3; i++ {
		if ok, err := store.AppendMessage(ctx, id, fmt.Sprintf("u%d", i), fmt.Sprintf("b%d", i)); !ok || err != nil {
			t.Fatalf("AppendMessage: %v, %v", ok, err)
		}
	}

	sess, _ = store.Get(ctx, id)
	if len(sess.History) != 3 || sess.History[2].UserMessage != "u2" {
		t.Errorf("unexpected history: %+v", sess.History)
	}

	all, err := store.ListAll(ctx)
	if err != nil || len(all) != 1 {
		t.Errorf("ListAll: %d sessions, %v", len(all), err)
	}

	if ok, _ := store.Delete(ctx, id); !ok {
		t.Error("first delete should return true")
	}
	if ok, _ := store.Delete(ctx, id); ok {
		t.Error("second delete should return false")
	}
	if n, _ := store.Len(ctx); n != 0 {
		t.Errorf("expected empty index, got %d", n)
	}
}

func TestRedisConcurrentAppend(t *testing.T) {
	ctx := context.Background()
	store := newRedisTestStore(t)
	id := mustCreate(t, store, "en")

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if _, err := store.AppendMessage(ctx, id, fmt.Sprintf("m%d", n), "ok"); err != nil {
				t.Errorf("AppendMessage: %v", err)
			}
		}(i)
	}
	wg.Wait()

	sess, _ := store.Get(ctx, id)
	if len(sess.History) != 5 {
		t.Errorf("expected 5 turns, got %d", len(sess.History))
	}
}

func TestRedisEvictExpiredAndCap(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := newRedisTestStore(t, WithClock(clock.Now), WithMaxSessions(2))

	first := mustCreate(t, store, "en")
	clock.Advance(time.Minute)
	second := mustCreate(t, store, "en")
	clock.Advance(time.Minute)
	third := mustCreate(t, store, "en")

	if sess, _ := store.Get(ctx, first); sess != nil {
		t.Error("oldest session should be evicted by the cap")
	}

	clock.Advance(2 * time.Hour)
	store.Get(ctx, third)

	removed, err := store.EvictExpired(ctx, time.Hour)
	if err != nil || removed != 1 {
		t.Errorf("EvictExpired = %d, %v; want 1", removed, err)
	}
	if sess, _ := store.Get(ctx, second); sess != nil {
		t.Error("idle session survived the sweep")
	}
}
