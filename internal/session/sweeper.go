package session

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/bowerhall/kindly/internal/logger"
)

// sweepParser accepts 5-field expressions and descriptors like "@every 5m".
var sweepParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Sweeper periodically evicts sessions idle for longer than maxAge.
type Sweeper struct {
	store  Store
	maxAge time.Duration
	cron   *cron.Cron
}

func NewSweeper(store Store, schedule string, maxAge time.Duration) (*Sweeper, error) {
	s := &Sweeper{
		store:  store,
		maxAge: maxAge,
		cron:   cron.New(cron.WithParser(sweepParser)),
	}

	if _, err := s.cron.AddFunc(schedule, func() { s.Sweep(context.Background()) }); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}

	return s, nil
}

// Run sweeps on schedule until ctx is cancelled, then waits for a running
// sweep to finish.
func (s *Sweeper) Run(ctx context.Context) {
	s.cron.Start()
	logger.Debug("session sweeper started", "max_age", s.maxAge)

	<-ctx.Done()

	<-s.cron.Stop().Done()
	logger.Debug("session sweeper stopped")
}

// Sweep runs one eviction pass and returns the number of sessions removed.
func (s *Sweeper) Sweep(ctx context.Context) int {
	removed, err := s.store.EvictExpired(ctx, s.maxAge)
	if err != nil {
		logger.Error("session sweep failed", "error", err)
		return removed
	}

	if removed > 0 {
		logger.Info("expired sessions evicted", "count", removed)
	}
	return removed
}
