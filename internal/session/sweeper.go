package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"chatdesk/internal/clock"
)

const DefaultSweepInterval = 5 * time.Minute

// Pruner drops idle per-key state. The rate limiter implements it so one
// periodic task cleans both.
type Pruner interface {
	Prune(now time.Time) int
}

// Sweeper periodically evicts idle sessions.
type Sweeper struct {
	store    *Store
	interval time.Duration
	clock    clock.Clock
	log      *zap.Logger
	pruners  []Pruner

	// Observe, if set, is called after each sweep with the number of sessions
	// removed and the number still alive.
	Observe func(removed, active int)
}

func NewSweeper(store *Store, interval time.Duration, clk clock.Clock, log *zap.Logger, pruners ...Pruner) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if clk == nil {
		clk = clock.Real()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Sweeper{store: store, interval: interval, clock: clk, log: log, pruners: pruners}
}

// Run sweeps on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.SweepOnce(now)
		}
	}
}

// SweepOnce runs a single sweep as of now.
func (s *Sweeper) SweepOnce(now time.Time) int {
	removed := s.store.SweepExpired(now)
	pruned := 0
	for _, p := range s.pruners {
		pruned += p.Prune(now)
	}
	active := s.store.Len()
	if removed > 0 || pruned > 0 {
		s.log.Info("session sweep",
			zap.Int("removed", removed),
			zap.Int("active", active),
			zap.Int("rate_keys_pruned", pruned),
		)
	}
	if s.Observe != nil {
		s.Observe(removed, active)
	}
	return removed
}
