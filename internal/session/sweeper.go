package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"smartattend/internal/metrics"
)

// ExpiredSweeper is the repository slice the sweeper needs.
type ExpiredSweeper interface {
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}

// Sweeper periodically flips expired-but-active sessions to inactive.
// Safe to run concurrently with normal validation, which checks expiry
// directly.
type Sweeper struct {
	sessions ExpiredSweeper
	interval time.Duration
	log      *zap.Logger
	stop     chan struct{}
}

// NewSweeper builds a sweeper with the given interval.
func NewSweeper(sessions ExpiredSweeper, interval time.Duration, log *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		sessions: sessions,
		interval: interval,
		log:      log,
		stop:     make(chan struct{}),
	}
}

// Run sweeps once immediately, then on every tick until ctx is done or
// Stop is called.
func (sw *Sweeper) Run(ctx context.Context) {
	sw.sweep(ctx)

	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			sw.sweep(ctx)
		case <-sw.stop:
			sw.log.Info("session sweeper stopped")
			return
		case <-ctx.Done():
			sw.log.Info("session sweeper cancelled")
			return
		}
	}
}

// Stop ends the Run loop.
func (sw *Sweeper) Stop() {
	close(sw.stop)
}

func (sw *Sweeper) sweep(ctx context.Context) {
	n, err := sw.sessions.SweepExpired(ctx, time.Now())
	if err != nil {
		sw.log.Error("session sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		metrics.SessionsSweptTotal.Add(float64(n))
		sw.log.Info("expired sessions deactivated", zap.Int64("count", n))
	}
}
