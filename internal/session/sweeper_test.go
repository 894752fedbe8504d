package session

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"smartattend/internal/metrics"
)

type countingSweeper struct {
	calls   atomic.Int64
	expired int64
}

func (c *countingSweeper) SweepExpired(_ context.Context, _ time.Time) (int64, error) {
	c.calls.Add(1)
	return c.expired, nil
}

func TestSweeperRunsImmediatelyAndStops(t *testing.T) {
	repo := &countingSweeper{}
	sw := NewSweeper(repo, time.Hour, zap.NewNop())

	done := make(chan struct{})
	go func() {
		defer close(done)
		sw.Run(context.Background())
	}()

	// The first sweep happens on start, before any tick.
	assert.Eventually(t, func() bool { return repo.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	sw.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestSweeperCountsSweptSessions(t *testing.T) {
	repo := &countingSweeper{expired: 3}
	sw := NewSweeper(repo, time.Hour, zap.NewNop())
	before := testutil.ToFloat64(metrics.SessionsSweptTotal)

	done := make(chan struct{})
	go func() {
		defer close(done)
		sw.Run(context.Background())
	}()
	assert.Eventually(t, func() bool { return repo.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	sw.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
	assert.Equal(t, before+3, testutil.ToFloat64(metrics.SessionsSweptTotal))
}

func TestSweeperHonorsContext(t *testing.T) {
	repo := &countingSweeper{}
	sw := NewSweeper(repo, time.Hour, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		sw.Run(ctx)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper ignored context cancellation")
	}
}
