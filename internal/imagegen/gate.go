package imagegen

import (
	"context"
	"sync"
	"time"
)

// IntervalGate spaces successive calls by a fixed interval. The orchestrator
// puts it in front of image generation as backpressure against the shared
// upstream quota.
type IntervalGate struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewIntervalGate(interval time.Duration) *IntervalGate {
	return &IntervalGate{
		interval: interval,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// Wait blocks until the interval since the previous admitted call has
// elapsed, or the context is cancelled.
func (g *IntervalGate) Wait(ctx context.Context) error {
	g.mu.Lock()
	now := g.now()
	wait := time.Duration(0)
	if !g.last.IsZero() {
		if until := g.last.Add(g.interval).Sub(now); until > 0 {
			wait = until
		}
	}
	g.last = now.Add(wait)
	g.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	return g.sleep(ctx, wait)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
