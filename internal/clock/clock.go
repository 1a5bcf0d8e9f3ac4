// Package clock drives the rate-controlled tick that advances reconciliation
// and polling work, debounced to one tick per bucket.
package clock

import (
	"context"
	"sync"
	"time"

	"exchangeconnector/internal/core"

	"golang.org/x/time/rate"
)

// Ticker emits one Tick per interval, bucketed by floor(now/interval) so a
// delayed wakeup never fires twice for the same bucket (spec.md §4.3).
type Ticker struct {
	interval time.Duration
	limiter  *rate.Limiter
	logger   core.ILogger

	mu         sync.Mutex
	lastBucket int64
}

// NewTicker builds a Ticker that fires no faster than interval and whose
// rate is additionally capped by a token bucket, so a slow consumer falling
// behind cannot be driven faster than burst allows on catch-up.
func NewTicker(interval time.Duration, burst int, logger core.ILogger) *Ticker {
	if burst < 1 {
		burst = 1
	}
	return &Ticker{
		interval:   interval,
		limiter:    rate.NewLimiter(rate.Every(interval), burst),
		logger:     logger.WithField("component", "tick_driver"),
		lastBucket: -1,
	}
}

// bucket returns floor(now/interval) as an integer tick index.
func (t *Ticker) bucket(now time.Time) int64 {
	return now.UnixNano() / int64(t.interval)
}

// Run blocks, invoking onTick once per debounced bucket until ctx is
// cancelled. onTick must not block past the next tick's deadline; the tick
// driver does not run onTick concurrently with itself.
func (t *Ticker) Run(ctx context.Context, onTick func(ctx context.Context, tick int64)) error {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			b := t.bucket(now)

			t.mu.Lock()
			if b <= t.lastBucket {
				t.mu.Unlock()
				continue
			}
			t.lastBucket = b
			t.mu.Unlock()

			if err := t.limiter.Wait(ctx); err != nil {
				return err
			}

			onTick(ctx, b)
		}
	}
}
