// Package cancel implements the cancellation orchestrator: cancel_all fans
// a cancel request out across every open order concurrently, deduplicating
// repeat cancel requests for the same order within a TTL window so a
// strategy hammering cancel() doesn't spam the venue with redundant calls
// (spec.md §4.5).
package cancel

import (
	"context"
	"sync"
	"time"

	"exchangeconnector/internal/core"
	"exchangeconnector/pkg/concurrency"

	"golang.org/x/sync/errgroup"
)

// Canceller is the subset of *rest.Executor the orchestrator needs.
type Canceller interface {
	Cancel(ctx context.Context, symbol core.Symbol, exchangeID string) error
}

// Registry is the subset of *registry.Registry the orchestrator needs to
// discover what is currently open.
type Registry interface {
	OpenOrders() []*core.InFlightOrder
}

// Orchestrator coordinates concurrent cancellation with a dedup window.
type Orchestrator struct {
	exec     Canceller
	registry Registry
	pool     *concurrency.WorkerPool
	ttl      time.Duration
	logger   core.ILogger

	mu      sync.Mutex
	pending map[string]time.Time // clientID -> dedup expiry
}

// New builds an Orchestrator. ttl bounds how long a cancel request for the
// same client id is deduplicated against a repeat request.
func New(exec Canceller, reg Registry, pool *concurrency.WorkerPool, ttl time.Duration, logger core.ILogger) *Orchestrator {
	return &Orchestrator{
		exec:     exec,
		registry: reg,
		pool:     pool,
		ttl:      ttl,
		logger:   logger.WithField("component", "cancel_orchestrator"),
		pending:  make(map[string]time.Time),
	}
}

// shouldSend reports whether a cancel for clientID should actually reach
// the venue right now, recording that it did.
func (o *Orchestrator) shouldSend(clientID string, now time.Time) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if expiry, ok := o.pending[clientID]; ok && now.Before(expiry) {
		return false
	}
	o.pending[clientID] = now.Add(o.ttl)
	return true
}

// CancelOne sends a single cancel, deduplicated within the TTL window.
func (o *Orchestrator) CancelOne(ctx context.Context, order *core.InFlightOrder) error {
	if !o.shouldSend(order.ClientID, time.Now()) {
		return nil
	}
	return o.exec.Cancel(ctx, order.Symbol, order.ExchangeID)
}

// CancelAll cancels every open order concurrently, bounded by deadline, and
// reports a per-order result. An order still in flight when deadline
// elapses is reported unsuccessful, not retried inline — the cancel
// reconciliation pass picks it up on the next cycle.
func (o *Orchestrator) CancelAll(ctx context.Context, deadline time.Duration) ([]core.CancelResult, error) {
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	orders := o.registry.OpenOrders()
	results := make([]core.CancelResult, len(orders))

	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex

	for i, order := range orders {
		i, order := i, order
		g.Go(func() error {
			err := o.submit(gctx, order)
			mu.Lock()
			results[i] = core.CancelResult{ClientID: order.ClientID, Success: err == nil}
			mu.Unlock()
			return nil // individual failures don't abort the group
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

func (o *Orchestrator) submit(ctx context.Context, order *core.InFlightOrder) error {
	if o.pool == nil {
		return o.CancelOne(ctx, order)
	}

	done := make(chan error, 1)
	err := o.pool.Submit(func() {
		done <- o.CancelOne(ctx, order)
	})
	if err != nil {
		return err
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
