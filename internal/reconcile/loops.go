package reconcile

import (
	"context"
	"time"

	"exchangeconnector/internal/clock"
	"exchangeconnector/internal/core"

	"golang.org/x/sync/errgroup"
)

// Loops drives the three reconciliation passes on independent cadences,
// each debounced through its own clock.Ticker so a slow trading-rule
// refresh never delays balance sync or open-order reconciliation.
type Loops struct {
	r *Reconciler

	balanceTicker     *clock.Ticker
	openOrdersTicker  *clock.Ticker
	tradingRuleTicker *clock.Ticker
}

// NewLoops builds the three tickers from the given intervals, each with a
// burst of 1.
func NewLoops(r *Reconciler, balanceInterval, openOrdersInterval, tradingRuleInterval time.Duration, logger core.ILogger) *Loops {
	return &Loops{
		r:                 r,
		balanceTicker:     clock.NewTicker(balanceInterval, 1, logger),
		openOrdersTicker:  clock.NewTicker(openOrdersInterval, 1, logger),
		tradingRuleTicker: clock.NewTicker(tradingRuleInterval, 1, logger),
	}
}

// Run blocks until ctx is cancelled or one loop returns a non-context error.
func (l *Loops) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return l.balanceTicker.Run(gctx, func(ctx context.Context, _ int64) {
			_ = l.r.ReconcileBalances(ctx)
		})
	})
	g.Go(func() error {
		return l.openOrdersTicker.Run(gctx, func(ctx context.Context, _ int64) {
			_ = l.r.ReconcileOpenOrders(ctx)
		})
	})
	g.Go(func() error {
		return l.tradingRuleTicker.Run(gctx, func(ctx context.Context, _ int64) {
			_ = l.r.ReconcileTradingRules(ctx)
		})
	})

	if err := g.Wait(); err != nil && ctx.Err() != nil {
		return ctx.Err()
	} else if err != nil {
		return err
	}
	return nil
}
