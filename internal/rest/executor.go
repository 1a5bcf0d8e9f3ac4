// Package rest implements the REST command executor: the single path by
// which the connector issues submit/cancel/query calls to a venue.Adapter,
// under a shared rate limiter, translating venue responses into lifecycle
// events (spec.md §4.4).
package rest

import (
	"context"
	"errors"
	"sync"
	"time"

	"exchangeconnector/internal/core"
	"exchangeconnector/internal/lifecycle"
	"exchangeconnector/internal/venue"

	"golang.org/x/time/rate"
)

// Executor serializes every REST call to the venue behind a token bucket,
// shared across submit, cancel, and query traffic so a reconciliation sweep
// never starves order submission (spec.md §4.4, "fair scheduling").
//
// Nonce-bearing calls (submit, cancel) additionally funnel through a
// single-slot FIFO so the venue receives them in strict issuance order even
// when Buy/Sell/Cancel are called concurrently (spec.md §4.4, §8: "nonce
// sequence issued to the venue is strictly increasing across any
// interleaving of concurrent place/cancel calls"). Query calls bypass the
// queue since they carry no nonce and never need to preserve order relative
// to each other.
type Executor struct {
	adapter venue.Adapter
	limiter *rate.Limiter
	logger  core.ILogger

	nonceJobs chan func(nonce int64)
	lastNonce int64

	closeOnce sync.Once
	closed    chan struct{}
}

// New builds an Executor rate-limited to perSec sustained with burst headroom.
func New(adapter venue.Adapter, perSec, burst int, logger core.ILogger) *Executor {
	e := &Executor{
		adapter:   adapter,
		limiter:   rate.NewLimiter(rate.Limit(perSec), burst),
		logger:    logger.WithField("component", "rest_executor"),
		nonceJobs: make(chan func(nonce int64)),
		closed:    make(chan struct{}),
	}
	go e.runNonceQueue()
	return e
}

// Close stops the nonce dispatch goroutine. Safe to call more than once.
func (e *Executor) Close() {
	e.closeOnce.Do(func() { close(e.closed) })
}

// runNonceQueue is the sole writer of lastNonce, so no lock is needed around
// it: every nonce-bearing call is dispatched one at a time, in the order it
// was enqueued, and the next nonce is only computed once the previous call
// has been handed off.
func (e *Executor) runNonceQueue() {
	for {
		select {
		case <-e.closed:
			return
		case job := <-e.nonceJobs:
			job(e.nextNonce())
		}
	}
}

// nextNonce implements last_nonce = max(last_nonce+1, wall_clock_ms): the
// nonce always advances by at least 1 even under a burst faster than one
// millisecond apart, and jumps forward to wall-clock time after any gap.
func (e *Executor) nextNonce() int64 {
	next := e.lastNonce + 1
	if now := time.Now().UnixMilli(); now > next {
		next = now
	}
	e.lastNonce = next
	return next
}

// dispatchNonced enqueues fn to run on the nonce-queue goroutine and blocks
// for its result, preserving issuance order across concurrent callers.
func (e *Executor) dispatchNonced(fn func(nonce int64)) {
	select {
	case e.nonceJobs <- fn:
	case <-e.closed:
		fn(0)
	}
}

func (e *Executor) wait(ctx context.Context) error {
	return e.limiter.Wait(ctx)
}

// SubmitResult is what a Submit call reports back to the caller. When Err
// is nil, Event is ready to feed to lifecycle.Machine.Ingest; when Err is
// set, Event is the zero value. RejectionCode is set only when Event.Kind is
// EventRejected and the venue's reason was classifiable.
type SubmitResult struct {
	Event         lifecycle.Event
	RejectionCode core.RejectionCode
	Err           error
}

// Submit places intent on the venue. A timeout classifies as
// EventSubmitTimeout rather than an error, since the caller cannot tell
// whether the venue actually received the order.
func (e *Executor) Submit(ctx context.Context, intent core.OrderIntent, timeout time.Duration) SubmitResult {
	if err := e.wait(ctx); err != nil {
		return SubmitResult{Err: err}
	}

	resultCh := make(chan SubmitResult, 1)
	e.dispatchNonced(func(nonce int64) {
		resultCh <- e.submitNow(ctx, intent, timeout, nonce)
	})
	return <-resultCh
}

func (e *Executor) submitNow(ctx context.Context, intent core.OrderIntent, timeout time.Duration, nonce int64) SubmitResult {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	exchangeID, err := e.adapter.PlaceOrder(callCtx, intent)
	switch {
	case err == nil:
		return SubmitResult{Event: lifecycle.Event{
			Kind:       lifecycle.EventSubmitAck,
			ClientID:   intent.ClientID,
			ExchangeID: exchangeID,
		}}
	case callCtx.Err() == context.DeadlineExceeded:
		e.logger.Warn("submit_order timed out, order state unknown", "client_id", intent.ClientID, "nonce", nonce)
		return SubmitResult{Event: lifecycle.Event{
			Kind:     lifecycle.EventSubmitTimeout,
			ClientID: intent.ClientID,
		}}
	case errors.Is(err, core.ErrRejectedByVenue) || errors.Is(err, core.ErrAuthFailure):
		return SubmitResult{
			Event: lifecycle.Event{
				Kind:     lifecycle.EventRejected,
				ClientID: intent.ClientID,
				Reason:   err.Error(),
			},
			RejectionCode: rejectionCode(err),
		}
	default:
		return SubmitResult{Err: err}
	}
}

// rejectionCode extracts the classified reason from a *core.VenueRejection,
// if err carries one.
func rejectionCode(err error) core.RejectionCode {
	var rej *core.VenueRejection
	if errors.As(err, &rej) {
		return rej.Code
	}
	return ""
}

// Cancel requests cancellation of exchangeID. ErrAlreadyClosed and
// ErrNotFound are both treated as success: the order is not open on the
// venue either way, and the reconciliation loop will resolve a spurious
// not-found later if it turns out to be wrong (spec.md §4.5).
func (e *Executor) Cancel(ctx context.Context, symbol core.Symbol, exchangeID string) error {
	if err := e.wait(ctx); err != nil {
		return err
	}

	resultCh := make(chan error, 1)
	e.dispatchNonced(func(nonce int64) {
		resultCh <- e.cancelNow(ctx, symbol, exchangeID, nonce)
	})
	return <-resultCh
}

func (e *Executor) cancelNow(ctx context.Context, symbol core.Symbol, exchangeID string, nonce int64) error {
	err := e.adapter.CancelOrder(ctx, symbol, exchangeID)
	if err == nil || errors.Is(err, core.ErrAlreadyClosed) || errors.Is(err, core.ErrNotFound) {
		return nil
	}
	return err
}

// QueryStatus fetches the venue's current view of exchangeID.
func (e *Executor) QueryStatus(ctx context.Context, symbol core.Symbol, exchangeID string) (venue.VenueOrder, error) {
	if err := e.wait(ctx); err != nil {
		return venue.VenueOrder{}, err
	}
	return e.adapter.GetOrderStatus(ctx, symbol, exchangeID)
}

// QueryOpenOrders fetches every order the venue considers open for symbol.
// A zero-value symbol queries across all symbols.
func (e *Executor) QueryOpenOrders(ctx context.Context, symbol core.Symbol) ([]venue.VenueOrder, error) {
	if err := e.wait(ctx); err != nil {
		return nil, err
	}
	return e.adapter.GetOpenOrders(ctx, symbol)
}

// QueryBalances fetches the venue's current balance snapshot.
func (e *Executor) QueryBalances(ctx context.Context) (core.BalanceSnapshot, error) {
	if err := e.wait(ctx); err != nil {
		return nil, err
	}
	return e.adapter.GetBalances(ctx)
}

// QueryTradingRules fetches the venue's current trading rule set.
func (e *Executor) QueryTradingRules(ctx context.Context) ([]core.TradingRule, error) {
	if err := e.wait(ctx); err != nil {
		return nil, err
	}
	return e.adapter.GetTradingRules(ctx)
}
