// Package reconcile implements the three independent reconciliation loops
// that keep the connector's local view aligned with venue truth: balances,
// open orders, and trading rules (spec.md §4.6, §4.7, §4.9). Each runs on
// its own cadence via clock.Ticker so a slow trading-rule refresh never
// delays balance sync or vice versa.
//
// The open-orders pass additionally resolves orders stuck in Indeterminate
// (submit_order timed out with no confirmed outcome) and detects ghost
// orders in both directions, following the same local-vs-exchange diff the
// teacher's reconciler runs for positions and orders.
package reconcile

import (
	"context"
	"time"

	"exchangeconnector/internal/balance"
	"exchangeconnector/internal/core"
	"exchangeconnector/internal/lifecycle"
	"exchangeconnector/internal/rules"
	"exchangeconnector/internal/venue"

	"github.com/google/uuid"
)

// Executor is the subset of *rest.Executor the reconciler needs.
type Executor interface {
	QueryBalances(ctx context.Context) (core.BalanceSnapshot, error)
	QueryTradingRules(ctx context.Context) ([]core.TradingRule, error)
	QueryOpenOrders(ctx context.Context, symbol core.Symbol) ([]venue.VenueOrder, error)
}

// Canceller is the subset of *rest.Executor needed to cancel a ghost
// exchange order the registry never placed or has already forgotten.
type Canceller interface {
	Cancel(ctx context.Context, symbol core.Symbol, exchangeID string) error
}

// Registry is the subset of *registry.Registry the open-orders pass needs.
type Registry interface {
	OpenOrders() []*core.InFlightOrder
}

// Ingester is the subset of *lifecycle.Machine the reconciler needs. Defined
// here so a connector composition root can route reconciliation-driven
// transitions through its single event-loop goroutine instead of handing
// the reconciler direct, concurrent access to the lifecycle machine.
type Ingester interface {
	Ingest(evt lifecycle.Event) error
}

// Reconciler drives all three loops against one venue connection.
type Reconciler struct {
	exec     Executor
	cancel   Canceller
	registry Registry
	machine  Ingester
	rules    *rules.Cache
	ledger   *balance.Ledger
	symbols  []core.Symbol
	grace    time.Duration
	expiry   time.Duration
	logger   core.ILogger
}

// New builds a Reconciler. symbols is the set of markets this connector
// tracks open orders for; balances and trading rules are account-wide and
// ignore it. grace is order_not_exist_grace: a Pending/Indeterminate order
// younger than grace is left untouched by a reconciliation pass even if the
// venue's open-orders list doesn't yet show it. expiry is order_expiry: an
// order tracked non-terminal longer than expiry with no resolution is
// cancelled locally by the straggler pass. Either may be zero to disable
// the corresponding gate/pass (used by tests that don't exercise timing).
func New(exec Executor, cancel Canceller, reg Registry, machine Ingester, rulesCache *rules.Cache, ledger *balance.Ledger, symbols []core.Symbol, grace, expiry time.Duration, logger core.ILogger) *Reconciler {
	return &Reconciler{
		exec:     exec,
		cancel:   cancel,
		registry: reg,
		machine:  machine,
		rules:    rulesCache,
		ledger:   ledger,
		symbols:  symbols,
		grace:    grace,
		expiry:   expiry,
		logger:   logger.WithField("component", "reconciler"),
	}
}

// ReconcileBalances refreshes the balance ledger wholesale from the venue.
func (r *Reconciler) ReconcileBalances(ctx context.Context) error {
	passID := uuid.New().String()
	snap, err := r.exec.QueryBalances(ctx)
	if err != nil {
		r.logger.Error("balance reconciliation failed", "pass_id", passID, "error", err.Error())
		return err
	}
	r.ledger.Replace(snap)
	r.logger.Debug("balance reconciliation completed", "pass_id", passID, "assets", len(snap))
	return nil
}

// ReconcileTradingRules refreshes the trading rule cache wholesale from the
// venue. Rules are replaced as a whole snapshot, never merged field by
// field (spec.md §4.6).
func (r *Reconciler) ReconcileTradingRules(ctx context.Context) error {
	passID := uuid.New().String()
	fresh, err := r.exec.QueryTradingRules(ctx)
	if err != nil {
		r.logger.Error("trading rule reconciliation failed", "pass_id", passID, "error", err.Error())
		return err
	}
	r.rules.Replace(fresh)
	r.logger.Debug("trading rule reconciliation completed", "pass_id", passID, "symbols", len(fresh))
	return nil
}

// ReconcileOpenOrders diffs the registry's open orders against the venue's
// view, one symbol at a time:
//
//   - An order Indeterminate locally (submit_order timed out) that the venue
//     confirms is resolved positively via a status update; one the venue has
//     no record of is resolved negatively via a rejection, since the submit
//     never actually reached the venue.
//   - An order open locally but missing from the venue's open-orders list is
//     a ghost local order: treated as cancelled out from under the
//     connector (e.g. cancelled through another client).
//   - An order open on the venue with no local record is a ghost exchange
//     order left behind by a prior crashed process; cancelled outright,
//     since this connector never issued it and cannot reason about its
//     intent.
func (r *Reconciler) ReconcileOpenOrders(ctx context.Context) error {
	passID := uuid.New().String()
	local := r.registry.OpenOrders()

	for _, symbol := range r.symbols {
		remote, err := r.exec.QueryOpenOrders(ctx, symbol)
		if err != nil {
			r.logger.Error("open order reconciliation failed", "pass_id", passID, "symbol", symbol.String(), "error", err.Error())
			continue
		}
		r.reconcileSymbol(ctx, symbol, local, remote)
	}
	r.expireStragglers(ctx, passID)
	r.logger.Debug("open order reconciliation completed", "pass_id", passID, "local_open", len(local))
	return nil
}

// tooYoungToReconcile reports whether order is a Pending/Indeterminate
// order not yet old enough for its absence from the venue's open-orders
// list to mean anything: a brand-new submit_order call can easily lose the
// race against the next open-orders poll (spec.md §4.3, §8 scenario 2, "no
// events during the gap"). Orders already confirmed Open are never gated —
// once the venue has acknowledged an order, its disappearance is
// meaningful regardless of age.
func (r *Reconciler) tooYoungToReconcile(order *core.InFlightOrder) bool {
	if order.State != core.StatePending && order.State != core.StateIndeterminate {
		return false
	}
	if r.grace <= 0 || order.CreationTS.IsZero() {
		return false
	}
	return time.Since(order.CreationTS) <= r.grace
}

// expireStragglers cancels any order this connector has tracked
// non-terminal for longer than order_expiry with no resolution from either
// REST or the stream, synthesizing EventLocalExpire since the connector is
// the one giving up, not the venue (spec.md §4.6, "straggler cancellation").
func (r *Reconciler) expireStragglers(ctx context.Context, passID string) {
	if r.expiry <= 0 {
		return
	}
	for _, order := range r.registry.OpenOrders() {
		if order.CreationTS.IsZero() || time.Since(order.CreationTS) <= r.expiry {
			continue
		}

		if order.ExchangeID != "" && r.cancel != nil {
			if err := r.cancel.Cancel(ctx, order.Symbol, order.ExchangeID); err != nil {
				r.logger.Error("straggler cancel failed", "pass_id", passID, "client_id", order.ClientID, "error", err.Error())
			}
		}

		r.logger.Warn("order exceeded order_expiry, expiring locally", "pass_id", passID, "client_id", order.ClientID, "age", time.Since(order.CreationTS).String())
		if err := r.machine.Ingest(lifecycle.Event{
			Kind:     lifecycle.EventLocalExpire,
			ClientID: order.ClientID,
			Reason:   "exceeded order_expiry",
		}); err != nil {
			r.logger.Error("failed to apply local expire", "pass_id", passID, "client_id", order.ClientID, "error", err.Error())
		}
	}
}

func (r *Reconciler) reconcileSymbol(ctx context.Context, symbol core.Symbol, local []*core.InFlightOrder, remote []venue.VenueOrder) {
	byExchangeID := make(map[string]venue.VenueOrder, len(remote))
	byClientID := make(map[string]venue.VenueOrder, len(remote))
	for _, vo := range remote {
		if vo.ExchangeID != "" {
			byExchangeID[vo.ExchangeID] = vo
		}
		if vo.ClientID != "" {
			byClientID[vo.ClientID] = vo
		}
	}

	seen := make(map[string]struct{}, len(local))
	for _, order := range local {
		if order.Symbol != symbol {
			continue
		}

		vo, found := byExchangeID[order.ExchangeID]
		if !found && order.ExchangeID == "" {
			vo, found = byClientID[order.ClientID]
		}
		if found {
			seen[vo.ExchangeID] = struct{}{}
			r.resolvePositive(order, vo)
			continue
		}
		if r.tooYoungToReconcile(order) {
			continue
		}
		r.resolveMissing(order)
	}

	for _, vo := range remote {
		if vo.ExchangeID == "" {
			continue
		}
		if _, ok := seen[vo.ExchangeID]; ok {
			continue
		}
		if _, tracked := byClientIDTracked(local, vo.ClientID); tracked {
			continue
		}
		r.cancelGhostExchangeOrder(ctx, symbol, vo)
	}
}

func byClientIDTracked(local []*core.InFlightOrder, clientID string) (*core.InFlightOrder, bool) {
	if clientID == "" {
		return nil, false
	}
	for _, o := range local {
		if o.ClientID == clientID {
			return o, true
		}
	}
	return nil, false
}

// resolvePositive confirms an order the venue still knows about, syncing
// its coarse state. This never regresses state: the lifecycle machine's
// tie-break rule applies exactly as it does for a stream update.
func (r *Reconciler) resolvePositive(order *core.InFlightOrder, vo venue.VenueOrder) {
	if order.ExchangeID == "" && vo.ExchangeID != "" {
		if err := r.machine.Ingest(lifecycle.Event{
			Kind:       lifecycle.EventSubmitAck,
			ClientID:   order.ClientID,
			ExchangeID: vo.ExchangeID,
		}); err != nil {
			r.logger.Error("failed to bind exchange id during reconciliation", "client_id", order.ClientID, "error", err.Error())
			return
		}
	}

	if err := r.machine.Ingest(lifecycle.Event{
		Kind:       lifecycle.EventStatusUpdate,
		ClientID:   order.ClientID,
		ExchangeID: vo.ExchangeID,
		State:      vo.State,
	}); err != nil {
		r.logger.Error("failed to apply reconciliation status update", "client_id", order.ClientID, "error", err.Error())
	}
}

// resolveMissing handles a locally-open order the venue no longer reports.
// An Indeterminate order was never confirmed placed, so it resolves
// negatively to Failed; any other open state is treated as cancelled out
// from under the connector.
func (r *Reconciler) resolveMissing(order *core.InFlightOrder) {
	if order.State == core.StateIndeterminate {
		if err := r.machine.Ingest(lifecycle.Event{
			Kind:     lifecycle.EventRejected,
			ClientID: order.ClientID,
			Reason:   "not found on venue during reconciliation",
		}); err != nil {
			r.logger.Error("failed to resolve indeterminate order", "client_id", order.ClientID, "error", err.Error())
		}
		return
	}

	r.logger.Warn("order missing on venue, treating as cancelled", "client_id", order.ClientID, "exchange_id", order.ExchangeID)
	if err := r.machine.Ingest(lifecycle.Event{
		Kind:     lifecycle.EventStatusUpdate,
		ClientID: order.ClientID,
		State:    core.StateCancelled,
	}); err != nil {
		r.logger.Error("failed to apply ghost-order cancellation", "client_id", order.ClientID, "error", err.Error())
	}
}

func (r *Reconciler) cancelGhostExchangeOrder(ctx context.Context, symbol core.Symbol, vo venue.VenueOrder) {
	r.logger.Warn("unknown order found on venue, cancelling", "symbol", symbol.String(), "exchange_id", vo.ExchangeID)
	if r.cancel == nil {
		return
	}
	if err := r.cancel.Cancel(ctx, symbol, vo.ExchangeID); err != nil {
		r.logger.Error("failed to cancel ghost exchange order", "exchange_id", vo.ExchangeID, "error", err.Error())
	}
}
