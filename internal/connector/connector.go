// Package connector is the composition root: it wires the registry,
// lifecycle machine, REST executor, stream consumer, cancellation
// orchestrator, trading rule cache, balance ledger, event bus, persistence
// store, and reconciliation loops into the strategy-facing core.IConnector
// (spec.md §5, §6).
//
// Registry mutation is single-writer: every transition the lifecycle
// machine applies is funneled through one goroutine's command channel,
// whether it originates from a REST submit/cancel result, a user stream
// frame, or a reconciliation pass. Buy/Sell/Cancel/CancelAll issue network
// calls on their caller's goroutine (or a spawned one) and post the
// resulting lifecycle.Event back onto that channel rather than mutating the
// registry directly, matching the teacher's App.Run(runners...) pattern of
// supervising independent goroutines behind one errgroup.
package connector

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"exchangeconnector/internal/balance"
	"exchangeconnector/internal/cancel"
	"exchangeconnector/internal/config"
	"exchangeconnector/internal/core"
	"exchangeconnector/internal/eventbus"
	"exchangeconnector/internal/lifecycle"
	"exchangeconnector/internal/reconcile"
	"exchangeconnector/internal/registry"
	"exchangeconnector/internal/rest"
	"exchangeconnector/internal/rules"
	"exchangeconnector/internal/stream"
	"exchangeconnector/internal/venue"
	"exchangeconnector/pkg/concurrency"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Connector implements core.IConnector against one venue.Adapter.
type Connector struct {
	cfg     *config.Config
	logger  core.ILogger
	adapter venue.Adapter
	symbols []core.Symbol

	registry *registry.Registry
	bus      *eventbus.Bus
	machine  *lifecycle.Machine
	exec     *rest.Executor
	rulesC   *rules.Cache
	ledger   *balance.Ledger
	store    core.IStateStore

	consumer   *stream.Consumer
	cancelOrch *cancel.Orchestrator
	reconciler *reconcile.Reconciler
	loops      *reconcile.Loops
	pool       *concurrency.WorkerPool

	commands chan func()
	nonceSeq uint64
	ready    atomic.Bool

	wg sync.WaitGroup
}

// New wires every component from cfg. store may be nil, in which case no
// snapshot is persisted or restored across restarts.
func New(cfg *config.Config, adapter venue.Adapter, store core.IStateStore, logger core.ILogger) (*Connector, error) {
	symbols, err := parseSymbols(cfg.Trading.Symbols)
	if err != nil {
		return nil, err
	}

	reg := registry.New(logger)
	bus := eventbus.New()
	machine := lifecycle.New(reg, bus)
	execr := rest.New(adapter, cfg.Timing.RestRateLimitPerSec, cfg.Timing.RestRateLimitBurst, logger)
	rulesCache := rules.New()
	ledger := balance.New()

	pool := concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:        "cancel_pool",
		MaxWorkers:  8,
		MaxCapacity: 256,
	}, logger)

	c := &Connector{
		cfg:      cfg,
		logger:   logger.WithField("component", "connector"),
		adapter:  adapter,
		symbols:  symbols,
		registry: reg,
		bus:      bus,
		machine:  machine,
		exec:     execr,
		rulesC:   rulesCache,
		ledger:   ledger,
		store:    store,
		pool:     pool,
		commands: make(chan func(), 256),
	}

	c.cancelOrch = cancel.New(execr, reg, pool, cfg.Timing.CancelDedupTTL(), logger)
	c.reconciler = reconcile.New(execr, execr, reg, c, rulesCache, ledger, symbols, cfg.Timing.OrderNotExistGrace(), cfg.Timing.OrderExpiry(), logger)
	c.loops = reconcile.NewLoops(
		c.reconciler,
		cfg.Timing.BalanceReconcileInterval(),
		cfg.Timing.OpenOrdersReconcileInterval(),
		cfg.Timing.TradingRuleReconcileInterval(),
		logger,
	)
	c.consumer = stream.NewConsumer(adapter, 256, c.onStreamEvent, logger)

	return c, nil
}

func parseSymbols(raw []string) ([]core.Symbol, error) {
	out := make([]core.Symbol, 0, len(raw))
	for _, s := range raw {
		parts := strings.SplitN(s, "-", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("connector: invalid symbol %q, expected BASE-QUOTE", s)
		}
		out = append(out, core.Symbol{Base: parts[0], Quote: parts[1]})
	}
	return out, nil
}

// Ingest implements reconcile.Ingester, routing a reconciliation-driven
// transition through the connector's single event-loop goroutine instead of
// letting the reconciliation loop's own goroutine mutate the registry.
func (c *Connector) Ingest(evt lifecycle.Event) error {
	errCh := make(chan error, 1)
	c.commands <- func() {
		errCh <- c.machine.Ingest(evt)
	}
	return <-errCh
}

// Start restores any persisted registry snapshot, primes the trading rule
// cache and balance ledger synchronously so the connector never accepts an
// order it cannot yet validate, then starts the event loop, user stream
// consumer, and reconciliation loops as independent goroutines supervised
// by one errgroup, grounded on the teacher's App.Run(runners...) pattern.
func (c *Connector) Start(ctx context.Context) error {
	if c.store != nil {
		blob, err := c.store.LoadSnapshot(ctx)
		if err != nil {
			return fmt.Errorf("connector: load snapshot: %w", err)
		}
		if blob != nil {
			if err := c.registry.Restore(blob); err != nil {
				return fmt.Errorf("connector: restore snapshot: %w", err)
			}
		}
	}

	if err := c.reconciler.ReconcileTradingRules(ctx); err != nil {
		return fmt.Errorf("connector: initial trading rule fetch: %w", err)
	}
	if err := c.reconciler.ReconcileBalances(ctx); err != nil {
		return fmt.Errorf("connector: initial balance fetch: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return c.runEventLoop(gctx) })
	g.Go(func() error { return c.consumer.Run(gctx) })
	g.Go(func() error { return c.loops.Run(gctx) })

	c.ready.Store(true)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := g.Wait(); err != nil && gctx.Err() == nil {
			c.logger.Error("connector runner stopped with error", "error", err.Error())
		}
		c.ready.Store(false)
	}()

	return nil
}

// Stop cancels every open order (if configured) and persists a final
// registry snapshot.
func (c *Connector) Stop(ctx context.Context) error {
	if c.cfg.System.CancelOnExit {
		if _, err := c.cancelOrch.CancelAll(ctx, 10*time.Second); err != nil {
			c.logger.Error("cancel_on_exit failed", "error", err.Error())
		}
	}
	if c.store != nil {
		blob, err := c.registry.Snapshot()
		if err != nil {
			return fmt.Errorf("connector: snapshot: %w", err)
		}
		if err := c.store.SaveSnapshot(ctx, blob); err != nil {
			return fmt.Errorf("connector: save snapshot: %w", err)
		}
	}
	c.wg.Wait()
	c.exec.Close()
	return nil
}

// Ready reports whether the connector has completed startup and is still
// running.
func (c *Connector) Ready() bool {
	return c.ready.Load()
}

func (c *Connector) runEventLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-c.commands:
			fn()
		}
	}
}

func (c *Connector) nextClientID() string {
	seq := atomic.AddUint64(&c.nonceSeq, 1)
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), seq)
}

func (c *Connector) place(symbol core.Symbol, side core.Side, qty decimal.Decimal, typ core.OrderType, price *decimal.Decimal) (string, error) {
	p := decimal.Zero
	if price != nil {
		p = *price
	}
	if err := c.rulesC.Check(symbol, qty, p); err != nil {
		return "", err
	}

	intent := core.OrderIntent{
		ClientID: c.nextClientID(),
		Symbol:   symbol,
		Side:     side,
		Type:     typ,
		Quantity: qty,
		Price:    p,
	}

	if _, err := c.registry.Track(intent); err != nil {
		return "", err
	}

	go c.submit(intent)
	return intent.ClientID, nil
}

// Buy places a buy order.
func (c *Connector) Buy(symbol core.Symbol, qty decimal.Decimal, typ core.OrderType, price *decimal.Decimal) (string, error) {
	return c.place(symbol, core.SideBuy, qty, typ, price)
}

// Sell places a sell order.
func (c *Connector) Sell(symbol core.Symbol, qty decimal.Decimal, typ core.OrderType, price *decimal.Decimal) (string, error) {
	return c.place(symbol, core.SideSell, qty, typ, price)
}

func (c *Connector) submit(intent core.OrderIntent) {
	result := c.exec.Submit(context.Background(), intent, 60*time.Second)
	if result.Err != nil {
		c.logger.Error("submit_order failed", "client_id", intent.ClientID, "error", result.Err.Error())
		return
	}
	c.commands <- func() {
		if err := c.machine.Ingest(result.Event); err != nil {
			c.logger.Error("failed to apply submit result", "client_id", intent.ClientID, "error", err.Error())
		}
	}
	c.refreshRulesOnRejection(result.RejectionCode)
}

// refreshRulesOnRejection forces an immediate trading-rule refresh when a
// venue rejection suggests the cached rule is stale, rather than waiting
// out the rest of the 5-minute cadence (spec.md §4.7).
func (c *Connector) refreshRulesOnRejection(code core.RejectionCode) {
	if code != core.RejectionMinNotional && code != core.RejectionTickSize {
		return
	}
	go func() {
		if err := c.reconciler.ReconcileTradingRules(context.Background()); err != nil {
			c.logger.Error("on-demand trading rule refresh failed", "rejection_code", string(code), "error", err.Error())
		}
	}()
}

// Cancel requests cancellation of the order tracked under clientID.
func (c *Connector) Cancel(symbol core.Symbol, clientID string) error {
	order, ok := c.registry.Get(clientID)
	if !ok {
		return core.ErrNotFound
	}

	go func() {
		if err := c.cancelOrch.CancelOne(context.Background(), order); err != nil {
			c.logger.Error("cancel failed", "client_id", clientID, "error", err.Error())
			return
		}
		c.commands <- func() {
			if err := c.machine.Ingest(lifecycle.Event{Kind: lifecycle.EventCancelConfirmed, ClientID: clientID}); err != nil {
				c.logger.Error("failed to apply cancel confirmation", "client_id", clientID, "error", err.Error())
			}
		}
	}()
	return nil
}

// CancelAll cancels every open order, bounded by deadline.
func (c *Connector) CancelAll(ctx context.Context, deadline time.Duration) ([]core.CancelResult, error) {
	results, err := c.cancelOrch.CancelAll(ctx, deadline)
	for _, res := range results {
		if !res.Success {
			continue
		}
		clientID := res.ClientID
		if ingestErr := c.Ingest(lifecycle.Event{Kind: lifecycle.EventCancelConfirmed, ClientID: clientID}); ingestErr != nil {
			c.logger.Error("failed to apply cancel confirmation", "client_id", clientID, "error", ingestErr.Error())
		}
	}
	return results, err
}

// Balances returns the current balance snapshot.
func (c *Connector) Balances() core.BalanceSnapshot {
	return c.ledger.Snapshot()
}

// InFlightOrders returns every tracked order, terminal or not.
func (c *Connector) InFlightOrders() []*core.InFlightOrder {
	return c.registry.All()
}

// LimitOrders returns every non-terminal order.
func (c *Connector) LimitOrders() []*core.InFlightOrder {
	return c.registry.OpenOrders()
}

// Subscribe registers handler for domain events of kind.
func (c *Connector) Subscribe(kind core.EventKind, handler func(core.Event)) func() {
	return c.bus.Subscribe(kind, handler)
}

func (c *Connector) onStreamEvent(evt venue.StreamEvent) {
	lcEvt, ok := translateStreamEvent(evt)
	if !ok {
		if evt.Kind == venue.StreamEventBalance {
			c.ledger.Set(evt.Asset, evt.Balance)
		}
		return
	}

	c.commands <- func() {
		// A stream order-status frame may be the first confirmation this
		// order was accepted, arriving before (or instead of) the REST
		// submit ack; bind the exchange id first so the status update
		// itself never has to carry bind semantics.
		if evt.Kind == venue.StreamEventOrderStatus && evt.Order.ExchangeID != "" {
			if order, ok := c.registry.Get(lcEvt.ClientID); ok && order.ExchangeID == "" {
				if err := c.machine.Ingest(lifecycle.Event{
					Kind:       lifecycle.EventSubmitAck,
					ClientID:   lcEvt.ClientID,
					ExchangeID: evt.Order.ExchangeID,
				}); err != nil {
					c.logger.Error("failed to bind exchange id from stream", "client_id", lcEvt.ClientID, "error", err.Error())
				}
			}
		}

		if err := c.machine.Ingest(lcEvt); err != nil {
			c.logger.Error("failed to apply stream event", "client_id", lcEvt.ClientID, "error", err.Error())
		}
	}
}

// translateStreamEvent converts a venue-normalized stream frame into a
// lifecycle.Event. A balance event has no corresponding lifecycle
// transition and returns ok=false; the caller applies it to the ledger
// directly.
func translateStreamEvent(evt venue.StreamEvent) (lifecycle.Event, bool) {
	switch evt.Kind {
	case venue.StreamEventOrderStatus:
		return lifecycle.Event{
			Kind:       lifecycle.EventStatusUpdate,
			ClientID:   evt.Order.ClientID,
			ExchangeID: evt.Order.ExchangeID,
			State:      evt.Order.State,
		}, true
	case venue.StreamEventFill:
		return lifecycle.Event{
			Kind:     lifecycle.EventFill,
			ClientID: evt.Fill.OrderClientID,
			Fill:     evt.Fill,
		}, true
	default:
		return lifecycle.Event{}, false
	}
}
