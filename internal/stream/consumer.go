// Package stream implements the user stream consumer: the connector's
// private order/balance feed, decoupled from the venue's raw wire frames by
// venue.Adapter.ParseUserStreamMessage and fed into the lifecycle machine
// through a bounded queue: balance updates coalesce per asset, and when the
// queue is full, order and fill events block the stream reader until the
// event loop catches up (spec.md §4.8).
package stream

import (
	"context"
	"sync"

	"exchangeconnector/internal/core"
	"exchangeconnector/internal/venue"
	appws "exchangeconnector/pkg/websocket"
)

// Handler receives normalized events decoded off the wire. It is invoked on
// the consumer's single dispatch goroutine, matching the event loop's
// single-writer discipline.
type Handler func(venue.StreamEvent)

// Consumer bridges a venue's WebSocket user stream into typed StreamEvents.
// Frames are decoded on the socket's read goroutine and dispatched to
// Handler through two paths with different backpressure rules (spec.md
// §4.5): balance_delta messages coalesce, keeping only the latest update
// per asset, since a missed intermediate balance is harmless once a newer
// one has arrived; order_update and execution messages are never dropped —
// the reader blocks rather than lose one, since each carries state the
// lifecycle machine cannot reconstruct from a later message alone.
type Consumer struct {
	adapter venue.Adapter
	handler Handler
	logger  core.ILogger

	orders chan venue.StreamEvent

	balanceMu      sync.Mutex
	balancePending map[string]venue.StreamEvent
	balanceReady   chan struct{}

	done     chan struct{}
	doneOnce sync.Once
}

// NewConsumer builds a Consumer whose order/fill queue holds up to depth
// events before a sender blocks.
func NewConsumer(adapter venue.Adapter, depth int, handler Handler, logger core.ILogger) *Consumer {
	if depth < 1 {
		depth = 1
	}
	return &Consumer{
		adapter:        adapter,
		handler:        handler,
		logger:         logger.WithField("component", "stream_consumer"),
		orders:         make(chan venue.StreamEvent, depth),
		balancePending: make(map[string]venue.StreamEvent),
		balanceReady:   make(chan struct{}, 1),
		done:           make(chan struct{}),
	}
}

// Run opens the venue's user stream and blocks, dispatching decoded events
// to Handler until ctx is cancelled. Reconnection is handled by the
// underlying websocket client.
func (c *Consumer) Run(ctx context.Context) error {
	url, err := c.adapter.UserStreamURL(ctx)
	if err != nil {
		return err
	}

	client := appws.NewClient(url, c.onMessage, c.logger)
	client.Start()
	defer client.Stop()

	go func() {
		<-ctx.Done()
		c.doneOnce.Do(func() { close(c.done) })
	}()

	return c.dispatchLoop(ctx)
}

func (c *Consumer) onMessage(raw []byte) {
	events, err := c.adapter.ParseUserStreamMessage(raw)
	if err != nil {
		c.logger.Warn("failed to parse user stream frame", "error", err)
		return
	}
	for _, evt := range events {
		c.enqueue(evt)
	}
}

// enqueue routes evt by kind: a balance update coalesces into the
// keep-last-per-asset map, while an order status or fill blocks for room in
// the order queue rather than drop, unblocking only if the consumer shuts
// down first.
func (c *Consumer) enqueue(evt venue.StreamEvent) {
	if evt.Kind == venue.StreamEventBalance {
		c.enqueueBalance(evt)
		return
	}

	select {
	case c.orders <- evt:
	case <-c.done:
	}
}

func (c *Consumer) enqueueBalance(evt venue.StreamEvent) {
	c.balanceMu.Lock()
	if _, overwritten := c.balancePending[evt.Asset]; overwritten {
		c.logger.Debug("coalescing balance update", "asset", evt.Asset)
	}
	c.balancePending[evt.Asset] = evt
	c.balanceMu.Unlock()

	select {
	case c.balanceReady <- struct{}{}:
	default:
	}
}

// drainBalances dispatches every coalesced balance update accumulated since
// the last drain, one per asset.
func (c *Consumer) drainBalances() {
	c.balanceMu.Lock()
	pending := c.balancePending
	c.balancePending = make(map[string]venue.StreamEvent, len(pending))
	c.balanceMu.Unlock()

	for _, evt := range pending {
		c.handler(evt)
	}
}

func (c *Consumer) dispatchLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt := <-c.orders:
			c.handler(evt)
		case <-c.balanceReady:
			c.drainBalances()
		}
	}
}

// PushForTest injects an event directly, bypassing the wire — used by the
// mock venue adapter in tests that never reach a real socket.
func (c *Consumer) PushForTest(evt venue.StreamEvent) {
	c.enqueue(evt)
}
