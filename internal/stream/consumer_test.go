package stream

import (
	"context"
	"sync"
	"testing"
	"time"

	"exchangeconnector/internal/core"
	"exchangeconnector/internal/logtest"
	"exchangeconnector/internal/venue"
	mockvenue "exchangeconnector/internal/venue/mock"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsumer_BalanceUpdatesCoalescePerAsset(t *testing.T) {
	adapter := mockvenue.New(core.BalanceSnapshot{}, nil)

	var mu sync.Mutex
	var received []string

	c := NewConsumer(adapter, 1, func(evt venue.StreamEvent) {
		mu.Lock()
		received = append(received, evt.Asset)
		mu.Unlock()
	}, logtest.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	// Several updates for BTC land before the dispatch loop ever wakes;
	// only the latest should ever reach the handler.
	c.PushForTest(venue.StreamEvent{Kind: venue.StreamEventBalance, Asset: "BTC", Balance: core.AssetBalance{Total: decimal.NewFromInt(1)}})
	c.PushForTest(venue.StreamEvent{Kind: venue.StreamEventBalance, Asset: "BTC", Balance: core.AssetBalance{Total: decimal.NewFromInt(2)}})
	c.PushForTest(venue.StreamEvent{Kind: venue.StreamEventBalance, Asset: "ETH"})
	go c.dispatchLoop(ctx)

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, received, "ETH")
	btcCount := 0
	for _, a := range received {
		if a == "BTC" {
			btcCount++
		}
	}
	assert.Equal(t, 1, btcCount, "intermediate BTC update should have been coalesced away")
}

func TestConsumer_OrderAndFillEventsAreNeverDropped(t *testing.T) {
	adapter := mockvenue.New(core.BalanceSnapshot{}, nil)

	var mu sync.Mutex
	var received []venue.StreamEventKind

	c := NewConsumer(adapter, 1, func(evt venue.StreamEvent) {
		mu.Lock()
		received = append(received, evt.Kind)
		mu.Unlock()
	}, logtest.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	// Push more order/fill events than the queue depth before the dispatch
	// loop starts; a naive drop-oldest queue would lose the earlier ones.
	pushesDone := make(chan struct{})
	go func() {
		c.PushForTest(venue.StreamEvent{Kind: venue.StreamEventOrderStatus, Order: venue.VenueOrder{ClientID: "c1"}})
		c.PushForTest(venue.StreamEvent{Kind: venue.StreamEventFill, Fill: core.TradeFill{OrderClientID: "c1", TradeID: "t1"}})
		c.PushForTest(venue.StreamEvent{Kind: venue.StreamEventOrderStatus, Order: venue.VenueOrder{ClientID: "c1"}})
		close(pushesDone)
	}()

	go c.dispatchLoop(ctx)

	select {
	case <-pushesDone:
	case <-time.After(time.Second):
		t.Fatal("pushes never completed, enqueue likely deadlocked")
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 3
	}, time.Second, time.Millisecond, "all three order/fill events must survive backpressure")
}

func TestConsumer_EnqueueUnblocksOnShutdown(t *testing.T) {
	adapter := mockvenue.New(core.BalanceSnapshot{}, nil)
	c := NewConsumer(adapter, 1, func(venue.StreamEvent) {}, logtest.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx) //nolint:errcheck

	// Fill the single queue slot, then cancel before anything drains it; a
	// blocked enqueue must still return instead of leaking the goroutine.
	c.PushForTest(venue.StreamEvent{Kind: venue.StreamEventOrderStatus})
	cancel()

	done := make(chan struct{})
	go func() {
		c.PushForTest(venue.StreamEvent{Kind: venue.StreamEventFill})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("enqueue did not unblock after shutdown")
	}
}
