package connector

import (
	"context"
	"testing"
	"time"

	"exchangeconnector/internal/config"
	"exchangeconnector/internal/core"
	"exchangeconnector/internal/logtest"
	"exchangeconnector/internal/venue"
	mockvenue "exchangeconnector/internal/venue/mock"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var btcUSDT = core.Symbol{Base: "BTC", Quote: "USDT"}

func permissiveRule(symbol core.Symbol) core.TradingRule {
	return core.TradingRule{
		Symbol:       symbol,
		MinOrderSize: decimal.NewFromFloat(0.0001),
		PriceTick:    decimal.Zero,
		SizeTick:     decimal.Zero,
		Status:       core.SymbolTradable,
	}
}

func newTestConnector(t *testing.T, adapter venue.Adapter) (*Connector, *config.Config) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.System.CancelOnExit = false
	c, err := New(cfg, adapter, nil, logtest.NewNop())
	require.NoError(t, err)
	return c, cfg
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestConnector_BuyTracksOrderAndAppliesSubmitAck(t *testing.T) {
	adapter := mockvenue.New(core.BalanceSnapshot{
		"USDT": {Total: decimal.NewFromFloat(10000), Available: decimal.NewFromFloat(10000)},
	}, []core.TradingRule{permissiveRule(btcUSDT)})
	c, _ := newTestConnector(t, adapter)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Start(ctx))
	defer c.Stop(context.Background())

	price := decimal.NewFromFloat(50000)
	clientID, err := c.Buy(btcUSDT, decimal.NewFromFloat(0.01), core.OrderTypeLimit, &price)
	require.NoError(t, err)
	require.NotEmpty(t, clientID)

	waitFor(t, time.Second, func() bool {
		order, ok := c.registry.Get(clientID)
		return ok && order.State == core.StateOpen && order.ExchangeID != ""
	})
}

func TestConnector_RejectsOrderViolatingTradingRule(t *testing.T) {
	adapter := mockvenue.New(core.BalanceSnapshot{}, []core.TradingRule{permissiveRule(btcUSDT)})
	c, _ := newTestConnector(t, adapter)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Start(ctx))
	defer c.Stop(context.Background())

	price := decimal.NewFromFloat(50000)
	_, err := c.Buy(btcUSDT, decimal.NewFromFloat(0.00001), core.OrderTypeLimit, &price)
	require.ErrorIs(t, err, core.ErrBelowMinSize)
}

func TestConnector_CancelConfirmsOrder(t *testing.T) {
	adapter := mockvenue.New(core.BalanceSnapshot{}, []core.TradingRule{permissiveRule(btcUSDT)})
	c, _ := newTestConnector(t, adapter)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Start(ctx))
	defer c.Stop(context.Background())

	price := decimal.NewFromFloat(50000)
	clientID, err := c.Buy(btcUSDT, decimal.NewFromFloat(0.01), core.OrderTypeLimit, &price)
	require.NoError(t, err)

	waitFor(t, time.Second, func() bool {
		order, ok := c.registry.Get(clientID)
		return ok && order.ExchangeID != ""
	})

	require.NoError(t, c.Cancel(btcUSDT, clientID))

	waitFor(t, time.Second, func() bool {
		order, ok := c.registry.Get(clientID)
		return ok && order.State == core.StateCancelled
	})
}

func TestConnector_BalancesReflectsInitialSnapshot(t *testing.T) {
	snap := core.BalanceSnapshot{
		"BTC": {Total: decimal.NewFromFloat(1.5), Available: decimal.NewFromFloat(1.5)},
	}
	adapter := mockvenue.New(snap, []core.TradingRule{permissiveRule(btcUSDT)})
	c, _ := newTestConnector(t, adapter)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Start(ctx))
	defer c.Stop(context.Background())

	bal := c.Balances()
	got, ok := bal["BTC"]
	require.True(t, ok)
	require.True(t, got.Total.Equal(decimal.NewFromFloat(1.5)))
}

func TestConnector_StreamFillAdvancesOrderToDone(t *testing.T) {
	adapter := mockvenue.New(core.BalanceSnapshot{}, []core.TradingRule{permissiveRule(btcUSDT)})
	c, _ := newTestConnector(t, adapter)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Start(ctx))
	defer c.Stop(context.Background())

	price := decimal.NewFromFloat(50000)
	clientID, err := c.Buy(btcUSDT, decimal.NewFromFloat(0.01), core.OrderTypeLimit, &price)
	require.NoError(t, err)

	waitFor(t, time.Second, func() bool {
		order, ok := c.registry.Get(clientID)
		return ok && order.ExchangeID != ""
	})

	c.consumer.PushForTest(venue.StreamEvent{
		Kind: venue.StreamEventFill,
		Fill: core.TradeFill{
			OrderClientID: clientID,
			TradeID:       "t1",
			BaseQty:       decimal.NewFromFloat(0.01),
			QuoteQty:      decimal.NewFromFloat(500),
		},
	})

	waitFor(t, time.Second, func() bool {
		order, ok := c.registry.Get(clientID)
		return ok && order.State == core.StateDone
	})
}

func TestConnector_SubscribeReceivesOrderCreatedEvent(t *testing.T) {
	adapter := mockvenue.New(core.BalanceSnapshot{}, []core.TradingRule{permissiveRule(btcUSDT)})
	c, _ := newTestConnector(t, adapter)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Start(ctx))
	defer c.Stop(context.Background())

	received := make(chan core.Event, 1)
	unsubscribe := c.Subscribe(core.EventOrderCreated, func(evt core.Event) {
		received <- evt
	})
	defer unsubscribe()

	price := decimal.NewFromFloat(50000)
	_, err := c.Buy(btcUSDT, decimal.NewFromFloat(0.01), core.OrderTypeLimit, &price)
	require.NoError(t, err)

	select {
	case evt := <-received:
		require.Equal(t, core.EventOrderCreated, evt.Kind)
	case <-time.After(time.Second):
		t.Fatal("expected order created event")
	}
}

func TestConnector_RejectionOnDemandRefreshesTradingRules(t *testing.T) {
	adapter := mockvenue.New(core.BalanceSnapshot{}, []core.TradingRule{permissiveRule(btcUSDT)})
	c, _ := newTestConnector(t, adapter)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Start(ctx))
	defer c.Stop(context.Background())

	before := c.rulesC.Version()
	c.refreshRulesOnRejection(core.RejectionMinNotional)

	waitFor(t, time.Second, func() bool { return c.rulesC.Version() > before })
}

func TestConnector_RejectionOtherDoesNotRefreshTradingRules(t *testing.T) {
	adapter := mockvenue.New(core.BalanceSnapshot{}, []core.TradingRule{permissiveRule(btcUSDT)})
	c, _ := newTestConnector(t, adapter)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Start(ctx))
	defer c.Stop(context.Background())

	before := c.rulesC.Version()
	c.refreshRulesOnRejection(core.RejectionOther)

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, before, c.rulesC.Version())
}

func TestConnector_ReadyReflectsLifecycle(t *testing.T) {
	adapter := mockvenue.New(core.BalanceSnapshot{}, []core.TradingRule{permissiveRule(btcUSDT)})
	c, _ := newTestConnector(t, adapter)

	require.False(t, c.Ready())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, c.Start(ctx))
	require.True(t, c.Ready())

	cancel()
	waitFor(t, time.Second, func() bool { return !c.Ready() })
	require.NoError(t, c.Stop(context.Background()))
}
