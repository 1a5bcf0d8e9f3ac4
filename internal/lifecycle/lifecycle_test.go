package lifecycle

import (
	"testing"

	"exchangeconnector/internal/core"
	"exchangeconnector/internal/logtest"
	"exchangeconnector/internal/registry"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBus struct {
	events []core.Event
}

func (b *fakeBus) Subscribe(kind core.EventKind, handler func(core.Event)) func() {
	return func() {}
}

func (b *fakeBus) Publish(evt core.Event) {
	b.events = append(b.events, evt)
}

func newFixture(t *testing.T, clientID string) (*registry.Registry, *fakeBus, *Machine) {
	t.Helper()
	r := registry.New(logtest.NewNop())
	_, err := r.Track(core.OrderIntent{
		ClientID: clientID,
		Symbol:   core.Symbol{Base: "BTC", Quote: "USDT"},
		Side:     core.SideBuy,
		Type:     core.OrderTypeLimit,
		Quantity: decimal.NewFromFloat(1),
		Price:    decimal.NewFromFloat(50000),
	})
	require.NoError(t, err)

	bus := &fakeBus{}
	return r, bus, New(r, bus)
}

func TestMachine_SubmitAckOpensOrderAndFiresOnce(t *testing.T) {
	r, bus, m := newFixture(t, "c1")

	require.NoError(t, m.Ingest(Event{Kind: EventSubmitAck, ClientID: "c1", ExchangeID: "ex-1"}))
	order, _ := r.Get("c1")
	assert.Equal(t, core.StateOpen, order.State)
	assert.Equal(t, "ex-1", order.ExchangeID)
	require.Len(t, bus.events, 1)
	assert.Equal(t, core.EventOrderCreated, bus.events[0].Kind)

	// redelivery of the same ack must not double-fire OrderCreated
	require.NoError(t, m.Ingest(Event{Kind: EventSubmitAck, ClientID: "c1", ExchangeID: "ex-1"}))
	assert.Len(t, bus.events, 1)
}

func TestMachine_SubmitAckWithoutExchangeIDStaysPending(t *testing.T) {
	r, bus, m := newFixture(t, "c1")

	require.NoError(t, m.Ingest(Event{Kind: EventSubmitAck, ClientID: "c1"}))
	order, _ := r.Get("c1")
	assert.Equal(t, core.StatePending, order.State)
	assert.Empty(t, order.ExchangeID)
	assert.Empty(t, bus.events)
}

func TestMachine_SubmitTimeoutGoesIndeterminate(t *testing.T) {
	r, _, m := newFixture(t, "c1")

	require.NoError(t, m.Ingest(Event{Kind: EventSubmitTimeout, ClientID: "c1"}))
	order, _ := r.Get("c1")
	assert.Equal(t, core.StateIndeterminate, order.State)
}

func TestMachine_IndeterminateResolvesPositiveViaStatusUpdate(t *testing.T) {
	r, _, m := newFixture(t, "c1")
	require.NoError(t, m.Ingest(Event{Kind: EventSubmitTimeout, ClientID: "c1"}))

	require.NoError(t, m.Ingest(Event{Kind: EventStatusUpdate, ClientID: "c1", State: core.StateOpen}))
	order, _ := r.Get("c1")
	assert.Equal(t, core.StateOpen, order.State)
}

func TestMachine_IndeterminateResolvesNegativeViaRejection(t *testing.T) {
	r, bus, m := newFixture(t, "c1")
	require.NoError(t, m.Ingest(Event{Kind: EventSubmitTimeout, ClientID: "c1"}))

	require.NoError(t, m.Ingest(Event{Kind: EventRejected, ClientID: "c1", Reason: "never reached venue"}))
	order, _ := r.Get("c1")
	assert.Equal(t, core.StateFailed, order.State)
	require.Len(t, bus.events, 1)
	assert.Equal(t, core.EventOrderFailure, bus.events[0].Kind)
}

func TestMachine_LocalExpireCancelsOrderAndFiresOnce(t *testing.T) {
	r, bus, m := newFixture(t, "c1")
	require.NoError(t, m.Ingest(Event{Kind: EventSubmitAck, ClientID: "c1", ExchangeID: "ex-1"}))

	require.NoError(t, m.Ingest(Event{Kind: EventLocalExpire, ClientID: "c1", Reason: "exceeded order_expiry"}))
	order, _ := r.Get("c1")
	assert.Equal(t, core.StateCancelled, order.State)
	require.Len(t, bus.events, 2)
	assert.Equal(t, core.EventOrderCancelled, bus.events[1].Kind)
	assert.Equal(t, "exceeded order_expiry", bus.events[1].Reason)

	// a terminal order never transitions again, local_expire included
	require.NoError(t, m.Ingest(Event{Kind: EventLocalExpire, ClientID: "c1"}))
	assert.Len(t, bus.events, 2)
}

func TestMachine_StaleStatusUpdateNeverRegressesState(t *testing.T) {
	r, _, m := newFixture(t, "c1")
	require.NoError(t, m.Ingest(Event{Kind: EventSubmitAck, ClientID: "c1", ExchangeID: "ex-1"}))
	require.NoError(t, m.Ingest(Event{Kind: EventStatusUpdate, ClientID: "c1", State: core.StatePartiallyFilled}))

	// a late reconcile poll reporting the pre-ack state must not win
	require.NoError(t, m.Ingest(Event{Kind: EventStatusUpdate, ClientID: "c1", State: core.StatePending}))

	order, _ := r.Get("c1")
	assert.Equal(t, core.StatePartiallyFilled, order.State)
}

func TestMachine_TerminalStateIsSticky(t *testing.T) {
	r, bus, m := newFixture(t, "c1")
	require.NoError(t, m.Ingest(Event{Kind: EventCancelConfirmed, ClientID: "c1"}))
	require.NoError(t, m.Ingest(Event{Kind: EventStatusUpdate, ClientID: "c1", State: core.StateOpen}))

	order, _ := r.Get("c1")
	assert.Equal(t, core.StateCancelled, order.State)
	// only the cancel event fires, the later stray status update is a no-op
	assert.Len(t, bus.events, 1)
}

func TestMachine_FillAdvancesToPartiallyFilledThenDone(t *testing.T) {
	r, bus, m := newFixture(t, "c1")
	require.NoError(t, m.Ingest(Event{Kind: EventSubmitAck, ClientID: "c1", ExchangeID: "ex-1"}))

	require.NoError(t, m.Ingest(Event{Kind: EventFill, ClientID: "c1", Fill: core.TradeFill{
		OrderClientID: "c1",
		TradeID:       "t1",
		BaseQty:       decimal.NewFromFloat(0.4),
		QuoteQty:      decimal.NewFromFloat(20000),
	}}))
	order, _ := r.Get("c1")
	assert.Equal(t, core.StatePartiallyFilled, order.State)

	require.NoError(t, m.Ingest(Event{Kind: EventFill, ClientID: "c1", Fill: core.TradeFill{
		OrderClientID: "c1",
		TradeID:       "t2",
		BaseQty:       decimal.NewFromFloat(0.6),
		QuoteQty:      decimal.NewFromFloat(30000),
	}}))
	order, _ = r.Get("c1")
	assert.Equal(t, core.StateDone, order.State)

	var kinds []core.EventKind
	for _, e := range bus.events {
		kinds = append(kinds, e.Kind)
	}
	assert.Contains(t, kinds, core.EventOrderFilled)
	assert.Contains(t, kinds, core.EventOrderDone)
}

func TestMachine_DuplicateFillIsNotRepublished(t *testing.T) {
	r, bus, m := newFixture(t, "c1")
	require.NoError(t, m.Ingest(Event{Kind: EventSubmitAck, ClientID: "c1", ExchangeID: "ex-1"}))

	fill := core.TradeFill{OrderClientID: "c1", TradeID: "t1", BaseQty: decimal.NewFromFloat(0.1), QuoteQty: decimal.NewFromFloat(5000)}
	require.NoError(t, m.Ingest(Event{Kind: EventFill, ClientID: "c1", Fill: fill}))
	before := len(bus.events)

	require.NoError(t, m.Ingest(Event{Kind: EventFill, ClientID: "c1", Fill: fill}))
	assert.Equal(t, before, len(bus.events))

	order, _ := r.Get("c1")
	assert.True(t, order.FilledBase.Equal(decimal.NewFromFloat(0.1)))
}
