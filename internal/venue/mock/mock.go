// Package mock implements venue.Adapter as an in-memory venue, used by the
// mock venue config and by tests of the layers above the adapter boundary.
package mock

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"exchangeconnector/internal/core"
	"exchangeconnector/internal/venue"

	"github.com/shopspring/decimal"
)

// Adapter is a deterministic in-memory venue. Orders are accepted
// immediately and never fill on their own; tests drive fills and status
// changes explicitly via Fill/SetStatus.
type Adapter struct {
	mu       sync.Mutex
	nextID   int64
	orders   map[string]venue.VenueOrder // exchangeID -> order
	balances core.BalanceSnapshot
	rules    []core.TradingRule

	streamCh chan []byte
}

// New builds an empty mock adapter seeded with balances and trading rules.
func New(balances core.BalanceSnapshot, rules []core.TradingRule) *Adapter {
	return &Adapter{
		orders:   make(map[string]venue.VenueOrder),
		balances: balances.Clone(),
		rules:    rules,
		streamCh: make(chan []byte, 64),
	}
}

func (a *Adapter) Name() string { return "mock" }

func (a *Adapter) PlaceOrder(ctx context.Context, intent core.OrderIntent) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	id := atomic.AddInt64(&a.nextID, 1)
	exchangeID := fmt.Sprintf("mock-%d", id)
	a.orders[exchangeID] = venue.VenueOrder{
		ExchangeID: exchangeID,
		ClientID:   intent.ClientID,
		Symbol:     intent.Symbol,
		State:      core.StateOpen,
	}
	return exchangeID, nil
}

func (a *Adapter) CancelOrder(ctx context.Context, symbol core.Symbol, exchangeID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	o, ok := a.orders[exchangeID]
	if !ok {
		return core.ErrNotFound
	}
	if o.State.Terminal() {
		return core.ErrAlreadyClosed
	}
	o.State = core.StateCancelled
	a.orders[exchangeID] = o
	return nil
}

func (a *Adapter) GetOrderStatus(ctx context.Context, symbol core.Symbol, exchangeID string) (venue.VenueOrder, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	o, ok := a.orders[exchangeID]
	if !ok {
		return venue.VenueOrder{}, core.ErrNotFound
	}
	return o, nil
}

func (a *Adapter) GetOpenOrders(ctx context.Context, symbol core.Symbol) ([]venue.VenueOrder, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]venue.VenueOrder, 0, len(a.orders))
	for _, o := range a.orders {
		if o.State.Terminal() {
			continue
		}
		if symbol != (core.Symbol{}) && o.Symbol != symbol {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func (a *Adapter) GetBalances(ctx context.Context) (core.BalanceSnapshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balances.Clone(), nil
}

func (a *Adapter) GetTradingRules(ctx context.Context) ([]core.TradingRule, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]core.TradingRule, len(a.rules))
	copy(out, a.rules)
	return out, nil
}

func (a *Adapter) UserStreamURL(ctx context.Context) (string, error) {
	return "mock://stream", nil
}

// ParseUserStreamMessage is never invoked against real bytes in mock mode
// and decodes nothing; tests inject typed events straight into the stream
// consumer with stream.Consumer.PushForTest instead of a byte-framed wire.
func (a *Adapter) ParseUserStreamMessage(raw []byte) ([]venue.StreamEvent, error) {
	return nil, nil
}

// Fill lets a test or the mock driver apply a fill to a tracked order.
func (a *Adapter) Fill(exchangeID string, baseQty, quoteQty decimal.Decimal) {
	a.mu.Lock()
	defer a.mu.Unlock()
	o, ok := a.orders[exchangeID]
	if !ok {
		return
	}
	o.FilledBase = o.FilledBase.Add(baseQty)
	o.FilledQuote = o.FilledQuote.Add(quoteQty)
	o.State = core.StatePartiallyFilled
	a.orders[exchangeID] = o
}

// SetStatus force-sets an order's venue-side state, for reconciliation tests.
func (a *Adapter) SetStatus(exchangeID string, state core.OrderState) {
	a.mu.Lock()
	defer a.mu.Unlock()
	o, ok := a.orders[exchangeID]
	if !ok {
		return
	}
	o.State = state
	a.orders[exchangeID] = o
}
