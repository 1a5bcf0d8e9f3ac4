package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Symbol is a normalized base/quote trading pair. Venue-specific encoding is
// isolated in the venue adapter (internal/venue.Adapter.EncodeSymbol).
type Symbol struct {
	Base  string
	Quote string
}

func (s Symbol) String() string {
	return s.Base + "/" + s.Quote
}

// Side is an order side.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderType is an order type.
type OrderType string

const (
	OrderTypeLimit      OrderType = "limit"
	OrderTypeLimitMaker OrderType = "limit_maker"
	OrderTypeMarket     OrderType = "market"
)

// SymbolStatus is the tradability of a symbol per the trading rule cache.
type SymbolStatus string

const (
	SymbolTradable SymbolStatus = "tradable"
	SymbolOffline  SymbolStatus = "offline"
)

// TradingRule is an immutable per-symbol snapshot of exchange constraints.
//
// Invariant: every accepted order satisfies size >= MinOrderSize,
// size mod SizeTick == 0, price mod PriceTick == 0, and, when MinNotional is
// set, size*price >= MinNotional.
type TradingRule struct {
	Symbol         Symbol
	MinOrderSize   decimal.Decimal
	MinNotional    decimal.Decimal // meaningful only when HasMinNotional
	HasMinNotional bool
	PriceTick      decimal.Decimal
	SizeTick       decimal.Decimal
	Status         SymbolStatus
}

// Satisfies reports whether a price/size pair satisfies this rule.
func (r TradingRule) Satisfies(size, price decimal.Decimal) error {
	if r.Status != SymbolTradable {
		return ErrSymbolOffline
	}
	if size.LessThan(r.MinOrderSize) {
		return ErrBelowMinSize
	}
	if !r.SizeTick.IsZero() && !size.Mod(r.SizeTick).IsZero() {
		return ErrSizeTickViolation
	}
	if !r.PriceTick.IsZero() && !price.Mod(r.PriceTick).IsZero() {
		return ErrPriceTickViolation
	}
	if r.HasMinNotional && size.Mul(price).LessThan(r.MinNotional) {
		return ErrBelowMinNotional
	}
	return nil
}

// OrderIntent is the value a strategy supplies to place an order.
type OrderIntent struct {
	ClientID string
	Symbol   Symbol
	Side     Side
	Type     OrderType
	Quantity decimal.Decimal
	Price    decimal.Decimal // zero for market orders
}

// OrderState is a position in the InFlightOrder lifecycle state machine.
type OrderState string

const (
	StatePending         OrderState = "pending"
	StateOpen            OrderState = "open"
	StatePartiallyFilled OrderState = "partially_filled"
	StateDone            OrderState = "done"
	StateCancelled       OrderState = "cancelled"
	StateFailed          OrderState = "failed"
	StateIndeterminate   OrderState = "indeterminate"
)

// Terminal reports whether the state accepts no further mutation.
func (s OrderState) Terminal() bool {
	switch s {
	case StateDone, StateCancelled, StateFailed:
		return true
	default:
		return false
	}
}

// InFlightOrder is the entity owned exclusively by the InFlightOrderRegistry.
// Intent fields are immutable after creation; progress fields are
// monotone-nondecreasing until the order reaches a terminal state.
type InFlightOrder struct {
	ClientID   string
	ExchangeID string // empty until bound, one-shot

	Symbol           Symbol
	Side             Side
	Type             OrderType
	OriginalQuantity decimal.Decimal
	OriginalPrice    decimal.Decimal
	CreationTS       time.Time

	FilledBase  decimal.Decimal
	FilledQuote decimal.Decimal
	FeePaid     decimal.Decimal
	FeeAsset    string

	State OrderState

	TradeIDsSeen map[string]struct{}

	CreatedEventFired bool
}

// Clone returns an independent copy safe to hand to subscribers. External
// subscribers receive immutable event snapshots, never references into the
// registry's live state.
func (o *InFlightOrder) Clone() *InFlightOrder {
	if o == nil {
		return nil
	}
	cp := *o
	cp.TradeIDsSeen = make(map[string]struct{}, len(o.TradeIDsSeen))
	for k := range o.TradeIDsSeen {
		cp.TradeIDsSeen[k] = struct{}{}
	}
	return &cp
}

// AssetBalance is the total/available balance of a single asset.
type AssetBalance struct {
	Total     decimal.Decimal
	Available decimal.Decimal
}

// BalanceSnapshot maps asset -> balance. Replaced atomically on REST refresh;
// mutated incrementally in place by stream deltas between refreshes.
type BalanceSnapshot map[string]AssetBalance

// Clone returns a deep copy of the snapshot.
func (b BalanceSnapshot) Clone() BalanceSnapshot {
	out := make(BalanceSnapshot, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// TradeFill is an ephemeral fill event, deduped by (OrderClientID, TradeID).
type TradeFill struct {
	OrderClientID string
	TradeID       string
	Price         decimal.Decimal
	BaseQty       decimal.Decimal
	QuoteQty      decimal.Decimal
	FeeAsset      string
	FeeAmount     decimal.Decimal
	IsMaker       bool
	TS            time.Time
}

// FeeSchedule is the output of the fee model for a hypothetical or realized
// fill.
type FeeSchedule struct {
	Asset  string
	Amount decimal.Decimal
}
