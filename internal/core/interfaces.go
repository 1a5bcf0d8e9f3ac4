package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// IEventBus dispatches typed domain events to strategy subscribers.
// Dispatch is synchronous on the connector's single event loop goroutine;
// subscribers must not perform blocking work inline (contract with
// strategy, spec.md §5).
type IEventBus interface {
	Subscribe(kind EventKind, handler func(Event)) (unsubscribe func())
	Publish(evt Event)
}

// CancelResult is one entry of a cancel_all(deadline) response.
type CancelResult struct {
	ClientID string
	Success  bool
}

// IConnector is the strategy-facing API (spec.md §6), stable across venues.
type IConnector interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Ready() bool

	Buy(symbol Symbol, qty decimal.Decimal, typ OrderType, price *decimal.Decimal) (clientID string, err error)
	Sell(symbol Symbol, qty decimal.Decimal, typ OrderType, price *decimal.Decimal) (clientID string, err error)
	Cancel(symbol Symbol, clientID string) error
	CancelAll(ctx context.Context, deadline time.Duration) ([]CancelResult, error)

	Balances() BalanceSnapshot
	InFlightOrders() []*InFlightOrder
	LimitOrders() []*InFlightOrder

	Subscribe(kind EventKind, handler func(Event)) (unsubscribe func())
}

// IHealthMonitor aggregates health status from different components.
type IHealthMonitor interface {
	Register(component string, check func() error)
	GetStatus() map[string]string
	IsHealthy() bool
}

// IStateStore is the persistence contract for the registry's snapshot/restore
// pair (spec.md §6, "Persisted state").
type IStateStore interface {
	SaveSnapshot(ctx context.Context, blob []byte) error
	LoadSnapshot(ctx context.Context) ([]byte, error)
}
