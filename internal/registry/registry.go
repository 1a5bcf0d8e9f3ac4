// Package registry implements the in-flight order registry: the single
// source of truth for every order this connector has submitted but not yet
// forgotten (spec.md §4.2).
//
// The connector's event loop makes every mutating call except Track, which
// the connector calls on the placing goroutine so it can return the client
// id at once. The mutex serializes those writers and lets the read calls
// (Get, GetByExchangeID, OpenOrders) run from other goroutines.
package registry

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"exchangeconnector/internal/core"
)

// Registry owns every InFlightOrder keyed by ClientID, plus the ExchangeID
// bind index.
type Registry struct {
	mu         sync.RWMutex
	byClientID map[string]*core.InFlightOrder
	byExchID   map[string]string // exchangeID -> clientID
	logger     core.ILogger
}

// New creates an empty registry.
func New(logger core.ILogger) *Registry {
	return &Registry{
		byClientID: make(map[string]*core.InFlightOrder),
		byExchID:   make(map[string]string),
		logger:     logger.WithField("component", "registry"),
	}
}

// Track registers a new order the moment a submit_order call is issued,
// before any venue response arrives. The order starts Pending.
func (r *Registry) Track(intent core.OrderIntent) (*core.InFlightOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byClientID[intent.ClientID]; exists {
		return nil, &core.ProtocolViolation{
			Component: "registry",
			Detail:    fmt.Sprintf("client id %q already tracked", intent.ClientID),
		}
	}

	order := &core.InFlightOrder{
		ClientID:         intent.ClientID,
		Symbol:           intent.Symbol,
		Side:             intent.Side,
		Type:             intent.Type,
		OriginalQuantity: intent.Quantity,
		OriginalPrice:    intent.Price,
		CreationTS:       time.Now(),
		State:            core.StatePending,
		TradeIDsSeen:     make(map[string]struct{}),
	}
	r.byClientID[intent.ClientID] = order
	return order.Clone(), nil
}

// BindExchangeID attaches the venue-assigned order id to a tracked order.
// One-shot: rebinding to a different id is a protocol violation (spec.md
// §4.2, "exchange ids are bound once"). An empty or "0" id is rejected, so
// no placeholder id is ever bound.
func (r *Registry) BindExchangeID(clientID, exchangeID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.byClientID[clientID]
	if !ok {
		return &core.ProtocolViolation{Component: "registry", Detail: "bind for unknown client id " + clientID}
	}
	if exchangeID == "" || exchangeID == "0" {
		return &core.ProtocolViolation{Component: "registry", Detail: "placeholder exchange id for " + clientID}
	}
	if order.ExchangeID != "" && order.ExchangeID != exchangeID {
		return &core.ProtocolViolation{
			Component: "registry",
			Detail:    fmt.Sprintf("exchange id rebind for %s: %s -> %s", clientID, order.ExchangeID, exchangeID),
		}
	}
	if order.ExchangeID == exchangeID {
		return nil
	}
	order.ExchangeID = exchangeID
	r.byExchID[exchangeID] = clientID
	return nil
}

// Get returns a snapshot clone of the order tracked under clientID.
func (r *Registry) Get(clientID string) (*core.InFlightOrder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	order, ok := r.byClientID[clientID]
	if !ok {
		return nil, false
	}
	return order.Clone(), true
}

// GetByExchangeID resolves a venue order id back to the tracked order.
func (r *Registry) GetByExchangeID(exchangeID string) (*core.InFlightOrder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	clientID, ok := r.byExchID[exchangeID]
	if !ok {
		return nil, false
	}
	order, ok := r.byClientID[clientID]
	if !ok {
		return nil, false
	}
	return order.Clone(), true
}

// mutate runs fn against the live order under clientID while holding the
// write lock. Internal helper so every lifecycle mutation goes through a
// single choke point.
func (r *Registry) mutate(clientID string, fn func(*core.InFlightOrder) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.byClientID[clientID]
	if !ok {
		return &core.ProtocolViolation{Component: "registry", Detail: "mutation for unknown client id " + clientID}
	}
	return fn(order)
}

// SetState transitions the order to state, unless it is already terminal.
// A terminal order never transitions again (spec.md §4.1 invariant).
func (r *Registry) SetState(clientID string, state core.OrderState) error {
	return r.mutate(clientID, func(o *core.InFlightOrder) error {
		if o.State.Terminal() {
			return nil
		}
		o.State = state
		return nil
	})
}

// ApplyFill merges a trade fill into the order, deduping on TradeID. Returns
// true if the fill was new (not previously seen).
func (r *Registry) ApplyFill(clientID string, fill core.TradeFill) (applied bool, err error) {
	err = r.mutate(clientID, func(o *core.InFlightOrder) error {
		if _, seen := o.TradeIDsSeen[fill.TradeID]; seen {
			return nil
		}
		o.TradeIDsSeen[fill.TradeID] = struct{}{}
		o.FilledBase = o.FilledBase.Add(fill.BaseQty)
		o.FilledQuote = o.FilledQuote.Add(fill.QuoteQty)
		// Fee always replaces rather than accumulates: venues report the
		// cumulative fee-to-date on each fill message, not a per-fill delta.
		o.FeePaid = fill.FeeAmount
		o.FeeAsset = fill.FeeAsset
		applied = true
		return nil
	})
	return applied, err
}

// MarkCreatedEventFired records that the one-time OrderCreated event for
// this order has already been dispatched, so re-delivery of the same
// submit_ack never double-fires it.
func (r *Registry) MarkCreatedEventFired(clientID string) error {
	return r.mutate(clientID, func(o *core.InFlightOrder) error {
		o.CreatedEventFired = true
		return nil
	})
}

// OpenOrders returns every order not yet in a terminal state.
func (r *Registry) OpenOrders() []*core.InFlightOrder {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*core.InFlightOrder, 0, len(r.byClientID))
	for _, o := range r.byClientID {
		if !o.State.Terminal() {
			out = append(out, o.Clone())
		}
	}
	return out
}

// All returns every tracked order, terminal or not.
func (r *Registry) All() []*core.InFlightOrder {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*core.InFlightOrder, 0, len(r.byClientID))
	for _, o := range r.byClientID {
		out = append(out, o.Clone())
	}
	return out
}

// Forget removes a terminal order from the registry. Non-terminal orders
// are never forgotten (spec.md §4.2).
func (r *Registry) Forget(clientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.byClientID[clientID]
	if !ok {
		return nil
	}
	if !order.State.Terminal() {
		return &core.ProtocolViolation{Component: "registry", Detail: "forget of non-terminal order " + clientID}
	}
	delete(r.byClientID, clientID)
	if order.ExchangeID != "" {
		delete(r.byExchID, order.ExchangeID)
	}
	return nil
}

// snapshot is the JSON-serializable persisted form of the registry.
type snapshot struct {
	Orders []*core.InFlightOrder `json:"orders"`
}

// Snapshot serializes the full registry contents for persistence.
func (r *Registry) Snapshot() ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := snapshot{Orders: make([]*core.InFlightOrder, 0, len(r.byClientID))}
	for _, o := range r.byClientID {
		snap.Orders = append(snap.Orders, o.Clone())
	}
	return json.Marshal(snap)
}

// Restore replaces the registry contents with a previously saved snapshot.
// Called once at startup, before the event loop begins processing.
func (r *Registry) Restore(data []byte) error {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("registry: restore: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.byClientID = make(map[string]*core.InFlightOrder, len(snap.Orders))
	r.byExchID = make(map[string]string, len(snap.Orders))
	for _, o := range snap.Orders {
		if o.TradeIDsSeen == nil {
			o.TradeIDsSeen = make(map[string]struct{})
		}
		r.byClientID[o.ClientID] = o
		if o.ExchangeID != "" {
			r.byExchID[o.ExchangeID] = o.ClientID
		}
	}
	return nil
}
