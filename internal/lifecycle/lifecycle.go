// Package lifecycle implements the order lifecycle state machine: the rules
// for how an InFlightOrder's State advances as submit acks, status updates,
// fills, and cancel results arrive, possibly out of order and from two
// independent sources (the REST command executor and the user stream
// consumer) racing each other (spec.md §4.1).
package lifecycle

import (
	"exchangeconnector/internal/core"

	"github.com/shopspring/decimal"
)

// EventKind distinguishes the inputs the machine ingests.
type EventKind int

const (
	// EventSubmitAck carries the venue-assigned exchange id for an order
	// that was accepted. An ack with an empty ExchangeID leaves the order
	// Pending; an empty ExchangeID is never recorded as a placeholder.
	EventSubmitAck EventKind = iota
	// EventSubmitTimeout fires when the REST call for submit_order
	// suspends past its deadline with no ack and no confirmed rejection —
	// the order may or may not have reached the venue.
	EventSubmitTimeout
	// EventStatusUpdate carries an authoritative state observed from either
	// the stream or a reconciliation poll.
	EventStatusUpdate
	// EventFill carries a trade fill.
	EventFill
	// EventCancelConfirmed fires when a cancel is confirmed by the venue.
	EventCancelConfirmed
	// EventRejected fires when the venue rejects the order outright.
	EventRejected
	// EventLocalExpire is synthesized by the straggler-cancellation pass
	// when an order has been tracked non-terminal past order_expiry with no
	// resolution from either REST or the stream: the connector stops
	// waiting on the venue and cancels it locally (spec.md §4.6).
	EventLocalExpire
)

// Event is one state-machine input.
type Event struct {
	Kind       EventKind
	ClientID   string
	ExchangeID string
	State      core.OrderState // for EventStatusUpdate
	Fill       core.TradeFill  // for EventFill
	Reason     string          // for EventRejected
}

// rank orders states by how "advanced" they are, so a late-arriving update
// from one source never regresses state a more advanced update already
// established from the other source (spec.md §4.1 tie-break rule).
var rank = map[core.OrderState]int{
	core.StateIndeterminate:   0,
	core.StatePending:         1,
	core.StateOpen:            2,
	core.StatePartiallyFilled: 3,
	core.StateDone:            4,
	core.StateCancelled:       4,
	core.StateFailed:          4,
}

// Machine applies Events against a Registry-backed order. It holds no state
// of its own; every decision is a function of the event and the order's
// current recorded state.
type Machine struct {
	registry Applier
	bus      core.IEventBus
}

// Applier is the subset of *registry.Registry the machine needs. Defined
// here, not in the registry package, so the machine depends on behavior,
// not on registry's concrete type.
type Applier interface {
	Get(clientID string) (*core.InFlightOrder, bool)
	BindExchangeID(clientID, exchangeID string) error
	SetState(clientID string, state core.OrderState) error
	ApplyFill(clientID string, fill core.TradeFill) (bool, error)
	MarkCreatedEventFired(clientID string) error
}

// New builds a lifecycle machine over the given registry, publishing
// domain events to bus as transitions occur.
func New(applier Applier, bus core.IEventBus) *Machine {
	return &Machine{registry: applier, bus: bus}
}

// Ingest applies one event to the order it names, advancing or holding its
// state per the tie-break rule, and publishes the resulting domain event.
func (m *Machine) Ingest(evt Event) error {
	switch evt.Kind {
	case EventSubmitAck:
		return m.ingestSubmitAck(evt)
	case EventSubmitTimeout:
		return m.ingestSubmitTimeout(evt)
	case EventStatusUpdate:
		return m.ingestStatusUpdate(evt)
	case EventFill:
		return m.ingestFill(evt)
	case EventCancelConfirmed:
		return m.advanceState(evt.ClientID, core.StateCancelled, core.EventOrderCancelled, "")
	case EventRejected:
		return m.advanceState(evt.ClientID, core.StateFailed, core.EventOrderFailure, evt.Reason)
	case EventLocalExpire:
		return m.advanceState(evt.ClientID, core.StateCancelled, core.EventOrderCancelled, evt.Reason)
	default:
		return nil
	}
}

// ingestSubmitAck binds the venue-assigned exchange id, if any, and opens
// the order. A submit_ack with no exchange_id leaves the order Pending: the
// venue accepted the call but has not yet told us an id to track, so there
// is nothing to consider "open" yet (Open Question decision: never treated
// as a placeholder Open).
func (m *Machine) ingestSubmitAck(evt Event) error {
	if evt.ExchangeID == "" {
		return nil
	}
	if err := m.registry.BindExchangeID(evt.ClientID, evt.ExchangeID); err != nil {
		return err
	}
	return m.advanceState(evt.ClientID, core.StateOpen, core.EventOrderCreated, "")
}

// ingestSubmitTimeout moves an order to Indeterminate. The order stays
// there until a reconciliation pass resolves it positively (found open/
// filled on the venue) or negatively (never placed, transitions to
// Failed) — see internal/reconcile.
func (m *Machine) ingestSubmitTimeout(evt Event) error {
	order, ok := m.registry.Get(evt.ClientID)
	if !ok {
		return &core.ProtocolViolation{Component: "lifecycle", Detail: "timeout for unknown order " + evt.ClientID}
	}
	if order.State != core.StatePending {
		return nil
	}
	return m.registry.SetState(evt.ClientID, core.StateIndeterminate)
}

func (m *Machine) ingestStatusUpdate(evt Event) error {
	switch evt.State {
	case core.StateDone:
		return m.advanceState(evt.ClientID, core.StateDone, core.EventOrderDone, "")
	case core.StateCancelled:
		return m.advanceState(evt.ClientID, core.StateCancelled, core.EventOrderCancelled, "")
	case core.StateFailed:
		return m.advanceState(evt.ClientID, core.StateFailed, core.EventOrderFailure, "")
	default:
		return m.advanceState(evt.ClientID, evt.State, "", "")
	}
}

func (m *Machine) ingestFill(evt Event) error {
	applied, err := m.registry.ApplyFill(evt.ClientID, evt.Fill)
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}

	order, ok := m.registry.Get(evt.ClientID)
	if !ok {
		return &core.ProtocolViolation{Component: "lifecycle", Detail: "fill for unknown order " + evt.ClientID}
	}

	target := core.StatePartiallyFilled
	if order.FilledBase.GreaterThanOrEqual(order.OriginalQuantity) && !order.OriginalQuantity.Equal(decimal.Zero) {
		target = core.StateDone
	}

	kind := core.EventOrderFilled
	if target == core.StateDone {
		kind = core.EventOrderDone
	}

	if err := m.advanceState(evt.ClientID, target, "", ""); err != nil {
		return err
	}

	order, _ = m.registry.Get(evt.ClientID)
	if m.bus != nil {
		m.bus.Publish(core.Event{Kind: kind, Order: order, Fill: &evt.Fill})
	}
	return nil
}

// advanceState applies the tie-break rule and, if the state actually moved
// forward, publishes kind (when non-empty) on the bus.
func (m *Machine) advanceState(clientID string, newState core.OrderState, kind core.EventKind, reason string) error {
	order, ok := m.registry.Get(clientID)
	if !ok {
		return &core.ProtocolViolation{Component: "lifecycle", Detail: "transition for unknown order " + clientID}
	}
	if order.State.Terminal() {
		return nil
	}
	if rank[newState] < rank[order.State] {
		return nil
	}

	if err := m.registry.SetState(clientID, newState); err != nil {
		return err
	}

	if kind == "" {
		return nil
	}

	order, _ = m.registry.Get(clientID)

	if kind == core.EventOrderCreated {
		if order.CreatedEventFired {
			return nil
		}
		if err := m.registry.MarkCreatedEventFired(clientID); err != nil {
			return err
		}
	}

	if m.bus != nil {
		m.bus.Publish(core.Event{Kind: kind, Order: order, Reason: reason})
	}
	return nil
}
