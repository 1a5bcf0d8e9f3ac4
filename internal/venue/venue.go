// Package venue defines the adapter boundary between the connector core and
// a specific exchange's REST/stream wire format, and a base adapter shared
// by concrete venue implementations (internal/venue/bittrex,
// internal/venue/hitbtc, internal/venue/mock).
package venue

import (
	"context"
	"net/http"
	"time"

	"exchangeconnector/internal/core"

	apphttp "exchangeconnector/pkg/http"

	"github.com/shopspring/decimal"
)

// VenueOrder is a venue's view of one order, as returned by GetOpenOrders or
// GetOrderStatus. Fields are normalized; venue-specific raw values never
// cross this boundary.
type VenueOrder struct {
	ExchangeID  string
	ClientID    string
	Symbol      core.Symbol
	State       core.OrderState
	FilledBase  decimal.Decimal
	FilledQuote decimal.Decimal
}

// Adapter is the per-venue implementation a RestCommandExecutor and
// UserStreamConsumer drive. Every method is venue-specific wire handling.
// Rate limiting, nonce-ordered dispatch and state transitions live above
// this boundary; HTTP retry and circuit breaking come from the
// pkg/http.Client inside Base, and a venue that signs with a nonce (HitBTC)
// generates it in its own signer.
type Adapter interface {
	Name() string

	// PlaceOrder submits intent and returns the venue-assigned exchange id.
	// A venue that acks asynchronously (no id in the submit response) may
	// return an empty exchangeID; the executor passes it on as a submit ack
	// without an id, which leaves the order Pending and binds no
	// placeholder id.
	PlaceOrder(ctx context.Context, intent core.OrderIntent) (exchangeID string, err error)
	CancelOrder(ctx context.Context, symbol core.Symbol, exchangeID string) error
	GetOrderStatus(ctx context.Context, symbol core.Symbol, exchangeID string) (VenueOrder, error)
	GetOpenOrders(ctx context.Context, symbol core.Symbol) ([]VenueOrder, error)
	GetBalances(ctx context.Context) (core.BalanceSnapshot, error)
	GetTradingRules(ctx context.Context) ([]core.TradingRule, error)

	// UserStreamURL returns the endpoint to open the private order/balance
	// stream on, performing any venue-specific listen-key exchange first.
	UserStreamURL(ctx context.Context) (string, error)
	// ParseUserStreamMessage decodes one raw stream frame into the typed
	// events the lifecycle machine understands (internal/stream wires this
	// into lifecycle.Event).
	ParseUserStreamMessage(raw []byte) ([]StreamEvent, error)
}

// StreamEventKind distinguishes the payloads ParseUserStreamMessage can
// produce from one frame.
type StreamEventKind int

const (
	StreamEventOrderStatus StreamEventKind = iota
	StreamEventFill
	StreamEventBalance
)

// StreamEvent is one normalized item decoded from a user-stream frame.
type StreamEvent struct {
	Kind    StreamEventKind
	Order   VenueOrder
	Fill    core.TradeFill
	Asset   string
	Balance core.AssetBalance
}

// Signer signs an outgoing REST request in place, venue-specific.
type Signer func(req *http.Request, body []byte) error

// ErrorParser maps a non-2xx response body to a core sentinel error.
type ErrorParser func(statusCode int, body []byte) error

// Base provides the HTTP plumbing shared by every concrete adapter: a
// resilient client (pkg/http.Client, retry + circuit breaker already
// wired), decimal/timestamp parsing helpers, and hooks for venue-specific
// signing and error classification.
type Base struct {
	VenueName string
	Client    *apphttp.Client
	Logger    core.ILogger

	Sign       Signer
	ParseError ErrorParser
}

// NewBase builds a Base bound to baseURL, signing every request with sign.
func NewBase(name, baseURL string, timeout time.Duration, sign Signer, parseErr ErrorParser, logger core.ILogger) *Base {
	b := &Base{
		VenueName:  name,
		Logger:     logger.WithField("venue", name),
		Sign:       sign,
		ParseError: parseErr,
	}
	b.Client = apphttp.NewClient(baseURL, timeout, signerFunc(sign))
	return b
}

// signerFunc adapts a venue Signer to apphttp.Signer.
type signerFunc Signer

func (f signerFunc) SignRequest(req *http.Request) error {
	if f == nil {
		return nil
	}
	return f(req, nil)
}

// ParseDecimal parses s, logging and returning zero on failure rather than
// propagating a parse error up through every call site.
func (b *Base) ParseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		b.Logger.Warn("failed to parse decimal", "value", s, "error", err)
		return decimal.Zero
	}
	return d
}

// ParseMillis converts a millisecond Unix timestamp to time.Time.
func (b *Base) ParseMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// ClassifyError maps an APIError from pkg/http into the venue error, falling
// back to core's coarse classification when ParseError is unset or doesn't
// recognize the payload.
func (b *Base) ClassifyError(err error) error {
	apiErr, ok := err.(*apphttp.APIError)
	if !ok {
		return err
	}
	if b.ParseError != nil {
		if mapped := b.ParseError(apiErr.StatusCode, apiErr.Body); mapped != nil {
			return mapped
		}
	}
	if apphttp.ClassifyStatus(apiErr.StatusCode) {
		return core.ErrTransientNetwork
	}
	return err
}
