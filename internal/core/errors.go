package core

import "errors"

// Trading-rule violations, returned by TradingRule.Satisfies. A strategy
// hitting one of these never reaches the wire; spec.md §7 classifies them as
// local rejections, never venue errors.
var (
	ErrSymbolOffline      = errors.New("core: symbol is offline")
	ErrBelowMinSize       = errors.New("core: order size below minimum")
	ErrSizeTickViolation  = errors.New("core: order size violates size tick")
	ErrPriceTickViolation = errors.New("core: order price violates price tick")
	ErrBelowMinNotional   = errors.New("core: order notional below minimum")
)

// Venue and transport errors, classified per spec.md §7's error taxonomy.
// Adapters and the REST command executor map venue-specific errors onto
// this set; the reconciliation and lifecycle layers branch only on these,
// never on venue-specific codes.
var (
	// ErrTransientNetwork covers timeouts, connection resets, and 5xx
	// responses. Retryable under the same nonce.
	ErrTransientNetwork = errors.New("core: transient network error")

	// ErrMalformedResponse covers a response the adapter could not parse.
	// Handled like ErrTransientNetwork: returned to the caller as an error,
	// with no lifecycle or EventBus event raised for it.
	ErrMalformedResponse = errors.New("core: malformed venue response")

	// ErrNotFound is returned by a venue lookup (order status, cancel) that
	// found no matching entity. On cancel, ambiguous between "already gone"
	// and "never existed"; lifecycle handling per spec.md §4.2 applies.
	ErrNotFound = errors.New("core: not found")

	// ErrAlreadyClosed is returned on cancel of an order already Done or
	// Cancelled. Treated as success by the cancellation orchestrator.
	ErrAlreadyClosed = errors.New("core: order already closed")

	// ErrRateLimited is returned when the venue itself rejects a request on
	// rate-limit grounds, distinct from the local token-bucket throttle.
	ErrRateLimited = errors.New("core: rate limited by venue")

	// ErrAuthFailure covers signature, credential, or permission rejection.
	// Never retried automatically.
	ErrAuthFailure = errors.New("core: authentication failure")

	// ErrRejectedByVenue covers a well-formed request the venue refused on
	// business grounds (insufficient balance, post-only cross, min notional
	// the local trading-rule cache has gone stale on).
	ErrRejectedByVenue = errors.New("core: rejected by venue")
)

// RejectionCode classifies the business reason a venue gave for refusing an
// order. min_notional and tick_size specifically mean the local trading
// rule cache is stale, not that the order itself was unsound (spec.md
// §4.7); every other reason (insufficient balance, post-only cross, ...)
// is RejectionOther.
type RejectionCode string

const (
	RejectionMinNotional RejectionCode = "min_notional"
	RejectionTickSize    RejectionCode = "tick_size"
	RejectionOther       RejectionCode = "other"
)

// VenueRejection wraps ErrRejectedByVenue with the classified reason, so a
// caller can trigger a targeted response (an on-demand trading rule
// refresh) without re-parsing the venue's raw error body.
type VenueRejection struct {
	Code RejectionCode
}

func (e *VenueRejection) Error() string {
	return "core: rejected by venue: " + string(e.Code)
}

func (e *VenueRejection) Unwrap() error { return ErrRejectedByVenue }

// ProtocolViolation reports an invariant breach in venue behavior that the
// connector cannot reconcile on its own: an unrecognized client ID bound to
// an exchange ID, an exchange ID rebind, a fill for an order unknown to the
// registry. Returned as an error to the caller; the connector logs it at
// error level and publishes no EventBus event for it; never panics
// (spec.md design note on protocol violations).
type ProtocolViolation struct {
	Component string
	Detail    string
}

func (e *ProtocolViolation) Error() string {
	return "core: protocol violation in " + e.Component + ": " + e.Detail
}
