// Package rules implements the trading rule cache: the connector's local,
// periodically refreshed copy of each symbol's price/size ticks, minimum
// order size, minimum notional, and tradability (spec.md §4.6). Every order
// intent is checked against this cache before it reaches the REST executor,
// so a locally-detectable violation never consumes a nonce or rate-limit
// token.
package rules

import (
	"sync"

	"exchangeconnector/internal/core"

	"github.com/shopspring/decimal"
)

// Cache holds the latest TradingRule per symbol, replaced wholesale on each
// reconciliation refresh (spec.md §4.6, "rules are a point-in-time
// snapshot, never merged field-by-field").
type Cache struct {
	mu      sync.RWMutex
	rules   map[core.Symbol]core.TradingRule
	version int
}

// New builds an empty cache; Check on an unknown symbol returns
// ErrSymbolOffline until the first Replace populates it.
func New() *Cache {
	return &Cache{rules: make(map[core.Symbol]core.TradingRule)}
}

// Replace installs a fresh rule set, discarding everything previously cached.
func (c *Cache) Replace(rules []core.TradingRule) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := make(map[core.Symbol]core.TradingRule, len(rules))
	for _, r := range rules {
		next[r.Symbol] = r
	}
	c.rules = next
	c.version++
}

// Version counts completed Replace calls, letting a caller detect whether a
// refresh has happened without comparing rule contents.
func (c *Cache) Version() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Get returns the cached rule for symbol, if known.
func (c *Cache) Get(symbol core.Symbol) (core.TradingRule, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.rules[symbol]
	return r, ok
}

// Check validates size/price against the cached rule for symbol. A symbol
// with no cached rule yet is treated as offline: the connector cannot
// recommend an order it has never seen venue constraints for.
func (c *Cache) Check(symbol core.Symbol, size, price decimal.Decimal) error {
	rule, ok := c.Get(symbol)
	if !ok {
		return core.ErrSymbolOffline
	}
	return rule.Satisfies(size, price)
}

// FeeModel computes the expected fee for a hypothetical fill, given the venue's
// flat maker/taker rates. Real fills always use the venue-reported fee
// instead (spec.md Open Question: fee schedule is advisory pre-trade,
// authoritative only from the fill itself).
type FeeModel struct {
	MakerRate decimal.Decimal
	TakerRate decimal.Decimal
}

// Estimate returns the fee, denominated in the quote asset, for a fill of
// size at price, at the maker or taker rate depending on isMaker.
func (f FeeModel) Estimate(quoteAsset string, size, price decimal.Decimal, isMaker bool) core.FeeSchedule {
	rate := f.TakerRate
	if isMaker {
		rate = f.MakerRate
	}
	notional := size.Mul(price)
	return core.FeeSchedule{
		Asset:  quoteAsset,
		Amount: notional.Mul(rate),
	}
}
