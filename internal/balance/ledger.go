// Package balance implements the balance ledger: the connector's view of
// account balances, replaced wholesale by REST reconciliation and adjusted
// incrementally by stream deltas in between refreshes (spec.md §4.7).
package balance

import (
	"sync"

	"exchangeconnector/internal/core"
)

// Ledger holds the current BalanceSnapshot. REST reconciliation calls
// Replace; the user stream calls Set for per-asset updates that
// arrive faster than the reconciliation cadence.
type Ledger struct {
	mu   sync.RWMutex
	snap core.BalanceSnapshot
}

// New builds an empty ledger.
func New() *Ledger {
	return &Ledger{snap: make(core.BalanceSnapshot)}
}

// Replace installs a freshly fetched snapshot wholesale, discarding any
// incremental adjustments applied since the last refresh (spec.md §4.7,
// "REST is always the source of truth at refresh time").
func (l *Ledger) Replace(snap core.BalanceSnapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.snap = snap.Clone()
}

// Set overwrites a single asset's balance, as reported verbatim by a stream
// update.
func (l *Ledger) Set(asset string, bal core.AssetBalance) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.snap[asset] = bal
}

// Snapshot returns an immutable copy of the current balances.
func (l *Ledger) Snapshot() core.BalanceSnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snap.Clone()
}

// Get returns the balance of a single asset.
func (l *Ledger) Get(asset string) (core.AssetBalance, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	b, ok := l.snap[asset]
	return b, ok
}
