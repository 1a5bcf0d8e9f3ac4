package balance

import (
	"testing"

	"exchangeconnector/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestLedger_ReplaceThenGet(t *testing.T) {
	l := New()
	l.Replace(core.BalanceSnapshot{"BTC": {Total: decimal.NewFromInt(1), Available: decimal.NewFromInt(1)}})

	b, ok := l.Get("BTC")
	assert.True(t, ok)
	assert.True(t, b.Total.Equal(decimal.NewFromInt(1)))
}

func TestLedger_SetAppliesIncrementalUpdate(t *testing.T) {
	l := New()
	l.Replace(core.BalanceSnapshot{"BTC": {Total: decimal.NewFromInt(1), Available: decimal.NewFromInt(1)}})
	l.Set("BTC", core.AssetBalance{Total: decimal.NewFromInt(2), Available: decimal.NewFromFloat(1.5)})

	b, _ := l.Get("BTC")
	assert.True(t, b.Total.Equal(decimal.NewFromInt(2)))
}

func TestLedger_ReplaceDiscardsUntrackedAssets(t *testing.T) {
	l := New()
	l.Replace(core.BalanceSnapshot{"BTC": {}, "ETH": {}})
	l.Replace(core.BalanceSnapshot{"BTC": {}})

	_, ok := l.Get("ETH")
	assert.False(t, ok)
}

func TestLedger_SnapshotIsIndependentCopy(t *testing.T) {
	l := New()
	l.Replace(core.BalanceSnapshot{"BTC": {Total: decimal.NewFromInt(1)}})
	snap := l.Snapshot()
	snap["BTC"] = core.AssetBalance{Total: decimal.NewFromInt(99)}

	b, _ := l.Get("BTC")
	assert.True(t, b.Total.Equal(decimal.NewFromInt(1)))
}
