package registry

import (
	"testing"
	"time"

	"exchangeconnector/internal/core"
	"exchangeconnector/internal/logtest"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testIntent(clientID string) core.OrderIntent {
	return core.OrderIntent{
		ClientID: clientID,
		Symbol:   core.Symbol{Base: "BTC", Quote: "USDT"},
		Side:     core.SideBuy,
		Type:     core.OrderTypeLimit,
		Quantity: decimal.NewFromFloat(1.5),
		Price:    decimal.NewFromFloat(50000),
	}
}

func TestRegistry_TrackAndGet(t *testing.T) {
	r := New(logtest.NewNop())

	order, err := r.Track(testIntent("c1"))
	require.NoError(t, err)
	assert.Equal(t, core.StatePending, order.State)

	got, ok := r.Get("c1")
	require.True(t, ok)
	assert.Equal(t, "c1", got.ClientID)
}

func TestRegistry_TrackStampsCreationTS(t *testing.T) {
	r := New(logtest.NewNop())
	before := time.Now()

	order, err := r.Track(testIntent("c1"))
	require.NoError(t, err)
	assert.False(t, order.CreationTS.Before(before))
	assert.False(t, order.CreationTS.After(time.Now()))
}

func TestRegistry_TrackDuplicateClientID(t *testing.T) {
	r := New(logtest.NewNop())
	_, err := r.Track(testIntent("c1"))
	require.NoError(t, err)

	_, err = r.Track(testIntent("c1"))
	assert.Error(t, err)
}

func TestRegistry_BindExchangeIDOneShot(t *testing.T) {
	r := New(logtest.NewNop())
	_, err := r.Track(testIntent("c1"))
	require.NoError(t, err)

	require.NoError(t, r.BindExchangeID("c1", "ex-1"))
	// rebinding to the same id is a no-op
	require.NoError(t, r.BindExchangeID("c1", "ex-1"))
	// rebinding to a different id is a protocol violation
	assert.Error(t, r.BindExchangeID("c1", "ex-2"))

	got, ok := r.GetByExchangeID("ex-1")
	require.True(t, ok)
	assert.Equal(t, "c1", got.ClientID)
}

func TestRegistry_ApplyFillDeduplicatesByTradeID(t *testing.T) {
	r := New(logtest.NewNop())
	_, err := r.Track(testIntent("c1"))
	require.NoError(t, err)

	fill := core.TradeFill{
		OrderClientID: "c1",
		TradeID:       "t1",
		BaseQty:       decimal.NewFromFloat(0.5),
		QuoteQty:      decimal.NewFromFloat(25000),
		FeeAmount:     decimal.NewFromFloat(0.001),
		FeeAsset:      "BTC",
	}

	applied, err := r.ApplyFill("c1", fill)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = r.ApplyFill("c1", fill)
	require.NoError(t, err)
	assert.False(t, applied, "duplicate trade id must not be applied twice")

	got, _ := r.Get("c1")
	assert.True(t, got.FilledBase.Equal(decimal.NewFromFloat(0.5)))
}

func TestRegistry_ForgetRequiresTerminalState(t *testing.T) {
	r := New(logtest.NewNop())
	_, err := r.Track(testIntent("c1"))
	require.NoError(t, err)

	assert.Error(t, r.Forget("c1"))

	require.NoError(t, r.SetState("c1", core.StateDone))
	assert.NoError(t, r.Forget("c1"))

	_, ok := r.Get("c1")
	assert.False(t, ok)
}

func TestRegistry_TerminalStateNeverTransitionsAgain(t *testing.T) {
	r := New(logtest.NewNop())
	_, err := r.Track(testIntent("c1"))
	require.NoError(t, err)

	require.NoError(t, r.SetState("c1", core.StateCancelled))
	require.NoError(t, r.SetState("c1", core.StateOpen))

	got, _ := r.Get("c1")
	assert.Equal(t, core.StateCancelled, got.State)
}

func TestRegistry_SnapshotRestoreRoundTrip(t *testing.T) {
	r := New(logtest.NewNop())
	_, err := r.Track(testIntent("c1"))
	require.NoError(t, err)
	require.NoError(t, r.BindExchangeID("c1", "ex-1"))

	blob, err := r.Snapshot()
	require.NoError(t, err)

	r2 := New(logtest.NewNop())
	require.NoError(t, r2.Restore(blob))

	got, ok := r2.GetByExchangeID("ex-1")
	require.True(t, ok)
	assert.Equal(t, "c1", got.ClientID)
}

func TestRegistry_OpenOrdersExcludesTerminal(t *testing.T) {
	r := New(logtest.NewNop())
	_, err := r.Track(testIntent("c1"))
	require.NoError(t, err)
	_, err = r.Track(testIntent("c2"))
	require.NoError(t, err)
	require.NoError(t, r.SetState("c2", core.StateDone))

	open := r.OpenOrders()
	require.Len(t, open, 1)
	assert.Equal(t, "c1", open[0].ClientID)
}
