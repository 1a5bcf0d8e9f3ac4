package bittrex

import (
	"testing"

	"exchangeconnector/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestEncodeDecodeSymbolRoundTrip(t *testing.T) {
	sym := core.Symbol{Base: "BTC", Quote: "USDT"}
	assert.Equal(t, "BTC-USDT", encodeSymbol(sym))
	assert.Equal(t, sym, decodeSymbol("BTC-USDT"))
}

func TestMapStatus(t *testing.T) {
	qty := decimal.NewFromInt(1)
	assert.Equal(t, core.StateOpen, mapStatus("OPEN", decimal.Zero, qty))
	assert.Equal(t, core.StatePartiallyFilled, mapStatus("OPEN", decimal.NewFromFloat(0.5), qty))
	assert.Equal(t, core.StateDone, mapStatus("CLOSED", qty, qty))
	assert.Equal(t, core.StateCancelled, mapStatus("CLOSED", decimal.Zero, qty))
}

func TestParseErrorMapsKnownCodes(t *testing.T) {
	a := &Adapter{}
	assert.ErrorIs(t, a.parseError(400, []byte(`{"code":"THROTTLED"}`)), core.ErrRateLimited)
	assert.ErrorIs(t, a.parseError(400, []byte(`{"code":"INVALID_SIGNATURE"}`)), core.ErrAuthFailure)
	assert.Nil(t, a.parseError(200, []byte(`{}`)))
}
