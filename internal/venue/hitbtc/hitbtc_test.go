package hitbtc

import (
	"testing"

	"exchangeconnector/internal/core"

	"github.com/stretchr/testify/assert"
)

func TestDecodeSymbolStripsKnownQuote(t *testing.T) {
	assert.Equal(t, core.Symbol{Base: "BTC", Quote: "USDT"}, decodeSymbol("BTCUSDT", knownQuotes))
	assert.Equal(t, core.Symbol{Base: "ETH", Quote: "BTC"}, decodeSymbol("ETHBTC", knownQuotes))
}

func TestEncodeSymbol(t *testing.T) {
	assert.Equal(t, "BTCUSDT", encodeSymbol(core.Symbol{Base: "BTC", Quote: "USDT"}))
}

func TestMapStatus(t *testing.T) {
	assert.Equal(t, core.StateOpen, mapStatus("new"))
	assert.Equal(t, core.StatePartiallyFilled, mapStatus("partiallyFilled"))
	assert.Equal(t, core.StateDone, mapStatus("filled"))
	assert.Equal(t, core.StateCancelled, mapStatus("canceled"))
}

func TestParseErrorMapsKnownCodes(t *testing.T) {
	a := &Adapter{}
	assert.ErrorIs(t, a.parseError(400, []byte(`{"error":{"code":1002,"message":"bad sig"}}`)), core.ErrAuthFailure)
	assert.ErrorIs(t, a.parseError(400, []byte(`{"error":{"code":2001,"message":"nope"}}`)), core.ErrNotFound)
	assert.Nil(t, a.parseError(200, []byte(`{}`)))
}
