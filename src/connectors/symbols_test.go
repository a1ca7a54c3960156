package connectors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSymbolConversions(t *testing.T) {
	s, err := PhemexSymbol("btc/usdt")
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", s)

	pair, err := GoexPair("ETH/USDT")
	require.NoError(t, err)
	assert.Equal(t, "ETH_USDT", pair.String())

	for _, bad := range []string{"", "BTCUSDT", "BTC/", "/USDT", "A/B/C"} {
		_, err := PhemexSymbol(bad)
		assert.Error(t, err, bad)
	}
}

func TestNewGateway(t *testing.T) {
	gw, err := NewGateway(Config{TargetExchange: ExchangePhemex, BaseURL: "http://localhost"})
	require.NoError(t, err)
	assert.Equal(t, ExchangePhemex, gw.Name())

	_, err = NewGateway(Config{TargetExchange: "ftx"})
	assert.Error(t, err)
}
