package connectors

import (
	"github.com/nntaoli-project/goex"
)

// PhemexSymbol converts "BTC/USDT" to the Phemex contract "BTCUSDT".
func PhemexSymbol(symbol string) (string, error) {
	base, quote, err := SplitSymbol(symbol)
	if err != nil {
		return "", err
	}
	return base + quote, nil
}

// GoexPair converts "BTC/USDT" to a goex currency pair.
func GoexPair(symbol string) (goex.CurrencyPair, error) {
	base, quote, err := SplitSymbol(symbol)
	if err != nil {
		return goex.CurrencyPair{}, err
	}
	return goex.NewCurrencyPair(goex.Currency{Symbol: base}, goex.Currency{Symbol: quote}), nil
}
