package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle is one OHLCV bar. Sequences are ordered oldest first.
type Candle struct {
	OpenTime time.Time       `json:"open_time"`
	Open     decimal.Decimal `json:"open"`
	High     decimal.Decimal `json:"high"`
	Low      decimal.Decimal `json:"low"`
	Close    decimal.Decimal `json:"close"`
	Volume   decimal.Decimal `json:"volume"`
}

func (c Candle) IsBullish() bool { return c.Close.GreaterThan(c.Open) }
func (c Candle) IsBearish() bool { return c.Close.LessThan(c.Open) }
