// Package signal detects volume-confirmed breakouts on 1m candles.
package signal

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"breakoutexecutor/src/connectors"
	"breakoutexecutor/src/errs"
	"breakoutexecutor/src/metrics"
	"breakoutexecutor/src/model"
)

// extraCandles are fetched beyond lookback+1 to tolerate a short exchange reply.
const extraCandles = 5

// Analysis holds the values a decision was taken on.
type Analysis struct {
	LocalHigh     decimal.Decimal
	LocalLow      decimal.Decimal
	AvgVolume     decimal.Decimal
	Momentum      decimal.Decimal
	Current       model.Candle
	Direction     model.Direction // empty when no signal
	VolumeConfirm bool
}

// Evaluate decides on the last candle against the lookback candles before it.
// It returns errs.ErrDataUnavailable when fewer than lookback+1 candles are given.
func Evaluate(candles []model.Candle, lookback int, volumeMultiplier float64) (*Analysis, error) {
	if lookback < 1 {
		return nil, fmt.Errorf("lookback must be >= 1, got %d", lookback)
	}
	if math.IsNaN(volumeMultiplier) || math.IsInf(volumeMultiplier, 0) {
		return nil, fmt.Errorf("volume multiplier must be finite, got %v", volumeMultiplier)
	}
	if len(candles) < lookback+1 {
		return nil, errs.ErrDataUnavailable
	}

	recent := candles[len(candles)-(lookback+1):]
	current := recent[len(recent)-1]
	window := recent[:len(recent)-1]

	a := &Analysis{
		LocalHigh: window[0].High,
		LocalLow:  window[0].Low,
		Current:   current,
	}

	sumVolume := decimal.Zero
	for _, c := range window {
		if c.High.GreaterThan(a.LocalHigh) {
			a.LocalHigh = c.High
		}
		if c.Low.LessThan(a.LocalLow) {
			a.LocalLow = c.Low
		}
		sumVolume = sumVolume.Add(c.Volume)
	}
	a.AvgVolume = sumVolume.Div(decimal.NewFromInt(int64(len(window))))

	a.Momentum = decimal.Zero
	if len(window) >= 3 {
		a.Momentum = window[len(window)-1].Close.Sub(window[len(window)-3].Close)
	}

	threshold := a.AvgVolume.Mul(decimal.NewFromFloat(volumeMultiplier))
	a.VolumeConfirm = current.Volume.GreaterThan(threshold)

	switch {
	case current.High.GreaterThan(a.LocalHigh) && a.VolumeConfirm && a.Momentum.IsPositive():
		a.Direction = model.DirectionLong
	case current.Low.LessThan(a.LocalLow) && a.VolumeConfirm && a.Momentum.IsNegative():
		a.Direction = model.DirectionShort
	}

	return a, nil
}

// Generator fetches candles and evaluates them. It holds no strategy state:
// lookback and multiplier are passed on every call.
type Generator struct {
	gateway connectors.Gateway
	log     *logrus.Entry
	now     func() time.Time
}

func NewGenerator(gateway connectors.Gateway, log *logrus.Entry) *Generator {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Generator{
		gateway: gateway,
		log:     log.WithField("component", "signal"),
		now:     time.Now,
	}
}

// Generate returns a signal for symbol, or nil. Short history and gateway
// failures are logged and yield nil.
func (g *Generator) Generate(ctx context.Context, symbol string, lookback int, volumeMultiplier float64) *model.Signal {
	log := g.log.WithFields(logrus.Fields{"symbol": symbol, "op": "generate"})

	candles, err := g.gateway.FetchOHLCV(ctx, symbol, connectors.Timeframe1m, lookback+extraCandles)
	if err != nil {
		metrics.Errors.WithLabelValues("signal").Inc()
		log.WithError(err).Error("fetch_ohlcv failed")
		return nil
	}

	a, err := Evaluate(candles, lookback, volumeMultiplier)
	if err != nil {
		log.WithError(err).WithField("candles", len(candles)).Debug("No evaluation")
		return nil
	}

	log.WithFields(logrus.Fields{
		"local_high": a.LocalHigh.String(),
		"local_low":  a.LocalLow.String(),
		"avg_volume": a.AvgVolume.String(),
		"momentum":   a.Momentum.String(),
		"high":       a.Current.High.String(),
		"low":        a.Current.Low.String(),
		"volume":     a.Current.Volume.String(),
	}).Debug("Evaluated window")

	if a.Direction == "" {
		return nil
	}

	metrics.Signals.WithLabelValues(string(a.Direction)).Inc()
	log.WithField("direction", a.Direction).Info("Breakout signal")

	return &model.Signal{
		Symbol:      symbol,
		Direction:   a.Direction,
		GeneratedAt: g.now().UTC(),
	}
}
