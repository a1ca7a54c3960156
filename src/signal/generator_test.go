package signal

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"breakoutexecutor/src/connectors/connectorstest"
	"breakoutexecutor/src/errs"
	"breakoutexecutor/src/model"
)

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func candle(i int, open, high, low, close, volume float64) model.Candle {
	return model.Candle{
		OpenTime: t0.Add(time.Duration(i) * time.Minute),
		Open:     decimal.NewFromFloat(open),
		High:     decimal.NewFromFloat(high),
		Low:      decimal.NewFromFloat(low),
		Close:    decimal.NewFromFloat(close),
		Volume:   decimal.NewFromFloat(volume),
	}
}

// risingWindow has highs within [100,110], lows within [90,100], volume 60 and rising closes.
func risingWindow(n int) []model.Candle {
	out := make([]model.Candle, 0, n+1)
	for i := 0; i < n; i++ {
		out = append(out, candle(i, 95, 100+float64(i%11), 90+float64(i%11), 90+float64(i)*0.5, 60))
	}
	return out
}

func fallingWindow(n int) []model.Candle {
	out := make([]model.Candle, 0, n+1)
	for i := 0; i < n; i++ {
		out = append(out, candle(i, 95, 100+float64(i%11), 90+float64(i%11), 99-float64(i)*0.5, 60))
	}
	return out
}

func TestEvaluateBreakouts(t *testing.T) {
	cases := []struct {
		name    string
		candles []model.Candle
		want    model.Direction
	}{
		{
			name:    "long breakout",
			candles: append(risingWindow(20), candle(20, 110, 115, 105, 112, 150)),
			want:    model.DirectionLong,
		},
		{
			name:    "short breakdown",
			candles: append(fallingWindow(20), candle(20, 92, 95, 85, 86, 150)),
			want:    model.DirectionShort,
		},
		{
			name:    "no breakout",
			candles: append(risingWindow(20), candle(20, 105, 109, 95, 108, 150)),
		},
		{
			name:    "weak volume",
			candles: append(risingWindow(20), candle(20, 110, 115, 105, 112, 85)),
		},
		{
			name:    "momentum disagrees",
			candles: append(fallingWindow(20), candle(20, 110, 115, 105, 112, 150)),
		},
		{
			name:    "short momentum disagrees",
			candles: append(risingWindow(20), candle(20, 92, 95, 85, 86, 150)),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a, err := Evaluate(tc.candles, 20, 1.5)
			require.NoError(t, err)
			assert.Equal(t, tc.want, a.Direction)
		})
	}
}

func TestEvaluateWindowValues(t *testing.T) {
	candles := append(risingWindow(20), candle(20, 110, 115, 105, 112, 150))
	a, err := Evaluate(candles, 20, 1.5)
	require.NoError(t, err)

	assert.Equal(t, "110", a.LocalHigh.String())
	assert.Equal(t, "90", a.LocalLow.String())
	assert.Equal(t, "60", a.AvgVolume.String())
	assert.Equal(t, "1", a.Momentum.String())
	assert.True(t, a.VolumeConfirm)
}

func TestEvaluateUsesOnlyTheMostRecentWindow(t *testing.T) {
	// an old spike outside the lookback must not raise the local high
	candles := []model.Candle{candle(-1, 100, 500, 90, 100, 60)}
	candles = append(candles, risingWindow(20)...)
	candles = append(candles, candle(20, 110, 115, 105, 112, 150))

	a, err := Evaluate(candles, 20, 1.5)
	require.NoError(t, err)
	assert.Equal(t, model.DirectionLong, a.Direction)
}

func TestEvaluateShortHistory(t *testing.T) {
	_, err := Evaluate(risingWindow(20), 20, 1.5)
	assert.ErrorIs(t, err, errs.ErrDataUnavailable)

	_, err = Evaluate(nil, 20, 1.5)
	assert.ErrorIs(t, err, errs.ErrDataUnavailable)

	_, err = Evaluate(risingWindow(5), 0, 1.5)
	assert.Error(t, err)
}

func TestEvaluateRejectsNonFiniteMultiplier(t *testing.T) {
	for _, mult := range []float64{math.NaN(), math.Inf(1)} {
		_, err := Evaluate(risingWindow(21), 20, mult)
		assert.Error(t, err)
	}
}

func TestEvaluateMomentumNeedsThreeCandles(t *testing.T) {
	candles := []model.Candle{
		candle(0, 95, 100, 90, 95, 60),
		candle(1, 95, 101, 91, 96, 60),
		candle(2, 100, 120, 99, 110, 500),
	}
	a, err := Evaluate(candles, 2, 1.5)
	require.NoError(t, err)
	assert.True(t, a.Momentum.IsZero())
	assert.Empty(t, a.Direction)
}

func TestGenerate(t *testing.T) {
	gw := connectorstest.New()
	gen := NewGenerator(gw, nil)
	gen.now = func() time.Time { return t0 }

	gw.SetCandles("BTC/USDT", append(risingWindow(20), candle(20, 110, 115, 105, 112, 150)))

	sig := gen.Generate(context.Background(), "BTC/USDT", 20, 1.5)
	require.NotNil(t, sig)
	assert.Equal(t, model.DirectionLong, sig.Direction)
	assert.Equal(t, "BTC/USDT", sig.Symbol)
	assert.Equal(t, t0, sig.GeneratedAt)

	// parameters are applied per call
	assert.Nil(t, gen.Generate(context.Background(), "BTC/USDT", 20, 3))
}

func TestGenerateSwallowsFailures(t *testing.T) {
	gw := connectorstest.New()
	gen := NewGenerator(gw, nil)

	gw.SetCandles("BTC/USDT", risingWindow(10))
	assert.Nil(t, gen.Generate(context.Background(), "BTC/USDT", 20, 1.5))

	gw.SetError("fetch_ohlcv", errors.New("timeout"))
	assert.Nil(t, gen.Generate(context.Background(), "BTC/USDT", 20, 1.5))
}
