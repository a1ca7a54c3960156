package seed

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"breakoutexecutor/src/database/dbtest"
	"breakoutexecutor/src/model"
	"breakoutexecutor/src/repository"
)

const sample = `
pairs:
  - symbol: BTC/USDT
    enabled: true
    leverage: 10
    tp_percent: 2
    sl_percent: 1
    cancel_after: 60
  - symbol: ETH/USDT
    enabled: false
    leverage: 5
parameters:
  risk_per_trade: "5"
  lookback: "30"
`

func TestLoadAndApply(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pairs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	f, err := LoadPairsFile(path)
	require.NoError(t, err)
	require.Len(t, f.Pairs, 2)
	assert.Equal(t, 2.0, f.Pairs[0].TakeProfitPct)
	assert.Equal(t, 60, f.Pairs[0].CancelAfter)

	ctx := context.Background()
	db := dbtest.Open(t)
	pairs := repository.NewPairRepositoryWithDB(db)
	params := repository.NewParameterRepositoryWithDB(db)

	require.NoError(t, Apply(ctx, f, pairs, params))
	// applying twice updates in place
	require.NoError(t, Apply(ctx, f, pairs, params))

	all, err := pairs.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	enabled, err := pairs.ListEnabledPairs(ctx)
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	assert.Equal(t, "BTC/USDT", enabled[0].Symbol)
	assert.Equal(t, 1.0, enabled[0].StopLossPct)

	lookback, err := params.GetInt(ctx, model.ParamLookback, 0)
	require.NoError(t, err)
	assert.Equal(t, 30, lookback)
}

func TestDecodeRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"missing symbol": "pairs:\n  - leverage: 2\n",
		"zero leverage":  "pairs:\n  - symbol: BTC/USDT\n",
		"duplicate":      "pairs:\n  - symbol: A/B\n    leverage: 1\n  - symbol: A/B\n    leverage: 1\n",
		"bad yaml":       "pairs: [",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(body))
			assert.Error(t, err)
		})
	}
}

func TestDecodeEmpty(t *testing.T) {
	f, err := Decode(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, f.Pairs)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := LoadPairsFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
