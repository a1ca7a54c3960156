package reconcile

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"breakoutexecutor/src/connectors"
	"breakoutexecutor/src/connectors/connectorstest"
	"breakoutexecutor/src/database/dbtest"
	"breakoutexecutor/src/metrics"
	"breakoutexecutor/src/model"
	"breakoutexecutor/src/repository"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type recordingCloser struct {
	mu     sync.Mutex
	calls  []uint
	err    error
	panics bool
}

func (c *recordingCloser) ClosePosition(_ context.Context, p *model.Position) error {
	if c.panics {
		panic("closer exploded")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, p.ID)
	return c.err
}

func (c *recordingCloser) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

type fixture struct {
	db        *gorm.DB
	gw        *connectorstest.FakeGateway
	orders    *repository.OrderRepository
	positions *repository.PositionRepository
	pairs     *repository.PairRepository
	closer    *recordingCloser
	rec       *Reconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	f := &fixture{
		db:        db,
		gw:        connectorstest.New(),
		orders:    repository.NewOrderRepositoryWithDB(db),
		positions: repository.NewPositionRepositoryWithDB(db),
		pairs:     repository.NewPairRepositoryWithDB(db),
		closer:    &recordingCloser{},
	}
	f.rec = New(f.gw, f.orders, f.positions, f.pairs, f.closer, Config{})
	f.rec.now = func() time.Time { return time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC) }
	return f
}

// seedOrder stores an open order locally and the given live view on the exchange.
func (f *fixture) seedOrder(t *testing.T, id, symbol string, side model.Direction, live connectors.ExchangeOrder) {
	t.Helper()
	require.NoError(t, f.orders.Create(context.Background(), &model.Order{
		ID:     id,
		Symbol: symbol,
		Side:   side,
		Type:   model.OrderTypeLimit,
		Price:  d("100"),
		Amount: d("1"),
		Status: model.OrderStatusOpen,
	}))
	live.ID = id
	live.Symbol = symbol
	f.gw.Orders[id] = &live
}

func (f *fixture) seedPosition(t *testing.T, symbol string, side model.Direction, entry string) *model.Position {
	t.Helper()
	pos := &model.Position{
		OrderID:    "ord-" + symbol,
		Symbol:     symbol,
		Side:       side,
		EntryPrice: d(entry),
		Quantity:   d("1"),
		Status:     model.PositionStatusOpen,
		OpenedAt:   time.Now().UTC(),
	}
	require.NoError(t, f.db.Create(pos).Error)
	return pos
}

func TestSweepRecordsFill(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedOrder(t, "ex-1", "BTC/USDT", model.DirectionLong, connectors.ExchangeOrder{
		Status:   model.OrderStatusFilled,
		Filled:   d("0.5"),
		AvgPrice: d("99.5"),
	})
	f.gw.SetPosition("BTC/USDT", d("0.5"))

	report, err := f.rec.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.OrdersChecked)
	assert.Equal(t, 1, report.Filled)
	assert.Equal(t, 1, report.PositionsChecked)
	assert.Equal(t, 0, report.Errors)

	order, err := f.orders.FindByID(ctx, "ex-1")
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusFilled, order.Status)

	pos, err := f.positions.FindOpenBySymbol(ctx, "BTC/USDT")
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.Equal(t, "ex-1", pos.OrderID)
	assert.Equal(t, "99.5", pos.EntryPrice.String())
	assert.Equal(t, "0.5", pos.Quantity.String())

	// a second sweep sees no open orders and leaves the position alone
	report, err = f.rec.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.OrdersChecked)
	assert.Equal(t, 0, report.Filled)

	all, err := f.positions.Search(ctx, repository.PositionSearchOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.False(t, f.rec.LastSweep().IsZero())
}

func TestSweepTerminalStatuses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedOrder(t, "ex-c", "BTC/USDT", model.DirectionLong, connectors.ExchangeOrder{Status: model.OrderStatusCanceled})
	f.seedOrder(t, "ex-e", "ETH/USDT", model.DirectionShort, connectors.ExchangeOrder{Status: model.OrderStatusExpired})
	f.seedOrder(t, "ex-o", "SOL/USDT", model.DirectionLong, connectors.ExchangeOrder{Status: model.OrderStatusOpen})

	report, err := f.rec.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.OrdersChecked)
	assert.Equal(t, 1, report.Canceled)
	assert.Equal(t, 1, report.Expired)

	for id, want := range map[string]model.OrderStatus{
		"ex-c": model.OrderStatusCanceled,
		"ex-e": model.OrderStatusExpired,
		"ex-o": model.OrderStatusOpen,
	} {
		order, err := f.orders.FindByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, order.Status, id)
	}

	has, err := f.positions.HasOpenPosition(ctx, "BTC/USDT")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestSweepContinuesPastItemErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	logger, hook := logrustest.NewNullLogger()
	f.rec.log = logrus.NewEntry(logger)

	// unknown to the exchange
	require.NoError(t, f.orders.Create(ctx, &model.Order{
		ID: "ghost", Symbol: "XRP/USDT", Side: model.DirectionLong, Type: model.OrderTypeLimit,
		Price: d("1"), Amount: d("1"), Status: model.OrderStatusOpen,
	}))
	f.seedOrder(t, "ex-1", "BTC/USDT", model.DirectionLong, connectors.ExchangeOrder{Status: model.OrderStatusFilled})
	f.gw.SetPosition("BTC/USDT", d("1"))

	report, err := f.rec.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.OrdersChecked)
	assert.Equal(t, 1, report.Errors)
	assert.Equal(t, 1, report.Filled)

	ghost, err := f.orders.FindByID(ctx, "ghost")
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusOpen, ghost.Status)

	var failed *logrus.Entry
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel {
			failed = e
		}
	}
	require.NotNil(t, failed)
	assert.Equal(t, "fetch_order", failed.Data["op"])
	assert.Equal(t, "ghost", failed.Data["order_id"])
}

func TestSweepOppositeFillIsReported(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedPosition(t, "BTC/USDT", model.DirectionLong, "100")
	f.gw.SetPosition("BTC/USDT", d("1"))
	f.seedOrder(t, "ex-s", "BTC/USDT", model.DirectionShort, connectors.ExchangeOrder{Status: model.OrderStatusFilled})

	report, err := f.rec.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Errors)
	assert.Equal(t, 0, report.Filled)

	order, err := f.orders.FindByID(ctx, "ex-s")
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusOpen, order.Status)
}

func TestSweepClosesFlatPosition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pos := f.seedPosition(t, "BTC/USDT", model.DirectionLong, "100")
	f.gw.SetPosition("BTC/USDT", decimal.Zero)
	before := testutil.ToFloat64(metrics.PositionsClosed)

	report, err := f.rec.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.PositionsClosed)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.PositionsClosed))

	status := model.PositionStatusClosed
	closed, err := f.positions.Search(ctx, repository.PositionSearchOptions{Status: &status})
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, pos.ID, closed[0].ID)
	require.NotNil(t, closed[0].ClosedAt)
	assert.True(t, closed[0].ClosedAt.Equal(f.rec.now()))
}

func TestSweepRequestsExitOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.pairs.Upsert(ctx, &model.PairConfig{Symbol: "BTC/USDT", Enabled: true, Leverage: 1, TakeProfitPct: 2, StopLossPct: 1}))
	pos := f.seedPosition(t, "BTC/USDT", model.DirectionLong, "100")
	f.gw.SetPosition("BTC/USDT", d("1"))

	f.gw.SetTicker("BTC/USDT", d("101"))
	report, err := f.rec.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.ExitsRequested)
	assert.Equal(t, 0, f.closer.count())

	f.gw.SetTicker("BTC/USDT", d("102"))
	report, err = f.rec.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.ExitsRequested)
	assert.Equal(t, []uint{pos.ID}, f.closer.calls)
	assert.Equal(t, 1, f.rec.PendingCloses())

	// still pending while the exchange reports the holding
	report, err = f.rec.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.ExitsRequested)
	assert.Equal(t, 1, f.closer.count())

	f.gw.SetPosition("BTC/USDT", decimal.Zero)
	report, err = f.rec.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.PositionsClosed)
	assert.Equal(t, 0, f.rec.PendingCloses())
}

func TestSweepRetriesFailedExit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.pairs.Upsert(ctx, &model.PairConfig{Symbol: "ETH/USDT", Enabled: true, Leverage: 1, StopLossPct: 1}))
	f.seedPosition(t, "ETH/USDT", model.DirectionShort, "100")
	f.gw.SetPosition("ETH/USDT", d("1"))
	f.gw.SetTicker("ETH/USDT", d("101"))

	f.closer.err = errors.New("rejected")
	report, err := f.rec.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Errors)
	assert.Equal(t, 0, f.rec.PendingCloses())

	f.closer.err = nil
	report, err = f.rec.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.ExitsRequested)
	assert.Equal(t, 2, f.closer.count())
}

func TestSweepSkipsExitWithoutThresholds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.pairs.Upsert(ctx, &model.PairConfig{Symbol: "BTC/USDT", Enabled: true, Leverage: 1}))
	f.seedPosition(t, "BTC/USDT", model.DirectionLong, "100")
	f.gw.SetPosition("BTC/USDT", d("1"))

	report, err := f.rec.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Errors)
	assert.Equal(t, 0, f.gw.Calls("fetch_ticker"))
}

func TestExitReason(t *testing.T) {
	tests := []struct {
		name string
		side model.Direction
		last string
		tp   float64
		sl   float64
		want string
	}{
		{"long inside band", model.DirectionLong, "100.5", 2, 1, ""},
		{"long take profit at bound", model.DirectionLong, "102", 2, 1, ExitTakeProfit},
		{"long stop loss at bound", model.DirectionLong, "99", 2, 1, ExitStopLoss},
		{"long stop loss disabled", model.DirectionLong, "50", 2, 0, ""},
		{"short take profit", model.DirectionShort, "97.9", 2, 1, ExitTakeProfit},
		{"short stop loss", model.DirectionShort, "101", 2, 1, ExitStopLoss},
		{"short take profit disabled", model.DirectionShort, "10", 0, 1, ""},
		{"no price", model.DirectionLong, "0", 2, 1, ""},
		{"long take profit not a number", model.DirectionLong, "150", math.NaN(), 1, ""},
		{"short stop loss infinite", model.DirectionShort, "150", 2, math.Inf(1), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitReason(tt.side, d("100"), d(tt.last), tt.tp, tt.sl))
		})
	}
}

func TestRunBacksOffAfterPanic(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, f.pairs.Upsert(ctx, &model.PairConfig{Symbol: "BTC/USDT", Enabled: true, Leverage: 1, TakeProfitPct: 1}))
	f.seedPosition(t, "BTC/USDT", model.DirectionLong, "100")
	f.gw.SetPosition("BTC/USDT", d("1"))
	f.gw.SetTicker("BTC/USDT", d("200"))
	f.closer.panics = true

	f.rec.interval = time.Second
	f.rec.backoff = 3 * time.Second

	var waits []time.Duration
	f.rec.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		if len(waits) == 2 {
			f.closer.panics = false
		}
		if len(waits) == 3 {
			cancel()
			return ctx.Err()
		}
		return nil
	}

	require.NoError(t, f.rec.Run(ctx))
	require.Len(t, waits, 3)
	assert.Equal(t, 3*time.Second, waits[0])
	assert.Equal(t, 3*time.Second, waits[1])
	assert.Equal(t, time.Second, waits[2])
	assert.Equal(t, 1, f.closer.count())
}
